// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	goslack "github.com/slack-go/slack"
)

// Publisher mirrors coordinator snapshots onto Redis pub/sub and the
// local Prometheus gauges, and posts fatal-error alerts to Slack. Every
// dependency is optional: a nil Publisher field disables that half of
// the publisher without the caller needing to branch.
type Publisher struct {
	rdb     *redis.Client
	channel string
	webhook string
}

// New builds a Publisher. rdb may be nil (disables the Redis snapshot
// publish); webhookURL may be empty (disables Slack alerting).
func New(rdb *redis.Client, channel, webhookURL string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, webhook: webhookURL}
}

// PublishSnapshot updates the local Prometheus gauges and, if Redis is
// configured, publishes the snapshot as JSON on the configured channel.
// Redis publish failures are logged, never fatal: the snapshot stream
// is a read-only convenience for external observers, not part of the
// pipeline's correctness contract.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap Snapshot) {
	Observe(snap)

	if p.rdb == nil {
		return
	}
	body, err := json.Marshal(snap)
	if err != nil {
		slog.Warn("failed to marshal status snapshot", "error", err)
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, body).Err(); err != nil {
		slog.Warn("failed to publish status snapshot", "channel", p.channel, "error", err)
	}
}

// PostFatalAlert posts a best-effort Slack message for a fatal-init or
// sink-failure abort. A failure to reach Slack is logged and never
// upgrades or downgrades the original error it is reporting.
func (p *Publisher) PostFatalAlert(ctx context.Context, tenantID string, cause error) {
	if p.webhook == "" {
		return
	}
	text := fmt.Sprintf(":rotating_light: audit collector run for tenant `%s` aborted: %s", tenantID, cause)
	if err := goslack.PostWebhookContext(ctx, p.webhook, &goslack.WebhookMessage{Text: text}); err != nil {
		slog.Warn("failed to post fatal alert to slack", "error", err)
	}
}
