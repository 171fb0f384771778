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

// Package subscription ensures the upstream Management Activity feed
// subscriptions for a tenant's configured content types are active
// before a collection run starts, and keeps an audit trail of that
// state.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bcem/auditcollector/internal/auth"
	"github.com/bcem/auditcollector/internal/planner"
)

const (
	listTimeout  = 30 * time.Second
	startTimeout = 30 * time.Second
)

// Manager lists and starts Management Activity feed subscriptions.
type Manager struct {
	auth  *auth.Context
	store *Store // nil disables audit persistence
}

// NewManager builds a Manager. store may be nil, in which case
// subscription state is ensured but not audited.
func NewManager(authCtx *auth.Context, store *Store) *Manager {
	return &Manager{auth: authCtx, store: store}
}

type subscriptionEntry struct {
	ContentType string `json:"contentType"`
	Status      string `json:"status"`
}

// EnsureEnabled lists the tenant's current subscriptions and issues a
// start call for every configured content type not already reporting
// "enabled". It is idempotent: run twice against a stable upstream, the
// second call issues zero start requests. A failure of either the list
// call or a start call is fatal.
func (m *Manager) EnsureEnabled(ctx context.Context, contentTypes []string) error {
	current, err := m.list(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	enabled := make(map[string]bool, len(current))
	for _, s := range current {
		if strings.EqualFold(s.Status, "enabled") {
			enabled[s.ContentType] = true
		}
	}

	for _, ct := range contentTypes {
		if enabled[ct] {
			slog.Debug("feed already enabled", "content_type", ct)
			m.audit(ctx, ct, "enabled")
			continue
		}
		if err := m.start(ctx, ct); err != nil {
			return fmt.Errorf("start subscription for %s: %w", ct, err)
		}
		slog.Info("subscribed to feed", "content_type", ct)
		m.audit(ctx, ct, "enabled")
	}
	return nil
}

func (m *Manager) audit(ctx context.Context, contentType, status string) {
	if m.store == nil {
		return
	}
	if err := m.store.Upsert(ctx, m.auth.TenantID, contentType, status); err != nil {
		slog.Warn("failed to record subscription audit row", "content_type", contentType, "error", err)
	}
}

func (m *Manager) list(ctx context.Context) ([]subscriptionEntry, error) {
	url := fmt.Sprintf("%s/subscriptions/list", planner.BaseURL(m.auth.TenantID))
	req, cancel, err := m.auth.NewRequest(ctx, http.MethodGet, url, listTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := m.auth.HTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list subscriptions failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var entries []subscriptionEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode subscription list: %w", err)
	}
	return entries, nil
}

func (m *Manager) start(ctx context.Context, contentType string) error {
	url := fmt.Sprintf("%s/subscriptions/start?contentType=%s", planner.BaseURL(m.auth.TenantID), contentType)
	req, cancel, err := m.auth.NewRequest(ctx, http.MethodPost, url, startTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := m.auth.HTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("start subscription failed (HTTP %d): %s", resp.StatusCode, string(body))
	}
	return nil
}
