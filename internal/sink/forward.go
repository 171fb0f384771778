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

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bcem/auditcollector/internal/processor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ForwardConfig configures the forward-protocol sink.
type ForwardConfig struct {
	QueueName  string
	TenantName string
}

// ForwardSink publishes one Celery-compatible task per record to Redis,
// the same envelope shape the ingestion side already speaks, so a
// downstream worker queue can consume collected audit logs without a
// second wire format.
type ForwardSink struct {
	rdb *redis.Client
	cfg ForwardConfig
}

// NewForwardSink builds a ForwardSink targeting an existing Redis
// client and queue.
func NewForwardSink(rdb *redis.Client, cfg ForwardConfig) *ForwardSink {
	return &ForwardSink{rdb: rdb, cfg: cfg}
}

type celeryTask struct {
	ID      string  `json:"id"`
	Task    string  `json:"task"`
	Args    []any   `json:"args"`
	Kwargs  any     `json:"kwargs"`
	Retries int     `json:"retries"`
	ETA     *string `json:"eta"`
}

type celeryMessage struct {
	Body            string         `json:"body"`
	ContentEncoding string         `json:"content-encoding"`
	ContentType     string         `json:"content-type"`
	Headers         map[string]any `json:"headers"`
	Properties      map[string]any `json:"properties"`
}

// SendBatches implements sink.Sink, publishing one task per record.
func (s *ForwardSink) SendBatches(ctx context.Context, batches []processor.Batch) error {
	for _, b := range batches {
		for _, rec := range b.Records {
			if err := s.sendOne(ctx, b.ContentType, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ForwardSink) sendOne(ctx context.Context, contentType string, rec processor.Record) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	taskID := uuid.New().String()
	task := celeryTask{
		ID:   taskID,
		Task: "collector.tasks.ingest_audit_log",
		Args: []any{string(recJSON)},
		Kwargs: map[string]any{
			"tenant":       s.cfg.TenantName,
			"content_type": contentType,
			"timestamp":    forwardTimestamp(rec),
		},
	}
	taskBody, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal celery task: %w", err)
	}

	msg := celeryMessage{
		Body:            string(taskBody),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]any{
			"lang":    "py",
			"task":    task.Task,
			"id":      taskID,
			"retries": 0,
		},
		Properties: map[string]any{
			"correlation_id": taskID,
			"delivery_mode":  2,
			"delivery_tag":   taskID,
			"body_encoding":  "utf-8",
			"exchange":       s.cfg.QueueName,
			"routing_key":    s.cfg.QueueName,
			"delivery_info": map[string]string{
				"exchange":    s.cfg.QueueName,
				"routing_key": s.cfg.QueueName,
			},
		},
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal celery message: %w", err)
	}

	if err := s.rdb.LPush(ctx, s.cfg.QueueName, string(msgJSON)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}
	return nil
}

// forwardTimestamp derives an RFC-3339 timestamp from CreationTime,
// falling back to the empty string when it is absent or malformed.
func forwardTimestamp(rec processor.Record) string {
	raw, ok := rec["CreationTime"].(string)
	if !ok {
		return ""
	}
	t, err := time.Parse(creationTimeLayout, raw)
	if err != nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
