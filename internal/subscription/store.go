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

package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one audit row of subscription state for a (tenant, content
// type) pair, as last observed by Manager.EnsureEnabled.
type Record struct {
	TenantID      string
	ContentType   string
	Status        string
	EnabledAt     time.Time
	LastCheckedAt time.Time
}

// Store persists subscription audit rows in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a subscription audit store backed by the given pool.
// It ensures the backing table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure subscription schema: %w", err)
	}
	slog.Info("subscription store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			tenant_id       TEXT NOT NULL,
			content_type    TEXT NOT NULL,
			status          TEXT NOT NULL,
			enabled_at      TIMESTAMPTZ,
			last_checked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tenant_id, content_type)
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status);
	`)
	return err
}

// Upsert records the current status of a (tenant, content type)
// subscription, setting enabled_at the first time status becomes
// "enabled" and refreshing last_checked_at on every call.
func (s *Store) Upsert(ctx context.Context, tenantID, contentType, status string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (tenant_id, content_type, status, enabled_at, last_checked_at)
		VALUES ($1, $2, $3, CASE WHEN $3 = 'enabled' THEN NOW() ELSE NULL END, NOW())
		ON CONFLICT (tenant_id, content_type) DO UPDATE SET
			status          = EXCLUDED.status,
			enabled_at      = COALESCE(subscriptions.enabled_at, EXCLUDED.enabled_at),
			last_checked_at = NOW()
	`, tenantID, contentType, status)
	return err
}

// Get retrieves the audit row for a single (tenant, content type) pair.
func (s *Store) Get(ctx context.Context, tenantID, contentType string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT tenant_id, content_type, status, enabled_at, last_checked_at
		FROM subscriptions
		WHERE tenant_id = $1 AND content_type = $2
	`, tenantID, contentType)
	return scanRecord(row)
}

// ListByTenant returns every audited content type for a tenant.
func (s *Store) ListByTenant(ctx context.Context, tenantID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, content_type, status, enabled_at, last_checked_at
		FROM subscriptions
		WHERE tenant_id = $1
		ORDER BY content_type
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var enabledAt *time.Time
	err := row.Scan(&r.TenantID, &r.ContentType, &r.Status, &enabledAt, &r.LastCheckedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if enabledAt != nil {
		r.EnabledAt = *enabledAt
	}
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var enabledAt *time.Time
		if err := rows.Scan(&r.TenantID, &r.ContentType, &r.Status, &enabledAt, &r.LastCheckedAt); err != nil {
			return nil, err
		}
		if enabledAt != nil {
			r.EnabledAt = *enabledAt
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
