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

// Package runstore persists a row per completed collection run, for
// operators auditing collection history after the fact.
package runstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/auditcollector/internal/pipeline"
)

// Run is a single persisted run-history row.
type Run struct {
	ID         string
	TenantID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Found      int64
	Successful int64
	Error      int64
	Retried    int64
	LogsSaved  int64
}

// Store persists run history in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a run-history store backed by the given pool. It
// ensures the backing table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure run-history schema: %w", err)
	}
	slog.Info("run-history store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id          UUID PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			found       BIGINT NOT NULL,
			successful  BIGINT NOT NULL,
			error       BIGINT NOT NULL,
			retried     BIGINT NOT NULL,
			logs_saved  BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
	`)
	return err
}

// WithTenant returns a TenantRecorder bound to one tenant ID, so the
// result processor's RunRecorder interface does not need to carry the
// tenant identity itself.
func (s *Store) WithTenant(tenantID string, startedAt time.Time) *TenantRecorder {
	return &TenantRecorder{store: s, tenantID: tenantID, startedAt: startedAt}
}

func (s *Store) insert(ctx context.Context, r Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, tenant_id, started_at, finished_at, found, successful, error, retried, logs_saved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.TenantID, r.StartedAt, r.FinishedAt, r.Found, r.Successful, r.Error, r.Retried, r.LogsSaved)
	return err
}

// ListByTenant returns a tenant's most recent runs, newest first.
func (s *Store) ListByTenant(ctx context.Context, tenantID string, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, started_at, finished_at, found, successful, error, retried, logs_saved
		FROM runs
		WHERE tenant_id = $1
		ORDER BY finished_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.TenantID, &r.StartedAt, &r.FinishedAt, &r.Found, &r.Successful, &r.Error, &r.Retried, &r.LogsSaved); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TenantRecorder implements processor.RunRecorder for a single tenant
// and run start time.
type TenantRecorder struct {
	store     *Store
	tenantID  string
	startedAt time.Time
}

// RecordRun persists the final statistics of one completed run.
func (t *TenantRecorder) RecordRun(ctx context.Context, stats pipeline.RunStatistics, logsSaved int64) error {
	return t.store.insert(ctx, Run{
		ID:         uuid.New().String(),
		TenantID:   t.tenantID,
		StartedAt:  t.startedAt,
		FinishedAt: time.Now().UTC(),
		Found:      stats.Found,
		Successful: stats.Successful,
		Error:      stats.Error,
		Retried:    stats.Retried,
		LogsSaved:  logsSaved,
	})
}
