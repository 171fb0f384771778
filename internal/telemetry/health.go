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
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// HealthServer exposes /healthz and /metrics for a running collection.
// Readiness additionally pings Redis/Postgres when either is
// configured; a collector with neither reports ready as soon as it has
// started.
type HealthServer struct {
	router  *chi.Mux
	rdb     *redis.Client
	pool    *pgxpool.Pool
	started bool
}

// NewHealthServer builds a HealthServer and registers the given
// metrics collectors against a private registry. rdb and pool may be
// nil.
func NewHealthServer(rdb *redis.Client, pool *pgxpool.Pool, collectors ...prometheus.Collector) *HealthServer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors...)

	s := &HealthServer{router: chi.NewRouter(), rdb: rdb, pool: pool}
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s
}

// MarkStarted flips readiness on; called once the coordinator has
// begun its run.
func (s *HealthServer) MarkStarted() {
	s.started = true
}

func (s *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.started {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not started"))
		return
	}

	ctx := r.Context()
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("redis not ready"))
			return
		}
	}
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
