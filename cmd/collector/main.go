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

// Audit collector
//
// This is the entry point for a single collection run against the
// Office 365 Management Activity API. It:
//  1. Loads CLI flags and the YAML config file
//  2. Authenticates against the tenant via client credentials
//  3. Ensures the configured content-type subscriptions are enabled
//  4. Loads the known-blob store and builds seed page URLs
//  5. Runs the discovery/fetch/coordinator pipeline to completion
//  6. Processes results into batches and fans them out to sinks
//  7. Reports a summary and exits
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/auditcollector/internal/activityfeed"
	"github.com/bcem/auditcollector/internal/auth"
	"github.com/bcem/auditcollector/internal/config"
	"github.com/bcem/auditcollector/internal/knownblobs"
	"github.com/bcem/auditcollector/internal/pipeline"
	"github.com/bcem/auditcollector/internal/planner"
	"github.com/bcem/auditcollector/internal/processor"
	"github.com/bcem/auditcollector/internal/runstore"
	"github.com/bcem/auditcollector/internal/sink"
	"github.com/bcem/auditcollector/internal/subscription"
	"github.com/bcem/auditcollector/internal/telemetry"
)

const defaultPublisherID = "00000000-0000-0000-0000-000000000000"

func main() {
	var (
		tenantID     = flag.String("tenant-id", "", "tenant ID (required)")
		clientID     = flag.String("client-id", "", "OAuth2 client ID (required)")
		secretKey    = flag.String("secret-key", "", "OAuth2 client secret (required)")
		configPath   = flag.String("config", "", "path to config.yaml (required)")
		publisherID  = flag.String("publisher-id", defaultPublisherID, "publisher identifier sent with every feed request")
		omsKey       = flag.String("oms-key", "", "shared key for the signed-HTTP (Azure Log Analytics) sink")
		interactive  = flag.Bool("interactive", false, "reserved for the TUI front-end; unsupported here")
		redisURL     = flag.String("redis-url", "", "Redis URL; enables the telemetry publisher and forward sink")
		databaseURL  = flag.String("database-url", "", "Postgres URL; enables the subscription audit and run-history stores")
		slackWebhook = flag.String("slack-webhook", "", "Slack webhook URL for fatal-error alerts")
		healthAddr   = flag.String("health-addr", ":8080", "address for the /healthz and /metrics server")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *interactive {
		slog.Error("interactive TUI mode is not supported by this build")
		os.Exit(1)
	}
	if *tenantID == "" || *clientID == "" || *secretKey == "" || *configPath == "" {
		slog.Error("--tenant-id, --client-id, --secret-key and --config are required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Log.Debug {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Collect.GlobalTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, time.Duration(cfg.Collect.GlobalTimeout)*time.Minute)
		defer timeoutCancel()
	}
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	resolvedRedisURL := firstNonEmpty(*redisURL, cfg.Telemetry.RedisURL, forwardRedisURL(cfg))
	resolvedDatabaseURL := firstNonEmpty(*databaseURL, cfg.Store.DatabaseURL)

	var rdb *redis.Client
	if resolvedRedisURL != "" {
		opt, err := redis.ParseURL(resolvedRedisURL)
		if err != nil {
			slog.Error("invalid --redis-url", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(runCtx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
	}

	var pool *pgxpool.Pool
	var subStore *subscription.Store
	var runHistoryStore *runstore.Store
	if resolvedDatabaseURL != "" {
		pool, err = pgxpool.New(runCtx, resolvedDatabaseURL)
		if err != nil {
			slog.Error("failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if subStore, err = subscription.NewStore(runCtx, pool); err != nil {
			slog.Error("failed to initialise subscription store", "error", err)
			os.Exit(1)
		}
		if runHistoryStore, err = runstore.NewStore(runCtx, pool); err != nil {
			slog.Error("failed to initialise run-history store", "error", err)
			os.Exit(1)
		}
	}

	publisher := telemetry.New(rdb, cfg.Telemetry.StatusChannel, firstNonEmpty(*slackWebhook, cfg.Telemetry.SlackWebhook))

	health := telemetry.NewHealthServer(rdb, pool, telemetry.Collectors()...)
	healthSrv := &http.Server{Addr: *healthAddr, Handler: health}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("health server stopped", "error", err)
		}
	}()
	defer healthSrv.Close()

	startedAt := time.Now().UTC()
	authCtx, err := auth.Login(runCtx, *tenantID, *clientID, *secretKey)
	if err != nil {
		fatal(runCtx, publisher, *tenantID, fmt.Errorf("login: %w", err))
	}

	mgr := subscription.NewManager(authCtx, subStore)
	enabledContentTypes := cfg.EnabledContentTypes()
	if err := mgr.EnsureEnabled(runCtx, enabledContentTypes); err != nil {
		fatal(runCtx, publisher, *tenantID, fmt.Errorf("ensure subscriptions: %w", err))
	}

	store, err := knownblobs.Load(cfg.Collect.WorkingDir)
	if err != nil {
		fatal(runCtx, publisher, *tenantID, fmt.Errorf("load known-blob store: %w", err))
	}

	seeds, err := planner.Seeds(*tenantID, *publisherID, time.Now(), cfg.Collect.HoursToCollect, enabledContentTypes)
	if err != nil {
		fatal(runCtx, publisher, *tenantID, fmt.Errorf("build seed pages: %w", err))
	}

	sinks, err := buildSinks(rdb, cfg, *omsKey)
	if err != nil {
		fatal(runCtx, publisher, *tenantID, fmt.Errorf("configure sinks: %w", err))
	}

	var recorder processor.RunRecorder
	if runHistoryStore != nil {
		recorder = runHistoryStore.WithTenant(*tenantID, startedAt)
	}

	proc := processor.New(store, buildFilters(cfg), cfg.Collect.CacheSize, sinks)
	client := activityfeed.NewClient(authCtx)
	coord := pipeline.New(cfg.Collect.Retries, 0)

	health.MarkStarted()

	var stages sync.WaitGroup
	stages.Add(2)
	go func() {
		defer stages.Done()
		pipeline.RunDiscovery(runCtx, coord, client, store, cfg.Collect.MaxThreads, cfg.Collect.Duplicate)
	}()
	go func() {
		defer stages.Done()
		pipeline.RunBlobFetch(runCtx, coord, client, cfg.Collect.MaxThreads)
	}()

	// stagesStopped fires once discovery and blob-fetch have both
	// returned, meaning nothing can write to ResultCh/SnapshotCh again.
	// Only then is a non-blocking drain of ResultCh safe: up to that
	// point a close-ready StopCh could otherwise win a select race
	// against a Result still sitting in the channel buffer, dropping it.
	stagesStopped := make(chan struct{})
	resultsDone := make(chan struct{})
	go func() {
		defer close(resultsDone)
		for {
			select {
			case res := <-coord.ResultCh:
				if err := proc.HandleResult(runCtx, res); err != nil {
					fatal(runCtx, publisher, *tenantID, fmt.Errorf("sink delivery: %w", err))
				}
			case snap := <-coord.SnapshotCh:
				publisher.PublishSnapshot(runCtx, telemetry.Snapshot(snap))
			case <-stagesStopped:
				for {
					select {
					case res := <-coord.ResultCh:
						if err := proc.HandleResult(runCtx, res); err != nil {
							fatal(runCtx, publisher, *tenantID, fmt.Errorf("sink delivery: %w", err))
						}
					default:
						return
					}
				}
			}
		}
	}()

	stats := coord.Run(runCtx, seeds)
	stages.Wait()
	close(stagesStopped)
	<-resultsDone

	summary, err := proc.Finish(runCtx, stats, recorder)
	if err != nil {
		fatal(runCtx, publisher, *tenantID, fmt.Errorf("finalize run: %w", err))
	}

	fmt.Print(summary)
	slog.Info("run finished")
}

func fatal(ctx context.Context, publisher *telemetry.Publisher, tenantID string, err error) {
	slog.Error("fatal error, aborting run", "error", err)
	publisher.PostFatalAlert(ctx, tenantID, err)
	os.Exit(1)
}

func buildFilters(cfg *config.Config) map[string]processor.Filter {
	if len(cfg.Collect.Filter) == 0 {
		return nil
	}
	filters := make(map[string]processor.Filter, len(cfg.Collect.Filter))
	for ct, f := range cfg.Collect.Filter {
		filters[ct] = processor.Filter(f)
	}
	return filters
}

func buildSinks(rdb *redis.Client, cfg *config.Config, omsKey string) ([]processor.Sink, error) {
	var sinks []processor.Sink

	if cfg.Output.File != nil {
		sinks = append(sinks, sink.NewFileSink(sink.FileConfig{
			Path:                  cfg.Output.File.Path,
			SeparateByContentType: cfg.Output.File.SeparateByContentType,
			ContentTypes:          cfg.Output.File.ContentTypes,
		}))
	}

	if cfg.Output.Forward != nil {
		if rdb == nil {
			return nil, fmt.Errorf("output.forward configured but --redis-url was not given")
		}
		sinks = append(sinks, sink.NewForwardSink(rdb, sink.ForwardConfig{
			QueueName:  cfg.Output.Forward.Queue,
			TenantName: cfg.Output.Forward.TenantName,
		}))
	}

	if cfg.Output.Syslog != nil {
		s, err := sink.NewSyslogSink(sink.SyslogConfig{
			Address: cfg.Output.Syslog.Address,
			Port:    cfg.Output.Syslog.Port,
		})
		if err != nil {
			return nil, fmt.Errorf("syslog sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Output.SignedHTTP != nil {
		if omsKey == "" {
			return nil, fmt.Errorf("output.signedHttp configured but --oms-key was not given")
		}
		sinks = append(sinks, sink.NewSignedHTTPSink(sink.SignedHTTPConfig{
			WorkspaceID: cfg.Output.SignedHTTP.WorkspaceID,
			SharedKey:   omsKey,
		}))
	}

	return sinks, nil
}

func forwardRedisURL(cfg *config.Config) string {
	if cfg.Output.Forward == nil {
		return ""
	}
	return cfg.Output.Forward.RedisURL
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
