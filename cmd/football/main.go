// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command football starts the Gridiron football analytics API server.
//
// The server answers natural-language questions about NFL teams, players,
// and situations by routing each question onto one of a closed set of
// statistical pipelines backed by precomputed play-by-play aggregates.
//
// Usage:
//
//	go run ./cmd/football
//	go run ./cmd/football -port 9090
//
// Required environment:
//
//	DATABASE_URL - Postgres DSN for the aggregates store
//
// Optional environment:
//
//	SESSION_DB_DIR - BadgerDB directory for session state (default ~/.gridiron/sessions)
//	ANTHROPIC_API_KEY - enables the tier-3 routing fallback and prose rendering
//	OPENAI_API_KEY - same, used when no Anthropic key is set
//	FALLBACK_DAILY_QUOTA - per-session daily cap on tier-3 model calls (default 50)
//
// Example requests:
//
//	curl http://localhost:8080/v1/football/health
//
//	curl -X POST http://localhost:8080/v1/football/ask \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "Should the Lions go for it on 4th and 2 from the 35?"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/GridironAI/gridiron/services/football"
	"github.com/GridironAI/gridiron/services/football/extract"
	"github.com/GridironAI/gridiron/services/football/pipeline"
	"github.com/GridironAI/gridiron/services/football/routing"
	"github.com/GridironAI/gridiron/services/football/session"
	"github.com/GridironAI/gridiron/services/football/sim"
	"github.com/GridironAI/gridiron/services/football/stats"
	"github.com/GridironAI/gridiron/services/football/store"
	"github.com/GridironAI/gridiron/services/llm"
	"github.com/GridironAI/gridiron/services/telemetry"
)

const (
	defaultPort         = 8080
	sessionTTL          = 24 * time.Hour
	startupLoadTimeout  = 60 * time.Second
	aggregateRefresh    = 6 * time.Hour
	shutdownGracePeriod = 10 * time.Second
)

func main() {
	port := flag.Int("port", defaultPort, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	simRuns := flag.Int("sim-runs", 0, "Monte Carlo runs per decision (0 uses the default)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		logger.Error("telemetry init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pg, err := store.Open(dsn, 10, logger)
	if err != nil {
		logger.Error("opening aggregates store failed", slog.String("error", llm.SafeLogString(err.Error())))
		os.Exit(1)
	}
	defer pg.Close()

	sessionDir := os.Getenv("SESSION_DB_DIR")
	if sessionDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Error("resolving home directory failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sessionDir = filepath.Join(home, ".gridiron", "sessions")
	}
	sessionDB, err := badger.Open(badger.DefaultOptions(sessionDir).WithLogger(nil))
	if err != nil {
		logger.Error("opening session store failed",
			slog.String("path", sessionDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer sessionDB.Close()

	sampler, fgCurve, archetypes, err := loadAggregates(ctx, pg, logger)
	if err != nil {
		logger.Error("loading startup aggregates failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	simCfg := sim.Config{Runs: *simRuns}
	simulator, err := sim.NewSimulator(sampler, fgCurve, simCfg, logger)
	if err != nil {
		logger.Error("building simulator failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	estimator, err := stats.NewEstimator(stats.DefaultShrinkageK)
	if err != nil {
		logger.Error("building estimator failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	executor, err := pipeline.NewExecutor(pg, estimator, archetypes, simulator, logger)
	if err != nil {
		logger.Error("building executor failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	extractor, err := extract.New(logger)
	if err != nil {
		logger.Error("building extractor failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client := buildLLMClient(logger)
	var fallback *routing.Fallback
	var quota *routing.Quota
	if client != nil {
		fallback = routing.NewFallback(client, 0, logger)
		quota = routing.NewQuota(fallbackDailyQuota(), rate.Limit(1), 3)
	}
	router := routing.NewRouter(fallback, quota, logger)

	svc, err := football.NewService(
		extractor,
		session.NewResolver(logger),
		session.NewBadgerStore(sessionDB, sessionTTL, logger),
		router,
		executor,
		client,
		logger,
	)
	if err != nil {
		logger.Error("building service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	go refreshAggregates(ctx, pg, sampler, archetypes, logger)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("gridiron-football"))
	if *debug {
		engine.Use(gin.Logger())
	}
	engine.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	handlers := football.NewHandlers(svc, quota, logger)
	football.RegisterRoutes(engine.Group("/v1"), handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting gridiron football server",
			slog.String("address", srv.Addr),
			slog.Bool("fallback_enabled", fallback != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gridiron football server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
	}
}

// loadAggregates pulls the three startup datasets concurrently: the historical
// play pools for the simulator, the field goal distance curve, and the
// positional archetype means for shrinkage.
func loadAggregates(ctx context.Context, pg *store.Postgres, logger *slog.Logger) (
	*sim.HistoricalSampler, *sim.DistanceCurve, *stats.Archetypes, error) {

	loadCtx, cancel := context.WithTimeout(ctx, startupLoadTimeout)
	defer cancel()

	var (
		plays  []store.PlayRow
		curve  []store.FGPoint
		means  map[string]float64
		g, gtx = errgroup.WithContext(loadCtx)
	)
	g.Go(func() error {
		var err error
		plays, err = pg.HistoricalPlays(gtx)
		return err
	})
	g.Go(func() error {
		var err error
		curve, err = pg.FieldGoalCurve(gtx)
		return err
	})
	g.Go(func() error {
		var err error
		means, err = pg.ArchetypeMeans(gtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	sampler := sim.NewHistoricalSampler(toHistoricalPlays(plays), logger)
	fgCurve := sim.NewDistanceCurve(toCurvePoints(curve))
	archetypes, err := stats.NewArchetypes(stats.NewArchetypeTable(means))
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Info("startup aggregates loaded",
		slog.Int("historical_plays", len(plays)),
		slog.Int("fg_curve_points", len(curve)),
		slog.Int("archetype_means", len(means)),
	)
	return sampler, fgCurve, archetypes, nil
}

// refreshAggregates periodically reloads the play pools and archetype means
// so a long-running server picks up new weeks of data without a restart.
func refreshAggregates(ctx context.Context, pg *store.Postgres,
	sampler *sim.HistoricalSampler, archetypes *stats.Archetypes, logger *slog.Logger) {

	ticker := time.NewTicker(aggregateRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		plays, err := pg.HistoricalPlays(ctx)
		if err != nil {
			logger.Warn("refreshing historical plays failed", slog.String("error", err.Error()))
		} else {
			sampler.Reload(toHistoricalPlays(plays))
		}

		means, err := pg.ArchetypeMeans(ctx)
		if err != nil {
			logger.Warn("refreshing archetype means failed", slog.String("error", err.Error()))
		} else {
			archetypes.Swap(stats.NewArchetypeTable(means))
		}
	}
}

// buildLLMClient selects the configured model provider. Anthropic wins when
// both keys are present. Nil disables tier-3 routing and prose rendering;
// the service still answers every question with the structured rendering.
func buildLLMClient(logger *slog.Logger) llm.Client {
	if client, err := llm.NewAnthropicClient(); err == nil {
		logger.Info("model provider connected", slog.String("provider", "anthropic"))
		return client
	}
	if client, err := llm.NewOpenAIClient(); err == nil {
		logger.Info("model provider connected", slog.String("provider", "openai"))
		return client
	}
	logger.Info("no model provider configured, running deterministic-only")
	return nil
}

func fallbackDailyQuota() int {
	if v := os.Getenv("FALLBACK_DAILY_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 50
}

func toHistoricalPlays(rows []store.PlayRow) []sim.HistoricalPlay {
	plays := make([]sim.HistoricalPlay, len(rows))
	for i, r := range rows {
		plays[i] = sim.HistoricalPlay{
			Down:     r.Down,
			Distance: r.Distance,
			Yardline: r.Yardline,
			Yards:    r.Yards,
			Turnover: r.Turnover,
		}
	}
	return plays
}

func toCurvePoints(rows []store.FGPoint) []sim.CurvePoint {
	points := make([]sim.CurvePoint, len(rows))
	for i, r := range rows {
		points[i] = sim.CurvePoint{Distance: r.Distance, Prob: r.Prob}
	}
	return points
}
