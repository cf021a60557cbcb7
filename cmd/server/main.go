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

// mailstore — Email Ingestion Service
//
// Entry point for the ingestion server. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL (and Redis, when configured)
//  3. Initialises the identity, project, membership, message, and
//     thread stores, creating their schemas on first run
//  4. Serves the HTTP intake endpoints for message ingestion
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/mailstore/internal/config"
	"github.com/bcem/mailstore/internal/database"
	"github.com/bcem/mailstore/internal/grouping"
	"github.com/bcem/mailstore/internal/identity"
	"github.com/bcem/mailstore/internal/ingest"
	"github.com/bcem/mailstore/internal/intake"
	"github.com/bcem/mailstore/internal/membership"
	"github.com/bcem/mailstore/internal/message"
	"github.com/bcem/mailstore/internal/stats"
	"github.com/bcem/mailstore/internal/thread"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mailstore ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"internal_domains", len(cfg.InternalDomains),
		"sources", len(cfg.Sources),
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis (optional; only the backfill dedup uses it) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
	}

	// --- Stores ---
	// Construction order matters on first run: message and membership
	// schemas reference people and projects.
	people, err := identity.NewStore(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise identity store", "error", err)
		os.Exit(1)
	}
	projects, err := grouping.NewStore(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise project store", "error", err)
		os.Exit(1)
	}
	if _, err := membership.NewStore(ctx, pool); err != nil {
		slog.Error("failed to initialise membership store", "error", err)
		os.Exit(1)
	}
	messages, err := message.NewStore(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise message store", "error", err)
		os.Exit(1)
	}
	threads, err := thread.NewAggregator(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise thread aggregator", "error", err)
		os.Exit(1)
	}
	statistics := stats.NewStore(pool, cfg.StatsTopN)

	// --- Ingestor ---
	ingestor := ingest.NewIngestor(pool, people, projects, messages, threads, cfg.InternalDomains)

	// --- HTTP Intake ---
	healthy := func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	handler := intake.NewHandler(ingestor, statistics, healthy)
	ready, err := intake.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start intake server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("intake server ready", "port", cfg.Port)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	if rdb != nil {
		rdb.Close()
	}
	pool.Close()

	slog.Info("ingestion service stopped")
}
