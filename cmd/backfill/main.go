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

// mailstore — Historical Backfill Command
//
// Standalone CLI tool that ingests historical email into the store,
// either from a directory of .eml files or from a configured remote
// mailbox source. Intended for seeding data on new deployments.
//
// Usage:
//
//	go run ./cmd/backfill/ --dir /path/to/eml
//	go run ./cmd/backfill/ --source <alias> [--since 168h]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/mailstore/internal/config"
	"github.com/bcem/mailstore/internal/database"
	"github.com/bcem/mailstore/internal/dedup"
	"github.com/bcem/mailstore/internal/grouping"
	"github.com/bcem/mailstore/internal/identity"
	"github.com/bcem/mailstore/internal/ingest"
	"github.com/bcem/mailstore/internal/mailfile"
	"github.com/bcem/mailstore/internal/membership"
	"github.com/bcem/mailstore/internal/message"
	"github.com/bcem/mailstore/internal/source"
	"github.com/bcem/mailstore/internal/thread"
)

func main() {
	// Interactive tool, so pretty logs instead of JSON.
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	dirFlag := flag.String("dir", "", "Directory of .eml files to ingest")
	sourceFlag := flag.String("source", "", "Configured source alias to pull from")
	sinceFlag := flag.String("since", "168h", "Lookback duration for --source mode (e.g. 168h for 1 week)")
	flag.Parse()

	if (*dirFlag == "") == (*sourceFlag == "") {
		fmt.Fprintf(os.Stderr, "Error: exactly one of --dir or --source is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// --- Dedup Filter (optional) ---
	// Re-running a backfill over the same directory or window is
	// idempotent either way; the filter just avoids the database
	// round-trips for messages we already pushed recently.
	var filter *dedup.Filter
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		filter = dedup.NewFilter(rdb, cfg.DedupTTL)
		if err := filter.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
	}

	// --- Stores + Ingestor ---
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
	ingestor := ingest.NewIngestor(pool, people, projects, messages, threads, cfg.InternalDomains)

	// --- Collect messages ---
	var msgs []ingest.Message
	if *dirFlag != "" {
		slog.Info("reading .eml directory", "dir", *dirFlag)
		var parseErrs []error
		msgs, parseErrs = mailfile.ReadDir(*dirFlag)
		for _, perr := range parseErrs {
			slog.Warn("skipping unparseable file", "error", perr)
		}
	} else {
		var src *source.Client
		for _, sc := range cfg.Sources {
			if sc.Alias == *sourceFlag {
				src = source.NewClient(ctx, sc)
				break
			}
		}
		if src == nil {
			slog.Error("source not found in configuration", "alias", *sourceFlag)
			os.Exit(1)
		}

		since := time.Now().Add(-sinceDuration)
		slog.Info("fetching from source", "alias", src.Alias(), "since", since)
		msgs, err = src.ListMessages(ctx, since)
		if err != nil {
			slog.Error("source fetch failed", "error", err)
			os.Exit(1)
		}
	}

	if len(msgs) == 0 {
		slog.Info("nothing to backfill")
		return
	}
	slog.Info("collected messages", "count", len(msgs))

	// --- Dedup pass ---
	skipped := 0
	if filter != nil {
		fresh := msgs[:0]
		for _, m := range msgs {
			isNew, err := filter.IsNew(ctx, m.EmailID)
			if err != nil {
				slog.Warn("dedup check failed, ingesting anyway", "email_id", m.EmailID, "error", err)
				isNew = true
			}
			if isNew {
				fresh = append(fresh, m)
			} else {
				skipped++
			}
		}
		msgs = fresh
	}

	// --- Ingest ---
	start := time.Now()
	res := ingestor.IngestBatch(ctx, msgs)

	if filter != nil {
		// Failed items should be retried on the next run.
		for _, ie := range res.Errors {
			if err := filter.Forget(ctx, ie.EmailID); err != nil {
				slog.Warn("failed to clear dedup marker", "email_id", ie.EmailID, "error", err)
			}
		}
	}

	// --- Summary ---
	slog.Info("backfill complete",
		"created", res.Created,
		"updated", res.Updated,
		"failed", res.Failed,
		"skipped", skipped,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	for _, ie := range res.Errors {
		slog.Error("item failed", "email_id", ie.EmailID, "error", ie.Error)
	}

	if res.Failed > 0 {
		os.Exit(1)
	}
}
