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

// Package thread maintains the email_threads aggregate: a denormalized
// per-conversation summary derived entirely from the emails table. The
// aggregate is recomputed by a full rescan rather than patched
// incrementally, so a recompute missed under concurrency self-heals on
// the next one.
package thread

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailstore/internal/database"
	"github.com/bcem/mailstore/internal/models"
)

// Aggregator owns the email_threads table.
type Aggregator struct {
	db database.Querier
}

// NewAggregator creates a thread aggregator backed by the given Postgres
// pool. It ensures the email_threads table exists on creation.
func NewAggregator(ctx context.Context, pool *pgxpool.Pool) (*Aggregator, error) {
	a := &Aggregator{db: pool}
	if err := a.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure email_threads schema: %w", err)
	}
	return a, nil
}

// WithTx returns a copy of the aggregator bound to an open transaction.
func (a *Aggregator) WithTx(tx pgx.Tx) *Aggregator {
	return &Aggregator{db: tx}
}

func (a *Aggregator) ensureSchema(ctx context.Context) error {
	_, err := a.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_threads (
			id                BIGSERIAL PRIMARY KEY,
			thread_id         TEXT NOT NULL UNIQUE,
			subject           TEXT NOT NULL DEFAULT '',
			email_count       INT NOT NULL DEFAULT 0,
			participant_count INT NOT NULL DEFAULT 0,
			first_email_date  TIMESTAMPTZ NOT NULL,
			last_email_date   TIMESTAMPTZ NOT NULL,
			participants      TEXT[] NOT NULL DEFAULT '{}',
			project_id        BIGINT REFERENCES projects(id) ON DELETE SET NULL,
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_email_threads_last ON email_threads(last_email_date);
	`)
	return err
}

const threadColumns = `id, thread_id, subject, email_count, participant_count,
	first_email_date, last_email_date, participants, project_id, updated_at`

// Recompute rebuilds the aggregate for one thread from a full scan of its
// emails. On first computation the earliest message's subject and project
// are captured; later recomputes overwrite only the derived counters and
// participant set, leaving subject and project sticky for the life of the
// thread. A thread with no remaining emails has its aggregate row removed.
func (a *Aggregator) Recompute(ctx context.Context, threadID string) error {
	var (
		count     int
		firstDate *time.Time
		lastDate  *time.Time
	)
	err := a.db.QueryRow(ctx, `
		SELECT COUNT(*), MIN(datetime_sent), MAX(datetime_sent)
		FROM emails WHERE thread_id = $1
	`, threadID).Scan(&count, &firstDate, &lastDate)
	if err != nil {
		return fmt.Errorf("scan thread %s: %w", threadID, err)
	}

	if count == 0 {
		if _, err := a.db.Exec(ctx,
			`DELETE FROM email_threads WHERE thread_id = $1`, threadID); err != nil {
			return fmt.Errorf("remove empty thread %s: %w", threadID, err)
		}
		return nil
	}

	participants, err := a.distinctSenders(ctx, threadID)
	if err != nil {
		return fmt.Errorf("collect participants of thread %s: %w", threadID, err)
	}

	var subject string
	var projectID *int64
	err = a.db.QueryRow(ctx, `
		SELECT subject, project_id FROM emails
		WHERE thread_id = $1
		ORDER BY datetime_sent, id
		LIMIT 1
	`, threadID).Scan(&subject, &projectID)
	if err != nil {
		return fmt.Errorf("find first email of thread %s: %w", threadID, err)
	}

	_, err = a.db.Exec(ctx, `
		INSERT INTO email_threads
			(thread_id, subject, email_count, participant_count,
			 first_email_date, last_email_date, participants, project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (thread_id) DO UPDATE SET
			email_count       = EXCLUDED.email_count,
			participant_count = EXCLUDED.participant_count,
			last_email_date   = EXCLUDED.last_email_date,
			participants      = EXCLUDED.participants,
			updated_at        = NOW()
	`, threadID, subject, count, len(participants), firstDate, lastDate,
		participants, projectID)
	if err != nil {
		return fmt.Errorf("upsert thread aggregate %s: %w", threadID, err)
	}
	return nil
}

func (a *Aggregator) distinctSenders(ctx context.Context, threadID string) ([]string, error) {
	rows, err := a.db.Query(ctx, `
		SELECT DISTINCT p.email
		FROM emails e
		JOIN people p ON p.id = e.from_person_id
		WHERE e.thread_id = $1
		ORDER BY p.email
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		participants = append(participants, email)
	}
	return participants, rows.Err()
}

// GetByThreadID retrieves the aggregate for a thread. Returns nil if no
// aggregate exists.
func (a *Aggregator) GetByThreadID(ctx context.Context, threadID string) (*models.EmailThread, error) {
	row := a.db.QueryRow(ctx,
		`SELECT `+threadColumns+` FROM email_threads WHERE thread_id = $1`, threadID)
	return scanThread(row)
}

// ListRecent returns thread aggregates ordered by most recent activity.
func (a *Aggregator) ListRecent(ctx context.Context, limit, offset int) ([]models.EmailThread, error) {
	rows, err := a.db.Query(ctx, `
		SELECT `+threadColumns+` FROM email_threads
		ORDER BY last_email_date DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []models.EmailThread
	for rows.Next() {
		var t models.EmailThread
		if err := rows.Scan(
			&t.ID, &t.ThreadID, &t.Subject, &t.EmailCount, &t.ParticipantCount,
			&t.FirstEmailDate, &t.LastEmailDate, &t.Participants, &t.ProjectID,
			&t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// scanThread scans a single row into an EmailThread. Returns nil on no rows.
func scanThread(row pgx.Row) (*models.EmailThread, error) {
	var t models.EmailThread
	err := row.Scan(
		&t.ID, &t.ThreadID, &t.Subject, &t.EmailCount, &t.ParticipantCount,
		&t.FirstEmailDate, &t.LastEmailDate, &t.Participants, &t.ProjectID,
		&t.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
