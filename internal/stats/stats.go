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

// Package stats is the read-only reporting façade over the emails table
// and thread aggregates.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailstore/internal/database"
)

// DefaultTopN bounds the per-project and per-sender breakdowns.
const DefaultTopN = 10

// recentWindowDays is the emails_by_date window inside GetStatistics.
const recentWindowDays = 30

// Store executes aggregate queries. It owns no tables.
type Store struct {
	db   database.Querier
	topN int
}

// NewStore creates a statistics store. A topN of zero selects DefaultTopN.
func NewStore(pool *pgxpool.Pool, topN int) *Store {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Store{db: pool, topN: topN}
}

// ProjectCount is one row of the per-project breakdown.
type ProjectCount struct {
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
	Count     int64  `json:"count"`
}

// SenderCount is one row of the per-sender breakdown.
type SenderCount struct {
	Email string `json:"email"`
	Count int64  `json:"count"`
}

// DateCount is one calendar-day bucket.
type DateCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// Statistics is the full aggregate report. All counts are scoped to the
// requested date range when one is given.
type Statistics struct {
	TotalEmails     int64          `json:"total_emails"`
	UnreadCount     int64          `json:"unread_count"`
	FlaggedCount    int64          `json:"flagged_count"`
	DraftCount      int64          `json:"draft_count"`
	ThreadCount     int64          `json:"thread_count"`
	SenderCount     int64          `json:"sender_count"`
	EmailsByProject []ProjectCount `json:"emails_by_project"`
	EmailsBySender  []SenderCount  `json:"emails_by_sender"`
	EmailsByDate    []DateCount    `json:"emails_by_date"`
}

// GetStatistics computes the aggregate report, optionally scoped to an
// inclusive [dateFrom, dateTo] range on datetime_sent.
func (s *Store) GetStatistics(ctx context.Context, dateFrom, dateTo *time.Time) (*Statistics, error) {
	where, args := dateRangeClause(dateFrom, dateTo)

	var st Statistics
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE NOT is_read),
		       COUNT(*) FILTER (WHERE is_flagged),
		       COUNT(*) FILTER (WHERE is_draft),
		       COUNT(DISTINCT thread_id),
		       COUNT(DISTINCT from_person_id)
		FROM emails %s`, where), args...).Scan(
		&st.TotalEmails, &st.UnreadCount, &st.FlaggedCount, &st.DraftCount,
		&st.ThreadCount, &st.SenderCount,
	)
	if err != nil {
		return nil, fmt.Errorf("count emails: %w", err)
	}

	st.EmailsByProject, err = s.byProject(ctx, where, args)
	if err != nil {
		return nil, err
	}
	st.EmailsBySender, err = s.bySender(ctx, where, args)
	if err != nil {
		return nil, err
	}
	st.EmailsByDate, err = s.byDate(ctx, where, args)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) byProject(ctx context.Context, where string, args []any) ([]ProjectCount, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.name, COUNT(*)
		FROM emails e
		JOIN projects p ON p.id = e.project_id
		%s
		GROUP BY p.id, p.name
		ORDER BY COUNT(*) DESC, p.name
		LIMIT %d`, qualify(where, "e"), s.topN)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by project: %w", err)
	}
	defer rows.Close()

	counts := []ProjectCount{}
	for rows.Next() {
		var c ProjectCount
		if err := rows.Scan(&c.ProjectID, &c.Name, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *Store) bySender(ctx context.Context, where string, args []any) ([]SenderCount, error) {
	query := fmt.Sprintf(`
		SELECT p.email, COUNT(*)
		FROM emails e
		JOIN people p ON p.id = e.from_person_id
		%s
		GROUP BY p.email
		ORDER BY COUNT(*) DESC, p.email
		LIMIT %d`, qualify(where, "e"), s.topN)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by sender: %w", err)
	}
	defer rows.Close()

	counts := []SenderCount{}
	for rows.Next() {
		var c SenderCount
		if err := rows.Scan(&c.Email, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *Store) byDate(ctx context.Context, where string, args []any) ([]DateCount, error) {
	query := fmt.Sprintf(`
		SELECT to_char(datetime_sent::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM emails
		%s
		GROUP BY day
		ORDER BY day DESC
		LIMIT %d`, where, recentWindowDays)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by date: %w", err)
	}
	defer rows.Close()
	return collectDateCounts(rows)
}

// GetActivityTimeline returns one bucket per calendar day with at least
// one email over the trailing window. Days without activity produce no
// bucket; the timeline is sparse.
func (s *Store) GetActivityTimeline(ctx context.Context, days int) ([]DateCount, error) {
	if days <= 0 {
		days = recentWindowDays
	}
	cutoff := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))

	rows, err := s.db.Query(ctx, `
		SELECT to_char(datetime_sent::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM emails
		WHERE datetime_sent >= $1
		GROUP BY day
		ORDER BY day
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("activity timeline: %w", err)
	}
	defer rows.Close()
	return collectDateCounts(rows)
}

// dateRangeClause builds an inclusive WHERE clause over datetime_sent.
// Returns "" and no args when neither bound is set.
func dateRangeClause(dateFrom, dateTo *time.Time) (string, []any) {
	switch {
	case dateFrom != nil && dateTo != nil:
		return "WHERE datetime_sent >= $1 AND datetime_sent <= $2", []any{*dateFrom, *dateTo}
	case dateFrom != nil:
		return "WHERE datetime_sent >= $1", []any{*dateFrom}
	case dateTo != nil:
		return "WHERE datetime_sent <= $1", []any{*dateTo}
	default:
		return "", nil
	}
}

// qualify prefixes the datetime_sent references of a range clause with a
// table alias for use in joined queries.
func qualify(where, alias string) string {
	if where == "" {
		return ""
	}
	return strings.ReplaceAll(where, "datetime_sent", alias+".datetime_sent")
}

func collectDateCounts(rows pgx.Rows) ([]DateCount, error) {
	counts := []DateCount{}
	for rows.Next() {
		var c DateCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
