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

package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bcem/mailstore/internal/identity"
	"github.com/bcem/mailstore/internal/models"
)

// Criteria enumerates the supported search predicates. All set fields are
// combined with AND; zero values mean "no constraint". Unsupported
// predicates simply do not exist here, so they cannot be silently ignored.
type Criteria struct {
	Query     string // substring over subject and body_text
	FromEmail string
	ToEmail   string // matches any recipient type
	ProjectID *int64
	ThreadID  string
	IsRead    *bool
	IsFlagged *bool
	DateFrom  *time.Time // inclusive
	DateTo    *time.Time // inclusive
}

// Page controls result ordering and pagination.
type Page struct {
	Limit     int
	Offset    int
	SortBy    string // datetime_sent, subject, or created_at
	SortOrder string // asc or desc
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Search returns emails matching the criteria, newest first by default.
// Results carry the bare row fields; callers needing eager associations
// use Get on the individual ids.
func (s *Store) Search(ctx context.Context, c Criteria, p Page) ([]models.Email, error) {
	query, args := buildSearchQuery(c, p)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search emails: %w", err)
	}
	defer rows.Close()
	return collectEmails(rows)
}

// buildSearchQuery compiles criteria and paging into SQL and positional
// arguments. Kept pure so the compilation is unit-testable.
func buildSearchQuery(c Criteria, p Page) (string, []any) {
	var conds []string
	var args []any
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if c.Query != "" {
		ph := arg("%" + escapeLike(c.Query) + "%")
		conds = append(conds, fmt.Sprintf("(e.subject ILIKE %s OR e.body_text ILIKE %s)", ph, ph))
	}
	if c.FromEmail != "" {
		conds = append(conds, fmt.Sprintf(
			"e.from_person_id IN (SELECT id FROM people WHERE email = %s)",
			arg(identity.NormalizeEmail(c.FromEmail))))
	}
	if c.ToEmail != "" {
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM email_recipients er
			JOIN people rp ON rp.id = er.person_id
			WHERE er.email_id = e.id AND rp.email = %s)`,
			arg(identity.NormalizeEmail(c.ToEmail))))
	}
	if c.ProjectID != nil {
		conds = append(conds, fmt.Sprintf("e.project_id = %s", arg(*c.ProjectID)))
	}
	if c.ThreadID != "" {
		conds = append(conds, fmt.Sprintf("e.thread_id = %s", arg(c.ThreadID)))
	}
	if c.IsRead != nil {
		conds = append(conds, fmt.Sprintf("e.is_read = %s", arg(*c.IsRead)))
	}
	if c.IsFlagged != nil {
		conds = append(conds, fmt.Sprintf("e.is_flagged = %s", arg(*c.IsFlagged)))
	}
	if c.DateFrom != nil {
		conds = append(conds, fmt.Sprintf("e.datetime_sent >= %s", arg(*c.DateFrom)))
	}
	if c.DateTo != nil {
		conds = append(conds, fmt.Sprintf("e.datetime_sent <= %s", arg(*c.DateTo)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT e.id, e.email_id, e.message_id, e.in_reply_to, e.thread_id,
		       e.subject, e.body, e.body_text, e.datetime_sent, e.headers,
		       e.attachments, e.size_bytes, e.is_read, e.is_flagged, e.is_draft,
		       e.from_person_id, e.project_id, e.created_at, e.updated_at
		FROM emails e
		%s
		ORDER BY e.%s %s
		LIMIT %s OFFSET %s`,
		where, sortColumn(p.SortBy), sortOrder(p.SortOrder),
		arg(pageLimit(p.Limit)), arg(maxInt(p.Offset, 0)))

	return query, args
}

// escapeLike neutralizes the LIKE metacharacters so a query for a
// literal "100%" or "a_b" keeps substring semantics.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// sortColumn whitelists the sortable columns; anything else falls back to
// datetime_sent.
func sortColumn(sortBy string) string {
	switch sortBy {
	case "subject", "created_at", "datetime_sent":
		return sortBy
	default:
		return "datetime_sent"
	}
}

func sortOrder(order string) string {
	if strings.EqualFold(order, "asc") {
		return "ASC"
	}
	return "DESC"
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
