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
	"strings"
	"testing"
	"time"
)

// TestBuildSearchQuery_NoCriteria verifies the default query shape.
func TestBuildSearchQuery_NoCriteria(t *testing.T) {
	query, args := buildSearchQuery(Criteria{}, Page{})

	if strings.Contains(query, "WHERE") {
		t.Errorf("empty criteria should produce no WHERE clause:\n%s", query)
	}
	if !strings.Contains(query, "ORDER BY e.datetime_sent DESC") {
		t.Errorf("default sort should be datetime_sent DESC:\n%s", query)
	}
	// Only limit and offset remain as arguments.
	if len(args) != 2 {
		t.Fatalf("args = %v, want [limit offset]", args)
	}
	if args[0] != defaultLimit || args[1] != 0 {
		t.Errorf("args = %v, want [%d 0]", args, defaultLimit)
	}
}

// TestBuildSearchQuery_AllCriteria verifies every predicate lands in the
// WHERE clause with the right argument.
func TestBuildSearchQuery_AllCriteria(t *testing.T) {
	projectID := int64(7)
	isRead := true
	isFlagged := false
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)

	query, args := buildSearchQuery(Criteria{
		Query:     "invoice",
		FromEmail: "Alice@Acme.com",
		ToEmail:   "bob@beta.com",
		ProjectID: &projectID,
		ThreadID:  "T1",
		IsRead:    &isRead,
		IsFlagged: &isFlagged,
		DateFrom:  &from,
		DateTo:    &to,
	}, Page{Limit: 10, Offset: 20, SortBy: "subject", SortOrder: "asc"})

	for _, want := range []string{
		"e.subject ILIKE $1",
		"e.body_text ILIKE $1",
		"e.from_person_id IN (SELECT id FROM people WHERE email = $2)",
		"rp.email = $3",
		"e.project_id = $4",
		"e.thread_id = $5",
		"e.is_read = $6",
		"e.is_flagged = $7",
		"e.datetime_sent >= $8",
		"e.datetime_sent <= $9",
		"ORDER BY e.subject ASC",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q:\n%s", want, query)
		}
	}

	if args[0] != "%invoice%" {
		t.Errorf("query arg = %v, want %%invoice%%", args[0])
	}
	if args[1] != "alice@acme.com" {
		t.Errorf("from arg = %v, want normalized alice@acme.com", args[1])
	}
	if args[len(args)-2] != 10 || args[len(args)-1] != 20 {
		t.Errorf("paging args = %v, want limit 10 offset 20", args[len(args)-2:])
	}
}

// TestEscapeLike verifies LIKE metacharacters are matched literally.
func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"invoice", "invoice"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`c:\temp`, `c:\\temp`},
		{"50%_off", `50\%\_off`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	_, args := buildSearchQuery(Criteria{Query: "100%"}, Page{})
	if args[0] != `%100\%%` {
		t.Errorf("pattern arg = %v, want %%100\\%%%%", args[0])
	}
}

// TestSortColumn verifies the sort whitelist.
func TestSortColumn(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"subject", "subject"},
		{"created_at", "created_at"},
		{"datetime_sent", "datetime_sent"},
		{"", "datetime_sent"},
		{"id; DROP TABLE emails", "datetime_sent"},
	}
	for _, tt := range tests {
		if got := sortColumn(tt.in); got != tt.want {
			t.Errorf("sortColumn(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestPageLimit verifies defaulting and capping.
func TestPageLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{25, 25},
		{maxLimit + 1, maxLimit},
	}
	for _, tt := range tests {
		if got := pageLimit(tt.in); got != tt.want {
			t.Errorf("pageLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
