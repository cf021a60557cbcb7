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

package stats

import (
	"testing"
	"time"
)

// TestDateRangeClause verifies inclusive range compilation.
func TestDateRangeClause(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name     string
		from, to *time.Time
		want     string
		wantArgs int
	}{
		{"both bounds", &from, &to, "WHERE datetime_sent >= $1 AND datetime_sent <= $2", 2},
		{"from only", &from, nil, "WHERE datetime_sent >= $1", 1},
		{"to only", nil, &to, "WHERE datetime_sent <= $1", 1},
		{"unbounded", nil, nil, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := dateRangeClause(tt.from, tt.to)
			if where != tt.want {
				t.Errorf("clause = %q, want %q", where, tt.want)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %v, want %d values", args, tt.wantArgs)
			}
		})
	}
}

// TestQualify verifies alias prefixing for joined queries.
func TestQualify(t *testing.T) {
	where, _ := dateRangeClause(ptr(time.Now()), ptr(time.Now()))
	got := qualify(where, "e")
	want := "WHERE e.datetime_sent >= $1 AND e.datetime_sent <= $2"
	if got != want {
		t.Errorf("qualify = %q, want %q", got, want)
	}

	if got := qualify("", "e"); got != "" {
		t.Errorf("qualify of empty clause = %q, want empty", got)
	}
}

func ptr(t time.Time) *time.Time { return &t }
