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

package grouping

import (
	"testing"

	"github.com/bcem/mailstore/internal/models"
)

// TestExtractDomains verifies distinct lowercase domain collection.
func TestExtractDomains(t *testing.T) {
	got := extractDomains(
		"Alice@Acme.com",
		[]string{"bob@beta.com", "carol@acme.com"},
		[]string{"dave@Gamma.ORG", "malformed"},
	)

	want := []string{"acme.com", "beta.com", "gamma.org"}
	if len(got) != len(want) {
		t.Fatalf("extracted %d domains, want %d: %v", len(got), len(want), got)
	}
	for _, d := range want {
		if !got[d] {
			t.Errorf("missing domain %q in %v", d, got)
		}
	}
}

// TestNilCollectionsBindNonNull verifies a project without tags or
// metadata binds empty collections, not SQL NULL, against the NOT NULL
// columns.
func TestNilCollectionsBindNonNull(t *testing.T) {
	if got := tagsOrEmpty(nil); got == nil {
		t.Error("tagsOrEmpty(nil) = nil, want empty slice")
	}
	if got := tagsOrEmpty([]string{"vip"}); len(got) != 1 || got[0] != "vip" {
		t.Errorf("tagsOrEmpty = %v, want [vip]", got)
	}
	if got := metadataOrEmpty(nil); got == nil {
		t.Error("metadataOrEmpty(nil) = nil, want empty map")
	}
	if got := metadataOrEmpty(map[string]string{"k": "v"}); got["k"] != "v" {
		t.Errorf("metadataOrEmpty = %v, want map[k:v]", got)
	}
	if got := lowerAll(nil); got == nil {
		t.Error("lowerAll(nil) = nil, want empty slice")
	}
}

// TestScoreByDomains verifies the highest-overlap-wins assignment policy.
func TestScoreByDomains(t *testing.T) {
	projectA := models.Project{ID: 1, Name: "A", EmailDomains: []string{"acme.com"}}
	projectB := models.Project{ID: 2, Name: "B", EmailDomains: []string{"acme.com", "beta.com"}}

	tests := []struct {
		name       string
		domains    map[string]bool
		candidates []models.Project
		wantID     int64
	}{
		{
			name:       "higher overlap wins",
			domains:    map[string]bool{"acme.com": true, "beta.com": true},
			candidates: []models.Project{projectA, projectB},
			wantID:     2,
		},
		{
			name:       "single match",
			domains:    map[string]bool{"acme.com": true, "other.com": true},
			candidates: []models.Project{projectA},
			wantID:     1,
		},
		{
			name:       "no match returns nil",
			domains:    map[string]bool{"other.com": true},
			candidates: []models.Project{projectA, projectB},
			wantID:     0,
		},
		{
			name:    "tie resolves to lowest id",
			domains: map[string]bool{"acme.com": true},
			candidates: []models.Project{
				{ID: 3, Name: "C", EmailDomains: []string{"acme.com"}},
				{ID: 5, Name: "D", EmailDomains: []string{"acme.com"}},
			},
			wantID: 3,
		},
		{
			name:    "case-insensitive allowlist",
			domains: map[string]bool{"acme.com": true},
			candidates: []models.Project{
				{ID: 7, Name: "E", EmailDomains: []string{"ACME.COM"}},
			},
			wantID: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreByDomains(tt.domains, tt.candidates)
			if tt.wantID == 0 {
				if got != nil {
					t.Errorf("expected no project, got id %d", got.ID)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a project, got nil")
			}
			if got.ID != tt.wantID {
				t.Errorf("assigned project id = %d, want %d", got.ID, tt.wantID)
			}
		})
	}
}
