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

package identity

import "testing"

// TestNormalizeEmail verifies canonicalization of lookup keys.
func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"User@Example.com", "user@example.com"},
		{"  alice@acme.com  ", "alice@acme.com"},
		{"BOB@ACME.COM", "bob@acme.com"},
		{"already@lower.org", "already@lower.org"},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestSplitDisplayName verifies that only exactly-two-token hints split
// into first/last name.
func TestSplitDisplayName(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantFirst string
		wantLast  string
	}{
		{"two tokens", "Alice Smith", "Alice", "Smith"},
		{"single token", "Alice", "Alice", ""},
		{"three tokens", "Alice Maria Smith", "Alice Maria Smith", ""},
		{"empty", "", "", ""},
		{"surrounding whitespace", "  Bob Jones  ", "Bob", "Jones"},
		{"multiple inner spaces", "Bob   Jones", "Bob", "Jones"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := splitDisplayName(tt.in)
			if first != tt.wantFirst || last != tt.wantLast {
				t.Errorf("splitDisplayName(%q) = (%q, %q), want (%q, %q)",
					tt.in, first, last, tt.wantFirst, tt.wantLast)
			}
		})
	}
}

// TestMetadataOrEmpty verifies a person update without metadata binds an
// empty map, not SQL NULL, against the NOT NULL column.
func TestMetadataOrEmpty(t *testing.T) {
	if got := metadataOrEmpty(nil); got == nil {
		t.Error("metadataOrEmpty(nil) = nil, want empty map")
	}
	if got := metadataOrEmpty(map[string]string{"k": "v"}); got["k"] != "v" {
		t.Errorf("metadataOrEmpty = %v, want map[k:v]", got)
	}
}

// TestIsExternal verifies domain membership against internal domains.
func TestIsExternal(t *testing.T) {
	internal := []string{"acme.com", "Corp.Example.org"}

	tests := []struct {
		email string
		want  bool
	}{
		{"alice@acme.com", false},
		{"alice@ACME.com", false},
		{"bob@corp.example.org", false},
		{"carol@other.com", true},
		{"no-at-sign", true},
	}

	for _, tt := range tests {
		if got := isExternal(NormalizeEmail(tt.email), internal); got != tt.want {
			t.Errorf("isExternal(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}

	// Empty internal-domain list makes every address external.
	if !isExternal("alice@acme.com", nil) {
		t.Error("isExternal with no internal domains should be true")
	}
}
