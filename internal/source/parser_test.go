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

package source

import (
	"strings"
	"testing"
)

// TestParsePage verifies decoding of a source API listing.
func TestParsePage(t *testing.T) {
	body := `{
		"messages": [
			{
				"id": "ext-1",
				"internet_message_id": "<m1@acme.com>",
				"subject": "Kickoff",
				"from": {"address": "Alice@Acme.com", "name": "Alice Smith"},
				"to": [{"address": "bob@beta.com", "name": "Bob"}],
				"cc": [{"address": "carol@acme.com"}],
				"body": {"content_type": "text", "content": "Let's start."},
				"headers": [{"name": "X-Priority", "value": "1"}],
				"attachments": [{"name": "plan.pdf", "content_type": "application/pdf", "size": 2048}],
				"sent_at": "2026-02-10T09:30:00Z",
				"size": 4096
			}
		],
		"next": "https://mail.example.com/api/messages?page=2"
	}`

	page, err := parsePage(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parsePage: %v", err)
	}

	if page.next != "https://mail.example.com/api/messages?page=2" {
		t.Errorf("next = %q", page.next)
	}
	if len(page.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(page.messages))
	}

	m := page.messages[0]
	if m.EmailID != "ext-1" {
		t.Errorf("EmailID = %q", m.EmailID)
	}
	if m.MessageID != "<m1@acme.com>" {
		t.Errorf("MessageID = %q", m.MessageID)
	}
	if m.From.Email != "Alice@Acme.com" || m.From.Name != "Alice Smith" {
		t.Errorf("From = %+v", m.From)
	}
	if len(m.To) != 1 || m.To[0].Email != "bob@beta.com" {
		t.Errorf("To = %+v", m.To)
	}
	if len(m.CC) != 1 || m.CC[0].Email != "carol@acme.com" {
		t.Errorf("CC = %+v", m.CC)
	}
	if m.BodyText != "Let's start." || m.Body != "" {
		t.Errorf("body routing wrong: body=%q body_text=%q", m.Body, m.BodyText)
	}
	if m.Headers["X-Priority"] != "1" {
		t.Errorf("Headers = %v", m.Headers)
	}
	if len(m.Attachments) != 1 || m.Attachments[0].Size != 2048 {
		t.Errorf("Attachments = %+v", m.Attachments)
	}
	if m.DatetimeSent.IsZero() || m.SizeBytes != 4096 {
		t.Errorf("sent=%v size=%d", m.DatetimeSent, m.SizeBytes)
	}
}

// TestParsePage_BadTimestamp verifies malformed sent_at is an error.
func TestParsePage_BadTimestamp(t *testing.T) {
	body := `{"messages": [{"id": "ext-1", "sent_at": "yesterday"}]}`
	if _, err := parsePage(strings.NewReader(body)); err == nil {
		t.Error("expected error for bad sent_at")
	}
}

// TestParsePage_HTMLBody verifies HTML content lands in body, preview in
// body_text.
func TestParsePage_HTMLBody(t *testing.T) {
	body := `{"messages": [{
		"id": "ext-2",
		"from": {"address": "a@acme.com"},
		"body": {"content_type": "html", "content": "<p>Hi</p>"},
		"body_preview": "Hi",
		"sent_at": "2026-02-10T09:30:00Z"
	}]}`

	page, err := parsePage(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	m := page.messages[0]
	if m.Body != "<p>Hi</p>" || m.BodyText != "Hi" {
		t.Errorf("body=%q body_text=%q", m.Body, m.BodyText)
	}
}
