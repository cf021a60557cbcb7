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

package mailfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleEML = "From: Ada Lovelace <ada@example.com>\r\n" +
	"To: Grace Hopper <grace@example.com>, bob@acme.io\r\n" +
	"Cc: carol@example.com\r\n" +
	"Subject: Quarterly review\r\n" +
	"Date: Mon, 12 Jan 2026 10:30:00 +0000\r\n" +
	"Message-ID: <msg-100@example.com>\r\n" +
	"In-Reply-To: <msg-99@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Numbers attached, see you Monday.\r\n"

func TestRead(t *testing.T) {
	msg, err := Read(strings.NewReader(sampleEML))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if msg.EmailID != "<msg-100@example.com>" {
		t.Errorf("EmailID = %q", msg.EmailID)
	}
	if msg.MessageID != "<msg-100@example.com>" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if msg.InReplyTo != "<msg-99@example.com>" {
		t.Errorf("InReplyTo = %q", msg.InReplyTo)
	}
	if msg.From.Email != "ada@example.com" || msg.From.Name != "Ada Lovelace" {
		t.Errorf("From = %+v", msg.From)
	}
	if len(msg.To) != 2 || msg.To[1].Email != "bob@acme.io" {
		t.Errorf("To = %+v", msg.To)
	}
	if len(msg.CC) != 1 || msg.CC[0].Email != "carol@example.com" {
		t.Errorf("CC = %+v", msg.CC)
	}
	if msg.Subject != "Quarterly review" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.DatetimeSent.IsZero() {
		t.Error("DatetimeSent is zero")
	}
	if !strings.Contains(msg.BodyText, "Numbers attached") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
	if msg.Body != "" {
		t.Errorf("Body = %q, want empty for text/plain message", msg.Body)
	}
}

func TestReadHTMLPart(t *testing.T) {
	eml := strings.Replace(sampleEML,
		"Content-Type: text/plain; charset=utf-8",
		"Content-Type: text/html; charset=utf-8", 1)
	eml = strings.Replace(eml,
		"Numbers attached, see you Monday.",
		"<p>Numbers attached.</p>", 1)

	msg, err := Read(strings.NewReader(eml))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(msg.Body, "<p>Numbers attached.</p>") {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.BodyText != "" {
		t.Errorf("BodyText = %q, want empty for html message", msg.BodyText)
	}
}

func TestReadFileFallbackID(t *testing.T) {
	noID := strings.Replace(sampleEML, "Message-ID: <msg-100@example.com>\r\n", "", 1)

	dir := t.TempDir()
	path := filepath.Join(dir, "inbox-42.eml")
	if err := os.WriteFile(path, []byte(noID), 0o644); err != nil {
		t.Fatal(err)
	}

	msg, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if msg.EmailID != "inbox-42.eml" {
		t.Errorf("EmailID = %q, want file name fallback", msg.EmailID)
	}
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.eml"), []byte(sampleEML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	msgs, errs := ReadDir(dir)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
}
