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

// Package mailfile parses RFC 5322 .eml files into ingestion messages.
// Used by the backfill command's directory mode.
package mailfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/bcem/mailstore/internal/ingest"
	"github.com/bcem/mailstore/internal/models"
)

// ReadFile parses one .eml file. The Message-ID header doubles as the
// external email id; files without one fall back to the file name.
func ReadFile(path string) (ingest.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return ingest.Message{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	msg, err := Read(f)
	if err != nil {
		return ingest.Message{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if msg.EmailID == "" {
		msg.EmailID = filepath.Base(path)
	}
	return msg, nil
}

// Read parses an RFC 5322 message from r.
func Read(r io.Reader) (ingest.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ingest.Message{}, fmt.Errorf("create mail reader: %w", err)
	}

	var msg ingest.Message

	h := mr.Header
	msg.Subject, _ = h.Subject()
	msg.DatetimeSent, _ = h.Date()

	if id, err := h.MessageID(); err == nil && id != "" {
		msg.MessageID = "<" + id + ">"
		msg.EmailID = msg.MessageID
	}
	if refs, err := h.MsgIDList("In-Reply-To"); err == nil && len(refs) > 0 {
		msg.InReplyTo = "<" + refs[0] + ">"
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = ingest.Address{Email: from[0].Address, Name: from[0].Name}
	}
	msg.To = addressList(h, "To")
	msg.CC = addressList(h, "Cc")
	msg.BCC = addressList(h, "Bcc")

	msg.Headers = map[string]string{}
	fields := h.Fields()
	for fields.Next() {
		if text, err := fields.Text(); err == nil {
			msg.Headers[fields.Key()] = text
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ingest.Message{}, fmt.Errorf("read part: %w", err)
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/html"):
				msg.Body = string(body)
			case strings.HasPrefix(ct, "text/plain"), ct == "":
				msg.BodyText = string(body)
			}
		case *mail.AttachmentHeader:
			name, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			msg.Attachments = append(msg.Attachments, models.Attachment{
				Name:        name,
				ContentType: ct,
				Size:        size,
			})
		}
	}

	msg.SizeBytes = int64(len(msg.Body) + len(msg.BodyText))
	return msg, nil
}

func addressList(h mail.Header, key string) []ingest.Address {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]ingest.Address, 0, len(list))
	for _, a := range list {
		out = append(out, ingest.Address{Email: a.Address, Name: a.Name})
	}
	return out
}

// ReadDir parses every .eml file in a directory, skipping files that fail
// to parse and reporting them in the returned error list.
func ReadDir(dir string) ([]ingest.Message, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("read dir %s: %w", dir, err)}
	}

	var msgs []ingest.Message
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".eml") {
			continue
		}
		msg, err := ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, errs
}
