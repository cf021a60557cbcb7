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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bcem/mailstore/internal/ingest"
	"github.com/bcem/mailstore/internal/models"
)

// apiAddress mirrors one participant in the source API's format.
type apiAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// apiMessage mirrors the relevant fields of a source API message.
type apiMessage struct {
	ID        string       `json:"id"`
	MessageID string       `json:"internet_message_id"`
	InReplyTo string       `json:"in_reply_to"`
	Subject   string       `json:"subject"`
	From      apiAddress   `json:"from"`
	To        []apiAddress `json:"to"`
	CC        []apiAddress `json:"cc"`
	Body      struct {
		ContentType string `json:"content_type"`
		Content     string `json:"content"`
	} `json:"body"`
	BodyPreview string `json:"body_preview"`
	Headers     []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Attachments []struct {
		Name        string `json:"name"`
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
	} `json:"attachments"`
	SentAt string `json:"sent_at"`
	Size   int64  `json:"size"`
}

type messagePage struct {
	messages []ingest.Message
	next     string
}

// parsePage decodes one page of the source API listing into ingest
// messages plus the next-page link.
func parsePage(body io.Reader) (*messagePage, error) {
	var raw struct {
		Messages []apiMessage `json:"messages"`
		Next     string       `json:"next"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	page := &messagePage{next: raw.Next}
	for _, m := range raw.Messages {
		msg, err := parseMessage(m)
		if err != nil {
			return nil, err
		}
		page.messages = append(page.messages, msg)
	}
	return page, nil
}

func parseMessage(m apiMessage) (ingest.Message, error) {
	sentAt, err := time.Parse(time.RFC3339, m.SentAt)
	if err != nil {
		return ingest.Message{}, fmt.Errorf("message %s has bad sent_at %q: %w", m.ID, m.SentAt, err)
	}

	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Name] = h.Value
	}

	var attachments []models.Attachment
	for _, a := range m.Attachments {
		attachments = append(attachments, models.Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}

	body, bodyText := "", m.BodyPreview
	if m.Body.ContentType == "text" || m.Body.ContentType == "text/plain" {
		bodyText = m.Body.Content
	} else {
		body = m.Body.Content
	}

	return ingest.Message{
		EmailID:      m.ID,
		From:         ingest.Address{Email: m.From.Address, Name: m.From.Name},
		To:           toAddresses(m.To),
		CC:           toAddresses(m.CC),
		Subject:      m.Subject,
		Body:         body,
		BodyText:     bodyText,
		DatetimeSent: sentAt,
		MessageID:    m.MessageID,
		InReplyTo:    m.InReplyTo,
		Headers:      headers,
		Attachments:  attachments,
		SizeBytes:    m.Size,
	}, nil
}

func toAddresses(addrs []apiAddress) []ingest.Address {
	out := make([]ingest.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, ingest.Address{Email: a.Address, Name: a.Name})
	}
	return out
}
