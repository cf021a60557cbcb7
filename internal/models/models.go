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

// Package models defines the data structures shared across the mail store.
package models

import "time"

// Person is a participant identity, created lazily the first time an
// address appears on a message as sender or recipient.
type Person struct {
	ID           int64             `json:"id"`
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	DisplayName  string            `json:"display_name,omitempty"`
	Organization string            `json:"organization,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	IsActive     bool              `json:"is_active"`
	IsExternal   bool              `json:"is_external"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Project is a named grouping with an email-domain allowlist used for
// automatic message assignment.
type Project struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	EmailDomains []string          `json:"email_domains,omitempty"`
	IsActive     bool              `json:"is_active"`
	AutoAssign   bool              `json:"auto_assign"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Membership joins a Person to a Project with a role. The (person_id,
// project_id) pair exists at most once.
type Membership struct {
	PersonID  int64     `json:"person_id"`
	ProjectID int64     `json:"project_id"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// RecipientType tags an email→person edge.
type RecipientType string

const (
	RecipientTo  RecipientType = "to"
	RecipientCC  RecipientType = "cc"
	RecipientBCC RecipientType = "bcc"
)

// Attachment describes a file attached to an email. Content is not stored.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Email is a stored message. ExternalID is the idempotency key: a second
// ingestion carrying the same external id updates the existing row.
type Email struct {
	ID           int64             `json:"id"`
	ExternalID   string            `json:"email_id"`
	MessageID    string            `json:"message_id,omitempty"`
	InReplyTo    string            `json:"in_reply_to,omitempty"`
	ThreadID     string            `json:"thread_id"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body,omitempty"`
	BodyText     string            `json:"body_text,omitempty"`
	DatetimeSent time.Time         `json:"datetime_sent"`
	Headers      map[string]string `json:"headers,omitempty"`
	Attachments  []Attachment      `json:"attachments,omitempty"`
	SizeBytes    int64             `json:"size_bytes,omitempty"`
	IsRead       bool              `json:"is_read"`
	IsFlagged    bool              `json:"is_flagged"`
	IsDraft      bool              `json:"is_draft"`
	FromPersonID int64             `json:"from_person_id"`
	ProjectID    *int64            `json:"project_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	// Eagerly loaded associations, populated by Get/GetByExternalID.
	From       *Person     `json:"from,omitempty"`
	Recipients []Recipient `json:"recipients,omitempty"`
	Project    *Project    `json:"project,omitempty"`
}

// Recipient is a typed edge from an Email to a Person.
type Recipient struct {
	PersonID int64         `json:"person_id"`
	Email    string        `json:"email"`
	Name     string        `json:"name,omitempty"`
	Type     RecipientType `json:"type"`
}

// EmailThread is the derived per-conversation aggregate. Every field is
// recomputable by scanning the emails sharing the thread id; the row is a
// cache of that scan.
type EmailThread struct {
	ID               int64      `json:"id"`
	ThreadID         string     `json:"thread_id"`
	Subject          string     `json:"subject"`
	EmailCount       int        `json:"email_count"`
	ParticipantCount int        `json:"participant_count"`
	FirstEmailDate   time.Time  `json:"first_email_date"`
	LastEmailDate    time.Time  `json:"last_email_date"`
	Participants     []string   `json:"participants,omitempty"`
	ProjectID        *int64     `json:"project_id,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
