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

// Package message owns the emails table and its typed recipient edges.
// Rows are keyed internally by a surrogate id and externally by email_id,
// the idempotency key: re-ingesting a known email_id updates the row in
// place instead of creating a duplicate.
package message

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailstore/internal/database"
	"github.com/bcem/mailstore/internal/models"
)

// Store provides persistence for emails and email_recipients.
type Store struct {
	db database.Querier
}

// NewStore creates a message store backed by the given Postgres pool.
// It ensures the emails and email_recipients tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{db: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure emails schema: %w", err)
	}
	return s, nil
}

// WithTx returns a copy of the store bound to an open transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS emails (
			id             BIGSERIAL PRIMARY KEY,
			email_id       TEXT NOT NULL UNIQUE,
			message_id     TEXT NOT NULL DEFAULT '',
			in_reply_to    TEXT NOT NULL DEFAULT '',
			thread_id      TEXT NOT NULL,
			subject        TEXT NOT NULL DEFAULT '',
			body           TEXT NOT NULL DEFAULT '',
			body_text      TEXT NOT NULL DEFAULT '',
			datetime_sent  TIMESTAMPTZ NOT NULL,
			headers        JSONB NOT NULL DEFAULT '{}',
			attachments    JSONB NOT NULL DEFAULT '[]',
			size_bytes     BIGINT NOT NULL DEFAULT 0,
			is_read        BOOLEAN NOT NULL DEFAULT FALSE,
			is_flagged     BOOLEAN NOT NULL DEFAULT FALSE,
			is_draft       BOOLEAN NOT NULL DEFAULT FALSE,
			from_person_id BIGINT NOT NULL REFERENCES people(id),
			project_id     BIGINT REFERENCES projects(id) ON DELETE SET NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_emails_thread ON emails(thread_id);
		CREATE INDEX IF NOT EXISTS idx_emails_sent ON emails(datetime_sent);
		CREATE INDEX IF NOT EXISTS idx_emails_sender ON emails(from_person_id);
		CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
		CREATE INDEX IF NOT EXISTS idx_emails_project ON emails(project_id);

		CREATE TABLE IF NOT EXISTS email_recipients (
			email_id       BIGINT NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
			person_id      BIGINT NOT NULL REFERENCES people(id),
			recipient_type TEXT NOT NULL,
			PRIMARY KEY (email_id, person_id, recipient_type)
		);
		CREATE INDEX IF NOT EXISTS idx_email_recipients_person ON email_recipients(person_id);
	`)
	return err
}

const emailColumns = `id, email_id, message_id, in_reply_to, thread_id,
	subject, body, body_text, datetime_sent, headers, attachments,
	size_bytes, is_read, is_flagged, is_draft, from_person_id,
	project_id, created_at, updated_at`

// Create inserts an email row and its recipient edges. Callers run it
// inside a transaction so a failure leaves no orphaned email. A person
// appearing twice under the same recipient type collapses to one edge.
func (s *Store) Create(ctx context.Context, e *models.Email, recipients []models.Recipient) (*models.Email, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO emails
			(email_id, message_id, in_reply_to, thread_id, subject, body, body_text,
			 datetime_sent, headers, attachments, size_bytes, is_draft,
			 from_person_id, project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+emailColumns,
		e.ExternalID, e.MessageID, e.InReplyTo, e.ThreadID, e.Subject, e.Body,
		e.BodyText, e.DatetimeSent, jsonOrEmpty(e.Headers), attachmentsOrEmpty(e.Attachments),
		e.SizeBytes, e.IsDraft, e.FromPersonID, e.ProjectID)

	created, err := scanEmail(row)
	if err != nil {
		return nil, fmt.Errorf("insert email %s: %w", e.ExternalID, err)
	}

	for _, r := range recipients {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO email_recipients (email_id, person_id, recipient_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (email_id, person_id, recipient_type) DO NOTHING
		`, created.ID, r.PersonID, r.Type); err != nil {
			return nil, fmt.Errorf("insert recipient edge %d/%s: %w", r.PersonID, r.Type, err)
		}
	}
	return created, nil
}

// UpdateByExternalID refreshes the mutable message fields of an existing
// row with the full payload; a field the caller omits is written back as
// its zero value. Sender, recipients, project, and thread are deliberately
// left untouched on this path. Returns nil when the external id is unknown.
func (s *Store) UpdateByExternalID(ctx context.Context, e *models.Email) (*models.Email, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE emails
		SET message_id = $1, in_reply_to = $2, subject = $3, body = $4,
		    body_text = $5, datetime_sent = $6, headers = $7, attachments = $8,
		    size_bytes = $9, is_draft = $10, updated_at = NOW()
		WHERE email_id = $11
		RETURNING `+emailColumns,
		e.MessageID, e.InReplyTo, e.Subject, e.Body, e.BodyText, e.DatetimeSent,
		jsonOrEmpty(e.Headers), attachmentsOrEmpty(e.Attachments), e.SizeBytes,
		e.IsDraft, e.ExternalID)

	updated, err := scanEmail(row)
	if err != nil {
		return nil, fmt.Errorf("update email %s: %w", e.ExternalID, err)
	}
	return updated, nil
}

// Get retrieves an email by id with sender, recipients, and project
// eagerly loaded. Returns nil if the id does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*models.Email, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE id = $1`, id)
	e, err := scanEmail(row)
	if err != nil || e == nil {
		return e, err
	}
	if err := s.loadAssociations(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByExternalID retrieves an email by its external idempotency key with
// associations eagerly loaded. Returns nil if absent.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*models.Email, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE email_id = $1`, externalID)
	e, err := scanEmail(row)
	if err != nil || e == nil {
		return e, err
	}
	if err := s.loadAssociations(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ExistsByExternalID reports whether the external id is already stored,
// without loading the row.
func (s *Store) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM emails WHERE email_id = $1)`, externalID).Scan(&exists)
	return exists, err
}

// ThreadIDByMessageID returns the thread id of the email whose RFC
// Message-ID matches, or "" when no such email is stored. Used by reply
// chain stitching.
func (s *Store) ThreadIDByMessageID(ctx context.Context, messageID string) (string, error) {
	var threadID string
	err := s.db.QueryRow(ctx, `
		SELECT thread_id FROM emails WHERE message_id = $1
		ORDER BY datetime_sent LIMIT 1
	`, messageID).Scan(&threadID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return threadID, nil
}

// FlagUpdate carries the optional fields of UpdateFlags. Nil fields are
// left untouched.
type FlagUpdate struct {
	IsRead    *bool
	IsFlagged *bool
	IsDraft   *bool
	ProjectID *int64
}

// UpdateFlags applies a partial update of the mutable flag fields. Returns
// nil when the id does not exist.
func (s *Store) UpdateFlags(ctx context.Context, id int64, u FlagUpdate) (*models.Email, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	n := 1
	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, val)
		n++
	}
	if u.IsRead != nil {
		add("is_read", *u.IsRead)
	}
	if u.IsFlagged != nil {
		add("is_flagged", *u.IsFlagged)
	}
	if u.IsDraft != nil {
		add("is_draft", *u.IsDraft)
	}
	if u.ProjectID != nil {
		add("project_id", *u.ProjectID)
	}

	args = append(args, id)
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE emails SET %s WHERE id = $%d
		RETURNING %s`, strings.Join(sets, ", "), n, emailColumns),
		args...)
	e, err := scanEmail(row)
	if err != nil {
		return nil, fmt.Errorf("update flags on email %d: %w", id, err)
	}
	return e, nil
}

// Delete removes an email; recipient edges cascade. It does not recompute
// the thread aggregate — callers that need a fresh aggregate trigger the
// recompute themselves. Returns false when the id did not exist.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM emails WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete email %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteBulk removes several emails at once and reports how many existed.
// Thread aggregates are not recomputed here either.
func (s *Store) DeleteBulk(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM emails WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("bulk delete emails: %w", err)
	}
	return tag.RowsAffected(), nil
}

// loadAssociations populates From, Project, and Recipients on an email.
func (s *Store) loadAssociations(ctx context.Context, e *models.Email) error {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, display_name, organization,
		       phone, is_active, is_external, metadata, created_at, updated_at
		FROM people WHERE id = $1
	`, e.FromPersonID)
	var p models.Person
	if err := row.Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.DisplayName,
		&p.Organization, &p.Phone, &p.IsActive, &p.IsExternal, &p.Metadata,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("load sender of email %d: %w", e.ID, err)
	}
	e.From = &p

	if e.ProjectID != nil {
		row := s.db.QueryRow(ctx, `
			SELECT id, name, description, email_domains, is_active, auto_assign,
			       tags, metadata, created_at, updated_at
			FROM projects WHERE id = $1
		`, *e.ProjectID)
		var pr models.Project
		err := row.Scan(
			&pr.ID, &pr.Name, &pr.Description, &pr.EmailDomains, &pr.IsActive,
			&pr.AutoAssign, &pr.Tags, &pr.Metadata, &pr.CreatedAt, &pr.UpdatedAt,
		)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("load project of email %d: %w", e.ID, err)
		}
		if err == nil {
			e.Project = &pr
		}
	}

	rows, err := s.db.Query(ctx, `
		SELECT er.person_id, p.email, p.display_name, er.recipient_type
		FROM email_recipients er
		JOIN people p ON p.id = er.person_id
		WHERE er.email_id = $1
		ORDER BY er.recipient_type, p.email
	`, e.ID)
	if err != nil {
		return fmt.Errorf("load recipients of email %d: %w", e.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.PersonID, &r.Email, &r.Name, &r.Type); err != nil {
			return err
		}
		e.Recipients = append(e.Recipients, r)
	}
	return rows.Err()
}

func jsonOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func attachmentsOrEmpty(a []models.Attachment) []models.Attachment {
	if a == nil {
		return []models.Attachment{}
	}
	return a
}

// scanEmail scans a single row into an Email. Returns nil on no rows.
func scanEmail(row pgx.Row) (*models.Email, error) {
	var e models.Email
	err := row.Scan(
		&e.ID, &e.ExternalID, &e.MessageID, &e.InReplyTo, &e.ThreadID,
		&e.Subject, &e.Body, &e.BodyText, &e.DatetimeSent, &e.Headers,
		&e.Attachments, &e.SizeBytes, &e.IsRead, &e.IsFlagged, &e.IsDraft,
		&e.FromPersonID, &e.ProjectID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// collectEmails scans multiple rows into a slice of Emails.
func collectEmails(rows pgx.Rows) ([]models.Email, error) {
	var emails []models.Email
	for rows.Next() {
		var e models.Email
		if err := rows.Scan(
			&e.ID, &e.ExternalID, &e.MessageID, &e.InReplyTo, &e.ThreadID,
			&e.Subject, &e.Body, &e.BodyText, &e.DatetimeSent, &e.Headers,
			&e.Attachments, &e.SizeBytes, &e.IsRead, &e.IsFlagged, &e.IsDraft,
			&e.FromPersonID, &e.ProjectID, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
