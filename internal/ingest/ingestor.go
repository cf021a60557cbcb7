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

// Package ingest is the entry point for turning an externally-sourced
// message description into stored rows. One call resolves sender and
// recipient identities, scores a project assignment, resolves the
// conversation thread, upserts the email idempotently on its external id,
// and recomputes the thread aggregate — all within a single transaction.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailstore/internal/database"
	"github.com/bcem/mailstore/internal/grouping"
	"github.com/bcem/mailstore/internal/identity"
	"github.com/bcem/mailstore/internal/message"
	"github.com/bcem/mailstore/internal/models"
	"github.com/bcem/mailstore/internal/thread"
)

// Address is a raw participant address with an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message describes one inbound email. EmailID is the external
// idempotency key; everything else is payload.
type Message struct {
	EmailID      string              `json:"email_id"`
	From         Address             `json:"from"`
	To           []Address           `json:"to"`
	CC           []Address           `json:"cc,omitempty"`
	BCC          []Address           `json:"bcc,omitempty"`
	Subject      string              `json:"subject"`
	Body         string              `json:"body,omitempty"`
	BodyText     string              `json:"body_text,omitempty"`
	DatetimeSent time.Time           `json:"datetime_sent"`
	MessageID    string              `json:"message_id,omitempty"`
	InReplyTo    string              `json:"in_reply_to,omitempty"`
	ThreadID     string              `json:"thread_id,omitempty"`
	Headers      map[string]string   `json:"headers,omitempty"`
	Attachments  []models.Attachment `json:"attachments,omitempty"`
	SizeBytes    int64               `json:"size_bytes,omitempty"`
	IsDraft      bool                `json:"is_draft,omitempty"`
}

// identityResolver, projectScorer, messageStore, and threadAggregator are
// the slices of the stores the orchestrator uses, narrowed to interfaces
// so tests can substitute fakes.
type identityResolver interface {
	GetOrCreate(ctx context.Context, email, displayName string, internalDomains []string) (*models.Person, bool, error)
}

type projectScorer interface {
	FindForParticipants(ctx context.Context, fromEmail string, toEmails, ccEmails []string) (*models.Project, error)
}

type messageStore interface {
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	ThreadIDByMessageID(ctx context.Context, messageID string) (string, error)
	Create(ctx context.Context, e *models.Email, recipients []models.Recipient) (*models.Email, error)
	UpdateByExternalID(ctx context.Context, e *models.Email) (*models.Email, error)
}

type threadAggregator interface {
	Recompute(ctx context.Context, threadID string) error
}

// txStores is the unit of work bound to one open transaction.
type txStores struct {
	people   identityResolver
	projects projectScorer
	messages messageStore
	threads  threadAggregator
}

// Ingestor composes the identity, grouping, message, and thread stores
// into the single ingestion primitive.
type Ingestor struct {
	begin           func(ctx context.Context) (pgx.Tx, error)
	bind            func(tx pgx.Tx) txStores
	messages        messageStore
	internalDomains []string
}

// NewIngestor wires an ingestor over already-constructed stores.
func NewIngestor(pool *pgxpool.Pool, people *identity.Store, projects *grouping.Store,
	messages *message.Store, threads *thread.Aggregator, internalDomains []string) *Ingestor {
	return &Ingestor{
		begin: pool.Begin,
		bind: func(tx pgx.Tx) txStores {
			return txStores{
				people:   people.WithTx(tx),
				projects: projects.WithTx(tx),
				messages: messages.WithTx(tx),
				threads:  threads.WithTx(tx),
			}
		},
		messages:        messages,
		internalDomains: internalDomains,
	}
}

// Ingest creates or updates the message identified by m.EmailID and
// reports whether a new row was created.
//
// A known external id takes the update path: only the mutable message
// fields are refreshed; sender, recipients, project assignment, and
// thread are left exactly as first ingestion resolved them. An unknown id
// takes the create path inside one transaction, so a failure anywhere
// (e.g. on recipient resolution) leaves no orphaned email behind. A
// unique-violation race on concurrent first-time ingestion of the same id
// is recovered by re-reading and falling through to the update path.
func (ing *Ingestor) Ingest(ctx context.Context, m Message) (*models.Email, bool, error) {
	if m.EmailID == "" {
		return nil, false, fmt.Errorf("message has no external email id")
	}
	if m.From.Email == "" {
		return nil, false, fmt.Errorf("message %s has no sender", m.EmailID)
	}

	exists, err := ing.messages.ExistsByExternalID(ctx, m.EmailID)
	if err != nil {
		return nil, false, fmt.Errorf("check existing email %s: %w", m.EmailID, err)
	}
	if exists {
		e, err := ing.update(ctx, m)
		return e, false, err
	}

	e, err := ing.create(ctx, m)
	if err != nil {
		if database.IsUniqueViolation(err) {
			// Lost a concurrent first-ingestion race on email_id; the
			// winner's row exists now, so fall through to the update path.
			slog.Info("concurrent ingestion race, retrying as update", "email_id", m.EmailID)
			e, err := ing.update(ctx, m)
			return e, false, err
		}
		return nil, false, err
	}
	return e, true, nil
}

func (ing *Ingestor) create(ctx context.Context, m Message) (*models.Email, error) {
	threadID, err := ing.resolveThreadID(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("resolve thread for %s: %w", m.EmailID, err)
	}

	tx, err := ing.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin ingestion: %w", err)
	}
	defer tx.Rollback(ctx)
	unit := ing.bind(tx)

	sender, _, err := unit.people.GetOrCreate(ctx, m.From.Email, m.From.Name, ing.internalDomains)
	if err != nil {
		return nil, fmt.Errorf("resolve sender %s: %w", m.From.Email, err)
	}

	var recipients []models.Recipient
	resolve := func(addrs []Address, typ models.RecipientType) error {
		for _, a := range addrs {
			if a.Email == "" {
				continue
			}
			p, _, err := unit.people.GetOrCreate(ctx, a.Email, a.Name, ing.internalDomains)
			if err != nil {
				return fmt.Errorf("resolve %s recipient %s: %w", typ, a.Email, err)
			}
			recipients = append(recipients, models.Recipient{
				PersonID: p.ID,
				Email:    p.Email,
				Type:     typ,
			})
		}
		return nil
	}
	if err := resolve(m.To, models.RecipientTo); err != nil {
		return nil, err
	}
	if err := resolve(m.CC, models.RecipientCC); err != nil {
		return nil, err
	}
	if err := resolve(m.BCC, models.RecipientBCC); err != nil {
		return nil, err
	}

	// BCC addresses are hidden participants and stay out of scoring.
	project, err := unit.projects.FindForParticipants(
		ctx, m.From.Email, emailsOf(m.To), emailsOf(m.CC))
	if err != nil {
		return nil, fmt.Errorf("score project for %s: %w", m.EmailID, err)
	}

	e := &models.Email{
		ExternalID:   m.EmailID,
		MessageID:    m.MessageID,
		InReplyTo:    m.InReplyTo,
		ThreadID:     threadID,
		Subject:      m.Subject,
		Body:         m.Body,
		BodyText:     m.BodyText,
		DatetimeSent: m.DatetimeSent,
		Headers:      m.Headers,
		Attachments:  m.Attachments,
		SizeBytes:    m.SizeBytes,
		IsDraft:      m.IsDraft,
		FromPersonID: sender.ID,
	}
	if project != nil {
		e.ProjectID = &project.ID
	}

	created, err := unit.messages.Create(ctx, e, recipients)
	if err != nil {
		return nil, err
	}

	if err := unit.threads.Recompute(ctx, threadID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ingestion of %s: %w", m.EmailID, err)
	}

	slog.Info("ingested email",
		"email_id", m.EmailID,
		"thread_id", threadID,
		"sender", sender.Email,
		"recipients", len(recipients),
	)
	return created, nil
}

func (ing *Ingestor) update(ctx context.Context, m Message) (*models.Email, error) {
	updated, err := ing.messages.UpdateByExternalID(ctx, &models.Email{
		ExternalID:   m.EmailID,
		MessageID:    m.MessageID,
		InReplyTo:    m.InReplyTo,
		Subject:      m.Subject,
		Body:         m.Body,
		BodyText:     m.BodyText,
		DatetimeSent: m.DatetimeSent,
		Headers:      m.Headers,
		Attachments:  m.Attachments,
		SizeBytes:    m.SizeBytes,
		IsDraft:      m.IsDraft,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("email %s: %w", m.EmailID, models.ErrNotFound)
	}
	slog.Info("updated existing email", "email_id", m.EmailID)
	return updated, nil
}

// resolveThreadID applies the thread resolution policy: an explicit
// thread id is used as-is; otherwise a reply is stitched onto the thread
// of the message it answers; otherwise a fresh thread id is generated.
// Runs only on the create path.
func (ing *Ingestor) resolveThreadID(ctx context.Context, m Message) (string, error) {
	return resolveThreadID(ctx, m, ing.messages.ThreadIDByMessageID)
}

func resolveThreadID(ctx context.Context, m Message, lookup func(context.Context, string) (string, error)) (string, error) {
	if m.ThreadID != "" {
		return m.ThreadID, nil
	}
	if m.InReplyTo != "" {
		threadID, err := lookup(ctx, m.InReplyTo)
		if err != nil {
			return "", err
		}
		if threadID != "" {
			return threadID, nil
		}
	}
	return uuid.NewString(), nil
}

func emailsOf(addrs []Address) []string {
	emails := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	return emails
}
