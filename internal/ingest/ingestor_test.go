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

package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bcem/mailstore/internal/models"
)

// fakeTx satisfies pgx.Tx for the methods the orchestrator touches.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakePeople struct{ nextID int64 }

func (f *fakePeople) GetOrCreate(_ context.Context, email, _ string, _ []string) (*models.Person, bool, error) {
	f.nextID++
	return &models.Person{ID: f.nextID, Email: email}, true, nil
}

type fakeProjects struct{}

func (fakeProjects) FindForParticipants(context.Context, string, []string, []string) (*models.Project, error) {
	return nil, nil
}

// fakeMessages keeps rows by external id. With raceOnCreate set, Create
// fails with a unique violation after inserting the concurrent winner's
// row, reproducing a lost first-ingestion race.
type fakeMessages struct {
	rows         map[string]*models.Email
	nextID       int64
	raceOnCreate bool
	lastUpdate   *models.Email
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{rows: map[string]*models.Email{}}
}

func (f *fakeMessages) ExistsByExternalID(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeMessages) ThreadIDByMessageID(_ context.Context, messageID string) (string, error) {
	for _, e := range f.rows {
		if e.MessageID == messageID {
			return e.ThreadID, nil
		}
	}
	return "", nil
}

func (f *fakeMessages) Create(_ context.Context, e *models.Email, _ []models.Recipient) (*models.Email, error) {
	f.nextID++
	e.ID = f.nextID
	if f.raceOnCreate {
		winner := *e
		winner.Subject = "winner's subject"
		f.rows[e.ExternalID] = &winner
		return nil, &pgconn.PgError{Code: "23505"}
	}
	f.rows[e.ExternalID] = e
	return e, nil
}

func (f *fakeMessages) UpdateByExternalID(_ context.Context, e *models.Email) (*models.Email, error) {
	cur, ok := f.rows[e.ExternalID]
	if !ok {
		return nil, nil
	}
	cur.Subject = e.Subject
	cur.IsDraft = e.IsDraft
	f.lastUpdate = e
	return cur, nil
}

type fakeThreads struct{ recomputed []string }

func (f *fakeThreads) Recompute(_ context.Context, threadID string) error {
	f.recomputed = append(f.recomputed, threadID)
	return nil
}

func newFakeIngestor() (*Ingestor, *fakeMessages, *fakeThreads) {
	msgs := newFakeMessages()
	threads := &fakeThreads{}
	ing := &Ingestor{
		begin: func(context.Context) (pgx.Tx, error) { return fakeTx{}, nil },
		bind: func(pgx.Tx) txStores {
			return txStores{
				people:   &fakePeople{},
				projects: fakeProjects{},
				messages: msgs,
				threads:  threads,
			}
		},
		messages: msgs,
	}
	return ing, msgs, threads
}

func sampleMessage(emailID string) Message {
	return Message{
		EmailID:      emailID,
		From:         Address{Email: "ada@example.com", Name: "Ada Lovelace"},
		To:           []Address{{Email: "grace@example.com"}},
		Subject:      "first subject",
		DatetimeSent: time.Date(2026, 1, 12, 10, 30, 0, 0, time.UTC),
	}
}

// TestIngest_IdempotentOnExternalID verifies a second ingestion of a known
// external id updates the existing row instead of creating a duplicate.
func TestIngest_IdempotentOnExternalID(t *testing.T) {
	ing, msgs, threads := newFakeIngestor()
	ctx := context.Background()

	first, created, err := ing.Ingest(ctx, sampleMessage("ext-1"))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if !created {
		t.Error("first ingestion should report created")
	}
	if len(threads.recomputed) != 1 {
		t.Errorf("recomputed %d threads, want 1", len(threads.recomputed))
	}

	m := sampleMessage("ext-1")
	m.Subject = "second subject"
	second, created, err := ing.Ingest(ctx, m)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if created {
		t.Error("second ingestion should report updated, not created")
	}
	if second.ID != first.ID {
		t.Errorf("second ingestion row id = %d, want %d", second.ID, first.ID)
	}
	if second.Subject != "second subject" {
		t.Errorf("subject = %q, want the second payload's", second.Subject)
	}
	if len(msgs.rows) != 1 {
		t.Errorf("store holds %d rows, want 1", len(msgs.rows))
	}
}

// TestIngest_UniqueViolationFallsBackToUpdate verifies a lost concurrent
// first-ingestion race is recovered as an update instead of surfacing.
func TestIngest_UniqueViolationFallsBackToUpdate(t *testing.T) {
	ing, msgs, _ := newFakeIngestor()
	msgs.raceOnCreate = true

	m := sampleMessage("ext-1")
	m.Subject = "loser's subject"
	e, created, err := ing.Ingest(context.Background(), m)
	if err != nil {
		t.Fatalf("ingest should recover the race: %v", err)
	}
	if created {
		t.Error("race loser should report updated, not created")
	}
	if e == nil || e.Subject != "loser's subject" {
		t.Errorf("row = %+v, want the retried payload applied", e)
	}
	if len(msgs.rows) != 1 {
		t.Errorf("store holds %d rows, want 1", len(msgs.rows))
	}
}

// TestIngest_UpdateCarriesDraftFlag verifies is_draft is part of the
// update payload rather than silently dropped.
func TestIngest_UpdateCarriesDraftFlag(t *testing.T) {
	ing, msgs, _ := newFakeIngestor()
	ctx := context.Background()

	if _, _, err := ing.Ingest(ctx, sampleMessage("ext-1")); err != nil {
		t.Fatal(err)
	}

	m := sampleMessage("ext-1")
	m.IsDraft = true
	if _, _, err := ing.Ingest(ctx, m); err != nil {
		t.Fatal(err)
	}
	if msgs.lastUpdate == nil || !msgs.lastUpdate.IsDraft {
		t.Error("update payload should carry IsDraft")
	}
}

// TestIngest_RejectsInvalidInput verifies the two hard preconditions.
func TestIngest_RejectsInvalidInput(t *testing.T) {
	ing, _, _ := newFakeIngestor()
	ctx := context.Background()

	if _, _, err := ing.Ingest(ctx, Message{From: Address{Email: "a@b.com"}}); err == nil {
		t.Error("missing external id should error")
	}
	m := sampleMessage("ext-1")
	m.From.Email = ""
	if _, _, err := ing.Ingest(ctx, m); err == nil {
		t.Error("missing sender should error")
	}
}

// TestResolveThreadID verifies the thread resolution policy.
func TestResolveThreadID(t *testing.T) {
	// lookup simulates a stored email with message_id "msg-1" on thread "T1".
	lookup := func(_ context.Context, messageID string) (string, error) {
		if messageID == "msg-1" {
			return "T1", nil
		}
		return "", nil
	}

	tests := []struct {
		name      string
		msg       Message
		want      string
		wantFresh bool
	}{
		{
			name: "explicit thread id wins",
			msg:  Message{ThreadID: "T9", InReplyTo: "msg-1"},
			want: "T9",
		},
		{
			name: "reply stitches onto parent thread",
			msg:  Message{InReplyTo: "msg-1"},
			want: "T1",
		},
		{
			name:      "reply to unknown message gets fresh thread",
			msg:       Message{InReplyTo: "msg-unknown"},
			wantFresh: true,
		},
		{
			name:      "no hints gets fresh thread",
			msg:       Message{},
			wantFresh: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveThreadID(context.Background(), tt.msg, lookup)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantFresh {
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("expected a generated uuid thread id, got %q", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("thread id = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestResolveThreadID_FreshIDsAreUnique verifies two hint-less messages
// never land on the same generated thread.
func TestResolveThreadID_FreshIDsAreUnique(t *testing.T) {
	lookup := func(context.Context, string) (string, error) { return "", nil }

	a, err := resolveThreadID(context.Background(), Message{}, lookup)
	if err != nil {
		t.Fatal(err)
	}
	b, err := resolveThreadID(context.Background(), Message{}, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("generated thread ids collide: %q", a)
	}
}

// TestResolveThreadID_LookupError verifies lookup failures propagate.
func TestResolveThreadID_LookupError(t *testing.T) {
	wantErr := errors.New("store down")
	lookup := func(context.Context, string) (string, error) { return "", wantErr }

	_, err := resolveThreadID(context.Background(), Message{InReplyTo: "msg-1"}, lookup)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

// TestEmailsOf verifies empty addresses are dropped.
func TestEmailsOf(t *testing.T) {
	got := emailsOf([]Address{
		{Email: "a@acme.com", Name: "A"},
		{Email: ""},
		{Email: "b@beta.com"},
	})
	if len(got) != 2 || got[0] != "a@acme.com" || got[1] != "b@beta.com" {
		t.Errorf("emailsOf = %v, want [a@acme.com b@beta.com]", got)
	}
}
