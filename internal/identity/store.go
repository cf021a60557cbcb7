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

// Package identity owns the people table: normalized participant
// identities keyed by email address. People are created lazily the first
// time an address appears on a message, and merged when two rows turn out
// to describe the same participant.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailstore/internal/database"
	"github.com/bcem/mailstore/internal/models"
)

// Store provides CRUD, get-or-create, and merge operations for people.
type Store struct {
	db   database.Querier
	pool *pgxpool.Pool
}

// NewStore creates an identity store backed by the given Postgres pool.
// It ensures the people table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{db: pool, pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure people schema: %w", err)
	}
	return s, nil
}

// WithTx returns a copy of the store bound to an open transaction.
// Merge is not available on a transaction-bound store.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS people (
			id           BIGSERIAL PRIMARY KEY,
			email        TEXT NOT NULL UNIQUE,
			first_name   TEXT NOT NULL DEFAULT '',
			last_name    TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			organization TEXT NOT NULL DEFAULT '',
			phone        TEXT NOT NULL DEFAULT '',
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			is_external  BOOLEAN NOT NULL DEFAULT TRUE,
			metadata     JSONB NOT NULL DEFAULT '{}',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

const personColumns = `id, email, first_name, last_name, display_name,
	organization, phone, is_active, is_external, metadata,
	created_at, updated_at`

// NormalizeEmail lowercases and trims an address for use as the canonical
// lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// splitDisplayName derives first/last name from a display name hint. Only
// a hint with exactly two whitespace-separated tokens is split; anything
// else becomes the first name as-is.
func splitDisplayName(displayName string) (first, last string) {
	displayName = strings.TrimSpace(displayName)
	tokens := strings.Fields(displayName)
	if len(tokens) == 2 {
		return tokens[0], tokens[1]
	}
	return displayName, ""
}

// isExternal reports whether the address's domain is outside the given
// internal domains. An empty internal-domain list makes every address
// external.
func isExternal(email string, internalDomains []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return true
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range internalDomains {
		if strings.EqualFold(d, domain) {
			return false
		}
	}
	return true
}

// GetOrCreate looks up a person by normalized email, creating the row if
// absent. On a hit the stored row is returned unchanged: the display-name
// hint is ignored, preserving first-write-wins semantics. The returned
// flag reports whether a new row was created.
func (s *Store) GetOrCreate(ctx context.Context, email, displayName string, internalDomains []string) (*models.Person, bool, error) {
	norm := NormalizeEmail(email)
	if norm == "" {
		return nil, false, fmt.Errorf("empty email address")
	}

	p, err := s.GetByEmail(ctx, norm)
	if err != nil {
		return nil, false, err
	}
	if p != nil {
		return p, false, nil
	}

	first, last := splitDisplayName(displayName)
	row := s.db.QueryRow(ctx, `
		INSERT INTO people (email, first_name, last_name, display_name, is_external)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+personColumns,
		norm, first, last, strings.TrimSpace(displayName), isExternal(norm, internalDomains))

	p, err = scanPerson(row)
	if err != nil {
		return nil, false, fmt.Errorf("insert person %s: %w", norm, err)
	}
	if p == nil {
		// Lost a concurrent insert race; the other writer's row wins.
		p, err = s.GetByEmail(ctx, norm)
		if err != nil || p == nil {
			return nil, false, fmt.Errorf("re-read person %s after conflict: %w", norm, err)
		}
		return p, false, nil
	}
	return p, true, nil
}

// Get retrieves a person by id. Returns nil if the id does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*models.Person, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = $1`, id)
	return scanPerson(row)
}

// GetByEmail retrieves a person by normalized email. Returns nil if absent.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.Person, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+personColumns+` FROM people WHERE email = $1`, NormalizeEmail(email))
	return scanPerson(row)
}

// List returns people ordered by email.
func (s *Store) List(ctx context.Context, limit, offset int) ([]models.Person, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+personColumns+` FROM people ORDER BY email LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPeople(rows)
}

// Update persists the mutable fields of a person.
func (s *Store) Update(ctx context.Context, p *models.Person) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE people
		SET first_name = $1, last_name = $2, display_name = $3,
		    organization = $4, phone = $5, is_active = $6,
		    metadata = $7, updated_at = NOW()
		WHERE id = $8
	`, p.FirstName, p.LastName, p.DisplayName, p.Organization, p.Phone,
		p.IsActive, metadataOrEmpty(p.Metadata), p.ID)
	if err != nil {
		return fmt.Errorf("update person %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a person by id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Merge folds the secondary person into the primary: every email and
// recipient edge pointing at the secondary is reassigned to the primary,
// memberships the primary lacked are copied over, and the secondary row is
// deleted. The whole operation runs in one transaction; a failure anywhere
// rolls back every reassignment.
func (s *Store) Merge(ctx context.Context, primaryID, secondaryID int64) error {
	if s.pool == nil {
		return fmt.Errorf("merge requires a pool-backed store")
	}
	if primaryID == secondaryID {
		return fmt.Errorf("cannot merge person %d into itself", primaryID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, id := range []int64{primaryID, secondaryID} {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM people WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check person %d: %w", id, err)
		}
		if !exists {
			return fmt.Errorf("person %d: %w", id, models.ErrNotFound)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE emails SET from_person_id = $1, updated_at = NOW()
		WHERE from_person_id = $2
	`, primaryID, secondaryID); err != nil {
		return fmt.Errorf("reassign sent emails: %w", err)
	}

	// Drop the secondary's edges that would collide with an existing
	// primary edge on the same message and type, then move the rest.
	if _, err := tx.Exec(ctx, `
		DELETE FROM email_recipients er
		WHERE er.person_id = $2
		  AND EXISTS (
			SELECT 1 FROM email_recipients dup
			WHERE dup.email_id = er.email_id
			  AND dup.person_id = $1
			  AND dup.recipient_type = er.recipient_type
		  )
	`, primaryID, secondaryID); err != nil {
		return fmt.Errorf("collapse duplicate recipient edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE email_recipients SET person_id = $1 WHERE person_id = $2
	`, primaryID, secondaryID); err != nil {
		return fmt.Errorf("reassign recipient edges: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO person_projects (person_id, project_id, role)
		SELECT $1, project_id, role FROM person_projects WHERE person_id = $2
		ON CONFLICT (person_id, project_id) DO NOTHING
	`, primaryID, secondaryID); err != nil {
		return fmt.Errorf("copy memberships: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM person_projects WHERE person_id = $1
	`, secondaryID); err != nil {
		return fmt.Errorf("remove secondary memberships: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM people WHERE id = $1`, secondaryID); err != nil {
		return fmt.Errorf("delete secondary person: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}

	slog.Info("merged person", "primary_id", primaryID, "secondary_id", secondaryID)
	return nil
}

// metadataOrEmpty substitutes an empty map for nil so a missing field
// binds as '{}' instead of SQL NULL against the NOT NULL column.
func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// scanPerson scans a single row into a Person. Returns nil on no rows.
func scanPerson(row pgx.Row) (*models.Person, error) {
	var p models.Person
	err := row.Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.DisplayName,
		&p.Organization, &p.Phone, &p.IsActive, &p.IsExternal, &p.Metadata,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// collectPeople scans multiple rows into a slice of People.
func collectPeople(rows pgx.Rows) ([]models.Person, error) {
	var people []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(
			&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.DisplayName,
			&p.Organization, &p.Phone, &p.IsActive, &p.IsExternal, &p.Metadata,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}
