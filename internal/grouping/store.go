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

// Package grouping owns the projects table: named groupings with an
// email-domain allowlist. Messages are auto-assigned to the project whose
// domains best match the participants.
package grouping

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailstore/internal/database"
	"github.com/bcem/mailstore/internal/models"
)

// Store provides CRUD and domain-based lookup for projects.
type Store struct {
	db database.Querier
}

// NewStore creates a grouping store backed by the given Postgres pool.
// It ensures the projects table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{db: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure projects schema: %w", err)
	}
	return s, nil
}

// WithTx returns a copy of the store bound to an open transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id            BIGSERIAL PRIMARY KEY,
			name          TEXT NOT NULL UNIQUE,
			description   TEXT NOT NULL DEFAULT '',
			email_domains TEXT[] NOT NULL DEFAULT '{}',
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			auto_assign   BOOLEAN NOT NULL DEFAULT FALSE,
			tags          TEXT[] NOT NULL DEFAULT '{}',
			metadata      JSONB NOT NULL DEFAULT '{}',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_projects_active ON projects(is_active);
	`)
	return err
}

const projectColumns = `id, name, description, email_domains, is_active,
	auto_assign, tags, metadata, created_at, updated_at`

// Create inserts a new project. A duplicate name is ErrConflict.
func (s *Store) Create(ctx context.Context, p *models.Project) (*models.Project, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO projects (name, description, email_domains, is_active, auto_assign, tags, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO NOTHING
		RETURNING `+projectColumns,
		p.Name, p.Description, lowerAll(p.EmailDomains), p.IsActive, p.AutoAssign,
		tagsOrEmpty(p.Tags), metadataOrEmpty(p.Metadata))

	created, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("insert project %q: %w", p.Name, err)
	}
	if created == nil {
		return nil, fmt.Errorf("project %q: %w", p.Name, models.ErrConflict)
	}
	return created, nil
}

// Get retrieves a project by id. Returns nil if the id does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*models.Project, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// GetByName retrieves a project by its unique name. Returns nil if absent.
func (s *Store) GetByName(ctx context.Context, name string) (*models.Project, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE name = $1`, name)
	return scanProject(row)
}

// List returns projects ordered by name.
func (s *Store) List(ctx context.Context, limit, offset int) ([]models.Project, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjects(rows)
}

// Update persists the mutable fields of a project.
func (s *Store) Update(ctx context.Context, p *models.Project) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE projects
		SET name = $1, description = $2, email_domains = $3, is_active = $4,
		    auto_assign = $5, tags = $6, metadata = $7, updated_at = NOW()
		WHERE id = $8
	`, p.Name, p.Description, lowerAll(p.EmailDomains), p.IsActive, p.AutoAssign,
		tagsOrEmpty(p.Tags), metadataOrEmpty(p.Metadata), p.ID)
	if err != nil {
		return fmt.Errorf("update project %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a project by id. Messages assigned to it keep a dangling
// project reference cleared by the FK's ON DELETE SET NULL.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindForParticipants returns the active, auto-assign project whose domain
// allowlist matches the most distinct participant domains. Ties are broken
// by lowest project id so assignment is deterministic. Returns nil when no
// project matches any participant domain.
func (s *Store) FindForParticipants(ctx context.Context, fromEmail string, toEmails, ccEmails []string) (*models.Project, error) {
	domains := extractDomains(fromEmail, toEmails, ccEmails)
	if len(domains) == 0 {
		return nil, nil
	}

	candidates, err := s.listAutoAssign(ctx)
	if err != nil {
		return nil, err
	}
	return scoreByDomains(domains, candidates), nil
}

// FindForSingleAddress returns the first active, auto-assign project whose
// allowlist contains the address's domain. Used for one-off lookups
// outside ingestion.
func (s *Store) FindForSingleAddress(ctx context.Context, email string) (*models.Project, error) {
	domains := extractDomains(email, nil, nil)
	if len(domains) == 0 {
		return nil, nil
	}
	candidates, err := s.listAutoAssign(ctx)
	if err != nil {
		return nil, err
	}
	return scoreByDomains(domains, candidates), nil
}

func (s *Store) listAutoAssign(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE is_active = TRUE AND auto_assign = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjects(rows)
}

// extractDomains collects the distinct lowercase domains across all
// provided addresses. Addresses without an @ are skipped.
func extractDomains(fromEmail string, toEmails, ccEmails []string) map[string]bool {
	domains := make(map[string]bool)
	add := func(email string) {
		at := strings.LastIndex(email, "@")
		if at < 0 || at == len(email)-1 {
			return
		}
		domains[strings.ToLower(strings.TrimSpace(email[at+1:]))] = true
	}
	add(fromEmail)
	for _, e := range toEmails {
		add(e)
	}
	for _, e := range ccEmails {
		add(e)
	}
	return domains
}

// scoreByDomains ranks candidates by how many of the participant domains
// appear in their allowlist. Candidates must arrive ordered by id; the
// first strictly-highest positive score wins, so equal scores resolve to
// the lowest id.
func scoreByDomains(domains map[string]bool, candidates []models.Project) *models.Project {
	var best *models.Project
	bestScore := 0
	for i := range candidates {
		score := 0
		for _, d := range candidates[i].EmailDomains {
			if domains[strings.ToLower(d)] {
				score++
			}
		}
		if score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	return best
}

// tagsOrEmpty and metadataOrEmpty substitute empty collections for nil so
// a missing field binds as '{}' instead of SQL NULL against the NOT NULL
// columns.
func tagsOrEmpty(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

// scanProject scans a single row into a Project. Returns nil on no rows.
func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.EmailDomains, &p.IsActive,
		&p.AutoAssign, &p.Tags, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// collectProjects scans multiple rows into a slice of Projects.
func collectProjects(rows pgx.Rows) ([]models.Project, error) {
	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.EmailDomains, &p.IsActive,
			&p.AutoAssign, &p.Tags, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
