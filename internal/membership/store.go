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

// Package membership owns the person_projects join table. A person
// belongs to a project at most once; callers frequently re-assert
// membership, so Add is idempotent rather than erroring on duplicates.
package membership

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailstore/internal/database"
	"github.com/bcem/mailstore/internal/models"
)

// DefaultRole is assigned when callers add a membership without a role.
const DefaultRole = "member"

// Store provides add/remove/list operations for person↔project links.
type Store struct {
	db database.Querier
}

// NewStore creates a membership store backed by the given Postgres pool.
// It ensures the person_projects table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{db: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure person_projects schema: %w", err)
	}
	return s, nil
}

// WithTx returns a copy of the store bound to an open transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS person_projects (
			person_id  BIGINT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
			project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			role       TEXT NOT NULL DEFAULT 'member',
			joined_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (person_id, project_id)
		);
		CREATE INDEX IF NOT EXISTS idx_person_projects_project ON person_projects(project_id);
	`)
	return err
}

// Add links a person to a project. Returns false without error when the
// pair already exists.
func (s *Store) Add(ctx context.Context, personID, projectID int64, role string) (bool, error) {
	if role == "" {
		role = DefaultRole
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO person_projects (person_id, project_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (person_id, project_id) DO NOTHING
	`, personID, projectID, role)
	if err != nil {
		return false, fmt.Errorf("add membership %d→%d: %w", personID, projectID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove unlinks a person from a project. Returns false when the pair did
// not exist.
func (s *Store) Remove(ctx context.Context, personID, projectID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM person_projects WHERE person_id = $1 AND project_id = $2
	`, personID, projectID)
	if err != nil {
		return false, fmt.Errorf("remove membership %d→%d: %w", personID, projectID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByPerson returns all memberships of a person.
func (s *Store) ListByPerson(ctx context.Context, personID int64) ([]models.Membership, error) {
	rows, err := s.db.Query(ctx, `
		SELECT person_id, project_id, role, joined_at
		FROM person_projects
		WHERE person_id = $1
		ORDER BY project_id
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemberships(rows)
}

// ListByProject returns all memberships of a project.
func (s *Store) ListByProject(ctx context.Context, projectID int64) ([]models.Membership, error) {
	rows, err := s.db.Query(ctx, `
		SELECT person_id, project_id, role, joined_at
		FROM person_projects
		WHERE project_id = $1
		ORDER BY person_id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemberships(rows)
}

func collectMemberships(rows pgx.Rows) ([]models.Membership, error) {
	var memberships []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.PersonID, &m.ProjectID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}
