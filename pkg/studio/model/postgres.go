/*
Copyright 2025 The Tesslate Studio Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/naming"
)

const uniqueViolation = "23505"

// PostgresStore implements Store on a postgres database via sqlx with the
// pgx stdlib driver.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens and pings a postgres connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFoundOr(err error, format string, args ...interface{}) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.NotFound, format, args...)
	}
	return err
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = EnvAbsent
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	const insert = `INSERT INTO projects (id, slug, name, user_id, environment_status, git_repo_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for attempt := 0; attempt < constants.SlugInsertRetries; attempt++ {
		if p.Slug == "" {
			p.Slug = naming.ProjectSlug(p.Name)
		}
		_, err := s.db.ExecContext(ctx, insert, p.ID, p.Slug, p.Name, p.UserID, p.Status, p.GitRepoURL, p.CreatedAt)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			p.Slug = ""
			continue
		}
		return fmt.Errorf("inserting project: %w", err)
	}
	return errors.New(errors.Conflict, "could not find a free slug for project %q after %d attempts", p.Name, constants.SlugInsertRetries)
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = $1`, id)
	if err != nil {
		return nil, notFoundOr(err, "project %q not found", id)
	}
	return &p, nil
}

func (s *PostgresStore) GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {
	var p Project
	err := s.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE slug = $1`, slug)
	if err != nil {
		return nil, notFoundOr(err, "project with slug %q not found", slug)
	}
	return &p, nil
}

func (s *PostgresStore) ListIdleActiveProjects(ctx context.Context, cutoff time.Time) ([]*Project, error) {
	var out []*Project
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM projects
		 WHERE environment_status = $1 AND (last_activity IS NULL OR last_activity < $2)`,
		EnvActive, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing idle projects: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateProjectStatus(ctx context.Context, id string, status EnvironmentStatus, hibernatedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET environment_status = $1, hibernated_at = $2 WHERE id = $3`,
		status, hibernatedAt, id)
	if err != nil {
		return fmt.Errorf("updating project status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.NotFound, "project %q not found", id)
	}
	return nil
}

func (s *PostgresStore) TouchProjectActivity(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET last_activity = $1 WHERE id = $2`, at, id)
	return err
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) CreateContainer(ctx context.Context, c *Container) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusCreated
	}
	envJSON, err := json.Marshal(c.Env)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO containers (id, project_id, name, directory, type, base_id, service_slug, internal_port, environment_vars, deployment_mode, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.ProjectID, c.Name, c.Directory, c.Type, c.BaseID, c.ServiceSlug, c.InternalPort, envJSON, c.DeployMode, c.Status)
	if isUniqueViolation(err) {
		return errors.New(errors.Conflict, "directory %q already used in project %q", c.Directory, c.ProjectID)
	}
	return err
}

func (s *PostgresStore) ListContainers(ctx context.Context, projectID string) ([]*Container, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, project_id, name, directory, type, base_id, service_slug, internal_port, environment_vars, deployment_mode, status
		 FROM containers WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	defer rows.Close()

	var out []*Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetContainer(ctx context.Context, id string) (*Container, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, project_id, name, directory, type, base_id, service_slug, internal_port, environment_vars, deployment_mode, status
		 FROM containers WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, errors.New(errors.NotFound, "container %q not found", id)
	}
	return scanContainer(rows)
}

func scanContainer(rows *sqlx.Rows) (*Container, error) {
	var c Container
	var envJSON []byte
	err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Directory, &c.Type, &c.BaseID,
		&c.ServiceSlug, &c.InternalPort, &envJSON, &c.DeployMode, &c.Status)
	if err != nil {
		return nil, fmt.Errorf("scanning container row: %w", err)
	}
	if len(envJSON) > 0 {
		if err := json.Unmarshal(envJSON, &c.Env); err != nil {
			return nil, fmt.Errorf("decoding container env: %w", err)
		}
	}
	return &c, nil
}

func (s *PostgresStore) UpdateContainerStatus(ctx context.Context, id string, status ContainerStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE containers SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.NotFound, "container %q not found", id)
	}
	return nil
}

func (s *PostgresStore) DeleteContainer(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) ListConnections(ctx context.Context, projectID string) ([]*Connection, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, project_id, source_container_id, target_container_id, connector_type, config
		 FROM container_connections WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var out []*Connection
	for rows.Next() {
		var c Connection
		var cfgJSON []byte
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.SourceContainerID, &c.TargetContainerID, &c.Type, &cfgJSON); err != nil {
			return nil, err
		}
		if len(cfgJSON) > 0 {
			if err := json.Unmarshal(cfgJSON, &c.Config); err != nil {
				return nil, fmt.Errorf("decoding connection config: %w", err)
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateConnection(ctx context.Context, c *Connection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cfgJSON, err := json.Marshal(c.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO container_connections (id, project_id, source_container_id, target_container_id, connector_type, config)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ProjectID, c.SourceContainerID, c.TargetContainerID, c.Type, cfgJSON)
	return err
}

func (s *PostgresStore) ListActiveBases(ctx context.Context) ([]*MarketplaceBase, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, slug, name, git_repo_url, default_branch, active, metadata FROM marketplace_bases WHERE active = true`)
	if err != nil {
		return nil, fmt.Errorf("listing bases: %w", err)
	}
	defer rows.Close()

	var out []*MarketplaceBase
	for rows.Next() {
		b, err := scanBase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetBase(ctx context.Context, id string) (*MarketplaceBase, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, slug, name, git_repo_url, default_branch, active, metadata FROM marketplace_bases WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, errors.New(errors.NotFound, "base %q not found", id)
	}
	return scanBase(rows)
}

func scanBase(rows *sqlx.Rows) (*MarketplaceBase, error) {
	var b MarketplaceBase
	var metaJSON []byte
	if err := rows.Scan(&b.ID, &b.Slug, &b.Name, &b.GitRepoURL, &b.DefaultBranch, &b.Active, &metaJSON); err != nil {
		return nil, fmt.Errorf("scanning base row: %w", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &b.Metadata); err != nil {
			return nil, fmt.Errorf("decoding base metadata: %w", err)
		}
	}
	return &b, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	t.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, status, percent, message, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.ProjectID, t.Status, t.Percent, t.Message, t.UpdatedAt)
	return err
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := s.db.GetContext(ctx, &t, `SELECT * FROM tasks WHERE id = $1`, id)
	if err != nil {
		return nil, notFoundOr(err, "task %q not found", id)
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, id string, status TaskStatus, percent int, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = $1, percent = $2, message = $3, updated_at = $4 WHERE id = $5`,
		status, percent, message, time.Now(), id)
	return err
}
