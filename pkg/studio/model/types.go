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

// Package model is the thin data layer the orchestrator reads and writes:
// projects, containers, connections and marketplace bases, stored as flat
// tables with foreign keys. The per-project graph is assembled on demand;
// entities never hold back-pointers.
package model

import (
	"time"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
)

// EnvironmentStatus is the per-project lifecycle.
type EnvironmentStatus string

const (
	EnvAbsent     = EnvironmentStatus("absent")
	EnvActive     = EnvironmentStatus("active")
	EnvHibernated = EnvironmentStatus("hibernated")
)

// ContainerType distinguishes workload containers from catalog services.
type ContainerType string

const (
	TypeBase    = ContainerType("base")
	TypeService = ContainerType("service")
)

// ContainerStatus is the per-container lifecycle.
type ContainerStatus string

const (
	StatusCreated = ContainerStatus("created")
	StatusRunning = ContainerStatus("running")
	StatusStopped = ContainerStatus("stopped")
	StatusFailed  = ContainerStatus("failed")
)

// DeployMode optionally overrides where a hybrid service runs.
type DeployMode string

const (
	DeployContainer = DeployMode("container")
	DeployExternal  = DeployMode("external")
)

// ConnectorType describes what a connection synthesizes for its source.
type ConnectorType string

const (
	ConnectorEnvInjection = ConnectorType("env_injection")
	ConnectorHTTPAPI      = ConnectorType("http_api")
	ConnectorDatabase     = ConnectorType("database")
)

// Project is a user-owned graph of containers and connections with its own
// directory on shared storage.
type Project struct {
	ID           string            `db:"id"`
	Slug         string            `db:"slug"`
	Name         string            `db:"name"`
	UserID       string            `db:"user_id"`
	Status       EnvironmentStatus `db:"environment_status"`
	GitRepoURL   string            `db:"git_repo_url"`
	LastActivity *time.Time        `db:"last_activity"`
	HibernatedAt *time.Time        `db:"hibernated_at"`
	CreatedAt    time.Time         `db:"created_at"`
}

// Container is one workload within a project. Exactly one of BaseID and
// ServiceSlug is set; Directory is unique within the project.
type Container struct {
	ID           string            `db:"id"`
	ProjectID    string            `db:"project_id"`
	Name         string            `db:"name"`
	Directory    string            `db:"directory"`
	Type         ContainerType     `db:"type"`
	BaseID       string            `db:"base_id"`
	ServiceSlug  string            `db:"service_slug"`
	InternalPort int               `db:"internal_port"`
	Env          map[string]string `db:"-"`
	DeployMode   DeployMode        `db:"deployment_mode"`
	Status       ContainerStatus   `db:"status"`
}

// Validate enforces the base/service exclusivity invariant.
func (c Container) Validate() error {
	hasBase := c.BaseID != ""
	hasService := c.ServiceSlug != ""
	if hasBase == hasService {
		return errors.New(errors.Validation, "container %q must set exactly one of base_id and service_slug", c.Name)
	}
	if c.DeployMode != "" && c.DeployMode != DeployContainer && c.DeployMode != DeployExternal {
		return errors.New(errors.Validation, "container %q has invalid deployment mode %q", c.Name, c.DeployMode)
	}
	return nil
}

// RootDirectory reports whether the container occupies the project root.
func (c Container) RootDirectory() bool {
	return c.Directory == "" || c.Directory == "."
}

// Connection is a directed edge: the source container receives environment
// variables synthesized from the target's connection template.
type Connection struct {
	ID                string            `db:"id"`
	ProjectID         string            `db:"project_id"`
	SourceContainerID string            `db:"source_container_id"`
	TargetContainerID string            `db:"target_container_id"`
	Type              ConnectorType     `db:"connector_type"`
	Config            map[string]string `db:"-"`
}

// MarketplaceBase is a reusable project template.
type MarketplaceBase struct {
	ID            string            `db:"id"`
	Slug          string            `db:"slug"`
	Name          string            `db:"name"`
	GitRepoURL    string            `db:"git_repo_url"`
	DefaultBranch string            `db:"default_branch"`
	Active        bool              `db:"active"`
	Metadata      map[string]string `db:"-"`
}

// TaskStatus tracks background work.
type TaskStatus string

const (
	TaskPending = TaskStatus("pending")
	TaskRunning = TaskStatus("running")
	TaskSuccess = TaskStatus("success")
	TaskFailed  = TaskStatus("failed")
)

// Task is the progress record callers poll while project or container
// initialization runs in the background.
type Task struct {
	ID        string     `db:"id"`
	ProjectID string     `db:"project_id"`
	Status    TaskStatus `db:"status"`
	Percent   int        `db:"percent"`
	Message   string     `db:"message"`
	UpdatedAt time.Time  `db:"updated_at"`
}
