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

// Package orchestrator defines the contract both deployment backends
// implement, the factory that selects the active one, and the per-project
// serialization every lifecycle operation runs under. Callers never branch
// on deployment mode: return shapes are identical across backends.
package orchestrator

import (
	"context"
	"time"

	"github.com/TesslateAI/studio-core/pkg/studio/model"
)

// StartResult reports a project start across all of its containers.
type StartResult struct {
	Status string            `json:"status"`
	URLs   map[string]string `json:"urls"`
}

// ContainerResult reports a single container start.
type ContainerResult struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}

// ContainerState is the live status of one container.
type ContainerState struct {
	Status        model.ContainerStatus `json:"status"`
	URL           string                `json:"url,omitempty"`
	Ready         bool                  `json:"ready"`
	ReadyReplicas int                   `json:"ready_replicas"`
	Replicas      int                   `json:"replicas"`
}

// ProjectState is the live status of a whole project environment.
type ProjectState struct {
	Status     model.EnvironmentStatus    `json:"status"`
	Containers map[string]*ContainerState `json:"containers"`
}

// ReadyStatus answers "can this container serve traffic yet".
type ReadyStatus struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// FileInfo describes one directory entry.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	ModTime time.Time `json:"mod_time"`
}

// GrepMatch is one content-search hit.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// ExecResult carries combined output of a shell exec in a container.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// ExecOptions tunes a shell exec.
type ExecOptions struct {
	WorkingDir string
	Timeout    time.Duration
}

// Orchestrator is the deployment contract. Both backends implement every
// method with identical return shapes; lifecycle methods are serialized
// per project by the factory wrapper.
type Orchestrator interface {
	// StartProject brings up every container in the graph and returns the
	// public URL of each routable one. Restores from the archive first when
	// the project is hibernated.
	StartProject(ctx context.Context, g *model.Graph, userID string) (*StartResult, error)
	StopProject(ctx context.Context, projectSlug, projectID, userID string) error
	RestartProject(ctx context.Context, g *model.Graph, userID string) (*StartResult, error)
	GetProjectStatus(ctx context.Context, projectSlug, projectID string) (*ProjectState, error)

	StartContainer(ctx context.Context, g *model.Graph, container *model.Container, userID string) (*ContainerResult, error)
	StopContainer(ctx context.Context, projectSlug, projectID, containerName, userID string) error
	GetContainerStatus(ctx context.Context, projectSlug, projectID, containerName string) (*ContainerState, error)
	IsContainerReady(ctx context.Context, projectSlug, projectID, containerName string) (*ReadyStatus, error)

	ReadFile(ctx context.Context, userID, projectSlug, path string) ([]byte, error)
	WriteFile(ctx context.Context, userID, projectSlug, path string, content []byte) error
	DeleteFile(ctx context.Context, userID, projectSlug, path string) error
	ListFiles(ctx context.Context, userID, projectSlug, path string) ([]FileInfo, error)
	GlobFiles(ctx context.Context, userID, projectSlug, pattern string) ([]string, error)
	GrepFiles(ctx context.Context, userID, projectSlug, query, pathPrefix string) ([]GrepMatch, error)

	ExecuteCommand(ctx context.Context, userID, projectSlug, containerName string, argv []string, opts ExecOptions) (*ExecResult, error)

	// InitializeContainerFiles seeds a container's directory from its base
	// repository. Idempotent; required before the container first starts.
	InitializeContainerFiles(ctx context.Context, g *model.Graph, container *model.Container, userID string) error

	// HibernateProject archives the project directory to object storage and
	// tears down live resources. The teardown happens only after the upload
	// verifies.
	HibernateProject(ctx context.Context, g *model.Graph, userID string) error
	// RestoreProject rebuilds the environment from the archive. A no-op
	// when the project is already active.
	RestoreProject(ctx context.Context, g *model.Graph, userID string) error
	// DeleteProject removes every backend resource for the project. The
	// archive is moved under the deleted/ prefix, not destroyed.
	DeleteProject(ctx context.Context, g *model.Graph, userID string) error

	// TrackActivity is best-effort and never returns an error.
	TrackActivity(ctx context.Context, userID, projectID string)

	// CleanupIdleEnvironments applies the backend's idle policy to every
	// project idle longer than the threshold, returning the project ids
	// acted on.
	CleanupIdleEnvironments(ctx context.Context, idle time.Duration) ([]string, error)

	// EnsureProjectDirectory creates the project's directory on shared
	// storage. A no-op on kubernetes, where the PVC owns the lifecycle.
	EnsureProjectDirectory(ctx context.Context, projectSlug string) error

	// ContainerURL computes the public URL for a container directory.
	ContainerURL(projectSlug, containerDirectory string) string
}
