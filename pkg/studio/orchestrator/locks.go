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

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/TesslateAI/studio-core/pkg/studio/model"
)

// ProjectLocker serializes operations per project id while keeping
// distinct projects fully concurrent. One instance is shared between the
// factory wrapper and the backend it wraps, so the idle sweep contends on
// the same locks user-initiated lifecycle calls do.
type ProjectLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProjectLocker() *ProjectLocker {
	return &ProjectLocker{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the project's mutex and returns its release.
func (k *ProjectLocker) Lock(projectID string) func() {
	k.mu.Lock()
	m, ok := k.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		k.locks[projectID] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// serialized wraps a backend so that all lifecycle operations on one
// project run one at a time, in arrival order. File and status operations
// pass through untouched: readers are safe concurrently and file writers
// race last-writer-wins by design of the storage layer.
type serialized struct {
	Orchestrator
	locks *ProjectLocker
}

// WithProjectLocks wraps backend with per-project serialization.
func WithProjectLocks(backend Orchestrator, locks *ProjectLocker) Orchestrator {
	return &serialized{Orchestrator: backend, locks: locks}
}

func (s *serialized) StartProject(ctx context.Context, g *model.Graph, userID string) (*StartResult, error) {
	defer s.locks.Lock(g.Project.ID)()
	return s.Orchestrator.StartProject(ctx, g, userID)
}

func (s *serialized) StopProject(ctx context.Context, projectSlug, projectID, userID string) error {
	defer s.locks.Lock(projectID)()
	return s.Orchestrator.StopProject(ctx, projectSlug, projectID, userID)
}

func (s *serialized) RestartProject(ctx context.Context, g *model.Graph, userID string) (*StartResult, error) {
	defer s.locks.Lock(g.Project.ID)()
	return s.Orchestrator.RestartProject(ctx, g, userID)
}

func (s *serialized) StartContainer(ctx context.Context, g *model.Graph, container *model.Container, userID string) (*ContainerResult, error) {
	defer s.locks.Lock(g.Project.ID)()
	return s.Orchestrator.StartContainer(ctx, g, container, userID)
}

func (s *serialized) StopContainer(ctx context.Context, projectSlug, projectID, containerName, userID string) error {
	defer s.locks.Lock(projectID)()
	return s.Orchestrator.StopContainer(ctx, projectSlug, projectID, containerName, userID)
}

func (s *serialized) InitializeContainerFiles(ctx context.Context, g *model.Graph, container *model.Container, userID string) error {
	defer s.locks.Lock(g.Project.ID)()
	return s.Orchestrator.InitializeContainerFiles(ctx, g, container, userID)
}

func (s *serialized) HibernateProject(ctx context.Context, g *model.Graph, userID string) error {
	defer s.locks.Lock(g.Project.ID)()
	return s.Orchestrator.HibernateProject(ctx, g, userID)
}

func (s *serialized) RestoreProject(ctx context.Context, g *model.Graph, userID string) error {
	defer s.locks.Lock(g.Project.ID)()
	return s.Orchestrator.RestoreProject(ctx, g, userID)
}

func (s *serialized) DeleteProject(ctx context.Context, g *model.Graph, userID string) error {
	defer s.locks.Lock(g.Project.ID)()
	return s.Orchestrator.DeleteProject(ctx, g, userID)
}

func (s *serialized) CleanupIdleEnvironments(ctx context.Context, idle time.Duration) ([]string, error) {
	// The backend takes per-project locks itself as it walks candidates;
	// locking here would serialize the whole sweep against every caller.
	return s.Orchestrator.CleanupIdleEnvironments(ctx, idle)
}
