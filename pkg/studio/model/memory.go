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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/naming"
)

// MemoryStore is the in-memory Store used by tests and single-node dev
// setups. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	projects    map[string]*Project
	containers  map[string]*Container
	connections map[string]*Connection
	bases       map[string]*MarketplaceBase
	tasks       map[string]*Task
	slugs       map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:    map[string]*Project{},
		containers:  map[string]*Container{},
		connections: map[string]*Connection{},
		bases:       map[string]*MarketplaceBase{},
		tasks:       map[string]*Task{},
		slugs:       map[string]bool{},
	}
}

func (s *MemoryStore) CreateProject(_ context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = EnvAbsent
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	for attempt := 0; attempt < constants.SlugInsertRetries; attempt++ {
		if p.Slug == "" || s.slugs[p.Slug] {
			p.Slug = naming.ProjectSlug(p.Name)
			continue
		}
		s.slugs[p.Slug] = true
		copy := *p
		s.projects[p.ID] = &copy
		return nil
	}
	return errors.New(errors.Conflict, "could not find a free slug for project %q after %d attempts", p.Name, constants.SlugInsertRetries)
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, errors.New(errors.NotFound, "project %q not found", id)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) GetProjectBySlug(_ context.Context, slug string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.Slug == slug {
			copy := *p
			return &copy, nil
		}
	}
	return nil, errors.New(errors.NotFound, "project with slug %q not found", slug)
}

func (s *MemoryStore) ListIdleActiveProjects(_ context.Context, cutoff time.Time) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Project
	for _, p := range s.projects {
		if p.Status != EnvActive {
			continue
		}
		if p.LastActivity == nil || p.LastActivity.Before(cutoff) {
			copy := *p
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateProjectStatus(_ context.Context, id string, status EnvironmentStatus, hibernatedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return errors.New(errors.NotFound, "project %q not found", id)
	}
	p.Status = status
	p.HibernatedAt = hibernatedAt
	return nil
}

func (s *MemoryStore) TouchProjectActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return errors.New(errors.NotFound, "project %q not found", id)
	}
	p.LastActivity = &at
	return nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil
	}
	delete(s.slugs, p.Slug)
	delete(s.projects, id)
	for cid, c := range s.containers {
		if c.ProjectID == id {
			delete(s.containers, cid)
		}
	}
	for cid, c := range s.connections {
		if c.ProjectID == id {
			delete(s.connections, cid)
		}
	}
	return nil
}

func (s *MemoryStore) CreateContainer(_ context.Context, c *Container) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusCreated
	}
	for _, other := range s.containers {
		if other.ProjectID == c.ProjectID && other.Directory == c.Directory {
			return errors.New(errors.Conflict, "directory %q already used in project %q", c.Directory, c.ProjectID)
		}
	}
	copy := *c
	s.containers[c.ID] = &copy
	return nil
}

func (s *MemoryStore) ListContainers(_ context.Context, projectID string) ([]*Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Container
	for _, c := range s.containers {
		if c.ProjectID == projectID {
			copy := *c
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetContainer(_ context.Context, id string) (*Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.containers[id]
	if !ok {
		return nil, errors.New(errors.NotFound, "container %q not found", id)
	}
	copy := *c
	return &copy, nil
}

func (s *MemoryStore) UpdateContainerStatus(_ context.Context, id string, status ContainerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[id]
	if !ok {
		return errors.New(errors.NotFound, "container %q not found", id)
	}
	c.Status = status
	return nil
}

func (s *MemoryStore) DeleteContainer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.containers, id)
	return nil
}

func (s *MemoryStore) ListConnections(_ context.Context, projectID string) ([]*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Connection
	for _, c := range s.connections {
		if c.ProjectID == projectID {
			copy := *c
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateConnection(_ context.Context, c *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	copy := *c
	s.connections[c.ID] = &copy
	return nil
}

func (s *MemoryStore) ListActiveBases(_ context.Context) ([]*MarketplaceBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*MarketplaceBase
	for _, b := range s.bases {
		if b.Active {
			copy := *b
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetBase(_ context.Context, id string) (*MarketplaceBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bases[id]
	if !ok {
		return nil, errors.New(errors.NotFound, "base %q not found", id)
	}
	copy := *b
	return &copy, nil
}

// AddBase seeds a marketplace base (test helper).
func (s *MemoryStore) AddBase(b *MarketplaceBase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	copy := *b
	s.bases[b.ID] = &copy
}

func (s *MemoryStore) CreateTask(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	t.UpdatedAt = time.Now()
	copy := *t
	s.tasks[t.ID] = &copy
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.New(errors.NotFound, "task %q not found", id)
	}
	copy := *t
	return &copy, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, id string, status TaskStatus, percent int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New(errors.NotFound, "task %q not found", id)
	}
	t.Status = status
	t.Percent = percent
	t.Message = message
	t.UpdatedAt = time.Now()
	return nil
}
