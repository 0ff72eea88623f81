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
	"time"
)

// Store is the persistence surface the orchestrator needs. Implemented by
// the postgres store in production and the in-memory store in tests.
type Store interface {
	// CreateProject inserts p. On slug collision the implementation
	// regenerates the suffix and retries, bounded by
	// constants.SlugInsertRetries; the stored slug is returned via p.
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*Project, error)
	// ListIdleActiveProjects returns active projects whose last activity is
	// null or older than cutoff.
	ListIdleActiveProjects(ctx context.Context, cutoff time.Time) ([]*Project, error)
	UpdateProjectStatus(ctx context.Context, id string, status EnvironmentStatus, hibernatedAt *time.Time) error
	TouchProjectActivity(ctx context.Context, id string, at time.Time) error
	DeleteProject(ctx context.Context, id string) error

	CreateContainer(ctx context.Context, c *Container) error
	ListContainers(ctx context.Context, projectID string) ([]*Container, error)
	GetContainer(ctx context.Context, id string) (*Container, error)
	UpdateContainerStatus(ctx context.Context, id string, status ContainerStatus) error
	DeleteContainer(ctx context.Context, id string) error

	ListConnections(ctx context.Context, projectID string) ([]*Connection, error)
	CreateConnection(ctx context.Context, c *Connection) error

	ListActiveBases(ctx context.Context) ([]*MarketplaceBase, error)
	GetBase(ctx context.Context, id string) (*MarketplaceBase, error)

	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, id string, status TaskStatus, percent int, message string) error
}

// Graph is the in-memory view of one project's containers and connections,
// built on demand from the flat tables.
type Graph struct {
	Project     *Project
	Containers  []*Container
	Connections []*Connection

	byID map[string]*Container
}

// BuildGraph loads a project's full graph from the store.
func BuildGraph(ctx context.Context, s Store, projectID string) (*Graph, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	containers, err := s.ListContainers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	connections, err := s.ListConnections(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return NewGraph(project, containers, connections), nil
}

// NewGraph assembles a graph from already-loaded entities.
func NewGraph(project *Project, containers []*Container, connections []*Connection) *Graph {
	g := &Graph{Project: project, Containers: containers, Connections: connections, byID: map[string]*Container{}}
	for _, c := range containers {
		g.byID[c.ID] = c
	}
	return g
}

// Container returns the container with the given id, or nil.
func (g *Graph) Container(id string) *Container {
	return g.byID[id]
}

// InboundEnvConnections returns the env_injection edges whose source is the
// given container, paired with their targets.
func (g *Graph) InboundEnvConnections(sourceID string) []struct {
	Connection *Connection
	Target     *Container
} {
	var out []struct {
		Connection *Connection
		Target     *Container
	}
	for _, conn := range g.Connections {
		if conn.SourceContainerID != sourceID || conn.Type != ConnectorEnvInjection {
			continue
		}
		target := g.byID[conn.TargetContainerID]
		if target == nil {
			continue
		}
		out = append(out, struct {
			Connection *Connection
			Target     *Container
		}{conn, target})
	}
	return out
}
