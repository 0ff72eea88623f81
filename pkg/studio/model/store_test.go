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
	"regexp"
	"testing"
	"time"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/testutil"
)

func TestCreateProjectGeneratesSlug(t *testing.T) {
	store := NewMemoryStore()
	p := &Project{Name: "My App", UserID: "u1"}
	err := store.CreateProject(context.Background(), p)
	testutil.CheckError(t, false, err)

	if !regexp.MustCompile(`^my-app-[a-z0-9]{6}$`).MatchString(p.Slug) {
		t.Errorf("unexpected slug %q", p.Slug)
	}
	testutil.CheckDeepEqual(t, EnvAbsent, p.Status)
}

func TestCreateProjectSlugCollisionRetries(t *testing.T) {
	store := NewMemoryStore()
	first := &Project{Name: "App", UserID: "u1"}
	testutil.CheckError(t, false, store.CreateProject(context.Background(), first))

	// Force the second insert to start from the same slug; the store must
	// regenerate rather than fail.
	second := &Project{Name: "App", UserID: "u1", Slug: first.Slug}
	testutil.CheckError(t, false, store.CreateProject(context.Background(), second))
	if first.Slug == second.Slug {
		t.Error("expected a regenerated slug on collision")
	}
}

func TestContainerDirectoryUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	p := &Project{Name: "App", UserID: "u1"}
	testutil.CheckError(t, false, store.CreateProject(ctx, p))

	a := &Container{ProjectID: p.ID, Name: "web", Directory: "frontend", Type: TypeBase, BaseID: "b1"}
	testutil.CheckError(t, false, store.CreateContainer(ctx, a))

	b := &Container{ProjectID: p.ID, Name: "other", Directory: "frontend", Type: TypeBase, BaseID: "b2"}
	err := store.CreateContainer(ctx, b)
	if !errors.IsConflict(err) {
		t.Errorf("expected conflict for duplicate directory, got %v", err)
	}
}

func TestContainerValidate(t *testing.T) {
	tests := []struct {
		description string
		container   Container
		shouldErr   bool
	}{
		{description: "base only", container: Container{Name: "web", BaseID: "b1"}, shouldErr: false},
		{description: "service only", container: Container{Name: "db", ServiceSlug: "postgres"}, shouldErr: false},
		{description: "both set", container: Container{Name: "x", BaseID: "b1", ServiceSlug: "postgres"}, shouldErr: true},
		{description: "neither set", container: Container{Name: "x"}, shouldErr: true},
		{description: "bad deploy mode", container: Container{Name: "x", BaseID: "b1", DeployMode: "edge"}, shouldErr: true},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			testutil.CheckError(t, test.shouldErr, test.container.Validate())
		})
	}
}

func TestListIdleActiveProjects(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	fresh := &Project{Name: "fresh", UserID: "u"}
	stale := &Project{Name: "stale", UserID: "u"}
	never := &Project{Name: "never", UserID: "u"}
	hibernated := &Project{Name: "hib", UserID: "u"}
	for _, p := range []*Project{fresh, stale, never, hibernated} {
		testutil.CheckError(t, false, store.CreateProject(ctx, p))
		testutil.CheckError(t, false, store.UpdateProjectStatus(ctx, p.ID, EnvActive, nil))
	}
	testutil.CheckError(t, false, store.TouchProjectActivity(ctx, fresh.ID, now))
	testutil.CheckError(t, false, store.TouchProjectActivity(ctx, stale.ID, now.Add(-2*time.Hour)))
	testutil.CheckError(t, false, store.UpdateProjectStatus(ctx, hibernated.ID, EnvHibernated, &now))

	idle, err := store.ListIdleActiveProjects(ctx, now.Add(-30*time.Minute))
	testutil.CheckError(t, false, err)

	ids := map[string]bool{}
	for _, p := range idle {
		ids[p.ID] = true
	}
	if !ids[stale.ID] || !ids[never.ID] {
		t.Errorf("expected stale and never-active projects, got %v", ids)
	}
	if ids[fresh.ID] || ids[hibernated.ID] {
		t.Errorf("unexpected project selected: %v", ids)
	}
}

func TestGraphInboundEnvConnections(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	p := &Project{Name: "App", UserID: "u1"}
	testutil.CheckError(t, false, store.CreateProject(ctx, p))

	web := &Container{ProjectID: p.ID, Name: "web", Directory: "web", Type: TypeBase, BaseID: "b1"}
	db := &Container{ProjectID: p.ID, Name: "db", Directory: "db", Type: TypeService, ServiceSlug: "postgres"}
	testutil.CheckError(t, false, store.CreateContainer(ctx, web))
	testutil.CheckError(t, false, store.CreateContainer(ctx, db))
	testutil.CheckError(t, false, store.CreateConnection(ctx, &Connection{
		ProjectID:         p.ID,
		SourceContainerID: web.ID,
		TargetContainerID: db.ID,
		Type:              ConnectorEnvInjection,
	}))

	g, err := BuildGraph(ctx, store, p.ID)
	testutil.CheckError(t, false, err)

	edges := g.InboundEnvConnections(web.ID)
	testutil.CheckDeepEqual(t, 1, len(edges))
	testutil.CheckDeepEqual(t, "db", edges[0].Target.Name)

	testutil.CheckDeepEqual(t, 0, len(g.InboundEnvConnections(db.ID)))
}

func TestTaskLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	task := &Task{ProjectID: "p1"}
	testutil.CheckError(t, false, store.CreateTask(ctx, task))
	testutil.CheckDeepEqual(t, TaskPending, task.Status)

	testutil.CheckError(t, false, store.UpdateTask(ctx, task.ID, TaskRunning, 40, "cloning template"))
	got, err := store.GetTask(ctx, task.ID)
	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, 40, got.Percent)
	testutil.CheckDeepEqual(t, TaskRunning, got.Status)
}
