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

package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/spf13/afero"

	"github.com/TesslateAI/studio-core/pkg/studio/activity"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/pkg/studio/proxy"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
	"github.com/TesslateAI/studio-core/testutil"
)

// fakeDaemon is a no-op LocalDaemon whose containers are always running.
type fakeDaemon struct{}

func (fakeDaemon) Close() error                { return nil }
func (fakeDaemon) RawClient() client.APIClient { return nil }
func (fakeDaemon) ContainerExists(context.Context, string) bool {
	return true
}
func (fakeDaemon) ContainerInspect(context.Context, string) (types.ContainerJSON, error) {
	return types.ContainerJSON{ContainerJSONBase: &types.ContainerJSONBase{
		State: &types.ContainerState{Running: true},
	}}, nil
}
func (fakeDaemon) ContainerList(context.Context, container.ListOptions) ([]types.Container, error) {
	return nil, nil
}
func (fakeDaemon) ContainerCreate(context.Context, *container.Config, *container.HostConfig, *network.NetworkingConfig, string) (string, error) {
	return "id", nil
}
func (fakeDaemon) ContainerStart(context.Context, string) error  { return nil }
func (fakeDaemon) ContainerStop(context.Context, string) error   { return nil }
func (fakeDaemon) ContainerRemove(context.Context, string) error { return nil }
func (fakeDaemon) NetworkCreate(context.Context, string, map[string]string) error {
	return nil
}
func (fakeDaemon) NetworkRemove(context.Context, string) error             { return nil }
func (fakeDaemon) NetworkConnect(context.Context, string, string) error    { return nil }
func (fakeDaemon) NetworkDisconnect(context.Context, string, string) error { return nil }
func (fakeDaemon) NetworkContainers(context.Context, string) (int, error)  { return 0, nil }
func (fakeDaemon) VolumeCreate(context.Context, string, map[string]string) error {
	return nil
}

func testBackend(t *testing.T) (*Backend, *model.MemoryStore) {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Docker.ComposeDir = filepath.Join(dir, "compose")
	cfg.Docker.RegionalComposeDir = filepath.Join(dir, "regional")
	cfg.Docker.ProjectsRoot = filepath.Join(dir, "projects")
	cfg.DockerDeleteAfter = 24 * time.Hour
	cfg.Timeouts = testTimeouts

	store := model.NewMemoryStore()
	daemon := fakeDaemon{}
	b := &Backend{
		cfg:      cfg,
		store:    store,
		activity: activity.NewMemoryStore(),
		daemon:   daemon,
		proxies:  proxy.NewRegistry(daemon, cfg),
		files:    NewFiles(afero.NewOsFs(), cfg.Docker.ProjectsRoot),
		urls:     orchestrator.URLBuilder{AppDomain: cfg.AppDomain},
		locks:    orchestrator.NewProjectLocker(),
	}
	return b, store
}

func idleProject(t *testing.T, store *model.MemoryStore, name string, lastActivity time.Time) *model.Project {
	t.Helper()
	p := &model.Project{Name: name, UserID: "u1", Status: model.EnvActive}
	if err := store.CreateProject(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if !lastActivity.IsZero() {
		if err := store.TouchProjectActivity(context.Background(), p.ID, lastActivity); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestCleanupIdleEnvironmentsStopsIdleProjects(t *testing.T) {
	b, store := testBackend(t)
	ctx := context.Background()

	stale := idleProject(t, store, "stale", time.Now().Add(-2*time.Hour))
	fresh := idleProject(t, store, "fresh", time.Now())

	// Only the stale project has a compose file, as it would in production.
	composeFile := b.composeFilePath(stale.Slug)
	if err := os.MkdirAll(filepath.Dir(composeFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(composeFile, []byte("services: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := testutil.NewFakeCmd().
		WithRunOut(fmt.Sprintf("docker compose -p %s -f %s stop", stale.Slug, composeFile), "", nil)
	old := util.DefaultExecCommand
	util.DefaultExecCommand = fake
	t.Cleanup(func() { util.DefaultExecCommand = old })

	acted, err := b.CleanupIdleEnvironments(ctx, time.Hour)
	testutil.CheckErrorAndDeepEqual(t, false, err, []string{stale.ID}, acted)
	if !fake.Exhausted() {
		t.Error("expected compose stop for the stale project")
	}

	// The fresh project was untouched and both stay active: tier one never
	// changes environment status.
	for _, id := range []string{stale.ID, fresh.ID} {
		p, err := store.GetProject(ctx, id)
		testutil.CheckError(t, false, err)
		testutil.CheckDeepEqual(t, model.EnvActive, p.Status)
	}
}

func TestCleanupSkipsProjectsWithFreshActivityStore(t *testing.T) {
	b, store := testBackend(t)
	ctx := context.Background()

	// Stale in the database but touched recently in the activity store.
	p := idleProject(t, store, "busy", time.Now().Add(-2*time.Hour))
	b.activity.Touch(ctx, p.ID)

	acted, err := b.CleanupIdleEnvironments(ctx, time.Hour)
	testutil.CheckError(t, false, err)
	if len(acted) != 0 {
		t.Errorf("expected no cleanup, got %v", acted)
	}
}

func TestExecuteCommandBlocksDangerousCommands(t *testing.T) {
	b, _ := testBackend(t)

	_, err := b.ExecuteCommand(context.Background(), "u1", "proj-abc123", "frontend",
		[]string{"rm", "-rf", "/"}, orchestrator.ExecOptions{})
	if !errors.IsSecurityBlock(err) {
		t.Errorf("expected security-block error, got %v", err)
	}
}

func TestStopProjectWithoutComposeFileIsNoop(t *testing.T) {
	b, store := testBackend(t)
	p := idleProject(t, store, "ghost", time.Time{})

	// No compose file exists; stop must not shell out at all.
	fake := testutil.NewFakeCmd()
	old := util.DefaultExecCommand
	util.DefaultExecCommand = fake
	t.Cleanup(func() { util.DefaultExecCommand = old })

	testutil.CheckError(t, false, b.StopProject(context.Background(), p.Slug, p.ID, "u1"))
}

func TestWriteFileRecordsActivity(t *testing.T) {
	b, store := testBackend(t)
	p := idleProject(t, store, "editor", time.Time{})
	ctx := context.Background()

	before := time.Now()
	err := b.WriteFile(ctx, "u1", p.Slug, "src/app.ts", []byte("export {}\n"))

	testutil.CheckError(t, false, err)
	if last := b.activity.Last(ctx, p.ID); last.Before(before) {
		t.Errorf("successful write must refresh activity, got %v", last)
	}
	updated, err := store.GetProject(ctx, p.ID)
	testutil.CheckError(t, false, err)
	if updated.LastActivity == nil || updated.LastActivity.Before(before) {
		t.Errorf("successful write must touch stored last-activity, got %v", updated.LastActivity)
	}
}

func TestFailedReadDoesNotRecordActivity(t *testing.T) {
	b, store := testBackend(t)
	p := idleProject(t, store, "editor", time.Time{})
	ctx := context.Background()

	_, err := b.ReadFile(ctx, "u1", p.Slug, "missing.ts")

	if !errors.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if last := b.activity.Last(ctx, p.ID); !last.IsZero() {
		t.Errorf("failed read must not refresh activity, got %v", last)
	}
}
