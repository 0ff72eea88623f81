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

package proxy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"

	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/testutil"
)

// fakeDaemon records proxy and network operations.
type fakeDaemon struct {
	created    []string
	connected  []string
	disconnect []string
}

func (f *fakeDaemon) ContainerExists(_ context.Context, name string) bool {
	for _, c := range f.created {
		if c == name {
			return true
		}
	}
	return false
}

func (f *fakeDaemon) ContainerInspect(context.Context, string) (types.ContainerJSON, error) {
	return types.ContainerJSON{ContainerJSONBase: &types.ContainerJSONBase{
		State: &types.ContainerState{Running: true},
	}}, nil
}

func (f *fakeDaemon) ContainerCreate(_ context.Context, _ *container.Config, _ *container.HostConfig, _ *network.NetworkingConfig, name string) (string, error) {
	f.created = append(f.created, name)
	return name, nil
}

func (f *fakeDaemon) ContainerStart(context.Context, string) error  { return nil }
func (f *fakeDaemon) ContainerStop(context.Context, string) error   { return nil }
func (f *fakeDaemon) ContainerRemove(context.Context, string) error { return nil }

func (f *fakeDaemon) NetworkCreate(context.Context, string, map[string]string) error { return nil }

func (f *fakeDaemon) NetworkConnect(_ context.Context, networkName, containerName string) error {
	f.connected = append(f.connected, networkName+"->"+containerName)
	return nil
}

func (f *fakeDaemon) NetworkDisconnect(_ context.Context, networkName, containerName string) error {
	f.disconnect = append(f.disconnect, networkName+"->"+containerName)
	return nil
}

func testRegistry(t *testing.T) (*Registry, *fakeDaemon) {
	t.Helper()
	daemon := &fakeDaemon{}
	cfg := &config.Config{
		Docker: config.DockerConfig{
			RegionalComposeDir: filepath.Join(t.TempDir(), "regional"),
			ProxyImage:         "traefik:v3.1",
		},
		Timeouts: config.Timeouts{ProxyReady: time.Second},
	}
	return NewRegistry(daemon, cfg), daemon
}

func TestEnsureAssignedIsSticky(t *testing.T) {
	r, daemon := testRegistry(t)
	ctx := context.Background()

	region, err := r.EnsureAssigned(ctx, "shop-x7k2m9")
	testutil.CheckErrorAndDeepEqual(t, false, err, "region-000", region)

	again, err := r.EnsureAssigned(ctx, "shop-x7k2m9")
	testutil.CheckErrorAndDeepEqual(t, false, err, region, again)

	// One proxy container, created once.
	testutil.CheckDeepEqual(t, []string{"tesslate-regional-proxy-region-000"}, daemon.created)

	// The proxy is connected to the project's network on every call;
	// connect is idempotent at the daemon level.
	testutil.CheckDeepEqual(t,
		"tesslate-shop-x7k2m9->tesslate-regional-proxy-region-000", daemon.connected[0])
}

func TestAssignmentsSurviveRestart(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	region, err := r.EnsureAssigned(ctx, "shop-x7k2m9")
	testutil.CheckError(t, false, err)

	// A fresh registry over the same state directory sees the assignment.
	r2 := NewRegistry(&fakeDaemon{}, r.cfg)
	got, ok := r2.Region("shop-x7k2m9")
	if !ok {
		t.Fatal("expected assignment to survive a restart")
	}
	testutil.CheckDeepEqual(t, region, got)
}

func TestSequentialFill(t *testing.T) {
	r, _ := testRegistry(t)

	// Several projects land in the same region until it fills; filling a
	// region takes 250 projects, so all of these share region zero.
	for _, slug := range []string{"a-111111", "b-222222", "c-333333"} {
		region, err := r.EnsureAssigned(context.Background(), slug)
		testutil.CheckErrorAndDeepEqual(t, false, err, "region-000", region)
	}
}

func TestUnassignFreesCapacity(t *testing.T) {
	r, daemon := testRegistry(t)
	ctx := context.Background()

	if _, err := r.EnsureAssigned(ctx, "gone-111111"); err != nil {
		t.Fatal(err)
	}
	testutil.CheckError(t, false, r.Unassign(ctx, "gone-111111"))

	if _, ok := r.Region("gone-111111"); ok {
		t.Error("expected assignment to be dropped")
	}
	testutil.CheckDeepEqual(t,
		[]string{"tesslate-gone-111111->tesslate-regional-proxy-region-000"}, daemon.disconnect)

	// Unassigning twice is fine.
	testutil.CheckError(t, false, r.Unassign(ctx, "gone-111111"))
}
