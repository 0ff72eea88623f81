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

// Package proxy manages the fleet of regional traefik containers that
// route public hostnames to project workloads in docker mode. A single
// proxy cannot join an unbounded number of bridge networks, so projects
// are assigned to regions sequentially and the assignment is sticky for
// the life of the project.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/naming"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// regionBasePort is where per-region debug entrypoints start; region N
// binds regionBasePort+N on the host.
const regionBasePort = 9000

// Daemon is the slice of the docker API the registry needs. Satisfied by
// the backend's LocalDaemon.
type Daemon interface {
	ContainerExists(ctx context.Context, name string) bool
	ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networking *network.NetworkingConfig, name string) (string, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerStop(ctx context.Context, id string) error
	ContainerRemove(ctx context.Context, id string) error
	NetworkCreate(ctx context.Context, name string, labels map[string]string) error
	NetworkConnect(ctx context.Context, networkName, containerName string) error
	NetworkDisconnect(ctx context.Context, networkName, containerName string) error
}

// state is the persisted project-to-region map. It lives next to the
// generated compose files and survives orchestrator restarts.
type state struct {
	// Assignments maps project slug to region index.
	Assignments map[string]int `json:"assignments"`
	// Regions counts projects per region index.
	Regions map[string]int `json:"regions"`
}

// Registry assigns projects to regional proxies and keeps the proxy
// containers themselves alive.
type Registry struct {
	daemon Daemon
	cfg    *config.Config

	mu        sync.Mutex
	statePath string
	st        *state
}

func NewRegistry(daemon Daemon, cfg *config.Config) *Registry {
	return &Registry{
		daemon:    daemon,
		cfg:       cfg,
		statePath: filepath.Join(cfg.Docker.RegionalComposeDir, "assignments.json"),
	}
}

// RegionName is the label value workloads carry and the provider
// constraint their proxy filters on.
func RegionName(index int) string {
	return fmt.Sprintf("region-%03d", index)
}

// ProxyContainerName names the traefik container of a region.
func ProxyContainerName(region string) string {
	return "tesslate-regional-proxy-" + region
}

// EnsureAssigned returns the project's region, assigning one on first use.
// The region's proxy container is started if needed and connected to the
// project's network so it can reach the workloads it routes to.
func (r *Registry) EnsureAssigned(ctx context.Context, projectSlug string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return "", err
	}

	index, ok := r.st.Assignments[projectSlug]
	if !ok {
		index = r.pickRegionLocked()
		r.st.Assignments[projectSlug] = index
		r.st.Regions[RegionName(index)]++
		if err := r.saveLocked(); err != nil {
			return "", err
		}
		log.Entry(ctx).Infof("assigned project %s to %s", projectSlug, RegionName(index))
	}

	region := RegionName(index)
	if err := r.ensureProxy(ctx, region, index); err != nil {
		return "", err
	}
	if err := r.daemon.NetworkConnect(ctx, naming.ProjectNetwork(projectSlug), ProxyContainerName(region)); err != nil {
		return "", errors.Wrap(errors.Transient, err, "connecting %s to project network", region)
	}
	return region, nil
}

// Region returns the project's assigned region without side effects.
func (r *Registry) Region(projectSlug string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return "", false
	}
	index, ok := r.st.Assignments[projectSlug]
	if !ok {
		return "", false
	}
	return RegionName(index), true
}

// Unassign disconnects the project's proxy from its network and drops the
// assignment. Called when the project's environment is torn down for good;
// hibernated projects keep their region.
func (r *Registry) Unassign(ctx context.Context, projectSlug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}
	index, ok := r.st.Assignments[projectSlug]
	if !ok {
		return nil
	}

	region := RegionName(index)
	if err := r.daemon.NetworkDisconnect(ctx, naming.ProjectNetwork(projectSlug), ProxyContainerName(region)); err != nil {
		log.Entry(ctx).Warnf("disconnecting %s from %s: %v", region, projectSlug, err)
	}

	delete(r.st.Assignments, projectSlug)
	if r.st.Regions[region] > 0 {
		r.st.Regions[region]--
	}
	return r.saveLocked()
}

// Disconnect detaches the project's proxy from its network but keeps the
// assignment, used when a project hibernates.
func (r *Registry) Disconnect(ctx context.Context, projectSlug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}
	index, ok := r.st.Assignments[projectSlug]
	if !ok {
		return nil
	}
	return r.daemon.NetworkDisconnect(ctx, naming.ProjectNetwork(projectSlug), ProxyContainerName(RegionName(index)))
}

// pickRegionLocked fills regions sequentially: the lowest-indexed region
// with capacity wins, so early regions stay dense and the fleet stays
// small.
func (r *Registry) pickRegionLocked() int {
	for i := 0; ; i++ {
		if r.st.Regions[RegionName(i)] < constants.ProjectsPerRegionalProxy {
			return i
		}
	}
}

// ensureProxy creates and starts the region's traefik container if it is
// not already running.
func (r *Registry) ensureProxy(ctx context.Context, region string, index int) error {
	name := ProxyContainerName(region)

	if err := r.daemon.NetworkCreate(ctx, constants.RegionalProxyNetwork, map[string]string{
		constants.Labels.ManagedBy: constants.Labels.ManagedByName,
	}); err != nil {
		return errors.Wrap(errors.Transient, err, "creating regional proxy network")
	}

	if !r.daemon.ContainerExists(ctx, name) {
		if err := r.createProxy(ctx, name, region, index); err != nil {
			return err
		}
	}

	inspect, err := r.daemon.ContainerInspect(ctx, name)
	if err != nil {
		return errors.Wrap(errors.Transient, err, "inspecting proxy %s", name)
	}
	if inspect.State == nil || !inspect.State.Running {
		if err := r.daemon.ContainerStart(ctx, name); err != nil {
			return errors.Wrap(errors.Transient, err, "starting proxy %s", name)
		}
	}
	return r.waitRunning(ctx, name)
}

func (r *Registry) createProxy(ctx context.Context, name, region string, index int) error {
	entryPort := nat.Port("80/tcp")
	hostPort := fmt.Sprintf("%d", regionBasePort+index)

	cfg := &container.Config{
		Image: r.cfg.Docker.ProxyImage,
		Cmd: []string{
			"--providers.docker=true",
			"--providers.docker.exposedbydefault=false",
			fmt.Sprintf("--providers.docker.constraints=Label(`%s`,`%s`)", constants.Labels.Region, region),
			"--entrypoints.web.address=:80",
			// Dev servers hold requests open for hot reload; generous
			// transport timeouts keep those streams alive.
			"--entrypoints.web.transport.respondingTimeouts.readTimeout=600s",
			"--entrypoints.web.transport.respondingTimeouts.writeTimeout=600s",
			"--entrypoints.web.transport.respondingTimeouts.idleTimeout=600s",
		},
		Labels: map[string]string{
			constants.Labels.ManagedBy: constants.Labels.ManagedByName,
			constants.Labels.Component: "regional-proxy",
			constants.Labels.Region:    region,
		},
		ExposedPorts: nat.PortSet{entryPort: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		Binds:         []string{"/var/run/docker.sock:/var/run/docker.sock:ro"},
		PortBindings:  nat.PortMap{entryPort: []nat.PortBinding{{HostPort: hostPort}}},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	networking := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			constants.RegionalProxyNetwork: {},
		},
	}

	id, err := r.daemon.ContainerCreate(ctx, cfg, hostCfg, networking, name)
	if err != nil {
		return errors.Wrap(errors.Transient, err, "creating proxy %s", name)
	}
	if err := r.daemon.ContainerStart(ctx, id); err != nil {
		return errors.Wrap(errors.Transient, err, "starting proxy %s", name)
	}
	log.Entry(ctx).Infof("created regional proxy %s", name)
	return nil
}

func (r *Registry) waitRunning(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.ProxyReady)
	defer cancel()

	check := func() error {
		inspect, err := r.daemon.ContainerInspect(ctx, name)
		if err != nil {
			return err
		}
		if inspect.State == nil || !inspect.State.Running {
			return fmt.Errorf("proxy %s not running yet", name)
		}
		return nil
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(250*time.Millisecond), ctx)
	if err := backoff.Retry(check, b); err != nil {
		return errors.Wrap(errors.Transient, err, "waiting for proxy %s", name)
	}
	return nil
}

func (r *Registry) loadLocked() error {
	if r.st != nil {
		return nil
	}
	r.st = &state{Assignments: map[string]int{}, Regions: map[string]int{}}
	content, err := os.ReadFile(r.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(errors.Transient, err, "reading proxy assignments")
	}
	if err := json.Unmarshal(content, r.st); err != nil {
		return errors.Wrap(errors.DataIntegrity, err, "parsing proxy assignments")
	}
	if r.st.Assignments == nil {
		r.st.Assignments = map[string]int{}
	}
	if r.st.Regions == nil {
		r.st.Regions = map[string]int{}
	}
	return nil
}

func (r *Registry) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(r.statePath), 0o755); err != nil {
		return errors.Wrap(errors.Transient, err, "creating proxy state directory")
	}
	content, err := json.MarshalIndent(r.st, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.statePath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return errors.Wrap(errors.Transient, err, "writing proxy assignments")
	}
	return os.Rename(tmp, r.statePath)
}
