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

// Package docker is the compose-based orchestration backend: one generated
// compose file per project, one bridge network per project, workload files
// on a shared named volume mounted with per-project subpaths.
package docker

import (
	"context"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// For testing
var (
	NewAPIClient = NewAPIClientImpl
)

var (
	apiClientOnce sync.Once
	apiClient     LocalDaemon
	apiClientErr  error
)

// LocalDaemon is the slice of the docker API the backend needs. All
// packages go through this interface instead of the SDK client directly.
type LocalDaemon interface {
	Close() error
	ContainerExists(ctx context.Context, name string) bool
	ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error)
	ContainerList(ctx context.Context, opts container.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networking *network.NetworkingConfig, name string) (string, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerStop(ctx context.Context, id string) error
	ContainerRemove(ctx context.Context, id string) error
	NetworkCreate(ctx context.Context, name string, labels map[string]string) error
	NetworkRemove(ctx context.Context, name string) error
	NetworkConnect(ctx context.Context, networkName, containerName string) error
	NetworkDisconnect(ctx context.Context, networkName, containerName string) error
	NetworkContainers(ctx context.Context, networkName string) (int, error)
	VolumeCreate(ctx context.Context, name string, labels map[string]string) error
	RawClient() client.APIClient
}

// NewAPIClientImpl connects to the local docker daemon from the
// environment. The client is shared process-wide.
func NewAPIClientImpl(ctx context.Context) (LocalDaemon, error) {
	apiClientOnce.Do(func() {
		c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		apiClient = &localDaemon{apiClient: c}
		apiClientErr = err
	})
	return apiClient, apiClientErr
}

type localDaemon struct {
	apiClient client.APIClient
}

// NewLocalDaemon wraps an existing API client, used by tests to inject a
// fake.
func NewLocalDaemon(c client.APIClient) LocalDaemon {
	return &localDaemon{apiClient: c}
}

func (l *localDaemon) Close() error {
	return l.apiClient.Close()
}

func (l *localDaemon) RawClient() client.APIClient {
	return l.apiClient
}

func (l *localDaemon) ContainerExists(ctx context.Context, name string) bool {
	_, err := l.apiClient.ContainerInspect(ctx, name)
	return err == nil
}

func (l *localDaemon) ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error) {
	return l.apiClient.ContainerInspect(ctx, id)
}

func (l *localDaemon) ContainerList(ctx context.Context, opts container.ListOptions) ([]types.Container, error) {
	return l.apiClient.ContainerList(ctx, opts)
}

func (l *localDaemon) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networking *network.NetworkingConfig, name string) (string, error) {
	resp, err := l.apiClient.ContainerCreate(ctx, config, hostConfig, networking, nil, name)
	if err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		log.Entry(ctx).Warn(w)
	}
	return resp.ID, nil
}

func (l *localDaemon) ContainerStart(ctx context.Context, id string) error {
	return l.apiClient.ContainerStart(ctx, id, container.StartOptions{})
}

func (l *localDaemon) ContainerStop(ctx context.Context, id string) error {
	return l.apiClient.ContainerStop(ctx, id, container.StopOptions{})
}

func (l *localDaemon) ContainerRemove(ctx context.Context, id string) error {
	err := l.apiClient.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

func (l *localDaemon) NetworkCreate(ctx context.Context, name string, labels map[string]string) error {
	nr, err := l.apiClient.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return err
	}
	for _, n := range nr {
		if n.Name == name {
			return nil
		}
	}

	r, err := l.apiClient.NetworkCreate(ctx, name, network.CreateOptions{Labels: labels})
	if err != nil {
		return err
	}
	if r.Warning != "" {
		log.Entry(ctx).Warn(r.Warning)
	}
	return nil
}

func (l *localDaemon) NetworkRemove(ctx context.Context, name string) error {
	err := l.apiClient.NetworkRemove(ctx, name)
	if errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

func (l *localDaemon) NetworkConnect(ctx context.Context, networkName, containerName string) error {
	err := l.apiClient.NetworkConnect(ctx, networkName, containerName, &network.EndpointSettings{})
	if errdefs.IsForbidden(err) {
		// Already connected.
		return nil
	}
	return err
}

func (l *localDaemon) NetworkDisconnect(ctx context.Context, networkName, containerName string) error {
	err := l.apiClient.NetworkDisconnect(ctx, networkName, containerName, true)
	if errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

// NetworkContainers returns how many containers are attached to a network.
// The regional proxy registry uses it to respect the per-container network
// limit.
func (l *localDaemon) NetworkContainers(ctx context.Context, networkName string) (int, error) {
	n, err := l.apiClient.NetworkInspect(ctx, networkName, network.InspectOptions{})
	if err != nil {
		return 0, err
	}
	return len(n.Containers), nil
}

func (l *localDaemon) VolumeCreate(ctx context.Context, name string, labels map[string]string) error {
	_, err := l.apiClient.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: labels})
	if errdefs.IsConflict(err) {
		return nil
	}
	return err
}
