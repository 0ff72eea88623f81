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
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/TesslateAI/studio-core/pkg/studio/activity"
	"github.com/TesslateAI/studio-core/pkg/studio/archive"
	"github.com/TesslateAI/studio-core/pkg/studio/basecache"
	"github.com/TesslateAI/studio-core/pkg/studio/catalog"
	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/manifest"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/naming"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
	"github.com/TesslateAI/studio-core/pkg/studio/proxy"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
)

// Backend orchestrates project environments with docker compose. Each
// project gets a generated compose file, a dedicated bridge network and a
// subtree of the shared projects volume.
type Backend struct {
	cfg      *config.Config
	store    model.Store
	activity activity.Store
	archiver *archive.Archiver // nil without object storage
	daemon   LocalDaemon
	proxies  *proxy.Registry
	files    *Files
	cache    *basecache.Cache
	urls     orchestrator.URLBuilder
	locks    *orchestrator.ProjectLocker
}

// NewBackend connects to the local daemon and wires the compose backend.
func NewBackend(ctx context.Context, cfg *config.Config, store model.Store, act activity.Store, archiver *archive.Archiver, locks *orchestrator.ProjectLocker) (*Backend, error) {
	daemon, err := NewAPIClient(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.Transient, err, "connecting to docker daemon")
	}
	b := &Backend{
		cfg:      cfg,
		store:    store,
		activity: act,
		archiver: archiver,
		daemon:   daemon,
		proxies:  proxy.NewRegistry(daemon, cfg),
		files:    NewFiles(afero.NewOsFs(), cfg.Docker.ProjectsRoot),
		cache:    basecache.New(cfg.Docker.BaseCacheRoot, cfg.Docker.BaseCacheVolume, cfg.Docker.DevServerImage, cfg.Timeouts.GitClone),
		urls:     orchestrator.URLBuilder{AppDomain: cfg.AppDomain, Insecure: cfg.AppDomain == "localhost"},
		locks:    locks,
	}
	return b, nil
}

func (b *Backend) composeFilePath(projectSlug string) string {
	return filepath.Join(b.cfg.Docker.ComposeDir, projectSlug+".yml")
}

// compose runs a docker compose subcommand against the project's file.
func (b *Backend) compose(ctx context.Context, projectSlug string, args ...string) error {
	full := append([]string{"compose", "-p", projectSlug, "-f", b.composeFilePath(projectSlug)}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	if _, err := util.RunCmdOut(ctx, cmd); err != nil {
		return errors.Wrap(errors.Transient, err, "docker compose %s for project %s", args[0], projectSlug)
	}
	return nil
}

// resolveManifests reads and validates the manifest of every base
// container. A missing or rejected manifest yields the safe fallback.
func (b *Backend) resolveManifests(ctx context.Context, g *model.Graph) map[string]manifest.Manifest {
	resolved := map[string]manifest.Manifest{}
	for _, c := range g.Containers {
		if c.Type != model.TypeBase {
			continue
		}
		rel := constants.DefaultManifestName
		if !c.RootDirectory() {
			rel = c.Directory + "/" + constants.DefaultManifestName
		}
		content, err := b.files.Read(g.Project.Slug, rel)
		if err != nil {
			if !errors.IsNotFound(err) {
				log.Entry(ctx).Warnf("reading manifest for %s: %v", c.Name, err)
			}
			content = nil
		}
		resolved[c.ID] = manifest.Resolve(ctx, string(content))
	}
	return resolved
}

// writeComposeFile regenerates the project's compose file from the graph.
func (b *Backend) writeComposeFile(ctx context.Context, g *model.Graph, region string) error {
	resolved := b.resolveManifests(ctx, g)
	content, err := generateCompose(b.cfg, g, resolved, region)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.cfg.Docker.ComposeDir, 0o755); err != nil {
		return errors.Wrap(errors.Transient, err, "creating compose directory")
	}
	if err := os.WriteFile(b.composeFilePath(g.Project.Slug), content, 0o644); err != nil {
		return errors.Wrap(errors.Transient, err, "writing compose file for %s", g.Project.Slug)
	}
	return nil
}

// prepare brings up everything a project needs before compose: directory,
// network and regional proxy. Returns the assigned region.
func (b *Backend) prepare(ctx context.Context, g *model.Graph) (string, error) {
	if err := b.files.EnsureProjectDir(g.Project.Slug); err != nil {
		return "", err
	}
	if err := b.daemon.NetworkCreate(ctx, naming.ProjectNetwork(g.Project.Slug), map[string]string{
		constants.Labels.ManagedBy:   constants.Labels.ManagedByName,
		constants.Labels.ProjectID:   g.Project.ID,
		constants.Labels.ProjectSlug: g.Project.Slug,
	}); err != nil {
		return "", errors.Wrap(errors.Transient, err, "creating network for project %s", g.Project.Slug)
	}
	region, err := b.proxies.EnsureAssigned(ctx, g.Project.Slug)
	if err != nil {
		return "", err
	}
	return region, nil
}

func (b *Backend) StartProject(ctx context.Context, g *model.Graph, userID string) (*orchestrator.StartResult, error) {
	ctx = log.WithEventContext(ctx, constants.Start, g.Project.Slug)

	if g.Project.Status == model.EnvHibernated {
		if err := b.restore(ctx, g, userID); err != nil {
			return nil, err
		}
	}

	region, err := b.prepare(ctx, g)
	if err != nil {
		return nil, err
	}
	if err := b.writeComposeFile(ctx, g, region); err != nil {
		return nil, err
	}
	if err := b.compose(ctx, g.Project.Slug, "up", "-d", "--remove-orphans"); err != nil {
		return nil, err
	}

	b.markContainers(ctx, g, model.StatusRunning)
	b.TrackActivity(ctx, userID, g.Project.ID)

	return &orchestrator.StartResult{Status: "started", URLs: b.projectURLs(g)}, nil
}

func (b *Backend) StopProject(ctx context.Context, projectSlug, projectID, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Stop, projectSlug)

	if _, err := os.Stat(b.composeFilePath(projectSlug)); os.IsNotExist(err) {
		return nil
	}
	if err := b.compose(ctx, projectSlug, "stop"); err != nil {
		return err
	}
	b.markProjectContainers(ctx, projectID, model.StatusStopped)
	return nil
}

func (b *Backend) RestartProject(ctx context.Context, g *model.Graph, userID string) (*orchestrator.StartResult, error) {
	ctx = log.WithEventContext(ctx, constants.Start, g.Project.Slug)

	region, err := b.prepare(ctx, g)
	if err != nil {
		return nil, err
	}
	if err := b.writeComposeFile(ctx, g, region); err != nil {
		return nil, err
	}
	// Recreate unconditionally: a restart usually follows a manifest or
	// graph change the running containers do not reflect.
	if err := b.compose(ctx, g.Project.Slug, "up", "-d", "--force-recreate", "--remove-orphans"); err != nil {
		return nil, err
	}

	b.markContainers(ctx, g, model.StatusRunning)
	b.TrackActivity(ctx, userID, g.Project.ID)
	return &orchestrator.StartResult{Status: "restarted", URLs: b.projectURLs(g)}, nil
}

func (b *Backend) GetProjectStatus(ctx context.Context, projectSlug, projectID string) (*orchestrator.ProjectState, error) {
	project, err := b.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	state := &orchestrator.ProjectState{
		Status:     project.Status,
		Containers: map[string]*orchestrator.ContainerState{},
	}
	if project.Status == model.EnvHibernated {
		return state, nil
	}

	containers, err := b.store.ListContainers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		if c.Type == model.TypeService && isExternalService(c) {
			continue
		}
		state.Containers[c.Name] = b.containerState(ctx, projectSlug, c)
	}
	return state, nil
}

func (b *Backend) containerState(ctx context.Context, projectSlug string, c *model.Container) *orchestrator.ContainerState {
	state := &orchestrator.ContainerState{Status: model.StatusStopped, Replicas: 1}
	if b.routable(c) {
		state.URL = b.urls.ContainerURL(projectSlug, c.Directory)
	}

	inspect, err := b.daemon.ContainerInspect(ctx, naming.ComposeServiceName(projectSlug, c.Name))
	if err != nil {
		state.Status = model.StatusCreated
		state.Replicas = 0
		return state
	}
	if inspect.State != nil && inspect.State.Running {
		state.Status = model.StatusRunning
		state.Ready = true
		state.ReadyReplicas = 1
	}
	return state
}

func (b *Backend) StartContainer(ctx context.Context, g *model.Graph, container *model.Container, userID string) (*orchestrator.ContainerResult, error) {
	ctx = log.WithEventContext(ctx, constants.Start, g.Project.Slug)

	region, err := b.prepare(ctx, g)
	if err != nil {
		return nil, err
	}
	if err := b.writeComposeFile(ctx, g, region); err != nil {
		return nil, err
	}
	service := naming.ComposeServiceName(g.Project.Slug, container.Name)
	if err := b.compose(ctx, g.Project.Slug, "up", "-d", service); err != nil {
		return nil, err
	}

	if err := b.store.UpdateContainerStatus(ctx, container.ID, model.StatusRunning); err != nil {
		log.Entry(ctx).Warnf("recording container status: %v", err)
	}
	b.TrackActivity(ctx, userID, g.Project.ID)

	result := &orchestrator.ContainerResult{Status: "started"}
	if b.routable(container) {
		result.URL = b.urls.ContainerURL(g.Project.Slug, container.Directory)
	}
	return result, nil
}

func (b *Backend) StopContainer(ctx context.Context, projectSlug, projectID, containerName, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Stop, projectSlug)

	service := naming.ComposeServiceName(projectSlug, containerName)
	if err := b.compose(ctx, projectSlug, "stop", service); err != nil {
		return err
	}

	containers, err := b.store.ListContainers(ctx, projectID)
	if err != nil {
		return nil
	}
	for _, c := range containers {
		if c.Name == containerName {
			if err := b.store.UpdateContainerStatus(ctx, c.ID, model.StatusStopped); err != nil {
				log.Entry(ctx).Warnf("recording container status: %v", err)
			}
		}
	}
	return nil
}

func (b *Backend) GetContainerStatus(ctx context.Context, projectSlug, projectID, containerName string) (*orchestrator.ContainerState, error) {
	c, err := b.findContainer(ctx, projectID, containerName)
	if err != nil {
		return nil, err
	}
	return b.containerState(ctx, projectSlug, c), nil
}

func (b *Backend) IsContainerReady(ctx context.Context, projectSlug, projectID, containerName string) (*orchestrator.ReadyStatus, error) {
	state, err := b.GetContainerStatus(ctx, projectSlug, projectID, containerName)
	if err != nil {
		return nil, err
	}
	if state.Ready {
		return &orchestrator.ReadyStatus{Ready: true, Message: "container is running"}, nil
	}
	return &orchestrator.ReadyStatus{Ready: false, Message: "container is not running"}, nil
}

func (b *Backend) findContainer(ctx context.Context, projectID, containerName string) (*model.Container, error) {
	containers, err := b.store.ListContainers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		if c.Name == containerName {
			return c, nil
		}
	}
	return nil, errors.New(errors.NotFound, "container %q not found in project", containerName)
}

func (b *Backend) ReadFile(ctx context.Context, userID, projectSlug, path string) ([]byte, error) {
	content, err := b.files.Read(projectSlug, path)
	if err != nil {
		return nil, err
	}
	b.touchProject(ctx, userID, projectSlug)
	return content, nil
}

func (b *Backend) WriteFile(ctx context.Context, userID, projectSlug, path string, content []byte) error {
	if err := b.files.Write(projectSlug, path, content); err != nil {
		return err
	}
	b.touchProject(ctx, userID, projectSlug)
	return nil
}

func (b *Backend) DeleteFile(ctx context.Context, userID, projectSlug, path string) error {
	if err := b.files.Delete(projectSlug, path); err != nil {
		return err
	}
	b.touchProject(ctx, userID, projectSlug)
	return nil
}

func (b *Backend) ListFiles(ctx context.Context, userID, projectSlug, path string) ([]orchestrator.FileInfo, error) {
	return b.files.List(projectSlug, path)
}

func (b *Backend) GlobFiles(ctx context.Context, userID, projectSlug, pattern string) ([]string, error) {
	return b.files.Glob(projectSlug, pattern)
}

func (b *Backend) GrepFiles(ctx context.Context, userID, projectSlug, query, pathPrefix string) ([]orchestrator.GrepMatch, error) {
	return b.files.Grep(projectSlug, query, pathPrefix)
}

func (b *Backend) ExecuteCommand(ctx context.Context, userID, projectSlug, containerName string, argv []string, opts orchestrator.ExecOptions) (*orchestrator.ExecResult, error) {
	ctx = log.WithEventContext(ctx, constants.DevLoop, projectSlug)

	// The same gate that screens manifest startup commands screens agent
	// execs; there is no fallback here, a blocked command is an error.
	if err := manifest.ValidateCommand(strings.Join(argv, " ")); err != nil {
		return nil, err
	}
	name := naming.ComposeServiceName(projectSlug, containerName)
	result, err := execInContainer(ctx, b.cfg.Timeouts, name, argv, opts)
	if err != nil {
		return nil, err
	}
	b.touchProject(ctx, userID, projectSlug)
	return result, nil
}

// touchProject records activity for a project addressed by slug. File and
// exec calls carry the slug only; resolution failures never fail the call.
func (b *Backend) touchProject(ctx context.Context, userID, projectSlug string) {
	p, err := b.store.GetProjectBySlug(ctx, projectSlug)
	if err != nil {
		log.Entry(ctx).Debugf("resolving project %s for activity: %v", projectSlug, err)
		return
	}
	b.TrackActivity(ctx, userID, p.ID)
}

func (b *Backend) InitializeContainerFiles(ctx context.Context, g *model.Graph, container *model.Container, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Initialize, g.Project.Slug)

	if container.Type != model.TypeBase {
		return nil
	}
	if err := b.files.EnsureProjectDir(g.Project.Slug); err != nil {
		return err
	}

	target := b.files.ProjectDir(g.Project.Slug)
	if !container.RootDirectory() {
		target = filepath.Join(target, container.Directory)
	}
	if entries, err := os.ReadDir(target); err == nil && len(entries) > 0 {
		// Already seeded; initialization is idempotent.
		return nil
	}

	base, err := b.store.GetBase(ctx, container.BaseID)
	if err != nil {
		return err
	}
	if err := b.cache.Seed(ctx, base, target); err != nil {
		return err
	}
	log.Entry(ctx).Infof("seeded %s from base %s", container.Name, base.Slug)
	return nil
}

func (b *Backend) HibernateProject(ctx context.Context, g *model.Graph, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Hibernate, g.Project.Slug)
	return b.hibernate(ctx, g, userID)
}

func (b *Backend) hibernate(ctx context.Context, g *model.Graph, userID string) error {
	if b.archiver == nil {
		return errors.New(errors.Validation, "hibernation requires object storage")
	}
	slug := g.Project.Slug

	if err := b.archiver.UploadDirectory(ctx, userID, g.Project.ID, b.files.ProjectDir(slug), true); err != nil {
		return err
	}
	// Teardown only proceeds once the uploaded archive is confirmed
	// present and non-empty; project files must never be the only copy
	// gone.
	size, err := b.archiver.Size(ctx, userID, g.Project.ID)
	if err != nil {
		return err
	}
	if size == 0 {
		return errors.New(errors.DataIntegrity, "uploaded archive for project %s is empty, aborting teardown", slug)
	}

	if _, err := os.Stat(b.composeFilePath(slug)); err == nil {
		if err := b.compose(ctx, slug, "down", "--remove-orphans"); err != nil {
			return err
		}
	}
	if err := b.proxies.Disconnect(ctx, slug); err != nil {
		log.Entry(ctx).Warnf("disconnecting proxy: %v", err)
	}
	if err := b.daemon.NetworkRemove(ctx, naming.ProjectNetwork(slug)); err != nil {
		log.Entry(ctx).Warnf("removing project network: %v", err)
	}
	if err := b.files.RemoveProjectDir(slug); err != nil {
		return err
	}
	_ = os.Remove(b.composeFilePath(slug))

	now := time.Now()
	if err := b.store.UpdateProjectStatus(ctx, g.Project.ID, model.EnvHibernated, &now); err != nil {
		return err
	}
	b.activity.Forget(ctx, g.Project.ID)
	log.Entry(ctx).Infof("hibernated project %s (%d archive bytes)", slug, size)
	return nil
}

func (b *Backend) RestoreProject(ctx context.Context, g *model.Graph, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Restore, g.Project.Slug)
	return b.restore(ctx, g, userID)
}

func (b *Backend) restore(ctx context.Context, g *model.Graph, userID string) error {
	if g.Project.Status != model.EnvHibernated {
		return nil
	}
	if b.archiver == nil {
		return errors.New(errors.Validation, "restore requires object storage")
	}

	if err := b.files.EnsureProjectDir(g.Project.Slug); err != nil {
		return err
	}
	tmp, err := os.CreateTemp("", "studio-restore-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := b.archiver.Download(ctx, userID, g.Project.ID, tmp.Name()); err != nil {
		return err
	}
	info, err := tmp.Stat()
	if err != nil {
		return err
	}
	if err := util.UnzipToDirectory(tmp, info.Size(), b.files.ProjectDir(g.Project.Slug)); err != nil {
		return err
	}

	if err := b.store.UpdateProjectStatus(ctx, g.Project.ID, model.EnvActive, nil); err != nil {
		return err
	}
	g.Project.Status = model.EnvActive
	b.TrackActivity(ctx, userID, g.Project.ID)
	log.Entry(ctx).Infof("restored project %s from archive", g.Project.Slug)
	return nil
}

func (b *Backend) DeleteProject(ctx context.Context, g *model.Graph, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Cleanup, g.Project.Slug)
	slug := g.Project.Slug

	if _, err := os.Stat(b.composeFilePath(slug)); err == nil {
		if err := b.compose(ctx, slug, "down", "--remove-orphans"); err != nil {
			log.Entry(ctx).Warnf("compose down during delete: %v", err)
		}
	}

	// The archive is preserved under the deleted/ prefix, uploading the
	// live directory first when no archive exists yet. Failures here are
	// logged, not fatal: deletion must win over backup.
	if b.archiver != nil {
		exists, err := b.archiver.Exists(ctx, userID, g.Project.ID)
		if err == nil && !exists {
			if _, statErr := os.Stat(b.files.ProjectDir(slug)); statErr == nil {
				err = b.archiver.UploadDirectory(ctx, userID, g.Project.ID, b.files.ProjectDir(slug), true)
				exists = err == nil
			}
		}
		if exists {
			if err := b.archiver.CopyToDeleted(ctx, userID, g.Project.ID); err != nil {
				log.Entry(ctx).Warnf("preserving archive for deleted project %s: %v", slug, err)
			}
		}
	}

	if err := b.proxies.Unassign(ctx, slug); err != nil {
		log.Entry(ctx).Warnf("unassigning proxy: %v", err)
	}
	if err := b.daemon.NetworkRemove(ctx, naming.ProjectNetwork(slug)); err != nil {
		log.Entry(ctx).Warnf("removing project network: %v", err)
	}
	if err := b.files.RemoveProjectDir(slug); err != nil {
		return err
	}
	_ = os.Remove(b.composeFilePath(slug))
	b.activity.Forget(ctx, g.Project.ID)
	return nil
}

func (b *Backend) TrackActivity(ctx context.Context, userID, projectID string) {
	b.activity.Touch(ctx, projectID)
	if err := b.store.TouchProjectActivity(ctx, projectID, time.Now()); err != nil {
		log.Entry(ctx).Debugf("recording activity for project %s: %v", projectID, err)
	}
}

// CleanupIdleEnvironments applies the two-tier docker idle policy: idle
// projects get their containers stopped (files and network stay), and
// projects idle past the delete threshold are hibernated to object
// storage when one is configured.
func (b *Backend) CleanupIdleEnvironments(ctx context.Context, idle time.Duration) ([]string, error) {
	ctx = log.WithEventContext(ctx, constants.Reap, constants.SubtaskNone)

	now := time.Now()
	cutoff := now.Add(-idle)
	projects, err := b.store.ListIdleActiveProjects(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var acted []string
	for _, p := range projects {
		// The activity store can be fresher than the database row.
		last := b.activity.Last(ctx, p.ID)
		if p.LastActivity != nil && p.LastActivity.After(last) {
			last = *p.LastActivity
		}
		if last.After(cutoff) {
			continue
		}

		if err := b.cleanupProject(ctx, p, now, last); err != nil {
			log.Entry(ctx).Warnf("cleaning up idle project %s: %v", p.Slug, err)
			continue
		}
		acted = append(acted, p.ID)
	}
	return acted, nil
}

func (b *Backend) cleanupProject(ctx context.Context, p *model.Project, now, last time.Time) error {
	defer b.locks.Lock(p.ID)()

	deleteTier := b.archiver != nil && !last.IsZero() && now.Sub(last) >= b.cfg.DockerDeleteAfter
	if deleteTier {
		g, err := model.BuildGraph(ctx, b.store, p.ID)
		if err != nil {
			return err
		}
		return b.hibernate(ctx, g, p.UserID)
	}

	if _, err := os.Stat(b.composeFilePath(p.Slug)); os.IsNotExist(err) {
		return nil
	}
	if err := b.compose(ctx, p.Slug, "stop"); err != nil {
		return err
	}
	b.markProjectContainers(ctx, p.ID, model.StatusStopped)
	log.Entry(ctx).Infof("stopped idle project %s", p.Slug)
	return nil
}

func (b *Backend) EnsureProjectDirectory(ctx context.Context, projectSlug string) error {
	return b.files.EnsureProjectDir(projectSlug)
}

func (b *Backend) ContainerURL(projectSlug, containerDirectory string) string {
	return b.urls.ContainerURL(projectSlug, containerDirectory)
}

// routable reports whether a container gets a public URL.
func (b *Backend) routable(c *model.Container) bool {
	if c.Type == model.TypeBase {
		return true
	}
	def, err := catalog.Get(c.ServiceSlug)
	return err == nil && def.Routable()
}

func (b *Backend) projectURLs(g *model.Graph) map[string]string {
	urls := map[string]string{}
	for _, c := range g.Containers {
		if b.routable(c) {
			urls[c.Name] = b.urls.ContainerURL(g.Project.Slug, c.Directory)
		}
	}
	return urls
}

func (b *Backend) markContainers(ctx context.Context, g *model.Graph, status model.ContainerStatus) {
	for _, c := range g.Containers {
		if c.Type == model.TypeService && isExternalService(c) {
			continue
		}
		if err := b.store.UpdateContainerStatus(ctx, c.ID, status); err != nil {
			log.Entry(ctx).Warnf("recording container status: %v", err)
		}
	}
}

func (b *Backend) markProjectContainers(ctx context.Context, projectID string, status model.ContainerStatus) {
	containers, err := b.store.ListContainers(ctx, projectID)
	if err != nil {
		log.Entry(ctx).Warnf("listing containers: %v", err)
		return
	}
	for _, c := range containers {
		if err := b.store.UpdateContainerStatus(ctx, c.ID, status); err != nil {
			log.Entry(ctx).Warnf("recording container status: %v", err)
		}
	}
}
