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

package kubernetes

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	utilexec "k8s.io/utils/exec"
	"k8s.io/utils/ptr"

	"github.com/TesslateAI/studio-core/pkg/studio/activity"
	"github.com/TesslateAI/studio-core/pkg/studio/archive"
	"github.com/TesslateAI/studio-core/pkg/studio/catalog"
	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/manifest"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/naming"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// Backend orchestrates project environments on a Kubernetes cluster. Each
// project gets its own namespace holding a PVC, a file-manager pod and one
// deployment per container, isolated by a default-deny NetworkPolicy.
type Backend struct {
	cfg      *config.Config
	store    model.Store
	activity activity.Store
	archiver *archive.Archiver // nil without object storage
	client   kubernetes.Interface
	exec     PodExecutor
	files    *Files
	urls     orchestrator.URLBuilder
	locks    *orchestrator.ProjectLocker
}

// NewBackend connects to the cluster and wires the kubernetes backend.
func NewBackend(ctx context.Context, cfg *config.Config, store model.Store, act activity.Store, archiver *archive.Archiver, locks *orchestrator.ProjectLocker) (*Backend, error) {
	client, restConfig, err := Client(cfg.Kubernetes.Kubeconfig)
	if err != nil {
		return nil, err
	}
	exec := NewPodExecutor(restConfig)
	return &Backend{
		cfg:      cfg,
		store:    store,
		activity: act,
		archiver: archiver,
		client:   client,
		exec:     exec,
		files:    NewFiles(exec),
		urls:     orchestrator.URLBuilder{AppDomain: cfg.AppDomain, Insecure: cfg.AppDomain == "localhost"},
		locks:    locks,
	}, nil
}

// filePod locates the pod file operations run in: the file-manager when it
// is up, otherwise any running dev pod so reads keep working while the
// file-manager restarts.
func (b *Backend) filePod(ctx context.Context, namespace string) (string, error) {
	pod, err := componentPod(ctx, b.client, namespace, constants.FileManagerName)
	if err == nil {
		return pod.Name, nil
	}
	if !errors.IsNotFound(err) {
		return "", err
	}
	pods, listErr := b.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", constants.Labels.ManagedBy, constants.Labels.ManagedByName),
	})
	if listErr != nil {
		return "", errors.Wrap(errors.Transient, listErr, "listing pods in %s", namespace)
	}
	for i := range pods.Items {
		p := &pods.Items[i]
		if p.Status.Phase == corev1.PodRunning && p.DeletionTimestamp == nil {
			return p.Name, nil
		}
	}
	return "", errors.New(errors.NotFound, "no running pod in %s for file access", namespace)
}

// ensureEnvironment creates the namespace-scoped substrate every project
// operation relies on: namespace, network policy, volume claim, TLS
// certificate copy and the file-manager deployment.
func (b *Backend) ensureEnvironment(ctx context.Context, g *model.Graph) error {
	p := g.Project
	ns := naming.Namespace(p.ID)

	if _, err := b.client.CoreV1().Namespaces().Create(ctx, buildNamespace(p), metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return errors.Wrap(errors.Transient, err, "creating namespace %s", ns)
	}
	if _, err := b.client.NetworkingV1().NetworkPolicies(ns).Create(ctx, buildNetworkPolicy(p, b.cfg.Kubernetes), metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return errors.Wrap(errors.Transient, err, "creating network policy in %s", ns)
	}
	if _, err := b.client.CoreV1().PersistentVolumeClaims(ns).Create(ctx, buildPVC(p, b.cfg.Kubernetes, len(g.Containers)), metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return errors.Wrap(errors.Transient, err, "creating volume claim in %s", ns)
	}
	if err := b.copyTLSSecret(ctx, p); err != nil {
		return err
	}
	if err := b.applyDeployment(ctx, buildFileManager(p, b.cfg.Kubernetes)); err != nil {
		return err
	}
	return waitForDeployment(ctx, b.client, ns, constants.FileManagerName, b.cfg.Timeouts.PodReady)
}

// copyTLSSecret clones the platform wildcard certificate into the project
// namespace. It is the only secret that ever crosses into user namespaces;
// in particular object-store credentials are never copied.
func (b *Backend) copyTLSSecret(ctx context.Context, p *model.Project) error {
	name := b.cfg.Kubernetes.WildcardTLSSecret
	if name == "" {
		return nil
	}
	source, err := b.client.CoreV1().Secrets(b.cfg.Kubernetes.PlatformNamespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			log.Entry(ctx).Warnf("wildcard TLS secret %s missing; serving without TLS", name)
			return nil
		}
		return errors.Wrap(errors.Transient, err, "reading wildcard TLS secret")
	}
	_, err = b.client.CoreV1().Secrets(naming.Namespace(p.ID)).Create(ctx, buildTLSSecret(p, source), metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return errors.Wrap(errors.Transient, err, "copying TLS secret into %s", naming.Namespace(p.ID))
	}
	return nil
}

func (b *Backend) applyDeployment(ctx context.Context, dep *appsv1.Deployment) error {
	client := b.client.AppsV1().Deployments(dep.Namespace)
	if _, err := client.Create(ctx, dep, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return errors.Wrap(errors.Transient, err, "creating deployment %s/%s", dep.Namespace, dep.Name)
		}
		if _, err := client.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
			return errors.Wrap(errors.Transient, err, "updating deployment %s/%s", dep.Namespace, dep.Name)
		}
	}
	return nil
}

func (b *Backend) applyService(ctx context.Context, svc *corev1.Service) error {
	client := b.client.CoreV1().Services(svc.Namespace)
	if _, err := client.Create(ctx, svc, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return errors.Wrap(errors.Transient, err, "creating service %s/%s", svc.Namespace, svc.Name)
	}
	return nil
}

func (b *Backend) applyIngress(ctx context.Context, ing *networkingv1.Ingress) error {
	client := b.client.NetworkingV1().Ingresses(ing.Namespace)
	if _, err := client.Create(ctx, ing, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return errors.Wrap(errors.Transient, err, "creating ingress %s/%s", ing.Namespace, ing.Name)
		}
		if _, err := client.Update(ctx, ing, metav1.UpdateOptions{}); err != nil {
			return errors.Wrap(errors.Transient, err, "updating ingress %s/%s", ing.Namespace, ing.Name)
		}
	}
	return nil
}

// resolveManifests reads and validates the manifest of every base
// container out of the file-manager pod. A missing or rejected manifest
// yields the safe fallback.
func (b *Backend) resolveManifests(ctx context.Context, g *model.Graph, pod string) map[string]manifest.Manifest {
	ns := naming.Namespace(g.Project.ID)
	resolved := map[string]manifest.Manifest{}
	for _, c := range g.Containers {
		if c.Type != model.TypeBase {
			continue
		}
		rel := constants.DefaultManifestName
		if !c.RootDirectory() {
			rel = c.Directory + "/" + constants.DefaultManifestName
		}
		content, err := b.files.Read(ctx, ns, pod, rel)
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

// containerEnv composes the process environment for a base container: its
// own variables, the standard identity variables, and the expanded
// connection variables of every service it consumes. The {host}
// placeholder resolves to the target's namespace-local service name.
func (b *Backend) containerEnv(g *model.Graph, c *model.Container) ([]corev1.EnvVar, error) {
	env := map[string]string{}
	for k, v := range c.Env {
		env[k] = v
	}
	env[constants.EnvProjectID] = g.Project.ID
	env[constants.EnvContainerID] = c.ID
	env[constants.EnvContainerName] = c.Name

	for _, edge := range g.InboundEnvConnections(c.ID) {
		target := edge.Target
		if target.ServiceSlug == "" {
			continue
		}
		def, err := catalog.Get(target.ServiceSlug)
		if err != nil {
			return nil, err
		}
		expanded := def.Expand(catalog.ExpandInput{
			ServiceName: target.Name,
			Port:        target.InternalPort,
			Env:         target.Env,
			Credentials: edge.Connection.Config,
		})
		for k, v := range expanded {
			env[k] = v
		}
	}
	return envVars(env), nil
}

// applyGraph reconciles every container in the graph into deployments,
// services and ingresses.
func (b *Backend) applyGraph(ctx context.Context, g *model.Graph, resolved map[string]manifest.Manifest) error {
	multi := len(g.Containers) > 1
	for _, c := range g.Containers {
		if c.Type == model.TypeService && isExternal(c) {
			continue
		}
		if err := b.applyContainer(ctx, g, c, resolved, multi); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) applyContainer(ctx context.Context, g *model.Graph, c *model.Container, resolved map[string]manifest.Manifest, multi bool) error {
	p := g.Project
	switch c.Type {
	case model.TypeBase:
		m, ok := resolved[c.ID]
		if !ok {
			return errors.New(errors.NotFound, "no manifest resolved for container %s", c.Name)
		}
		env, err := b.containerEnv(g, c)
		if err != nil {
			return err
		}
		component := naming.DeploymentName(c.Directory)
		port := c.InternalPort
		if port == 0 {
			port = m.Port
		}
		if err := b.applyDeployment(ctx, buildDevDeployment(p, c, m, env, b.cfg.Kubernetes, multi)); err != nil {
			return err
		}
		if err := b.applyService(ctx, buildService(p, component, port)); err != nil {
			return err
		}
		return b.applyIngress(ctx, buildIngress(p, c, component, port, b.cfg))
	case model.TypeService:
		def, err := catalog.Get(c.ServiceSlug)
		if err != nil {
			return err
		}
		component := naming.SanitizeName(c.Name)
		if err := b.applyDeployment(ctx, buildServiceDeployment(p, c, def)); err != nil {
			return err
		}
		if err := b.applyService(ctx, buildService(p, component, def.InternalPort)); err != nil {
			return err
		}
		if def.Routable() {
			return b.applyIngress(ctx, buildIngress(p, c, component, def.InternalPort, b.cfg))
		}
	}
	return nil
}

func (b *Backend) StartProject(ctx context.Context, g *model.Graph, userID string) (*orchestrator.StartResult, error) {
	ctx = log.WithEventContext(ctx, constants.Start, g.Project.Slug)

	if g.Project.Status == model.EnvHibernated {
		if err := b.restore(ctx, g, userID); err != nil {
			return nil, err
		}
	}
	if err := b.ensureEnvironment(ctx, g); err != nil {
		return nil, err
	}

	ns := naming.Namespace(g.Project.ID)
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return nil, err
	}
	resolved := b.resolveManifests(ctx, g, pod)
	if err := b.applyGraph(ctx, g, resolved); err != nil {
		return nil, err
	}
	if err := b.scaleContainers(ctx, g, 1); err != nil {
		return nil, err
	}

	b.markContainers(ctx, g, model.StatusRunning)
	b.TrackActivity(ctx, userID, g.Project.ID)
	return &orchestrator.StartResult{Status: "started", URLs: b.projectURLs(g)}, nil
}

func (b *Backend) StopProject(ctx context.Context, projectSlug, projectID, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Stop, projectSlug)

	ns := naming.Namespace(projectID)
	deps, err := b.client.AppsV1().Deployments(ns).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", constants.Labels.ManagedBy, constants.Labels.ManagedByName),
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(errors.Transient, err, "listing deployments in %s", ns)
	}
	for i := range deps.Items {
		dep := &deps.Items[i]
		// The file-manager stays up so file access survives a stop.
		if dep.Name == constants.FileManagerName {
			continue
		}
		if err := b.scaleDeployment(ctx, ns, dep.Name, 0); err != nil {
			return err
		}
	}
	b.markProjectContainers(ctx, projectID, model.StatusStopped)
	return nil
}

func (b *Backend) RestartProject(ctx context.Context, g *model.Graph, userID string) (*orchestrator.StartResult, error) {
	ctx = log.WithEventContext(ctx, constants.Start, g.Project.Slug)

	if err := b.ensureEnvironment(ctx, g); err != nil {
		return nil, err
	}
	ns := naming.Namespace(g.Project.ID)
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return nil, err
	}
	resolved := b.resolveManifests(ctx, g, pod)
	if err := b.applyGraph(ctx, g, resolved); err != nil {
		return nil, err
	}
	// Recreate pods unconditionally: a restart usually follows a manifest
	// or graph change the running containers do not reflect.
	if err := b.client.CoreV1().Pods(ns).DeleteCollection(ctx, metav1.DeleteOptions{}, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s!=%s",
			constants.Labels.ManagedBy, constants.Labels.ManagedByName,
			constants.Labels.Component, constants.FileManagerName),
	}); err != nil && !apierrors.IsNotFound(err) {
		return nil, errors.Wrap(errors.Transient, err, "recreating pods in %s", ns)
	}
	if err := b.scaleContainers(ctx, g, 1); err != nil {
		return nil, err
	}

	b.markContainers(ctx, g, model.StatusRunning)
	b.TrackActivity(ctx, userID, g.Project.ID)
	return &orchestrator.StartResult{Status: "restarted", URLs: b.projectURLs(g)}, nil
}

func (b *Backend) scaleContainers(ctx context.Context, g *model.Graph, replicas int32) error {
	ns := naming.Namespace(g.Project.ID)
	for _, c := range g.Containers {
		if c.Type == model.TypeService && isExternal(c) {
			continue
		}
		if err := b.scaleDeployment(ctx, ns, componentName(c), replicas); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) scaleDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	client := b.client.AppsV1().Deployments(namespace)
	dep, err := client.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(errors.Transient, err, "reading deployment %s/%s", namespace, name)
	}
	if dep.Spec.Replicas != nil && *dep.Spec.Replicas == replicas {
		return nil
	}
	dep.Spec.Replicas = ptr.To(replicas)
	if _, err := client.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return errors.Wrap(errors.Transient, err, "scaling %s/%s to %d", namespace, name, replicas)
	}
	return nil
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
		if c.Type == model.TypeService && isExternal(c) {
			continue
		}
		state.Containers[c.Name] = b.containerState(ctx, projectSlug, projectID, c)
	}
	return state, nil
}

func (b *Backend) containerState(ctx context.Context, projectSlug, projectID string, c *model.Container) *orchestrator.ContainerState {
	state := &orchestrator.ContainerState{Status: model.StatusStopped, Replicas: 1}
	if b.routable(c) {
		state.URL = b.urls.ContainerURL(projectSlug, c.Directory)
	}

	dep, err := b.client.AppsV1().Deployments(naming.Namespace(projectID)).Get(ctx, componentName(c), metav1.GetOptions{})
	if err != nil {
		state.Status = model.StatusCreated
		state.Replicas = 0
		return state
	}
	if dep.Spec.Replicas != nil {
		state.Replicas = int(*dep.Spec.Replicas)
	}
	state.ReadyReplicas = int(dep.Status.ReadyReplicas)
	if state.ReadyReplicas > 0 {
		state.Status = model.StatusRunning
		state.Ready = true
	}
	return state
}

func (b *Backend) StartContainer(ctx context.Context, g *model.Graph, container *model.Container, userID string) (*orchestrator.ContainerResult, error) {
	ctx = log.WithEventContext(ctx, constants.Start, g.Project.Slug)

	if err := b.ensureEnvironment(ctx, g); err != nil {
		return nil, err
	}
	ns := naming.Namespace(g.Project.ID)
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return nil, err
	}
	resolved := b.resolveManifests(ctx, g, pod)
	if err := b.applyContainer(ctx, g, container, resolved, len(g.Containers) > 1); err != nil {
		return nil, err
	}
	if err := b.scaleDeployment(ctx, ns, componentName(container), 1); err != nil {
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

	c, err := b.findContainer(ctx, projectID, containerName)
	if err != nil {
		return err
	}
	if err := b.scaleDeployment(ctx, naming.Namespace(projectID), componentName(c), 0); err != nil {
		return err
	}
	if err := b.store.UpdateContainerStatus(ctx, c.ID, model.StatusStopped); err != nil {
		log.Entry(ctx).Warnf("recording container status: %v", err)
	}
	return nil
}

func (b *Backend) GetContainerStatus(ctx context.Context, projectSlug, projectID, containerName string) (*orchestrator.ContainerState, error) {
	c, err := b.findContainer(ctx, projectID, containerName)
	if err != nil {
		return nil, err
	}
	return b.containerState(ctx, projectSlug, projectID, c), nil
}

func (b *Backend) IsContainerReady(ctx context.Context, projectSlug, projectID, containerName string) (*orchestrator.ReadyStatus, error) {
	state, err := b.GetContainerStatus(ctx, projectSlug, projectID, containerName)
	if err != nil {
		return nil, err
	}
	if state.Ready {
		return &orchestrator.ReadyStatus{Ready: true, Message: "deployment has ready replicas"}, nil
	}
	return &orchestrator.ReadyStatus{Ready: false, Message: "deployment has no ready replicas"}, nil
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

// namespaceFor maps a slug onto the project's namespace. File and exec
// APIs address projects by slug; the namespace is keyed by id.
func (b *Backend) namespaceFor(ctx context.Context, projectSlug string) (string, *model.Project, error) {
	p, err := b.store.GetProjectBySlug(ctx, projectSlug)
	if err != nil {
		return "", nil, err
	}
	return naming.Namespace(p.ID), p, nil
}

func (b *Backend) ReadFile(ctx context.Context, userID, projectSlug, path string) ([]byte, error) {
	ns, p, err := b.namespaceFor(ctx, projectSlug)
	if err != nil {
		return nil, err
	}
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return nil, err
	}
	content, err := b.files.Read(ctx, ns, pod, path)
	if err != nil {
		return nil, err
	}
	b.TrackActivity(ctx, userID, p.ID)
	return content, nil
}

func (b *Backend) WriteFile(ctx context.Context, userID, projectSlug, path string, content []byte) error {
	ns, p, err := b.namespaceFor(ctx, projectSlug)
	if err != nil {
		return err
	}
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return err
	}
	if err := b.files.Write(ctx, ns, pod, path, content); err != nil {
		return err
	}
	b.TrackActivity(ctx, userID, p.ID)
	return nil
}

func (b *Backend) DeleteFile(ctx context.Context, userID, projectSlug, path string) error {
	ns, p, err := b.namespaceFor(ctx, projectSlug)
	if err != nil {
		return err
	}
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return err
	}
	if err := b.files.Delete(ctx, ns, pod, path); err != nil {
		return err
	}
	b.TrackActivity(ctx, userID, p.ID)
	return nil
}

func (b *Backend) ListFiles(ctx context.Context, userID, projectSlug, path string) ([]orchestrator.FileInfo, error) {
	ns, _, err := b.namespaceFor(ctx, projectSlug)
	if err != nil {
		return nil, err
	}
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return nil, err
	}
	return b.files.List(ctx, ns, pod, path)
}

func (b *Backend) GlobFiles(ctx context.Context, userID, projectSlug, pattern string) ([]string, error) {
	ns, _, err := b.namespaceFor(ctx, projectSlug)
	if err != nil {
		return nil, err
	}
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return nil, err
	}
	return b.files.Glob(ctx, ns, pod, pattern)
}

func (b *Backend) GrepFiles(ctx context.Context, userID, projectSlug, query, pathPrefix string) ([]orchestrator.GrepMatch, error) {
	ns, _, err := b.namespaceFor(ctx, projectSlug)
	if err != nil {
		return nil, err
	}
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return nil, err
	}
	return b.files.Grep(ctx, ns, pod, query, pathPrefix)
}

func (b *Backend) ExecuteCommand(ctx context.Context, userID, projectSlug, containerName string, argv []string, opts orchestrator.ExecOptions) (*orchestrator.ExecResult, error) {
	ctx = log.WithEventContext(ctx, constants.DevLoop, projectSlug)

	if len(argv) == 0 {
		return nil, errors.New(errors.Validation, "empty command")
	}
	// The same gate that screens manifest startup commands screens agent
	// execs; there is no fallback here, a blocked command is an error.
	if err := manifest.ValidateCommand(strings.Join(argv, " ")); err != nil {
		return nil, err
	}

	p, err := b.store.GetProjectBySlug(ctx, projectSlug)
	if err != nil {
		return nil, err
	}
	c, err := b.findContainer(ctx, p.ID, containerName)
	if err != nil {
		return nil, err
	}
	ns := naming.Namespace(p.ID)
	pod, err := componentPod(ctx, b.client, ns, componentName(c))
	if err != nil {
		return nil, err
	}

	workdir, err := workspacePath(opts.WorkingDir)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.cfg.Timeouts.Exec
	}
	if timeout > b.cfg.Timeouts.ExecCeiling {
		timeout = b.cfg.Timeouts.ExecCeiling
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	script := fmt.Sprintf("cd %s && %s", shellquote.Join(workdir), shellquote.Join(argv...))
	var stdout, stderr bytes.Buffer
	err = b.exec.ExecuteWithStreams(ctx, ns, pod.Name, "", nil, &stdout, &stderr, "sh", "-c", script)
	result := &orchestrator.ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr utilexec.CodeExitError
		if stderrors.As(err, &exitErr) {
			// The command ran and failed; that is a result, not an error.
			result.ExitCode = exitErr.Code
			b.TrackActivity(ctx, userID, p.ID)
			return result, nil
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.Timeout, err, "command timed out after %s", timeout)
		}
		return nil, errors.Wrap(errors.Transient, err, "executing in %s", containerName)
	}
	b.TrackActivity(ctx, userID, p.ID)
	return result, nil
}

// InitializeContainerFiles seeds a base container's directory by cloning
// its repository inside the file-manager pod, then installing dependencies
// for the detected ecosystem. Idempotent: a directory that already holds
// package.json plus at least minSeededFiles entries is left alone.
func (b *Backend) InitializeContainerFiles(ctx context.Context, g *model.Graph, container *model.Container, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Initialize, g.Project.Slug)

	if container.Type != model.TypeBase {
		return nil
	}
	base, err := b.store.GetBase(ctx, container.BaseID)
	if err != nil {
		return err
	}
	if base.GitRepoURL == "" {
		return errors.New(errors.Validation, "base %s has no repository URL", base.Slug)
	}
	if err := b.ensureEnvironment(ctx, g); err != nil {
		return err
	}
	ns := naming.Namespace(g.Project.ID)
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return err
	}

	target := constants.DefaultWorkdir
	if !container.RootDirectory() {
		target, err = workspacePath(container.Directory)
		if err != nil {
			return err
		}
	}

	if out, _, err := b.exec.Execute(ctx, ns, pod, "", "sh", "-c", seededCheckScript(target)); err == nil &&
		strings.TrimSpace(string(out)) == "seeded" {
		return nil
	}

	cloneCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeouts.GitClone)
	defer cancel()
	branch := base.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	script := fmt.Sprintf("mkdir -p %[1]s && git clone --depth 1 --single-branch --branch %[2]s %[3]s %[1]s && rm -rf %[1]s/.git",
		shellquote.Join(target), shellquote.Join(branch), shellquote.Join(base.GitRepoURL))
	if _, stderr, err := b.exec.Execute(cloneCtx, ns, pod, "", "sh", "-c", script); err != nil {
		return errors.Wrap(errors.Transient, err, "cloning base %s: %s", base.Slug, strings.TrimSpace(string(stderr)))
	}

	installCtx, cancelInstall := context.WithTimeout(ctx, b.cfg.Timeouts.GitClone)
	defer cancelInstall()
	if _, stderr, err := b.exec.Execute(installCtx, ns, pod, "", "sh", "-c", installScript(target)); err != nil {
		return errors.Wrap(errors.Transient, err, "installing dependencies for base %s: %s", base.Slug, strings.TrimSpace(string(stderr)))
	}
	log.Entry(ctx).Infof("seeded %s from base %s", container.Name, base.Slug)
	return nil
}

// minSeededFiles is the entry count below which a directory with a
// package.json is still treated as unseeded.
const minSeededFiles = 3

// seededCheckScript prints "seeded" when target already holds a
// package.json and at least minSeededFiles entries.
func seededCheckScript(target string) string {
	q := shellquote.Join(target)
	return fmt.Sprintf("[ -f %s/package.json ] && [ \"$(ls -A %s 2>/dev/null | wc -l)\" -ge %d ] && echo seeded",
		q, q, minSeededFiles)
}

// installScript runs the install command for each ecosystem marker found
// in target.
func installScript(target string) string {
	q := shellquote.Join(target)
	return fmt.Sprintf("cd %s"+
		" && if [ -f package.json ]; then npm install; fi"+
		" && if [ -f requirements.txt ]; then python3 -m venv venv && ./venv/bin/pip install -r requirements.txt; fi"+
		" && if [ -f go.mod ]; then go mod download; fi", q)
}

func (b *Backend) HibernateProject(ctx context.Context, g *model.Graph, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Hibernate, g.Project.Slug)
	return b.hibernate(ctx, g, userID)
}

func (b *Backend) hibernate(ctx context.Context, g *model.Graph, userID string) error {
	if b.archiver == nil {
		return errors.New(errors.Validation, "hibernation requires object storage")
	}
	ns := naming.Namespace(g.Project.ID)
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return err
	}

	zipPath, err := exportWorkspace(ctx, b.exec, ns, pod, true)
	if err != nil {
		return err
	}
	defer os.Remove(zipPath)

	f, err := os.Open(zipPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := b.archiver.UploadStream(ctx, userID, g.Project.ID, f); err != nil {
		return err
	}
	// Teardown only proceeds once the uploaded archive is confirmed
	// present and non-empty; deleting the namespace destroys the PVC and
	// with it the only other copy of the files.
	size, err := b.archiver.Size(ctx, userID, g.Project.ID)
	if err != nil {
		return err
	}
	if size == 0 {
		return errors.New(errors.DataIntegrity, "uploaded archive for project %s is empty, aborting teardown", g.Project.Slug)
	}

	if err := b.deleteNamespace(ctx, ns); err != nil {
		return err
	}
	now := time.Now()
	if err := b.store.UpdateProjectStatus(ctx, g.Project.ID, model.EnvHibernated, &now); err != nil {
		return err
	}
	b.activity.Forget(ctx, g.Project.ID)
	log.Entry(ctx).Infof("hibernated project %s (%d archive bytes)", g.Project.Slug, size)
	return nil
}

func (b *Backend) deleteNamespace(ctx context.Context, ns string) error {
	err := b.client.CoreV1().Namespaces().Delete(ctx, ns, metav1.DeleteOptions{
		PropagationPolicy: ptr.To(metav1.DeletePropagationForeground),
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(errors.Transient, err, "deleting namespace %s", ns)
	}
	return waitForNamespaceGone(ctx, b.client, ns, b.cfg.Timeouts.PodReady)
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

	if err := b.ensureEnvironment(ctx, g); err != nil {
		return err
	}
	ns := naming.Namespace(g.Project.ID)
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "studio-restore-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	tmp.Close()

	if err := b.archiver.Download(ctx, userID, g.Project.ID, tmp.Name()); err != nil {
		return err
	}
	if err := importWorkspace(ctx, b.exec, ns, pod, tmp.Name()); err != nil {
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
	ns := naming.Namespace(g.Project.ID)

	// The archive is preserved under the deleted/ prefix, exporting the
	// live workspace first when no archive exists yet. Failures here are
	// logged, not fatal: deletion must win over backup.
	if b.archiver != nil {
		exists, err := b.archiver.Exists(ctx, userID, g.Project.ID)
		if err == nil && !exists && g.Project.Status == model.EnvActive {
			if uploadErr := b.uploadLiveWorkspace(ctx, g, userID, ns); uploadErr != nil {
				log.Entry(ctx).Warnf("archiving project %s before delete: %v", g.Project.Slug, uploadErr)
			} else {
				exists = true
			}
		}
		if exists {
			if err := b.archiver.CopyToDeleted(ctx, userID, g.Project.ID); err != nil {
				log.Entry(ctx).Warnf("preserving archive for deleted project %s: %v", g.Project.Slug, err)
			}
		}
	}

	if err := b.deleteNamespace(ctx, ns); err != nil {
		return err
	}
	b.activity.Forget(ctx, g.Project.ID)
	return nil
}

func (b *Backend) uploadLiveWorkspace(ctx context.Context, g *model.Graph, userID, ns string) error {
	pod, err := b.filePod(ctx, ns)
	if err != nil {
		return err
	}
	zipPath, err := exportWorkspace(ctx, b.exec, ns, pod, true)
	if err != nil {
		return err
	}
	defer os.Remove(zipPath)
	f, err := os.Open(zipPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return b.archiver.UploadStream(ctx, userID, g.Project.ID, f)
}

func (b *Backend) TrackActivity(ctx context.Context, userID, projectID string) {
	b.activity.Touch(ctx, projectID)
	if err := b.store.TouchProjectActivity(ctx, projectID, time.Now()); err != nil {
		log.Entry(ctx).Debugf("recording activity for project %s: %v", projectID, err)
	}
}

// CleanupIdleEnvironments applies the single-tier kubernetes idle policy:
// idle projects are hibernated to object storage and their namespaces
// deleted. Without object storage they are only scaled to zero.
func (b *Backend) CleanupIdleEnvironments(ctx context.Context, idle time.Duration) ([]string, error) {
	ctx = log.WithEventContext(ctx, constants.Reap, constants.SubtaskNone)

	cutoff := time.Now().Add(-idle)
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

		if err := b.cleanupProject(ctx, p); err != nil {
			log.Entry(ctx).Warnf("cleaning up idle project %s: %v", p.Slug, err)
			continue
		}
		acted = append(acted, p.ID)
	}
	return acted, nil
}

func (b *Backend) cleanupProject(ctx context.Context, p *model.Project) error {
	defer b.locks.Lock(p.ID)()

	g, err := model.BuildGraph(ctx, b.store, p.ID)
	if err != nil {
		return err
	}
	if b.archiver == nil {
		if err := b.StopProject(ctx, p.Slug, p.ID, p.UserID); err != nil {
			return err
		}
		log.Entry(ctx).Infof("scaled down idle project %s", p.Slug)
		return nil
	}
	return b.hibernate(ctx, g, p.UserID)
}

// EnsureProjectDirectory is a no-op: the PVC owns the directory lifecycle
// and is created with the environment.
func (b *Backend) EnsureProjectDirectory(ctx context.Context, projectSlug string) error {
	return nil
}

func (b *Backend) ContainerURL(projectSlug, containerDirectory string) string {
	return b.urls.ContainerURL(projectSlug, containerDirectory)
}

// componentName maps a container onto its deployment and service name.
func componentName(c *model.Container) string {
	if c.Type == model.TypeBase {
		return naming.DeploymentName(c.Directory)
	}
	return naming.SanitizeName(c.Name)
}

func isExternal(c *model.Container) bool {
	if c.DeployMode == model.DeployExternal {
		return true
	}
	def, err := catalog.Get(c.ServiceSlug)
	return err == nil && def.Type == catalog.External
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
		if c.Type == model.TypeService && isExternal(c) {
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
