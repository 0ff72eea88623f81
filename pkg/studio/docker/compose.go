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
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/TesslateAI/studio-core/pkg/studio/catalog"
	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/manifest"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/naming"
)

// The compose file is derived state: it is regenerated from the project
// graph on every start and never read back or edited in place.

type composeFile struct {
	Services map[string]*composeService `yaml:"services"`
	Networks map[string]*composeNetwork `yaml:"networks"`
	Volumes  map[string]*composeVolume  `yaml:"volumes,omitempty"`
}

type composeService struct {
	Image string `yaml:"image"`
	// ContainerName pins the container to the service name so the backend
	// can address it directly, instead of compose's project_service_index
	// scheme.
	ContainerName string            `yaml:"container_name"`
	User          string            `yaml:"user,omitempty"`
	WorkingDir    string            `yaml:"working_dir,omitempty"`
	Command       []string          `yaml:"command,omitempty"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	Networks      []string          `yaml:"networks"`
	Volumes       []composeMount    `yaml:"volumes,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
	ExtraHosts    []string          `yaml:"extra_hosts,omitempty"`
	Restart       string            `yaml:"restart,omitempty"`
}

type composeMount struct {
	Type     string              `yaml:"type"`
	Source   string              `yaml:"source"`
	Target   string              `yaml:"target"`
	Volume   *composeMountVolume `yaml:"volume,omitempty"`
	ReadOnly bool                `yaml:"read_only,omitempty"`
}

type composeMountVolume struct {
	// Subpath mounts only a subtree of the named volume, so each workload
	// sees nothing outside its own project directory.
	Subpath string `yaml:"subpath,omitempty"`
}

type composeNetwork struct {
	External bool   `yaml:"external,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Driver   string `yaml:"driver,omitempty"`
}

type composeVolume struct {
	External bool   `yaml:"external,omitempty"`
	Name     string `yaml:"name,omitempty"`
}

// generateCompose renders the whole project graph as a compose document.
// resolved maps container id to its validated manifest (startup command and
// port); only base containers need an entry. region is the regional proxy
// this project is assigned to; it becomes a label the proxy's provider
// constraint filters on.
func generateCompose(cfg *config.Config, g *model.Graph, resolved map[string]manifest.Manifest, region string) ([]byte, error) {
	projectSlug := g.Project.Slug
	projectNetwork := naming.ProjectNetwork(projectSlug)
	multi := len(g.Containers) > 1

	doc := &composeFile{
		Services: map[string]*composeService{},
		Networks: map[string]*composeNetwork{
			// The project network is created (and its regional proxy
			// connected) before compose up; compose never owns it.
			"project": {External: true, Name: projectNetwork},
		},
		Volumes: map[string]*composeVolume{
			"projects": {External: true, Name: cfg.Docker.ProjectsVolume},
		},
	}

	for _, c := range g.Containers {
		if c.Type == model.TypeService && isExternalService(c) {
			continue
		}
		var svc *composeService
		var err error
		switch c.Type {
		case model.TypeBase:
			m, ok := resolved[c.ID]
			if !ok {
				return nil, errors.New(errors.Validation, "no resolved manifest for container %q", c.Name)
			}
			svc, err = baseService(cfg, g, c, m, multi, region)
		case model.TypeService:
			svc, err = catalogService(cfg, g, c, region)
		default:
			err = errors.New(errors.Validation, "container %q has unknown type %q", c.Name, c.Type)
		}
		if err != nil {
			return nil, err
		}
		doc.Services[naming.ComposeServiceName(projectSlug, c.Name)] = svc
	}

	return yaml.Marshal(doc)
}

func isExternalService(c *model.Container) bool {
	if c.DeployMode == model.DeployExternal {
		return true
	}
	def, err := catalog.Get(c.ServiceSlug)
	return err == nil && def.Type == catalog.External
}

func baseService(cfg *config.Config, g *model.Graph, c *model.Container, m manifest.Manifest, multi bool, region string) (*composeService, error) {
	projectSlug := g.Project.Slug

	workingDir := constants.DefaultWorkdir
	subpath := projectSlug
	if multi && !c.RootDirectory() {
		subpath = fmt.Sprintf("%s/%s", projectSlug, c.Directory)
	}

	port := c.InternalPort
	if port == 0 {
		port = m.Port
	}

	env, err := containerEnv(g, c)
	if err != nil {
		return nil, err
	}

	return &composeService{
		Image:         cfg.Docker.DevServerImage,
		ContainerName: naming.ComposeServiceName(projectSlug, c.Name),
		User:          "1000:1000",
		WorkingDir:    workingDir,
		Command:       []string{"/bin/sh", "-c", m.StartCommand},
		Environment:   env,
		Networks:      []string{"project"},
		Volumes: []composeMount{{
			Type:   "volume",
			Source: "projects",
			Target: constants.DefaultWorkdir,
			Volume: &composeMountVolume{Subpath: subpath},
		}},
		Labels:     routingLabels(cfg, g, c, port, region),
		ExtraHosts: pinnedHosts(),
		Restart:    "unless-stopped",
	}, nil
}

func catalogService(cfg *config.Config, g *model.Graph, c *model.Container, region string) (*composeService, error) {
	def, err := catalog.Get(c.ServiceSlug)
	if err != nil {
		return nil, err
	}

	env := map[string]string{}
	for k, v := range def.DefaultEnv {
		env[k] = v
	}
	for k, v := range c.Env {
		env[k] = v
	}

	svc := &composeService{
		Image:         def.Image,
		ContainerName: naming.ComposeServiceName(g.Project.Slug, c.Name),
		Environment:   env,
		Networks:      []string{"project"},
		Restart:       "unless-stopped",
	}

	for i, path := range def.VolumePaths {
		svc.Volumes = append(svc.Volumes, composeMount{
			Type:   "volume",
			Source: "projects",
			Target: path,
			Volume: &composeMountVolume{
				Subpath: fmt.Sprintf("%s/.services/%s/%d", g.Project.Slug, naming.SanitizeName(c.Name), i),
			},
		})
	}

	// Only proxy, storage and search services are reachable from outside.
	if def.Routable() {
		svc.Labels = routingLabels(cfg, g, c, def.InternalPort, region)
	}
	return svc, nil
}

// containerEnv composes the process environment for a base container: its
// own variables, the orchestrator identity variables, and the expanded
// connection templates of every inbound env_injection edge.
func containerEnv(g *model.Graph, c *model.Container) (map[string]string, error) {
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
			ServiceName: naming.ComposeServiceName(g.Project.Slug, target.Name),
			Port:        target.InternalPort,
			Env:         target.Env,
			Credentials: edge.Connection.Config,
		})
		for k, v := range expanded {
			env[k] = v
		}
	}
	return env, nil
}

// routingLabels produce the traefik rule the assigned regional proxy routes
// by. The region label matches the proxy's provider constraint, so each
// proxy only programs routes for its own projects.
func routingLabels(cfg *config.Config, g *model.Graph, c *model.Container, port int, region string) map[string]string {
	router := naming.ComposeServiceName(g.Project.Slug, c.Name)
	host := naming.Hostname(g.Project.Slug, c.Directory, cfg.AppDomain)
	return map[string]string{
		"traefik.enable": "true",
		fmt.Sprintf("traefik.http.routers.%s.rule", router):                      fmt.Sprintf("Host(`%s`)", host),
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", router): fmt.Sprintf("%d", port),
		constants.Labels.ManagedBy:                                               constants.Labels.ManagedByName,
		constants.Labels.ProjectID:                                               g.Project.ID,
		constants.Labels.ProjectSlug:                                             g.Project.Slug,
		constants.Labels.ContainerID:                                             c.ID,
		constants.Labels.UserID:                                                  g.Project.UserID,
		constants.Labels.Region:                                                  region,
	}
}

// pinnedHosts maps internal platform hostnames to loopback inside every
// workload container, cutting off SSRF by name.
func pinnedHosts() []string {
	hosts := make([]string, len(constants.InternalHostnames))
	for i, name := range constants.InternalHostnames {
		hosts[i] = fmt.Sprintf("%s:127.0.0.1", name)
	}
	sort.Strings(hosts)
	return hosts
}
