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

package constants

import (
	"github.com/sirupsen/logrus"
)

const (
	// DefaultLogLevel is the default global verbosity
	DefaultLogLevel = logrus.InfoLevel

	// DefaultManifestName is the per-project manifest file the orchestrator
	// reads the startup command and dev-server port from.
	DefaultManifestName = "TESSLATE.md"

	// DefaultProjectsRoot is where the shared projects volume is mounted in
	// the orchestrator process (docker mode).
	DefaultProjectsRoot = "/projects"

	// DefaultWorkdir is where a project's files are mounted inside every
	// workload container, on both backends.
	DefaultWorkdir = "/app"

	// DefaultProjectsVolume is the named volume shared between the
	// orchestrator and all workload containers in docker mode.
	DefaultProjectsVolume = "tesslate-projects-data"

	// DefaultBaseCacheVolume holds pre-cloned marketplace templates.
	DefaultBaseCacheVolume = "tesslate-base-cache"

	// DefaultBaseCacheRoot is where the base-cache volume is mounted in the
	// orchestrator process.
	DefaultBaseCacheRoot = "/base-cache"

	// DefaultTemplatesRoot holds the in-repo project templates new projects
	// can be seeded from.
	DefaultTemplatesRoot = "/templates"

	// DefaultComposeDir holds generated per-project compose files.
	DefaultComposeDir = "docker-compose-projects"

	// DefaultRegionalComposeDir holds generated regional proxy compose files.
	DefaultRegionalComposeDir = "docker-compose-regional-traefiks"

	// ProjectNetworkPrefix prefixes the per-project bridge network name.
	ProjectNetworkPrefix = "tesslate-"

	// RegionalProxyNetwork is the network shared by all regional proxies and
	// every project container, so that HTTP can flow edge -> regional -> workload.
	RegionalProxyNetwork = "tesslate-regional-proxy"

	// ProjectsPerRegionalProxy caps how many project networks a single
	// regional proxy joins. Docker enforces a hard per-container limit of
	// roughly a thousand networks; 250 leaves headroom.
	ProjectsPerRegionalProxy = 250

	// FileManagerName is the always-on deployment in every project namespace
	// that hosts file I/O and git operations (kubernetes mode).
	FileManagerName = "file-manager"

	// DevDeploymentPrefix prefixes per-container deployment names.
	DevDeploymentPrefix = "dev-"

	// NamespacePrefix prefixes per-project namespaces.
	NamespacePrefix = "proj-"

	// DNSLabelMaxLength is the RFC-1123 limit for a single DNS label.
	DNSLabelMaxLength = 63

	// MaxSlugBaseLength bounds the human part of a generated slug, before
	// the hash suffix is appended.
	MaxSlugBaseLength = 50

	// SlugSuffixLength is the length of the base36 hash suffix.
	SlugSuffixLength = 6

	// SlugInsertRetries bounds slug regeneration on insert collision.
	SlugInsertRetries = 10

	// MaxStartupCommandLength rejects oversize manifest commands outright.
	MaxStartupCommandLength = 10000

	// DeletedArchivePrefix is the object-store prefix for soft-deleted
	// project archives, kept separate for independent retention.
	DeletedArchivePrefix = "deleted"

	// ArchiveObjectName is the fixed object name of a project archive.
	ArchiveObjectName = "latest.zip"
)

// Environment variables injected into every workload container.
const (
	EnvProjectID     = "PROJECT_ID"
	EnvContainerID   = "CONTAINER_ID"
	EnvContainerName = "CONTAINER_NAME"
)

// Internal infrastructure hostnames pinned to 127.0.0.1 inside workload
// containers so untrusted code cannot reach platform services by name.
var InternalHostnames = []string{
	"tesslate-orchestrator",
	"tesslate-postgres",
	"tesslate-redis",
	"postgres",
	"redis",
}

// Phase is a high-level orchestration task used to tag log entries.
type Phase string

const (
	Provision   = Phase("Provision")
	Start       = Phase("Start")
	Stop        = Phase("Stop")
	FileIO      = Phase("FileIO")
	Hibernate   = Phase("Hibernate")
	Restore     = Phase("Restore")
	Initialize  = Phase("Initialize")
	Reap        = Phase("Reap")
	Cleanup     = Phase("Cleanup")
	DevLoop     = Phase("DevLoop")
	SubtaskNone = "-1"
)

// Labels applied to every resource the orchestrator creates so that orphans
// are recognizable during cleanup.
var Labels = struct {
	ManagedBy     string
	ManagedByName string
	ProjectID     string
	ProjectSlug   string
	ContainerID   string
	UserID        string
	Component     string
	Region        string
}{
	ManagedBy:     "tesslate.ai/managed-by",
	ManagedByName: "studio-orchestrator",
	ProjectID:     "tesslate.ai/project-id",
	ProjectSlug:   "tesslate.ai/project-slug",
	ContainerID:   "tesslate.ai/container-id",
	UserID:        "tesslate.ai/user-id",
	Component:     "tesslate.ai/component",
	Region:        "tesslate.ai/region",
}

// DirExcludes are directory names skipped by file listing, glob and grep.
var DirExcludes = []string{
	"node_modules", ".git", "__pycache__", ".next", "dist", "build",
	".venv", "venv", ".cache", ".turbo", "coverage", ".nyc_output",
}

// ArchiveExcludes are glob patterns always excluded from project archives.
var ArchiveExcludes = []string{
	".git/*", "__pycache__/*", "*.pyc", ".DS_Store", "*.log",
}

// BinaryExtensions are never grepped.
var BinaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".ico", ".pdf", ".zip", ".tar",
	".gz", ".woff", ".woff2", ".ttf", ".eot", ".mp4", ".mp3", ".so",
	".dylib", ".dll", ".exe", ".bin", ".wasm",
}
