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

// Package config holds the orchestrator process configuration, loaded from
// the environment (optionally seeded from a .env file) and validated once
// at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	studioerrors "github.com/TesslateAI/studio-core/pkg/studio/errors"
)

// DeploymentMode selects the orchestration backend.
type DeploymentMode string

const (
	ModeDocker     = DeploymentMode("docker")
	ModeKubernetes = DeploymentMode("kubernetes")
)

func (m DeploymentMode) Validate() error {
	switch m {
	case ModeDocker, ModeKubernetes:
		return nil
	default:
		return studioerrors.New(studioerrors.Validation, "invalid deployment mode %q (want %q or %q)", m, ModeDocker, ModeKubernetes)
	}
}

// S3Config configures the object-store archiver. Credentials stay in the
// orchestrator process and are never propagated to workload environments.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	ProjectsPrefix string
	AccessKeyID    string
	SecretKey      string
	ForcePathStyle bool
}

// KubernetesConfig configures the cluster backend.
type KubernetesConfig struct {
	Kubeconfig        string
	StorageClass      string
	PVCSize           string
	IngressClass      string
	IngressNamespace  string
	WildcardTLSSecret string
	PlatformNamespace string
	DevServerImage    string
}

// DockerConfig configures the compose backend.
type DockerConfig struct {
	ProjectsRoot       string
	ProjectsVolume     string
	BaseCacheVolume    string
	BaseCacheRoot      string
	ComposeDir         string
	RegionalComposeDir string
	DevServerImage     string
	ProxyImage         string
	EdgeProxyName      string
}

// Timeouts carries the operation budgets shared by both backends.
type Timeouts struct {
	Exec        time.Duration
	ExecCeiling time.Duration
	GitClone    time.Duration
	PodReady    time.Duration
	ProxyReady  time.Duration
	S3Connect   time.Duration
	S3Read      time.Duration
}

// Config is the process-wide orchestrator configuration.
type Config struct {
	DeploymentMode DeploymentMode
	AppDomain      string

	PostgresDSN string
	RedisAddr   string

	IdleTimeout       time.Duration
	HibernationIdle   time.Duration
	DockerDeleteAfter time.Duration
	ReaperSchedule    string
	TemplatesRoot     string

	S3         S3Config
	Docker     DockerConfig
	Kubernetes KubernetesConfig
	Timeouts   Timeouts
}

// Load reads configuration from a .env file (if present) and the
// environment, applying defaults for everything optional.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Absence of the file is fine; env vars may carry everything.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading env file %q: %w", envFile, err)
		}
	}

	cfg := &Config{
		DeploymentMode:    DeploymentMode(envOr("DEPLOYMENT_MODE", string(ModeDocker))),
		AppDomain:         envOr("APP_DOMAIN", "localhost"),
		PostgresDSN:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		IdleTimeout:       envMinutes("IDLE_TIMEOUT_MINUTES", 30),
		HibernationIdle:   envMinutes("HIBERNATION_IDLE_MINUTES", 30),
		DockerDeleteAfter: envMinutes("DOCKER_DELETE_AFTER_MINUTES", 24*60),
		ReaperSchedule:    envOr("REAPER_SCHEDULE", "@every 5m"),
		TemplatesRoot:     envOr("TEMPLATES_ROOT", constants.DefaultTemplatesRoot),
		S3: S3Config{
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			Region:         envOr("S3_REGION", "us-east-1"),
			Bucket:         os.Getenv("S3_BUCKET"),
			ProjectsPrefix: envOr("S3_PROJECTS_PREFIX", "projects"),
			AccessKeyID:    os.Getenv("S3_ACCESS_KEY_ID"),
			SecretKey:      os.Getenv("S3_SECRET_ACCESS_KEY"),
			ForcePathStyle: envBool("S3_FORCE_PATH_STYLE", true),
		},
		Docker: DockerConfig{
			ProjectsRoot:       envOr("PROJECTS_ROOT", constants.DefaultProjectsRoot),
			ProjectsVolume:     envOr("PROJECTS_VOLUME", constants.DefaultProjectsVolume),
			BaseCacheVolume:    envOr("BASE_CACHE_VOLUME", constants.DefaultBaseCacheVolume),
			BaseCacheRoot:      envOr("BASE_CACHE_ROOT", constants.DefaultBaseCacheRoot),
			ComposeDir:         envOr("COMPOSE_DIR", constants.DefaultComposeDir),
			RegionalComposeDir: envOr("REGIONAL_COMPOSE_DIR", constants.DefaultRegionalComposeDir),
			DevServerImage:     envOr("DEV_SERVER_IMAGE", "tesslate/dev-server:latest"),
			ProxyImage:         envOr("PROXY_IMAGE", "traefik:v3.1"),
			EdgeProxyName:      envOr("EDGE_PROXY_NAME", "tesslate-edge-proxy"),
		},
		Kubernetes: KubernetesConfig{
			Kubeconfig:        os.Getenv("KUBECONFIG"),
			StorageClass:      envOr("K8S_STORAGE_CLASS", "standard"),
			PVCSize:           envOr("K8S_PVC_SIZE", "2Gi"),
			IngressClass:      envOr("K8S_INGRESS_CLASS", "nginx"),
			IngressNamespace:  envOr("K8S_INGRESS_NAMESPACE", "ingress-nginx"),
			WildcardTLSSecret: os.Getenv("K8S_WILDCARD_TLS_SECRET"),
			PlatformNamespace: envOr("K8S_PLATFORM_NAMESPACE", "tesslate-system"),
			DevServerImage:    envOr("DEV_SERVER_IMAGE", "tesslate/dev-server:latest"),
		},
		Timeouts: Timeouts{
			Exec:        envSeconds("EXEC_TIMEOUT_SECONDS", 120),
			ExecCeiling: envSeconds("EXEC_TIMEOUT_CEILING_SECONDS", 300),
			GitClone:    envSeconds("GIT_CLONE_TIMEOUT_SECONDS", 300),
			PodReady:    envSeconds("POD_READY_TIMEOUT_SECONDS", 120),
			ProxyReady:  envSeconds("PROXY_READY_TIMEOUT_SECONDS", 10),
			S3Connect:   envSeconds("S3_CONNECT_TIMEOUT_SECONDS", 10),
			S3Read:      envSeconds("S3_READ_TIMEOUT_SECONDS", 120),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if err := c.DeploymentMode.Validate(); err != nil {
		return err
	}
	if c.AppDomain == "" {
		return studioerrors.New(studioerrors.Validation, "APP_DOMAIN must be set")
	}
	if c.DeploymentMode == ModeKubernetes && c.S3.Bucket == "" {
		return studioerrors.New(studioerrors.Validation, "S3_BUCKET must be set in kubernetes mode: hibernation requires object storage")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envMinutes(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Minute
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
