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

// Package factory assembles the orchestrator and its collaborators from
// configuration: the deployment backend, the project store, the activity
// tracker and the workspace archiver.
package factory

import (
	"context"
	"sync"

	"github.com/TesslateAI/studio-core/pkg/studio/activity"
	"github.com/TesslateAI/studio-core/pkg/studio/archive"
	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/docker"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/kubernetes"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// Runtime carries the assembled components. Close releases what holds
// connections.
type Runtime struct {
	Config       *config.Config
	Store        model.Store
	Activity     activity.Store
	Archiver     *archive.Archiver
	Orchestrator orchestrator.Orchestrator
}

func (r *Runtime) Close() error {
	if closer, ok := r.Store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

var (
	cacheMu sync.Mutex
	cached  *Runtime
)

// Get returns the process-wide Runtime, building it on first use. Every
// caller shares one backend so the per-project locks actually serialize.
func Get(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached != nil {
		return cached, nil
	}
	runtime, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cached = runtime
	return cached, nil
}

// Reset drops the cached Runtime. For testing.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cached = nil
}

// New builds a Runtime for cfg. The orchestrator is wrapped so lifecycle
// operations on one project never interleave.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	act := newActivityStore(ctx, cfg)

	var archiver *archive.Archiver
	if cfg.S3.Bucket != "" {
		if archiver, err = archive.New(ctx, cfg.S3, cfg.Timeouts); err != nil {
			return nil, err
		}
	} else {
		log.Entry(ctx).Warnf("no S3 bucket configured; hibernation and archival are disabled")
	}

	locks := orchestrator.NewProjectLocker()
	backend, err := newBackend(ctx, cfg, store, act, archiver, locks)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config:       cfg,
		Store:        store,
		Activity:     act,
		Archiver:     archiver,
		Orchestrator: orchestrator.WithProjectLocks(backend, locks),
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (model.Store, error) {
	if cfg.PostgresDSN == "" {
		log.Entry(ctx).Warnf("no DATABASE_URL configured; using the in-memory project store")
		return model.NewMemoryStore(), nil
	}
	return model.NewPostgresStore(ctx, cfg.PostgresDSN)
}

func newActivityStore(ctx context.Context, cfg *config.Config) activity.Store {
	if cfg.RedisAddr == "" {
		log.Entry(ctx).Debugf("no REDIS_ADDR configured; tracking activity in memory")
		return activity.NewMemoryStore()
	}
	return activity.NewRedisStore(cfg.RedisAddr)
}

func newBackend(ctx context.Context, cfg *config.Config, store model.Store, act activity.Store, archiver *archive.Archiver, locks *orchestrator.ProjectLocker) (orchestrator.Orchestrator, error) {
	switch cfg.DeploymentMode {
	case config.ModeDocker:
		return docker.NewBackend(ctx, cfg, store, act, archiver, locks)
	case config.ModeKubernetes:
		if archiver == nil {
			return nil, errors.New(errors.Validation, "kubernetes mode requires S3 archival for hibernation")
		}
		return kubernetes.NewBackend(ctx, cfg, store, act, archiver, locks)
	default:
		return nil, errors.New(errors.Validation, "unknown deployment mode %q", cfg.DeploymentMode)
	}
}
