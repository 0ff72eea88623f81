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

// Package reaper periodically reclaims idle project environments. On
// docker it stops containers past the idle timeout; on kubernetes it
// hibernates whole namespaces to object storage.
package reaper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// Reaper sweeps idle environments on a cron schedule.
type Reaper struct {
	backend  orchestrator.Orchestrator
	schedule string
	idle     time.Duration

	cron *cron.Cron
}

// New builds a Reaper from the configured schedule and the idle budget
// matching the deployment mode.
func New(backend orchestrator.Orchestrator, cfg *config.Config) *Reaper {
	idle := cfg.IdleTimeout
	if cfg.DeploymentMode == config.ModeKubernetes {
		idle = cfg.HibernationIdle
	}
	return &Reaper{
		backend:  backend,
		schedule: cfg.ReaperSchedule,
		idle:     idle,
	}
}

// Start registers the sweep with a cron runner and begins scheduling.
// The sweep stops when ctx is canceled.
func (r *Reaper) Start(ctx context.Context) error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.RunOnce(ctx); err != nil {
			log.Entry(ctx).Warnf("idle sweep: %v", err)
		}
	}); err != nil {
		return err
	}
	r.cron.Start()

	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
	}()

	log.Entry(ctx).Infof("reaping idle environments every %q after %v idle", r.schedule, r.idle)
	return nil
}

// RunOnce performs a single sweep.
func (r *Reaper) RunOnce(ctx context.Context) error {
	ctx = log.WithEventContext(ctx, constants.Reap, constants.SubtaskNone)
	start := time.Now()

	reclaimed, err := r.backend.CleanupIdleEnvironments(ctx, r.idle)
	if err != nil {
		return err
	}
	if len(reclaimed) > 0 {
		log.Entry(ctx).Infof("reclaimed %d idle environment(s) in %v: %v", len(reclaimed), time.Since(start).Truncate(time.Millisecond), reclaimed)
	} else {
		log.Entry(ctx).Debugf("no idle environments found in %v", time.Since(start).Truncate(time.Millisecond))
	}
	return nil
}
