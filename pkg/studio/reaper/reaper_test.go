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

package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/testutil"
)

// sweepBackend implements only the sweep; every other call is unexpected.
type sweepBackend struct {
	orchestrator.Orchestrator

	idle      time.Duration
	reclaimed []string
	err       error
}

func (s *sweepBackend) CleanupIdleEnvironments(_ context.Context, idle time.Duration) ([]string, error) {
	s.idle = idle
	return s.reclaimed, s.err
}

func testConfig(mode config.DeploymentMode) *config.Config {
	return &config.Config{
		DeploymentMode:  mode,
		IdleTimeout:     30 * time.Minute,
		HibernationIdle: 2 * time.Hour,
		ReaperSchedule:  "@every 5m",
	}
}

func TestRunOncePassesIdleBudget(t *testing.T) {
	backend := &sweepBackend{reclaimed: []string{"p1", "p2"}}
	r := New(backend, testConfig(config.ModeDocker))

	err := r.RunOnce(context.Background())

	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, 30*time.Minute, backend.idle)
}

func TestKubernetesModeUsesHibernationIdle(t *testing.T) {
	backend := &sweepBackend{}
	r := New(backend, testConfig(config.ModeKubernetes))

	err := r.RunOnce(context.Background())

	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, 2*time.Hour, backend.idle)
}

func TestRunOnceSurfacesSweepErrors(t *testing.T) {
	backend := &sweepBackend{err: errors.New(errors.Transient, "store unavailable")}
	r := New(backend, testConfig(config.ModeDocker))

	testutil.CheckError(t, true, r.RunOnce(context.Background()))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(config.ModeDocker)
	cfg.ReaperSchedule = "every five minutes"
	r := New(&sweepBackend{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	testutil.CheckError(t, true, r.Start(ctx))
}
