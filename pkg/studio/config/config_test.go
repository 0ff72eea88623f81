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

package config

import (
	"testing"
	"time"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/testutil"
)

func TestLoadDefaults(t *testing.T) {
	reset := testutil.SetEnvs(t, map[string]string{
		"DEPLOYMENT_MODE": "",
		"APP_DOMAIN":      "",
		"S3_BUCKET":       "",
	})
	defer reset(t)

	cfg, err := Load("")
	testutil.CheckError(t, false, err)

	testutil.CheckDeepEqual(t, ModeDocker, cfg.DeploymentMode)
	testutil.CheckDeepEqual(t, "localhost", cfg.AppDomain)
	testutil.CheckDeepEqual(t, 30*time.Minute, cfg.IdleTimeout)
	testutil.CheckDeepEqual(t, 120*time.Second, cfg.Timeouts.Exec)
	testutil.CheckDeepEqual(t, "/projects", cfg.Docker.ProjectsRoot)
}

func TestLoadInvalidMode(t *testing.T) {
	reset := testutil.SetEnvs(t, map[string]string{"DEPLOYMENT_MODE": "swarm"})
	defer reset(t)

	_, err := Load("")
	testutil.CheckError(t, true, err)
	if !errors.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestKubernetesModeRequiresBucket(t *testing.T) {
	reset := testutil.SetEnvs(t, map[string]string{
		"DEPLOYMENT_MODE": "kubernetes",
		"S3_BUCKET":       "",
	})
	defer reset(t)

	_, err := Load("")
	testutil.CheckError(t, true, err)
}

func TestKubernetesModeWithBucket(t *testing.T) {
	reset := testutil.SetEnvs(t, map[string]string{
		"DEPLOYMENT_MODE": "kubernetes",
		"S3_BUCKET":       "studio-archives",
	})
	defer reset(t)

	cfg, err := Load("")
	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, ModeKubernetes, cfg.DeploymentMode)
	testutil.CheckDeepEqual(t, "studio-archives", cfg.S3.Bucket)
}
