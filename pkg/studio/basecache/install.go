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

package basecache

import (
	"context"
	"os"
	"os/exec"
	"path"
	"path/filepath"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
)

// installSteps maps ecosystem marker files onto the install command run
// when the marker is present in a directory.
var installSteps = []struct {
	marker  string
	command string
}{
	{"package.json", "npm install"},
	{"requirements.txt", "python3 -m venv venv && ./venv/bin/pip install -r requirements.txt"},
	{"go.mod", "go mod download"},
}

// installSubdirs are the multi-directory layouts handled on top of the
// repository root.
var installSubdirs = []string{"frontend", "backend"}

// install pre-pays dependency cold-start for a cached base: for each
// ecosystem marker found it runs the install command inside a throwaway
// container that mounts the cache volume. Skipped when the cache has no
// volume or image configured.
func (c *Cache) install(ctx context.Context, baseSlug string) error {
	if c.volume == "" || c.installImage == "" {
		return nil
	}
	dirs := []string{""}
	for _, sub := range installSubdirs {
		if info, err := os.Stat(filepath.Join(c.Path(baseSlug), sub)); err == nil && info.IsDir() {
			dirs = append(dirs, sub)
		}
	}
	for _, dir := range dirs {
		if err := c.installDir(ctx, baseSlug, dir); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) installDir(ctx context.Context, baseSlug, rel string) error {
	local := filepath.Join(c.Path(baseSlug), rel)
	for _, step := range installSteps {
		if _, err := os.Stat(filepath.Join(local, step.marker)); err != nil {
			continue
		}
		cmd := exec.CommandContext(ctx, "docker", "run", "--rm",
			"-v", c.volume+":/cache",
			"-w", path.Join("/cache", baseSlug, rel),
			c.installImage, "sh", "-c", step.command)
		if err := util.RunCmd(ctx, cmd); err != nil {
			return errors.Wrap(errors.Transient, err, "install pass (%s) for base %s", step.marker, baseSlug)
		}
	}
	return nil
}
