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
	"path/filepath"
	"testing"
	"time"

	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
	"github.com/TesslateAI/studio-core/testutil"
)

func TestHasRequiresANonEmptyEntry(t *testing.T) {
	root := t.TempDir()
	cache := New(root, "", "", time.Minute)

	if cache.Has("react-starter") {
		t.Error("missing entry reported as cached")
	}

	// An empty directory is a failed clone, not a cache hit.
	if err := os.MkdirAll(cache.Path("react-starter"), 0o755); err != nil {
		t.Fatal(err)
	}
	if cache.Has("react-starter") {
		t.Error("empty entry reported as cached")
	}

	if err := os.WriteFile(filepath.Join(cache.Path("react-starter"), "package.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !cache.Has("react-starter") {
		t.Error("populated entry not reported as cached")
	}
}

func TestSeedCopiesFromWarmCache(t *testing.T) {
	root := t.TempDir()
	cache := New(root, "", "", time.Minute)
	entry := cache.Path("react-starter")
	if err := os.MkdirAll(filepath.Join(entry, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(entry, "src", "main.tsx"), []byte("render()\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "workspace")
	err := cache.Seed(context.Background(), &model.MarketplaceBase{Slug: "react-starter"}, dst)

	testutil.CheckError(t, false, err)
	content, err := os.ReadFile(filepath.Join(dst, "src", "main.tsx"))
	testutil.CheckErrorAndDeepEqual(t, false, err, "render()\n", string(content))
}

func TestCopyTreeSkipsSymlinks(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "app.py"), []byte("print()\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/etc/passwd", filepath.Join(src, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "out")
	testutil.CheckError(t, false, CopyTree(src, dst))

	if _, err := os.Lstat(filepath.Join(dst, "link")); !os.IsNotExist(err) {
		t.Error("symlink must not be copied")
	}
	if _, err := os.Stat(filepath.Join(dst, "app.py")); err != nil {
		t.Errorf("regular file missing from copy: %v", err)
	}
}

func TestInstallRunsEcosystemPassesInThrowawayContainers(t *testing.T) {
	root := t.TempDir()
	cache := New(root, "tesslate-base-cache", "tesslate/dev-server:latest", time.Minute)
	entry := cache.Path("fullstack")
	for _, dir := range []string{entry, filepath.Join(entry, "frontend"), filepath.Join(entry, "backend")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for file, content := range map[string]string{
		"requirements.txt":      "flask\n",
		"frontend/package.json": "{}",
		"backend/go.mod":        "module backend\n",
	} {
		if err := os.WriteFile(filepath.Join(entry, file), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fake := testutil.NewFakeCmd().
		WithRun("docker run --rm -v tesslate-base-cache:/cache -w /cache/fullstack tesslate/dev-server:latest sh -c python3 -m venv venv && ./venv/bin/pip install -r requirements.txt", nil).
		WithRun("docker run --rm -v tesslate-base-cache:/cache -w /cache/fullstack/frontend tesslate/dev-server:latest sh -c npm install", nil).
		WithRun("docker run --rm -v tesslate-base-cache:/cache -w /cache/fullstack/backend tesslate/dev-server:latest sh -c go mod download", nil)
	old := util.DefaultExecCommand
	util.DefaultExecCommand = fake
	t.Cleanup(func() { util.DefaultExecCommand = old })

	testutil.CheckError(t, false, cache.install(context.Background(), "fullstack"))
	if !fake.Exhausted() {
		t.Error("expected an install container per detected ecosystem")
	}
}

func TestInstallSkippedWithoutVolume(t *testing.T) {
	root := t.TempDir()
	cache := New(root, "", "", time.Minute)
	entry := cache.Path("react-starter")
	if err := os.MkdirAll(entry, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(entry, "package.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	// No scripted commands: any docker invocation would fail the test.
	fake := testutil.NewFakeCmd()
	old := util.DefaultExecCommand
	util.DefaultExecCommand = fake
	t.Cleanup(func() { util.DefaultExecCommand = old })

	testutil.CheckError(t, false, cache.install(context.Background(), "react-starter"))
}
