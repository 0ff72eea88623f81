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

package initializer

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

var (
	viteServerBlock = regexp.MustCompile(`(?m)^(\s*)server:\s*\{`)
	nextDevScript   = regexp.MustCompile(`"dev"\s*:\s*"next dev(?: [^"]*)?"`)
)

// patchDevServerBinding rewrites the dev-server configuration of a cloned
// repository so it binds all interfaces instead of localhost; containers
// are unreachable otherwise. Every rewrite is best-effort: a repo the
// patcher does not understand is imported unchanged.
func patchDevServerBinding(ctx context.Context, dir string) {
	for _, name := range []string{"vite.config.ts", "vite.config.js", "vite.config.mts", "vite.config.mjs"} {
		if err := patchViteConfig(filepath.Join(dir, name)); err != nil {
			log.Entry(ctx).Debugf("patching %s: %v", name, err)
		}
	}
	if err := patchNextScripts(filepath.Join(dir, "package.json")); err != nil {
		log.Entry(ctx).Debugf("patching package.json: %v", err)
	}
}

func patchViteConfig(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	text := string(content)
	if strings.Contains(text, "host:") {
		return nil
	}
	if viteServerBlock.MatchString(text) {
		text = viteServerBlock.ReplaceAllString(text, "${1}server: {\n${1}  host: true,")
	} else if strings.Contains(text, "defineConfig({") {
		text = strings.Replace(text, "defineConfig({",
			"defineConfig({\n  server: { host: true },", 1)
	} else {
		return nil
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func patchNextScripts(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	text := string(content)
	if !nextDevScript.MatchString(text) || strings.Contains(text, "-H 0.0.0.0") {
		return nil
	}
	text = nextDevScript.ReplaceAllString(text, `"dev": "next dev -H 0.0.0.0"`)
	return os.WriteFile(path, []byte(text), 0o644)
}
