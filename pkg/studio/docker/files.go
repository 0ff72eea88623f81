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
	"bufio"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/spf13/afero"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
)

const (
	maxGrepMatches  = 500
	maxGrepFileSize = 2 << 20 // 2 MiB; larger files are almost never source
)

// Files reads and writes project files on the shared projects volume. Every
// path is confined to the project's directory; traversal components are
// rejected, not cleaned away silently.
type Files struct {
	fs   afero.Fs
	root string
}

// NewFiles returns a file store over root (the mounted projects volume).
func NewFiles(fs afero.Fs, root string) *Files {
	return &Files{fs: fs, root: root}
}

// ProjectDir is the absolute directory of a project.
func (f *Files) ProjectDir(projectSlug string) string {
	return filepath.Join(f.root, projectSlug)
}

// resolve confines rel to the project directory. The empty path addresses
// the project root.
func (f *Files) resolve(projectSlug, rel string) (string, error) {
	rel = strings.TrimPrefix(strings.TrimSpace(rel), "/")
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return f.ProjectDir(projectSlug), nil
	}
	if strings.Contains(rel, "..") {
		return "", errors.New(errors.Validation, "path %q escapes the project directory", rel)
	}
	return filepath.Join(f.ProjectDir(projectSlug), filepath.FromSlash(clean[1:])), nil
}

// EnsureProjectDir creates the project directory.
func (f *Files) EnsureProjectDir(projectSlug string) error {
	if err := f.fs.MkdirAll(f.ProjectDir(projectSlug), 0o755); err != nil {
		return errors.Wrap(errors.Transient, err, "creating project directory for %s", projectSlug)
	}
	return nil
}

// RemoveProjectDir deletes the whole project directory. Idempotent.
func (f *Files) RemoveProjectDir(projectSlug string) error {
	if err := f.fs.RemoveAll(f.ProjectDir(projectSlug)); err != nil {
		return errors.Wrap(errors.Transient, err, "removing project directory for %s", projectSlug)
	}
	return nil
}

func (f *Files) Read(projectSlug, rel string) ([]byte, error) {
	full, err := f.resolve(projectSlug, rel)
	if err != nil {
		return nil, err
	}
	content, err := afero.ReadFile(f.fs, full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.NotFound, "file %q not found", rel)
		}
		return nil, errors.Wrap(errors.Transient, err, "reading %q", rel)
	}
	return content, nil
}

func (f *Files) Write(projectSlug, rel string, content []byte) error {
	full, err := f.resolve(projectSlug, rel)
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(errors.Transient, err, "creating parent directories for %q", rel)
	}
	if err := afero.WriteFile(f.fs, full, content, 0o644); err != nil {
		return errors.Wrap(errors.Transient, err, "writing %q", rel)
	}
	return nil
}

// Delete removes a file or directory tree. Missing targets are not an
// error: delete is idempotent.
func (f *Files) Delete(projectSlug, rel string) error {
	full, err := f.resolve(projectSlug, rel)
	if err != nil {
		return err
	}
	if full == f.ProjectDir(projectSlug) {
		return errors.New(errors.Validation, "refusing to delete the project root through the file API")
	}
	if err := f.fs.RemoveAll(full); err != nil {
		return errors.Wrap(errors.Transient, err, "deleting %q", rel)
	}
	return nil
}

// List returns the entries of one directory, sorted directories-first. Tool
// directories like node_modules are hidden.
func (f *Files) List(projectSlug, rel string) ([]orchestrator.FileInfo, error) {
	full, err := f.resolve(projectSlug, rel)
	if err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(f.fs, full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.NotFound, "directory %q not found", rel)
		}
		return nil, errors.Wrap(errors.Transient, err, "listing %q", rel)
	}

	base := strings.TrimPrefix(strings.TrimSpace(rel), "/")
	var out []orchestrator.FileInfo
	for _, e := range entries {
		if e.IsDir() && excludedDir(e.Name()) {
			continue
		}
		out = append(out, orchestrator.FileInfo{
			Name:    e.Name(),
			Path:    path.Join(base, e.Name()),
			Size:    e.Size(),
			IsDir:   e.IsDir(),
			ModTime: e.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Glob matches files under the project root against a doublestar pattern.
func (f *Files) Glob(projectSlug, pattern string) ([]string, error) {
	if strings.Contains(pattern, "..") {
		return nil, errors.New(errors.Validation, "pattern %q escapes the project directory", pattern)
	}
	pattern = strings.TrimPrefix(pattern, "/")
	if _, err := doublestar.Match(pattern, ""); err != nil {
		return nil, errors.New(errors.Validation, "invalid glob pattern %q", pattern)
	}

	var out []string
	root := f.ProjectDir(projectSlug)
	err := afero.Walk(f.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			if excludedDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.Transient, err, "globbing %q", pattern)
	}
	sort.Strings(out)
	return out, nil
}

// Grep scans text files under pathPrefix for lines containing query.
// Matching is a plain substring check; binaries and tool directories are
// skipped and the result set is capped.
func (f *Files) Grep(projectSlug, query, pathPrefix string) ([]orchestrator.GrepMatch, error) {
	if query == "" {
		return nil, errors.New(errors.Validation, "empty search query")
	}
	start, err := f.resolve(projectSlug, pathPrefix)
	if err != nil {
		return nil, err
	}

	root := f.ProjectDir(projectSlug)
	var out []orchestrator.GrepMatch
	err = afero.Walk(f.fs, start, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if len(out) >= maxGrepMatches {
			return filepath.SkipAll
		}
		if info.IsDir() {
			if excludedDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Size() > maxGrepFileSize || binaryFile(p) {
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		matches, scanErr := f.grepFile(p, filepath.ToSlash(rel), query, maxGrepMatches-len(out))
		if scanErr != nil {
			return nil
		}
		out = append(out, matches...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.Transient, err, "searching for %q", query)
	}
	return out, nil
}

func (f *Files) grepFile(full, rel, query string, limit int) ([]orchestrator.GrepMatch, error) {
	file, err := f.fs.Open(full)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []orchestrator.GrepMatch
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.Contains(text, query) {
			out = append(out, orchestrator.GrepMatch{Path: rel, Line: line, Text: text})
			if len(out) >= limit {
				break
			}
		}
	}
	return out, scanner.Err()
}

func excludedDir(name string) bool {
	for _, d := range constants.DirExcludes {
		if name == d {
			return true
		}
	}
	return false
}

func binaryFile(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, b := range constants.BinaryExtensions {
		if ext == b {
			return true
		}
	}
	return false
}
