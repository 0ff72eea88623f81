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

package kubernetes

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
	shellquote "github.com/kballard/go-shellquote"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
)

const maxGrepMatches = 500

// Files implements the project file API by exec'ing into the namespace's
// file-manager pod. Every command sticks to what BusyBox ships, since the
// dev-server image carries no coreutils.
type Files struct {
	exec PodExecutor
}

// NewFiles returns a file API bound to the given executor.
func NewFiles(exec PodExecutor) *Files {
	return &Files{exec: exec}
}

func (f *Files) run(ctx context.Context, namespace, pod, script string, stdin []byte) ([]byte, []byte, error) {
	command := []string{"sh", "-c", script}
	if stdin != nil {
		var stdout, stderr bytes.Buffer
		err := f.exec.ExecuteWithStreams(ctx, namespace, pod, "", bytes.NewReader(stdin), &stdout, &stderr, command...)
		return stdout.Bytes(), stderr.Bytes(), err
	}
	return f.exec.Execute(ctx, namespace, pod, "", command...)
}

// Read returns a file's contents. The pod encodes them as base64 so the
// bytes survive the exec stream untouched.
func (f *Files) Read(ctx context.Context, namespace, pod, filePath string) ([]byte, error) {
	target, err := workspacePath(filePath)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf("base64 < %s", shellquote.Join(target))
	stdout, stderr, err := f.run(ctx, namespace, pod, script, nil)
	if err != nil {
		if isNoSuchFile(stderr) {
			return nil, errors.New(errors.NotFound, "file %s not found", filePath)
		}
		return nil, errors.Wrap(errors.Transient, err, "reading %s", filePath)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(stdout)))
	if err != nil {
		return nil, errors.Wrap(errors.Transient, err, "decoding %s", filePath)
	}
	return decoded, nil
}

// Write stores content at path, creating parent directories. The bytes
// cross the exec stream as a single-entry tar, which keeps binary content
// intact and lets tar create the missing parents on extraction.
func (f *Files) Write(ctx context.Context, namespace, pod, filePath string, content []byte) error {
	target, err := workspacePath(filePath)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := util.CreateSingleFileTar(&buf, strings.TrimPrefix(target, "/"), content); err != nil {
		return errors.Wrap(errors.Transient, err, "packing %s", filePath)
	}
	if _, stderr, err := f.run(ctx, namespace, pod, "tar xf - -C /", buf.Bytes()); err != nil {
		return errors.Wrap(errors.Transient, err, "writing %s: %s", filePath, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// Delete removes a file or directory tree. Removing the workspace root is
// refused. Missing targets are not an error.
func (f *Files) Delete(ctx context.Context, namespace, pod, filePath string) error {
	target, err := workspacePath(filePath)
	if err != nil {
		return err
	}
	if target == constants.DefaultWorkdir {
		return errors.New(errors.Validation, "refusing to delete the workspace root")
	}
	script := fmt.Sprintf("rm -rf %s", shellquote.Join(target))
	if _, stderr, err := f.run(ctx, namespace, pod, script, nil); err != nil {
		return errors.Wrap(errors.Transient, err, "deleting %s: %s", filePath, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// List returns the entries of a directory, directories first. Names in
// DirExcludes and dotfiles are hidden, matching the compose backend.
func (f *Files) List(ctx context.Context, namespace, pod, dirPath string) ([]orchestrator.FileInfo, error) {
	target, err := workspacePath(dirPath)
	if err != nil {
		return nil, err
	}
	// %F distinguishes directories, %s and %Y give size and mtime.
	script := fmt.Sprintf(
		"find %s -maxdepth 1 -mindepth 1 -exec stat -c '%%F|%%s|%%Y|%%n' {} +",
		shellquote.Join(target))
	stdout, stderr, err := f.run(ctx, namespace, pod, script, nil)
	if err != nil {
		if isNoSuchFile(stderr) {
			return nil, errors.New(errors.NotFound, "directory %s not found", dirPath)
		}
		return nil, errors.Wrap(errors.Transient, err, "listing %s", dirPath)
	}

	var infos []orchestrator.FileInfo
	for _, line := range strings.Split(string(stdout), "\n") {
		info, ok := parseStatLine(line)
		if !ok || hiddenEntry(info.Name) {
			continue
		}
		info.Path = relWorkspacePath(info.Path)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].IsDir != infos[j].IsDir {
			return infos[i].IsDir
		}
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

// Glob returns workspace-relative file paths matching a doublestar
// pattern. Matching happens orchestrator-side against a single find pass,
// so the pod needs nothing beyond BusyBox find.
func (f *Files) Glob(ctx context.Context, namespace, pod, pattern string) ([]string, error) {
	if strings.Contains(pattern, "..") {
		return nil, errors.New(errors.Validation, "pattern %q escapes the workspace", pattern)
	}
	files, err := f.walk(ctx, namespace, pod)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, file := range files {
		ok, err := doublestar.Match(pattern, file)
		if err != nil {
			return nil, errors.Wrap(errors.Validation, err, "invalid pattern %q", pattern)
		}
		if ok {
			matches = append(matches, file)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Grep searches file contents for a literal query under an optional path
// prefix. Matches are capped at maxGrepMatches.
func (f *Files) Grep(ctx context.Context, namespace, pod, query, pathPrefix string) ([]orchestrator.GrepMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.Validation, "empty search query")
	}
	target, err := workspacePath(pathPrefix)
	if err != nil {
		return nil, err
	}
	// Exit 1 means no matches; swallow it by appending "true".
	script := fmt.Sprintf("grep -rnF %s %s 2>/dev/null; true",
		shellquote.Join(query), shellquote.Join(target))
	stdout, _, err := f.run(ctx, namespace, pod, script, nil)
	if err != nil {
		return nil, errors.Wrap(errors.Transient, err, "searching %s", pathPrefix)
	}

	var matches []orchestrator.GrepMatch
	for _, line := range strings.Split(string(stdout), "\n") {
		m, ok := parseGrepLine(line)
		if !ok || excludedFromGrep(m.Path) {
			continue
		}
		matches = append(matches, m)
		if len(matches) >= maxGrepMatches {
			break
		}
	}
	return matches, nil
}

// walkScript builds the find command that lists every regular file under
// the workspace, pruning excluded directories pod-side to keep the output
// bounded.
func walkScript() string {
	var prunes []string
	for _, dir := range constants.DirExcludes {
		prunes = append(prunes, fmt.Sprintf("-name %s", shellquote.Join(dir)))
	}
	return fmt.Sprintf("find %s \\( %s \\) -prune -o -type f -print",
		constants.DefaultWorkdir, strings.Join(prunes, " -o "))
}

func (f *Files) walk(ctx context.Context, namespace, pod string) ([]string, error) {
	stdout, _, err := f.run(ctx, namespace, pod, walkScript(), nil)
	if err != nil {
		return nil, errors.Wrap(errors.Transient, err, "walking workspace")
	}
	var files []string
	for _, line := range strings.Split(string(stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rel := relWorkspacePath(line)
		if rel == "" || strings.HasPrefix(path.Base(rel), ".") {
			continue
		}
		files = append(files, rel)
	}
	return files, nil
}

func parseStatLine(line string) (orchestrator.FileInfo, bool) {
	line = strings.TrimSpace(line)
	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 {
		return orchestrator.FileInfo{}, false
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return orchestrator.FileInfo{}, false
	}
	mtime, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return orchestrator.FileInfo{}, false
	}
	return orchestrator.FileInfo{
		Name:    path.Base(parts[3]),
		Path:    parts[3],
		Size:    size,
		IsDir:   parts[0] == "directory",
		ModTime: time.Unix(mtime, 0).UTC(),
	}, true
}

func parseGrepLine(line string) (orchestrator.GrepMatch, bool) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 {
		return orchestrator.GrepMatch{}, false
	}
	num, err := strconv.Atoi(parts[1])
	if err != nil {
		return orchestrator.GrepMatch{}, false
	}
	return orchestrator.GrepMatch{
		Path: relWorkspacePath(parts[0]),
		Line: num,
		Text: parts[2],
	}, true
}

// isNoSuchFile matches the BusyBox messages for a missing target.
func isNoSuchFile(stderr []byte) bool {
	s := string(stderr)
	return strings.Contains(s, "No such file or directory") ||
		strings.Contains(s, "can't open")
}

func relWorkspacePath(p string) string {
	p = strings.TrimPrefix(p, constants.DefaultWorkdir)
	return strings.TrimPrefix(p, "/")
}

func hiddenEntry(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, dir := range constants.DirExcludes {
		if name == dir {
			return true
		}
	}
	return false
}

func excludedFromGrep(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if hiddenEntry(part) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(rel))
	for _, bin := range constants.BinaryExtensions {
		if ext == bin {
			return true
		}
	}
	return false
}
