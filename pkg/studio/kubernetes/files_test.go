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
	"io"
	"strings"
	"testing"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
	"github.com/TesslateAI/studio-core/testutil"
)

// fakeExecutor scripts pod exec calls by their shell script argument.
type fakeExecutor struct {
	t       *testing.T
	results map[string]execResult
	calls   []string
	stdins  map[string][]byte
}

type execResult struct {
	stdout string
	stderr string
	err    error
}

func newFakeExecutor(t *testing.T) *fakeExecutor {
	return &fakeExecutor{t: t, results: map[string]execResult{}, stdins: map[string][]byte{}}
}

func (f *fakeExecutor) on(script string, r execResult) *fakeExecutor {
	f.results[script] = r
	return f
}

func (f *fakeExecutor) ExecuteWithStreams(ctx context.Context, namespace, pod, container string, stdin io.Reader, stdout, stderr io.Writer, command ...string) error {
	script := command[len(command)-1]
	f.calls = append(f.calls, script)
	if stdin != nil {
		content, _ := io.ReadAll(stdin)
		f.stdins[script] = content
	}
	r, ok := f.results[script]
	if !ok {
		f.t.Fatalf("unexpected exec script: %q", script)
	}
	if stdout != nil {
		fmt.Fprint(stdout, r.stdout)
	}
	if stderr != nil {
		fmt.Fprint(stderr, r.stderr)
	}
	return r.err
}

func (f *fakeExecutor) Execute(ctx context.Context, namespace, pod, container string, command ...string) ([]byte, []byte, error) {
	var stdout, stderr strings.Builder
	err := f.ExecuteWithStreams(ctx, namespace, pod, container, nil, &stdout, &stderr, command...)
	return []byte(stdout.String()), []byte(stderr.String()), err
}

func TestReadDecodesBase64(t *testing.T) {
	exec := newFakeExecutor(t).on("base64 < /app/src/main.go", execResult{
		stdout: base64.StdEncoding.EncodeToString([]byte("package main\n")) + "\n",
	})
	files := NewFiles(exec)

	content, err := files.Read(context.Background(), "proj-p1", "fm-abc", "src/main.go")

	testutil.CheckErrorAndDeepEqual(t, false, err, []byte("package main\n"), content)
}

func TestReadMapsMissingFileToNotFound(t *testing.T) {
	exec := newFakeExecutor(t).on("base64 < /app/missing.txt", execResult{
		stderr: "sh: can't open /app/missing.txt: No such file or directory",
		err:    fmt.Errorf("command terminated with exit code 2"),
	})
	files := NewFiles(exec)

	_, err := files.Read(context.Background(), "proj-p1", "fm-abc", "missing.txt")

	if !errors.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestWriteStreamsContentAsSingleEntryTar(t *testing.T) {
	script := "tar xf - -C /"
	exec := newFakeExecutor(t).on(script, execResult{})
	files := NewFiles(exec)

	err := files.Write(context.Background(), "proj-p1", "fm-abc", "src/app.ts", []byte("export {}\n"))

	testutil.CheckError(t, false, err)
	content, err := util.ExtractSingleFileTar(bytes.NewReader(exec.stdins[script]))
	testutil.CheckErrorAndDeepEqual(t, false, err, []byte("export {}\n"), content)
}

func TestPathTraversalRejectedEverywhere(t *testing.T) {
	files := NewFiles(newFakeExecutor(t))
	ctx := context.Background()

	for _, bad := range []string{"../etc/passwd", "src/../../root", "..", "a/../.."} {
		if _, err := files.Read(ctx, "ns", "pod", bad); !errors.IsValidation(err) {
			t.Errorf("Read(%q): expected validation error, got %v", bad, err)
		}
		if err := files.Write(ctx, "ns", "pod", bad, nil); !errors.IsValidation(err) {
			t.Errorf("Write(%q): expected validation error, got %v", bad, err)
		}
		if err := files.Delete(ctx, "ns", "pod", bad); !errors.IsValidation(err) {
			t.Errorf("Delete(%q): expected validation error, got %v", bad, err)
		}
	}
}

func TestDeleteRefusesWorkspaceRoot(t *testing.T) {
	files := NewFiles(newFakeExecutor(t))

	for _, root := range []string{"", "/", "/app", "."} {
		err := files.Delete(context.Background(), "ns", "pod", root)
		if !errors.IsValidation(err) {
			t.Errorf("Delete(%q): expected validation error, got %v", root, err)
		}
	}
}

func TestListParsesStatOutputDirsFirst(t *testing.T) {
	script := "find /app -maxdepth 1 -mindepth 1 -exec stat -c '%F|%s|%Y|%n' {} +"
	exec := newFakeExecutor(t).on(script, execResult{stdout: strings.Join([]string{
		"regular file|120|1700000000|/app/readme.md",
		"directory|4096|1700000000|/app/src",
		"directory|4096|1700000000|/app/node_modules",
		"regular file|88|1700000000|/app/.env",
		"",
	}, "\n")})
	files := NewFiles(exec)

	infos, err := files.List(context.Background(), "proj-p1", "fm-abc", "")

	testutil.CheckError(t, false, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	// node_modules and dotfiles are hidden; directories sort first.
	testutil.CheckDeepEqual(t, []string{"src", "readme.md"}, names)
	testutil.CheckDeepEqual(t, true, infos[0].IsDir)
	testutil.CheckDeepEqual(t, int64(120), infos[1].Size)
	testutil.CheckDeepEqual(t, "src", infos[0].Path)
}

func TestGrepParsesMatchesAndFiltersBinaries(t *testing.T) {
	script := "grep -rnF TODO /app 2>/dev/null; true"
	exec := newFakeExecutor(t).on(script, execResult{stdout: strings.Join([]string{
		"/app/src/main.go:3:// TODO drop the shim",
		"/app/logo.png:1:TODO",
		"/app/node_modules/pkg/index.js:9:TODO",
		"",
	}, "\n")})
	files := NewFiles(exec)

	matches, err := files.Grep(context.Background(), "proj-p1", "fm-abc", "TODO", "")

	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, 1, len(matches))
	testutil.CheckDeepEqual(t, "src/main.go", matches[0].Path)
	testutil.CheckDeepEqual(t, 3, matches[0].Line)
	testutil.CheckDeepEqual(t, "// TODO drop the shim", matches[0].Text)
}

func TestGrepRejectsEmptyQuery(t *testing.T) {
	files := NewFiles(newFakeExecutor(t))

	_, err := files.Grep(context.Background(), "ns", "pod", "   ", "")

	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGlobMatchesWalkedFiles(t *testing.T) {
	exec := newFakeExecutor(t).on(walkScript(), execResult{stdout: strings.Join([]string{
		"/app/src/app.ts",
		"/app/src/lib/util.ts",
		"/app/readme.md",
		"",
	}, "\n")})
	files := NewFiles(exec)

	matches, err := files.Glob(context.Background(), "proj-p1", "fm-abc", "src/**/*.ts")

	testutil.CheckErrorAndDeepEqual(t, false, err,
		[]string{"src/app.ts", "src/lib/util.ts"}, matches)
}

func TestGlobRejectsEscapingPattern(t *testing.T) {
	files := NewFiles(newFakeExecutor(t))

	_, err := files.Glob(context.Background(), "ns", "pod", "../**/*.go")

	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWorkspacePath(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{in: "", expected: "/app"},
		{in: "/", expected: "/app"},
		{in: "src/main.go", expected: "/app/src/main.go"},
		{in: "/app/src", expected: "/app/src"},
		{in: "/etc", expected: "/app/etc"},
		{in: "./src", expected: "/app/src"},
	}
	for _, test := range tests {
		got, err := workspacePath(test.in)
		testutil.CheckErrorAndDeepEqual(t, false, err, test.expected, got)
	}
}
