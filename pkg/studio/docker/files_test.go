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
	"testing"

	"github.com/spf13/afero"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/testutil"
)

func testFiles(t *testing.T) *Files {
	t.Helper()
	return NewFiles(afero.NewMemMapFs(), "/projects")
}

func TestFilesReadWriteDelete(t *testing.T) {
	f := testFiles(t)

	testutil.CheckError(t, false, f.Write("proj", "src/main.go", []byte("package main")))

	content, err := f.Read("proj", "src/main.go")
	testutil.CheckErrorAndDeepEqual(t, false, err, []byte("package main"), content)

	// Leading slashes address the same file.
	content, err = f.Read("proj", "/src/main.go")
	testutil.CheckErrorAndDeepEqual(t, false, err, []byte("package main"), content)

	testutil.CheckError(t, false, f.Delete("proj", "src/main.go"))
	_, err = f.Read("proj", "src/main.go")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}

	// Deleting again is fine.
	testutil.CheckError(t, false, f.Delete("proj", "src/main.go"))
}

func TestFilesRejectTraversal(t *testing.T) {
	f := testFiles(t)

	for _, path := range []string{"../other", "a/../../b", "..", "src/../../etc/passwd"} {
		if _, err := f.Read("proj", path); !errors.IsValidation(err) {
			t.Errorf("Read(%q): expected validation error, got %v", path, err)
		}
		if err := f.Write("proj", path, nil); !errors.IsValidation(err) {
			t.Errorf("Write(%q): expected validation error, got %v", path, err)
		}
	}
}

func TestFilesRefuseDeletingProjectRoot(t *testing.T) {
	f := testFiles(t)
	testutil.CheckError(t, false, f.Write("proj", "keep.txt", []byte("x")))

	for _, path := range []string{"", "/", "."} {
		if err := f.Delete("proj", path); !errors.IsValidation(err) {
			t.Errorf("Delete(%q): expected validation error, got %v", path, err)
		}
	}
}

func TestFilesList(t *testing.T) {
	f := testFiles(t)
	testutil.CheckError(t, false, f.Write("proj", "a.txt", []byte("a")))
	testutil.CheckError(t, false, f.Write("proj", "src/b.txt", []byte("b")))
	testutil.CheckError(t, false, f.Write("proj", "node_modules/c.js", []byte("c")))

	entries, err := f.List("proj", "")
	testutil.CheckError(t, false, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	// Directories first, node_modules hidden.
	testutil.CheckDeepEqual(t, []string{"src", "a.txt"}, names)
	if !entries[0].IsDir {
		t.Error("expected src to be listed as a directory")
	}
}

func TestFilesGlob(t *testing.T) {
	f := testFiles(t)
	testutil.CheckError(t, false, f.Write("proj", "src/app.ts", []byte("")))
	testutil.CheckError(t, false, f.Write("proj", "src/deep/util.ts", []byte("")))
	testutil.CheckError(t, false, f.Write("proj", "readme.md", []byte("")))
	testutil.CheckError(t, false, f.Write("proj", "node_modules/x/y.ts", []byte("")))

	matches, err := f.Glob("proj", "**/*.ts")
	testutil.CheckErrorAndDeepEqual(t, false, err, []string{"src/app.ts", "src/deep/util.ts"}, matches)

	if _, err := f.Glob("proj", "../**"); !errors.IsValidation(err) {
		t.Errorf("expected validation error for escaping pattern, got %v", err)
	}
}

func TestFilesGrep(t *testing.T) {
	f := testFiles(t)
	testutil.CheckError(t, false, f.Write("proj", "main.go", []byte("package main\nfunc main() {}\n")))
	testutil.CheckError(t, false, f.Write("proj", "lib/util.go", []byte("package lib\n// main helper\n")))
	testutil.CheckError(t, false, f.Write("proj", "logo.png", []byte("main")))
	testutil.CheckError(t, false, f.Write("proj", "node_modules/d.js", []byte("main")))

	matches, err := f.Grep("proj", "main", "")
	testutil.CheckError(t, false, err)

	got := map[string]int{}
	for _, m := range matches {
		got[m.Path]++
	}
	// Binaries and tool directories never match.
	testutil.CheckDeepEqual(t, map[string]int{"main.go": 2, "lib/util.go": 1}, got)

	if _, err := f.Grep("proj", "", ""); !errors.IsValidation(err) {
		t.Errorf("expected validation error for empty query, got %v", err)
	}
}
