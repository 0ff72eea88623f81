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

package util

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/TesslateAI/studio-core/testutil"
)

func TestZipDirectoryExcludes(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"package.json":                 "{}",
		"src/main.js":                  "console.log(1)",
		"node_modules/lodash/index.js": "module.exports = {}",
		".git/HEAD":                    "ref: refs/heads/main",
		"app/__pycache__/m.pyc":        "\x00",
		"notes.log":                    "noise",
	}
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	excludes := []string{"node_modules/*", ".git/*", "__pycache__/*", "*.pyc", "*.log"}
	err := ZipDirectory(&buf, root, excludes)
	testutil.CheckError(t, false, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	testutil.CheckError(t, false, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	expected := []string{"package.json", "src/main.js"}
	testutil.CheckDeepEqual(t, expected, names)
}

func TestZipRoundTrip(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "backend"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "backend", "hello.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	testutil.CheckError(t, false, ZipDirectory(&buf, root, nil))

	dest := t.TempDir()
	err := UnzipToDirectory(bytes.NewReader(buf.Bytes()), int64(buf.Len()), dest)
	testutil.CheckError(t, false, err)

	content, err := os.ReadFile(filepath.Join(dest, "backend", "hello.txt"))
	testutil.CheckErrorAndDeepEqual(t, false, err, "hi", string(content))
}

func TestUnzipRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("root:x")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	err = UnzipToDirectory(bytes.NewReader(buf.Bytes()), int64(buf.Len()), t.TempDir())
	testutil.CheckError(t, true, err)
}

func TestSingleFileTarRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := CreateSingleFileTar(&buf, "app/backend/hello.txt", []byte("hi"))
	testutil.CheckError(t, false, err)

	content, err := ExtractSingleFileTar(&buf)
	testutil.CheckErrorAndDeepEqual(t, false, err, "hi", string(content))
}
