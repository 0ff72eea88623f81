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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// ZipDirectory zips the tree rooted at root into w, skipping any path that
// matches one of the exclude patterns. Patterns ending in "/*" exclude whole
// directories without descending into them.
func ZipDirectory(w io.Writer, root string, excludes []string) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if matchesDirExclude(rel, excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesExclude(rel, excludes) {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = rel
		header.Method = zip.Deflate

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(entry, f)
		return err
	})
}

// UnzipToDirectory extracts a zip archive into root. Entry paths are
// validated against traversal outside root.
func UnzipToDirectory(src io.ReaderAt, size int64, root string) error {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return err
	}

	for _, entry := range zr.File {
		dst, err := sanitizeExtractPath(root, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := extractFile(entry, dst); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(entry *zip.File, dst string) error {
	r, err := entry.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode())
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

func sanitizeExtractPath(root, name string) (string, error) {
	dst := filepath.Join(root, filepath.FromSlash(name))
	if !strings.HasPrefix(dst, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("zip entry %q escapes extraction root", name)
	}
	return dst, nil
}

func matchesDirExclude(rel string, excludes []string) bool {
	for _, pattern := range excludes {
		dir := strings.TrimSuffix(pattern, "/*")
		if dir == pattern {
			continue
		}
		if rel == dir || filepath.Base(rel) == dir {
			return true
		}
	}
	return false
}

func matchesExclude(rel string, excludes []string) bool {
	for _, pattern := range excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// Also match against the basename so "*.pyc" excludes nested files.
		if ok, _ := doublestar.Match(pattern, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}
