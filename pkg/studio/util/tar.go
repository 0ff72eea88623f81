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
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// CreateSingleFileTar writes a tar stream holding exactly one regular file
// at dst with the given content. Used to stream file writes into pods in a
// binary-safe way.
func CreateSingleFileTar(w io.Writer, dst string, content []byte) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	header := &tar.Header{
		Name:    filepath.ToSlash(dst),
		Mode:    0644,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

// TarToZip converts a tar stream into a zip archive, dropping entries that
// match the exclude patterns. Paths are cleaned while converting so a
// hostile stream cannot smuggle traversal into the archive.
func TarToZip(w io.Writer, r io.Reader, excludes []string) error {
	zw := zip.NewWriter(w)
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		rel := filepath.ToSlash(filepath.Clean(strings.TrimPrefix(header.Name, "./")))
		if rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
			continue
		}
		if matchesDirPrefix(rel, excludes) || matchesExclude(rel, excludes) {
			continue
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     rel,
			Method:   zip.Deflate,
			Modified: header.ModTime,
		})
		if err != nil {
			return err
		}
		if _, err := io.Copy(entry, tr); err != nil {
			return err
		}
	}
	return zw.Close()
}

// ZipToTar streams a zip archive's regular files as a tar stream.
func ZipToTar(w io.Writer, src io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		rel := filepath.ToSlash(filepath.Clean(entry.Name))
		if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			return fmt.Errorf("zip entry %q escapes extraction root", entry.Name)
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:    rel,
			Mode:    int64(entry.Mode().Perm()),
			Size:    int64(entry.UncompressedSize64),
			ModTime: entry.Modified,
		}); err != nil {
			return err
		}
		f, err := entry.Open()
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}
	return tw.Close()
}

// matchesDirPrefix reports whether any path component of rel is excluded
// by a directory pattern. Tar streams carry no walk order, so directory
// pruning has to happen per entry.
func matchesDirPrefix(rel string, excludes []string) bool {
	parts := strings.Split(rel, "/")
	for i := range parts[:len(parts)-1] {
		if matchesDirExclude(strings.Join(parts[:i+1], "/"), excludes) {
			return true
		}
	}
	return false
}

// ExtractSingleFileTar reads the first regular file from a tar stream.
func ExtractSingleFileTar(r io.Reader) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag == tar.TypeReg {
			return io.ReadAll(tr)
		}
	}
}
