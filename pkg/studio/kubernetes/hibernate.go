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
	"io"
	"os"
	"strings"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
)

// exportWorkspace streams the pod's /app tree out as a tar, converts it to
// a zip on the orchestrator side and returns the temp file path. Object
// storage never talks to the pod; the secret-free exec stream is the only
// channel the workspace crosses.
func exportWorkspace(ctx context.Context, exec PodExecutor, namespace, pod string, excludeNodeModules bool) (string, error) {
	tmp, err := os.CreateTemp("", "studio-export-*.zip")
	if err != nil {
		return "", errors.Wrap(errors.Transient, err, "creating export file")
	}

	pr, pw := io.Pipe()
	var stderr bytes.Buffer
	go func() {
		err := exec.ExecuteWithStreams(ctx, namespace, pod, "", nil, pw, &stderr,
			"tar", "cf", "-", "-C", constants.DefaultWorkdir, ".")
		pw.CloseWithError(err)
	}()

	excludes := append([]string{}, constants.ArchiveExcludes...)
	if excludeNodeModules {
		excludes = append(excludes, "node_modules/*")
	}
	if err := util.TarToZip(tmp, pr, excludes); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.Wrap(errors.Transient, err, "exporting workspace from %s: %s",
			namespace, strings.TrimSpace(stderr.String()))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// importWorkspace streams a zip archive into the pod's /app tree.
func importWorkspace(ctx context.Context, exec PodExecutor, namespace, pod, zipPath string) error {
	f, err := os.Open(zipPath)
	if err != nil {
		return errors.Wrap(errors.Transient, err, "opening archive %s", zipPath)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(util.ZipToTar(pw, f, fi.Size()))
	}()

	var stderr bytes.Buffer
	if err := exec.ExecuteWithStreams(ctx, namespace, pod, "", pr, nil, &stderr,
		"tar", "xf", "-", "-C", constants.DefaultWorkdir); err != nil {
		return errors.Wrap(errors.Transient, err, "importing workspace into %s: %s",
			namespace, strings.TrimSpace(stderr.String()))
	}
	return nil
}
