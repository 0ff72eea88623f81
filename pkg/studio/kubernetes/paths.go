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
	"path"
	"strings"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
)

// workspacePath confines a user-supplied path to the pod's /app mount.
// Absolute paths are reinterpreted relative to the workspace; traversal
// components are rejected outright.
func workspacePath(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if strings.Contains(rel, "..") {
		return "", errors.New(errors.Validation, "path %q escapes the workspace", rel)
	}
	rel = strings.TrimPrefix(rel, constants.DefaultWorkdir)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return constants.DefaultWorkdir, nil
	}
	return path.Join(constants.DefaultWorkdir, path.Clean(rel)), nil
}
