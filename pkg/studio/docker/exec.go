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
	"bytes"
	"context"
	"os/exec"
	"path"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
)

// clampTimeout applies the default budget and the hard ceiling.
func clampTimeout(requested time.Duration, timeouts config.Timeouts) time.Duration {
	if requested <= 0 {
		return timeouts.Exec
	}
	if requested > timeouts.ExecCeiling {
		return timeouts.ExecCeiling
	}
	return requested
}

// workdirFor confines a requested working directory to the container's
// mount. Empty and absolute paths both resolve under /app.
func workdirFor(requested string) (string, error) {
	if requested == "" {
		return constants.DefaultWorkdir, nil
	}
	if strings.Contains(requested, "..") {
		return "", errors.New(errors.Validation, "working directory %q escapes the workspace", requested)
	}
	cleaned := path.Clean("/" + strings.TrimPrefix(requested, constants.DefaultWorkdir))
	return path.Join(constants.DefaultWorkdir, cleaned), nil
}

// execInContainer runs argv inside a running container through docker exec
// and captures both output streams. A non-zero exit is reported in the
// result, not as an error; errors mean the exec could not run at all.
func execInContainer(ctx context.Context, timeouts config.Timeouts, containerName string, argv []string, opts orchestrator.ExecOptions) (*orchestrator.ExecResult, error) {
	if len(argv) == 0 {
		return nil, errors.New(errors.Validation, "empty command")
	}
	workdir, err := workdirFor(opts.WorkingDir)
	if err != nil {
		return nil, err
	}

	timeout := clampTimeout(opts.Timeout, timeouts)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// A shell wrapper keeps exec semantics identical across backends.
	shellCmd := shellquote.Join(argv...)
	cmd := exec.CommandContext(ctx, "docker", "exec", "-w", workdir, containerName, "sh", "-c", shellCmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = util.RunCmd(ctx, cmd)
	result := &orchestrator.ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.Timeout, "command timed out after %s", timeout)
		}
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, errors.Wrap(errors.Transient, err, "executing command in %s", containerName)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}
