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

package testutil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type run struct {
	command string
	stdout  []byte
	err     error
}

// FakeCmd implements the util.Command interface against a scripted sequence
// of expected invocations.
type FakeCmd struct {
	runs  []run
	index int
}

func NewFakeCmd() *FakeCmd {
	return &FakeCmd{}
}

func (f *FakeCmd) WithRun(command string, err error) *FakeCmd {
	f.runs = append(f.runs, run{command: command, err: err})
	return f
}

func (f *FakeCmd) WithRunOut(command, stdout string, err error) *FakeCmd {
	f.runs = append(f.runs, run{command: command, stdout: []byte(stdout), err: err})
	return f
}

func (f *FakeCmd) next(actual string) (run, error) {
	if f.index >= len(f.runs) {
		return run{}, fmt.Errorf("unexpected command: %s", actual)
	}
	r := f.runs[f.index]
	f.index++
	if r.command != actual {
		return run{}, fmt.Errorf("expected: %s. Got: %s", r.command, actual)
	}
	return r, nil
}

func (f *FakeCmd) RunCmdOut(_ context.Context, cmd *exec.Cmd) ([]byte, error) {
	r, err := f.next(strings.Join(cmd.Args, " "))
	if err != nil {
		return nil, err
	}
	return r.stdout, r.err
}

func (f *FakeCmd) RunCmd(_ context.Context, cmd *exec.Cmd) error {
	r, err := f.next(strings.Join(cmd.Args, " "))
	if err != nil {
		return err
	}
	return r.err
}

// Exhausted reports whether every scripted run was consumed.
func (f *FakeCmd) Exhausted() bool {
	return f.index == len(f.runs)
}
