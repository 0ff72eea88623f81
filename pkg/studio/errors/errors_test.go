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

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		description string
		err         error
		expected    Kind
	}{
		{
			description: "typed error",
			err:         New(NotFound, "pod %q missing", "file-manager"),
			expected:    NotFound,
		},
		{
			description: "wrapped typed error",
			err:         fmt.Errorf("starting container: %w", New(SecurityBlock, "command rejected")),
			expected:    SecurityBlock,
		},
		{
			description: "untyped error defaults to permanent",
			err:         errors.New("boom"),
			expected:    Permanent,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			if got := KindOf(test.err); got != test.expected {
				t.Errorf("expected kind %q, got %q", test.expected, got)
			}
		})
	}
}

func TestIgnoreNotFound(t *testing.T) {
	if err := IgnoreNotFound(New(NotFound, "gone")); err != nil {
		t.Errorf("expected nil for not-found, got %v", err)
	}
	if err := IgnoreNotFound(New(Transient, "flake")); err == nil {
		t.Error("expected transient error to survive IgnoreNotFound")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(Transient, cause, "listing pods")
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
	if !IsTransient(err) {
		t.Error("expected IsTransient")
	}
}
