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

// Package errors classifies orchestration failures so callers can pick the
// right recovery: retry transients, treat deletes of missing resources as
// success, patch on conflicts, and never retry security blocks.
package errors

import (
	"errors"
	"fmt"
)

// Kind partitions errors by response semantics.
type Kind string

const (
	// Validation rejects bad input before any work is done.
	Validation = Kind("validation")
	// NotFound marks a missing project, container, namespace or pod.
	NotFound = Kind("not-found")
	// Conflict marks a create of a resource that already exists.
	Conflict = Kind("conflict")
	// Transient marks backend flakes worth a bounded retry.
	Transient = Kind("transient")
	// Permanent marks backend failures retrying cannot fix.
	Permanent = Kind("permanent")
	// SecurityBlock marks a startup command that failed validation. Never
	// retried, never substituted partially.
	SecurityBlock = Kind("security-block")
	// DataIntegrity marks an unverified hibernation upload. The workload
	// resources must be left in place.
	DataIntegrity = Kind("data-integrity")
	// Timeout marks an exceeded exec or readiness budget.
	Timeout = Kind("timeout")
)

// Error is the orchestrator's error type. Wraps an optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error without a cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error around a cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf reports the Kind of err, or Permanent when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Permanent
}

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsValidation(err error) bool    { return is(err, Validation) }
func IsNotFound(err error) bool      { return is(err, NotFound) }
func IsConflict(err error) bool      { return is(err, Conflict) }
func IsTransient(err error) bool     { return is(err, Transient) }
func IsSecurityBlock(err error) bool { return is(err, SecurityBlock) }
func IsDataIntegrity(err error) bool { return is(err, DataIntegrity) }
func IsTimeout(err error) bool       { return is(err, Timeout) }

// IgnoreNotFound maps NotFound to nil so deletes stay idempotent.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}
