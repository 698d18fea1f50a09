/*
Copyright 2026 The Modvault Authors

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

package planner

import (
	"errors"
	"fmt"

	"modvault.dev/modvault/pkg/digest"
)

// The error taxonomy surfaced outward (spec.md §6). Catalog, fetch,
// content-verification and local file failures inside Plan wrap into one
// of these, so a caller can type-switch on cause rather than parse error
// strings. An unknown release or package name, and a cancelled context,
// are returned as plain errors that wrap none of them.
var (
	ErrUnsatisfiableCoverage = errors.New("planner: no feasible set of sources covers the required content")
	ErrCatalogFailure        = errors.New("planner: catalog failure")
)

// UnknownContent is returned when a required digest has no entry in the
// catalog at all: there is no source, local or remote, for it.
type UnknownContent struct {
	Digest digest.Digest
}

func (e *UnknownContent) Error() string {
	return fmt.Sprintf("planner: unknown content %s", e.Digest)
}

// ContentHashMismatch is returned when a fetched source's bytes, once
// indexed, hash to something other than what the catalog expected. The
// source is quarantined and the caller should retry with an alternative.
type ContentHashMismatch struct {
	Want, Got digest.Digest
	Path      string
}

func (e *ContentHashMismatch) Error() string {
	return fmt.Sprintf("planner: content hash mismatch at %s: want %s, got %s", e.Path, e.Want, e.Got)
}

// NetworkFailure wraps a transient fetch failure for one source.
type NetworkFailure struct {
	URL string
	Err error
}

func (e *NetworkFailure) Error() string {
	return fmt.Sprintf("planner: fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkFailure) Unwrap() error { return e.Err }

// IOFailure wraps a local filesystem error encountered while staging or
// materializing content.
type IOFailure struct {
	Path string
	Err  error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("planner: io error at %s: %v", e.Path, e.Err)
}

func (e *IOFailure) Unwrap() error { return e.Err }
