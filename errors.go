// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package graphcodec

import "fmt"

// UnsupportedVersionError indicates the stream header carries a wire version
// this reader does not speak. Fatal for the stream.
type UnsupportedVersionError struct {
	Got uint64
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported wire version 0x%04x, want 0x%04x", e.Got, wireVersion)
}

// MalformedStreamError indicates bytes that cannot be decoded: early EOF,
// varuint overflow, or an impossible flag combination.
type MalformedStreamError struct {
	Reason string
	Cause  error
}

func (e *MalformedStreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed stream: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed stream: %s", e.Reason)
}

func (e *MalformedStreamError) Unwrap() error { return e.Cause }

func malformed(reason string, cause error) error {
	return &MalformedStreamError{Reason: reason, Cause: cause}
}

// IDReuseError indicates an attempt to register an id that is already bound,
// either in the well-known preamble or in the current session.
type IDReuseError struct {
	ID uint64
}

func (e *IDReuseError) Error() string {
	return fmt.Sprintf("id %d is already registered", e.ID)
}

// CountMismatchError indicates a container whose reported element count
// disagreed with the iterated count.
type CountMismatchError struct {
	Expected int
	Actual   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("collection reported %d elements but yielded %d", e.Expected, e.Actual)
}

// ArrayRankMismatchError indicates a value whose rank disagrees with its
// declared array type.
type ArrayRankMismatchError struct {
	Declared int
	Actual   int
}

func (e *ArrayRankMismatchError) Error() string {
	return fmt.Sprintf("array rank mismatch: declared %d, value has %d", e.Declared, e.Actual)
}

// UnresolvedTypeError indicates a wire descriptor that maps to no local type.
// The reader recovers from this by producing an ObjectData; it is surfaced
// only through logs and the fallback value itself.
type UnresolvedTypeError struct {
	FullName string
	Assembly string
}

func (e *UnresolvedTypeError) Error() string {
	if e.Assembly != "" {
		return fmt.Sprintf("type %s (%s) cannot be resolved locally", e.FullName, e.Assembly)
	}
	return fmt.Sprintf("type %s cannot be resolved locally", e.FullName)
}

// ConstructionError indicates a local type that could not be instantiated or
// populated from the stream.
type ConstructionError struct {
	Type  string
	Cause error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("cannot construct %s: %v", e.Type, e.Cause)
}

func (e *ConstructionError) Unwrap() error { return e.Cause }
