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

// Package graphcodec serializes arbitrary object graphs to a self-describing
// binary stream, preserving identity (shared references and cycles),
// polymorphism (runtime types distinct from declared types), and schema
// (type descriptors travel in the stream, so a consumer can decode values
// whose types it does not have — they surface as ObjectData).
//
// Encoding is reference-tracked: every reference object is assigned a
// monotone session id on first encounter and referenced by id afterwards.
// Both peers share a fixed well-known preamble of descriptors and the empty
// string, so the common vocabulary never travels. Instances are registered
// under their id before their body is decoded, which is what makes cyclic
// graphs reconstructable.
//
// Named struct and enum types must be registered (DefaultRegistry.Register
// or RegisterName) before the reader can resolve them; unregistered struct
// types still decode, as ObjectData, and unregistered enums decode to their
// underlying integer.
//
// Decoded untyped dictionaries are rebuilt as Go maps, which hash keys by
// value: two keys that were equal but not identical in the producer collapse
// into one entry. ReadRaw rebuilds them the same way; a dictionary keeps its
// keys as a list (ObjectData.MapKeys) only when its descriptor does not
// resolve locally.
//
// A Writer or Reader is one session and is not safe for concurrent use.
package graphcodec
