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

const (
	settingsSkipMemberData uint64 = 1 << iota
	settingsIgnoreConverter
	settingsIgnoreCustom

	settingsKnownMask = settingsSkipMemberData | settingsIgnoreConverter | settingsIgnoreCustom
)

// SerializationSettings toggles optional encoder behaviors. The writer emits
// them as a flag word right after the version header so the reader observes
// them before the first payload byte.
type SerializationSettings struct {
	// SkipMemberData omits member names from type descriptors; both parties
	// must then agree on member order through local reflection.
	SkipMemberData bool
	// IgnoreConverter suppresses the string-converter path even when the
	// type has one.
	IgnoreConverter bool
	// IgnoreCustom suppresses the custom-serialization path even when the
	// type has one.
	IgnoreCustom bool
}

func (s SerializationSettings) flags() uint64 {
	var f uint64
	if s.SkipMemberData {
		f |= settingsSkipMemberData
	}
	if s.IgnoreConverter {
		f |= settingsIgnoreConverter
	}
	if s.IgnoreCustom {
		f |= settingsIgnoreCustom
	}
	return f
}

func settingsFromFlags(f uint64) (SerializationSettings, error) {
	if f&^settingsKnownMask != 0 {
		return SerializationSettings{}, malformed("unknown settings bits", nil)
	}
	return SerializationSettings{
		SkipMemberData:  f&settingsSkipMemberData != 0,
		IgnoreConverter: f&settingsIgnoreConverter != 0,
		IgnoreCustom:    f&settingsIgnoreCustom != 0,
	}, nil
}
