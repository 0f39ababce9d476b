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

import "bytes"

// wireVersion heads every stream. It covers the whole encoding, the
// well-known preamble layout included.
const wireVersion = 0x0102

type options struct {
	settings SerializationSettings
	registry *TypeRegistry
}

// Option configures a Writer or Reader session.
type Option func(*options)

// WithSettings selects the serialization settings the writer embeds in the
// stream. Readers take their settings from the stream, never from options.
func WithSettings(s SerializationSettings) Option {
	return func(o *options) { o.settings = s }
}

// WithRegistry gives the session its own type registry in place of
// DefaultRegistry. Only read-side resolution is affected; wire names are
// taken from the default registry when descriptors are built.
func WithRegistry(r *TypeRegistry) Option {
	return func(o *options) { o.registry = r }
}

func applyOptions(opts []Option) options {
	o := options{registry: DefaultRegistry}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Marshal encodes v into a fresh byte stream.
func Marshal(v interface{}, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf, opts...)
	if err := w.Write(v); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes the single root value data carries.
func Unmarshal(data []byte, opts ...Option) (interface{}, error) {
	r := NewReader(bytes.NewReader(data), opts...)
	defer r.Close()
	return r.Read()
}

// UnmarshalRaw decodes like Unmarshal but leaves ObjectData fallbacks
// unconverted.
func UnmarshalRaw(data []byte, opts ...Option) (interface{}, error) {
	r := NewReader(bytes.NewReader(data), opts...)
	defer r.Close()
	return r.ReadRaw()
}
