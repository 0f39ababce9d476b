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

import (
	"encoding"
	"fmt"
	"reflect"
	"sync"
)

// Surrogate substitutes a companion value for the original during
// serialization. Convert runs on write (original to surrogate), Revert on
// read (surrogate back to original).
type Surrogate interface {
	Convert(original interface{}) (interface{}, error)
	Revert(surrogate interface{}) (interface{}, error)
}

// Converter maps a value to and from an invariant string representation.
type Converter interface {
	ConvertToString(v interface{}) (string, error)
	ConvertFromString(s string) (interface{}, error)
}

// NamedValue is one entry of a custom-serialization bag.
type NamedValue struct {
	Name  string
	Value interface{}
}

// CustomSerializable types emit a named-value bag instead of their fields.
type CustomSerializable interface {
	SerializeNamedValues() []NamedValue
}

// CustomDeserializable types reconstruct themselves from the bag a
// CustomSerializable peer emitted.
type CustomDeserializable interface {
	DeserializeNamedValues(values []NamedValue) error
}

// Deserialized is called on every decoded object implementing it, in id
// order, after the whole graph is materialized.
type Deserialized interface {
	OnDeserialized()
}

// DeserializationCallback is the companion notification capability; it runs
// before Deserialized for each object.
type DeserializationCallback interface {
	OnDeserialization()
}

type surrogateBinding struct {
	original  reflect.Type
	surrogate reflect.Type
	impl      Surrogate
}

// Capability registries are process-global, like the reflection caches: a
// mutex guards population, lookups after population are effectively
// read-only. Register bindings before the first serialization touching the
// type; RuntimeType snapshots capabilities when it is interned.
var (
	capabilityMu sync.Mutex
	surrogates   = map[reflect.Type]*surrogateBinding{}
	converters   = map[reflect.Type]Converter{}
)

// RegisterSurrogate binds a surrogate to the type of original. Sample values
// carry the types: RegisterSurrogate(&Point{}, &PointDTO{}, impl).
func RegisterSurrogate(original, surrogate interface{}, impl Surrogate) error {
	ot := baseStructType(reflect.TypeOf(original))
	st := baseStructType(reflect.TypeOf(surrogate))
	if ot == nil || st == nil {
		return fmt.Errorf("surrogate bindings require struct types, got %T and %T", original, surrogate)
	}
	capabilityMu.Lock()
	defer capabilityMu.Unlock()
	if prev, ok := surrogates[ot]; ok {
		return fmt.Errorf("type %s already has surrogate %s registered", ot, prev.surrogate)
	}
	surrogates[ot] = &surrogateBinding{original: ot, surrogate: st, impl: impl}
	return nil
}

// RegisterConverter binds a string converter to the type of sample.
func RegisterConverter(sample interface{}, c Converter) error {
	t := reflect.TypeOf(sample)
	if t == nil {
		return fmt.Errorf("converter sample must not be nil")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	capabilityMu.Lock()
	defer capabilityMu.Unlock()
	if _, ok := converters[t]; ok {
		return fmt.Errorf("type %s already has a converter registered", t)
	}
	converters[t] = c
	return nil
}

func surrogateFor(t reflect.Type) *surrogateBinding {
	capabilityMu.Lock()
	defer capabilityMu.Unlock()
	return surrogates[t]
}

func converterFor(t reflect.Type) Converter {
	capabilityMu.Lock()
	b := converters[t]
	capabilityMu.Unlock()
	if b != nil {
		return b
	}
	return textConverterFor(t)
}

func baseStructType(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

var (
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// textConverterFor treats encoding.TextMarshaler/TextUnmarshaler as an
// implicit converter capability. Both directions must be present.
func textConverterFor(t reflect.Type) Converter {
	pt := reflect.PtrTo(t)
	marshals := t.Implements(textMarshalerType) || pt.Implements(textMarshalerType)
	unmarshals := pt.Implements(textUnmarshalerType)
	if !marshals || !unmarshals {
		return nil
	}
	return &textConverter{t: t}
}

type textConverter struct {
	t reflect.Type
}

func (c *textConverter) ConvertToString(v interface{}) (string, error) {
	m, ok := v.(encoding.TextMarshaler)
	if !ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		pv := reflect.New(c.t)
		pv.Elem().Set(rv)
		m, ok = pv.Interface().(encoding.TextMarshaler)
		if !ok {
			return "", fmt.Errorf("%s does not marshal text", c.t)
		}
	}
	b, err := m.MarshalText()
	return string(b), err
}

func (c *textConverter) ConvertFromString(s string) (interface{}, error) {
	pv := reflect.New(c.t)
	u, ok := pv.Interface().(encoding.TextUnmarshaler)
	if !ok {
		return nil, fmt.Errorf("%s does not unmarshal text", c.t)
	}
	if err := u.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return pv.Elem().Interface(), nil
}
