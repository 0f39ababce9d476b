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
	"reflect"
	"sync"
)

// wellKnownCount is the size of the fixed preamble both peers share without
// transmission. Session ids start right above it. The preamble layout is
// part of the wire version: any change here requires bumping it.
const wellKnownCount = 21

var (
	wellKnownOnce    sync.Once
	wellKnownObjects map[uint64]interface{}
	wellKnownIDs     map[interface{}]uint64
)

func ensureWellKnown() {
	wellKnownOnce.Do(func() {
		slots := []interface{}{
			typeOf(interfaceType).TypeData(),   // 1: the universal top type
			typeOf(stringType).TypeData(),      // 2: string
			typeOf(typeDataPtrType).TypeData(), // 3: the descriptor type itself
			legacyDescriptorTypeData(),         // 4: legacy slot, never emitted
			nullableDefinition(),               // 5: the nullable wrapper
			"",                                 // 6: the empty string
			typeOf(byteSliceType).TypeData(),   // 7
			typeOf(uuidType).TypeData(),        // 8
			typeOf(boolType).TypeData(),        // 9
			typeOf(charType).TypeData(),        // 10
			typeOf(uint8Type).TypeData(),       // 11
			typeOf(int8Type).TypeData(),        // 12
			typeOf(int16Type).TypeData(),       // 13
			typeOf(uint16Type).TypeData(),      // 14
			typeOf(int32Type).TypeData(),       // 15
			typeOf(uint32Type).TypeData(),      // 16
			typeOf(int64Type).TypeData(),       // 17
			typeOf(uint64Type).TypeData(),      // 18
			typeOf(float32Type).TypeData(),     // 19
			typeOf(float64Type).TypeData(),     // 20
			typeOf(decimalType).TypeData(),     // 21
		}
		wellKnownObjects = make(map[uint64]interface{}, len(slots))
		wellKnownIDs = make(map[interface{}]uint64, len(slots))
		for i, obj := range slots {
			id := uint64(i + 1)
			wellKnownObjects[id] = obj
			if k, ok := refKey(obj); ok {
				wellKnownIDs[k] = id
			}
		}
	})
}

type ptrKey struct {
	p uintptr
	t reflect.Type
}

type sliceKey struct {
	p uintptr
	n int
	t reflect.Type
}

// refKey produces the identity key an object is registered under. Pointers,
// maps and slices key by their referent; comparable values key by value, so
// equal strings (and equal boxed scalars) share one id. Non-comparable
// values have no key and always take a fresh id.
func refKey(v interface{}) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return ptrKey{rv.Pointer(), rv.Type()}, true
	case reflect.Slice:
		return sliceKey{rv.Pointer(), rv.Len(), rv.Type()}, true
	default:
		if rv.Type().Comparable() {
			return v, true
		}
		return nil, false
	}
}

// Context is the per-session registry mapping ids to objects and back. Id 0
// means null and is never registered; ids 1..wellKnownCount belong to the
// shared preamble; session ids are allocated monotonically above it, in
// encounter order.
type Context struct {
	objects map[uint64]interface{}
	ids     map[interface{}]uint64
	seed    uint64
	order   []uint64
}

func newContext() *Context {
	ensureWellKnown()
	return &Context{
		objects: map[uint64]interface{}{},
		ids:     map[interface{}]uint64{},
		seed:    wellKnownCount + 1,
	}
}

// TryGetID looks v up, consulting the well-known preamble first.
func (c *Context) TryGetID(v interface{}) (uint64, bool) {
	k, ok := refKey(v)
	if !ok {
		return 0, false
	}
	if id, ok := wellKnownIDs[k]; ok {
		return id, true
	}
	id, ok := c.ids[k]
	return id, ok
}

// TryGetObject looks id up, consulting the well-known preamble first.
func (c *Context) TryGetObject(id uint64) (interface{}, bool) {
	if obj, ok := wellKnownObjects[id]; ok {
		return obj, true
	}
	obj, ok := c.objects[id]
	return obj, ok
}

// NewID allocates the next session id.
func (c *Context) NewID() uint64 {
	id := c.seed
	c.seed++
	return id
}

// Register binds id to v. Binding id 0, a well-known id, or an id already
// bound in this session fails.
func (c *Context) Register(id uint64, v interface{}) error {
	if id == 0 {
		return &IDReuseError{ID: 0}
	}
	if _, taken := wellKnownObjects[id]; taken {
		return &IDReuseError{ID: id}
	}
	if _, taken := c.objects[id]; taken {
		return &IDReuseError{ID: id}
	}
	c.objects[id] = v
	if k, ok := refKey(v); ok {
		if _, dup := c.ids[k]; !dup {
			c.ids[k] = id
		}
	}
	c.order = append(c.order, id)
	return nil
}
