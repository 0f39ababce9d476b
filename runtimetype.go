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
	"fmt"
	"reflect"
	"sync"

	"github.com/spaolacci/murmur3"

	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"
)

var (
	interfaceType    = reflect.TypeOf((*interface{})(nil)).Elem()
	stringType       = reflect.TypeOf((*string)(nil)).Elem()
	byteSliceType    = reflect.TypeOf((*[]byte)(nil)).Elem()
	boolType         = reflect.TypeOf((*bool)(nil)).Elem()
	charType         = reflect.TypeOf((*Char)(nil)).Elem()
	uint8Type        = reflect.TypeOf((*uint8)(nil)).Elem()
	int8Type         = reflect.TypeOf((*int8)(nil)).Elem()
	int16Type        = reflect.TypeOf((*int16)(nil)).Elem()
	uint16Type       = reflect.TypeOf((*uint16)(nil)).Elem()
	int32Type        = reflect.TypeOf((*int32)(nil)).Elem()
	uint32Type       = reflect.TypeOf((*uint32)(nil)).Elem()
	int64Type        = reflect.TypeOf((*int64)(nil)).Elem()
	uint64Type       = reflect.TypeOf((*uint64)(nil)).Elem()
	intType          = reflect.TypeOf((*int)(nil)).Elem()
	uintType         = reflect.TypeOf((*uint)(nil)).Elem()
	float32Type      = reflect.TypeOf((*float32)(nil)).Elem()
	float64Type      = reflect.TypeOf((*float64)(nil)).Elem()
	uuidType         = reflect.TypeOf((*uuid.UUID)(nil)).Elem()
	decimalType      = reflect.TypeOf((*decimal.Decimal)(nil)).Elem()
	typeDataPtrType  = reflect.TypeOf((*TypeData)(nil))
	interfaceSlice   = reflect.TypeOf((*[]interface{})(nil)).Elem()
	interfaceMapType = reflect.TypeOf((*map[interface{}]interface{})(nil)).Elem()
)

var scalarKinds = map[reflect.Type]PrimitiveKind{
	boolType:    KindBool,
	charType:    KindChar,
	uint8Type:   KindUint8,
	int8Type:    KindInt8,
	int16Type:   KindInt16,
	uint16Type:  KindUint16,
	int32Type:   KindInt32,
	uint32Type:  KindUint32,
	int64Type:   KindInt64,
	uint64Type:  KindUint64,
	float32Type: KindFloat32,
	float64Type: KindFloat64,
}

// Member is one serializable field of an object type: its name, its declared
// type, and a cached field index for access without per-call name lookups.
type Member struct {
	Name  string
	Type  *RuntimeType
	index []int
}

func (m *Member) get(target reflect.Value) reflect.Value {
	return target.FieldByIndex(m.index)
}

// RuntimeType is the local reflection facade the writer runs on: the
// classification of a reflect.Type into the wire vocabulary, plus the
// capabilities (surrogate, converter, custom protocol) snapshotted at intern
// time. Instances are process-global and interned per reflect.Type.
type RuntimeType struct {
	Type reflect.Type

	Kind        PrimitiveKind
	IsReference bool
	IsSealed    bool
	IsInterface bool
	IsNullable  bool
	IsEnum      bool
	IsArray     bool
	ArrayRank   int

	Element *RuntimeType

	Shape   CollectionShape
	ColElem *RuntimeType
	ColKey  *RuntimeType
	ColVal  *RuntimeType

	Members   []*Member
	memberIdx map[string][]int // member positions by name

	SurrogateBinding *surrogateBinding
	SurrogateType    *RuntimeType
	Converter        Converter
	IsCustom         bool

	FullName string
	Assembly string

	td *TypeData // built under tdBuildMu
}

func (rt *RuntimeType) String() string {
	if rt.Type != nil {
		return rt.Type.String()
	}
	return rt.FullName
}

// memberPositions returns the indices of members carrying name, in
// declaration order. Go field names are unique per struct, but the slice
// form keeps the shadowed-member matching rule uniform with wire descriptors
// from producers that have inheritance.
func (rt *RuntimeType) memberPositions(name string) []int {
	return rt.memberIdx[name]
}

var (
	typeCacheMu sync.Mutex
	typeCache   = map[reflect.Type]*RuntimeType{}
)

// typeOf interns the RuntimeType for t. First population runs behind the
// cache mutex; the returned value is immutable afterwards.
func typeOf(t reflect.Type) *RuntimeType {
	if t == nil {
		return nil
	}
	// int and uint have platform width; they travel as their 64-bit kinds.
	switch t {
	case intType:
		t = int64Type
	case uintType:
		t = uint64Type
	}
	typeCacheMu.Lock()
	defer typeCacheMu.Unlock()
	return typeOfLocked(t)
}

func typeOfLocked(t reflect.Type) *RuntimeType {
	t = canonicalScalar(t)
	if rt, ok := typeCache[t]; ok {
		return rt
	}
	rt := &RuntimeType{Type: t}
	typeCache[t] = rt // pre-insert so recursive member types can refer back
	classify(rt)
	return rt
}

func typeOfValue(v interface{}) *RuntimeType {
	return typeOf(reflect.TypeOf(v))
}

func classify(rt *RuntimeType) {
	t := rt.Type
	rt.IsSealed = true
	rt.FullName = t.String()
	rt.Assembly = t.PkgPath()

	switch {
	case t == typeDataPtrType:
		rt.Kind = KindType
		rt.IsReference = true
		return
	case t == stringType:
		rt.Kind = KindString
		rt.IsReference = true
		return
	case t == byteSliceType:
		rt.Kind = KindBytes
		rt.IsReference = true
		return
	case t == uuidType:
		rt.Kind = KindGuid
		return
	case t == decimalType:
		rt.Kind = KindDecimal
		return
	}

	if k, ok := scalarKinds[t]; ok {
		rt.Kind = k
		return
	}

	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Int, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uint, reflect.Float32, reflect.Float64:
		// A named scalar type is an enum over its underlying kind.
		rt.Kind = KindObject
		rt.IsEnum = true
		if u := underlyingScalar(t.Kind()); u != nil {
			rt.Element = typeOfLocked(u)
		}
		if rt.Element == nil || !rt.Element.Kind.isIntegral() {
			// Named floats and bools have no enum analog on the wire.
			rt.Kind = KindNone
			rt.IsEnum = false
			rt.Element = nil
		}

	case reflect.Interface:
		rt.Kind = KindObject
		rt.IsReference = true
		rt.IsSealed = false
		rt.IsInterface = true

	case reflect.Ptr:
		elem := t.Elem()
		switch elem.Kind() {
		case reflect.Struct:
			rt.Kind = KindObject
			rt.IsReference = true
			rt.FullName = elem.String()
			rt.Assembly = elem.PkgPath()
			classifyStruct(rt, elem)
		case reflect.Ptr, reflect.Interface, reflect.Chan, reflect.Func,
			reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
			rt.Kind = KindNone
		default:
			// Pointer to scalar or container: the nullable wrapper.
			rt.Kind = KindObject
			rt.IsReference = true
			rt.IsNullable = true
			rt.Element = typeOfLocked(canonicalScalar(elem))
			if rt.Element.Kind == KindNone {
				rt.Kind = KindNone
				rt.IsNullable = false
				rt.Element = nil
			}
		}

	case reflect.Slice:
		rt.Kind = KindObject
		rt.IsReference = true
		if t == interfaceSlice {
			rt.Shape = ShapeUntypedList
		} else {
			rt.Shape = ShapeTypedCollection
			rt.ColElem = typeOfLocked(t.Elem())
		}

	case reflect.Map:
		rt.Kind = KindObject
		rt.IsReference = true
		if t == interfaceMapType {
			rt.Shape = ShapeUntypedDict
		} else {
			rt.Shape = ShapeTypedDict
			rt.ColKey = typeOfLocked(t.Key())
			rt.ColVal = typeOfLocked(t.Elem())
		}

	case reflect.Array:
		rt.Kind = KindObject
		rt.IsReference = true
		rt.IsArray = true
		rt.ArrayRank = 1
		rt.Element = typeOfLocked(t.Elem())

	case reflect.Struct:
		rt.Kind = KindObject
		classifyStruct(rt, t)

	default:
		rt.Kind = KindNone
	}

	if name, asm, ok := DefaultRegistry.nameOf(registryKeyType(t)); ok {
		rt.FullName = name
		if asm != "" {
			rt.Assembly = asm
		}
	}
}

// classifyStruct fills member and capability info shared by bare structs and
// pointer-to-struct types. elem is the struct type itself.
func classifyStruct(rt *RuntimeType, elem reflect.Type) {
	if b := surrogateFor(elem); b != nil {
		rt.SurrogateBinding = b
		rt.SurrogateType = typeOfLocked(reflect.PtrTo(b.surrogate))
		return
	}
	rt.IsCustom = implementsCustom(elem)
	rt.Converter = converterFor(elem)

	rt.memberIdx = map[string][]int{}
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		m := &Member{
			Name:  f.Name,
			Type:  typeOfLocked(f.Type),
			index: f.Index,
		}
		rt.memberIdx[m.Name] = append(rt.memberIdx[m.Name], len(rt.Members))
		rt.Members = append(rt.Members, m)
	}
}

var (
	customSerializableType = reflect.TypeOf((*CustomSerializable)(nil)).Elem()
)

func implementsCustom(t reflect.Type) bool {
	return t.Implements(customSerializableType) ||
		reflect.PtrTo(t).Implements(customSerializableType)
}

func underlyingScalar(k reflect.Kind) reflect.Type {
	switch k {
	case reflect.Int8:
		return int8Type
	case reflect.Int16:
		return int16Type
	case reflect.Int32:
		return int32Type
	case reflect.Int64, reflect.Int:
		return int64Type
	case reflect.Uint8:
		return uint8Type
	case reflect.Uint16:
		return uint16Type
	case reflect.Uint32:
		return uint32Type
	case reflect.Uint64, reflect.Uint:
		return uint64Type
	}
	return nil
}

func canonicalScalar(t reflect.Type) reflect.Type {
	switch t {
	case intType:
		return int64Type
	case uintType:
		return uint64Type
	}
	return t
}

// registryKeyType normalizes a type to its registry identity: struct types
// register once and cover both value and pointer declarations.
func registryKeyType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct {
		return t.Elem()
	}
	return t
}

type registryEntry struct {
	fullName string
	assembly string
	t        reflect.Type
}

// TypeRegistry resolves wire type names to local types: the Reflector
// contract. Buckets are keyed by a murmur3 hash of the full name with the
// stored name confirming the match, so name lookups never compare more than
// a handful of strings.
type TypeRegistry struct {
	mu      sync.RWMutex
	buckets map[uint64][]registryEntry
	reverse map[reflect.Type]registryEntry
}

// DefaultRegistry is consulted by every session that does not carry its own
// registry, and provides the wire names the writer embeds in descriptors.
var DefaultRegistry = NewTypeRegistry()

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		buckets: map[uint64][]registryEntry{},
		reverse: map[reflect.Type]registryEntry{},
	}
}

// Register makes the type of sample resolvable under its own name.
func (r *TypeRegistry) Register(sample interface{}) error {
	t := registryKeyType(reflect.TypeOf(sample))
	return r.register(t.String(), t.PkgPath(), t)
}

// RegisterName makes the type of sample resolvable under an explicit wire
// name, decoupling the stream from the local declaration.
func (r *TypeRegistry) RegisterName(name string, sample interface{}) error {
	t := registryKeyType(reflect.TypeOf(sample))
	return r.register(name, "", t)
}

func (r *TypeRegistry) register(name, assembly string, t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("cannot register a nil type")
	}
	h := murmur3.Sum64([]byte(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.buckets[h] {
		if e.fullName == name && e.assembly == assembly {
			if e.t == t {
				return nil
			}
			return fmt.Errorf("name %s already registered for %s", name, e.t)
		}
	}
	entry := registryEntry{fullName: name, assembly: assembly, t: t}
	r.buckets[h] = append(r.buckets[h], entry)
	if _, ok := r.reverse[t]; !ok {
		r.reverse[t] = entry
	}
	return nil
}

// Lookup resolves a wire name to a local type. An empty assembly on either
// side matches any.
func (r *TypeRegistry) Lookup(fullName, assembly string) (reflect.Type, bool) {
	h := murmur3.Sum64([]byte(fullName))
	r.mu.RLock()
	defer r.mu.RUnlock()
	var loose reflect.Type
	for _, e := range r.buckets[h] {
		if e.fullName != fullName {
			continue
		}
		if e.assembly == assembly {
			return e.t, true
		}
		if e.assembly == "" || assembly == "" {
			loose = e.t
		}
	}
	if loose != nil {
		return loose, true
	}
	return nil, false
}

func (r *TypeRegistry) nameOf(t reflect.Type) (string, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.reverse[t]
	return e.fullName, e.assembly, ok
}
