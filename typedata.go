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

// TypeMember is one named field of an on-wire type descriptor.
type TypeMember struct {
	Name string
	Type *TypeData
}

// TypeData is the on-wire shadow of a RuntimeType: enough schema for a
// consumer to decode the value body even when the producer's type is not
// available locally. A TypeData is itself a reference object in the stream;
// descriptors referenced from its body (element, surrogate, base, member and
// collection types) are reference-encoded, which is how the well-known
// preamble descriptors are shared without transmission.
type TypeData struct {
	Supported bool
	Kind      PrimitiveKind

	IsInterface         bool
	IsCustom            bool
	IsReference         bool
	IsSealed            bool
	IsArray             bool
	IsNullable          bool
	IsEnum              bool
	IsGeneric           bool
	IsGenericParameter  bool
	IsGenericDefinition bool
	HasConverter        bool

	Shape CollectionShape

	Element       *TypeData
	Surrogate     *TypeData
	GenericParams []*TypeData

	FullName              string
	Assembly              string
	GenericParameterIndex int
	BaseType              *TypeData
	ArrayRank             int

	Members     []*TypeMember
	Collection1 *TypeData
	Collection2 *TypeData

	// local backs descriptors built from a RuntimeType on the write side;
	// descriptors decoded from a stream resolve through a registry instead.
	local        *RuntimeType
	resolvedDone bool
	resolvedRT   *RuntimeType
}

const (
	tdFlagSupported uint64 = 1 << iota
	tdFlagInterface
	tdFlagCustom
	tdFlagReference
	tdFlagSealed
	tdFlagArray
	tdFlagNullable
	tdFlagEnum
	tdFlagGeneric
	tdFlagGenericParameter
	tdFlagGenericDefinition
	tdFlagConverter

	tdKindShift  = 12
	tdShapeShift = 17
)

func (td *TypeData) flags() uint64 {
	if !td.Supported {
		return 0
	}
	f := tdFlagSupported
	if td.IsInterface {
		f |= tdFlagInterface
	}
	if td.IsCustom {
		f |= tdFlagCustom
	}
	if td.IsReference {
		f |= tdFlagReference
	}
	if td.IsSealed {
		f |= tdFlagSealed
	}
	if td.IsArray {
		f |= tdFlagArray
	}
	if td.IsNullable {
		f |= tdFlagNullable
	}
	if td.IsEnum {
		f |= tdFlagEnum
	}
	if td.IsGeneric {
		f |= tdFlagGeneric
	}
	if td.IsGenericParameter {
		f |= tdFlagGenericParameter
	}
	if td.IsGenericDefinition {
		f |= tdFlagGenericDefinition
	}
	if td.HasConverter {
		f |= tdFlagConverter
	}
	f |= uint64(td.Kind) << tdKindShift
	f |= uint64(td.Shape) << tdShapeShift
	return f
}

func (td *TypeData) setFlags(f uint64) error {
	if f&tdFlagSupported == 0 {
		return malformed("descriptor flag word without its low bit", nil)
	}
	kind := PrimitiveKind(f >> tdKindShift & 0x1f)
	shape := CollectionShape(f >> tdShapeShift & 0x7)
	if kind >= kindMax || shape >= shapeMax {
		return malformed("descriptor flag word carries an unknown tag", nil)
	}
	td.Supported = true
	td.Kind = kind
	td.Shape = shape
	td.IsInterface = f&tdFlagInterface != 0
	td.IsCustom = f&tdFlagCustom != 0
	td.IsReference = f&tdFlagReference != 0
	td.IsSealed = f&tdFlagSealed != 0
	td.IsArray = f&tdFlagArray != 0
	td.IsNullable = f&tdFlagNullable != 0
	td.IsEnum = f&tdFlagEnum != 0
	td.IsGeneric = f&tdFlagGeneric != 0
	td.IsGenericParameter = f&tdFlagGenericParameter != 0
	td.IsGenericDefinition = f&tdFlagGenericDefinition != 0
	td.HasConverter = f&tdFlagConverter != 0
	return nil
}

// hasBody reports whether descriptor fields follow the flag word. String,
// Bytes, Type and the scalar kinds are fully described by their flags.
func (td *TypeData) hasBody() bool {
	return td.Kind == KindNone || td.Kind == KindObject
}

// hasNameSection reports whether the name/base/rank section is on the wire.
// Constructed generics omit it: their schema is recovered by substituting
// their argument list into the generic definition.
func (td *TypeData) hasNameSection() bool {
	return !td.IsGeneric || td.IsGenericDefinition
}

// hasMemberSection reports whether the member list and collection types are
// on the wire.
func (td *TypeData) hasMemberSection() bool {
	return td.Surrogate == nil &&
		!td.IsInterface && !td.IsArray && !td.IsEnum && !td.IsGenericParameter &&
		td.hasNameSection()
}

const modulePath = "github.com/incoplex/graphcodec"

var (
	tdBuildMu     sync.Mutex
	nullableDefTD *TypeData
)

// nullableDefinition is the generic-definition descriptor every pointer-to-
// scalar type is a construction of. It occupies well-known slot 5.
func nullableDefinition() *TypeData {
	tdBuildMu.Lock()
	defer tdBuildMu.Unlock()
	return nullableDefinitionLocked()
}

func nullableDefinitionLocked() *TypeData {
	if nullableDefTD == nil {
		param := &TypeData{
			Supported:          true,
			Kind:               KindObject,
			IsGenericParameter: true,
			FullName:           "T",
		}
		nullableDefTD = &TypeData{
			Supported:           true,
			Kind:                KindObject,
			IsReference:         true,
			IsSealed:            true,
			IsNullable:          true,
			IsGeneric:           true,
			IsGenericDefinition: true,
			GenericParams:       []*TypeData{param},
			FullName:            "graphcodec.Nullable",
			Assembly:            modulePath,
		}
	}
	return nullableDefTD
}

// legacyDescriptorTypeData fills well-known slot 4. The slot once carried
// the descriptor of a since-renamed runtime type; it is kept so the ids of
// every later slot stay stable, and it is never emitted.
func legacyDescriptorTypeData() *TypeData {
	return &TypeData{
		Supported:   true,
		Kind:        KindObject,
		IsReference: true,
		IsSealed:    true,
		FullName:    "graphcodec.RuntimeType",
		Assembly:    modulePath,
	}
}

// TypeData returns the interned on-wire shadow of rt. Descriptors are built
// once per RuntimeType; recursive types see their own partially built
// descriptor, which is what makes self-referential schemas finite.
func (rt *RuntimeType) TypeData() *TypeData {
	tdBuildMu.Lock()
	defer tdBuildMu.Unlock()
	return rt.typeDataLocked()
}

func (rt *RuntimeType) typeDataLocked() *TypeData {
	if rt.td != nil {
		return rt.td
	}
	td := &TypeData{
		Supported:   rt.Kind != KindNone,
		Kind:        rt.Kind,
		IsInterface: rt.IsInterface,
		IsCustom:    rt.IsCustom,
		IsReference: rt.IsReference,
		IsSealed:    rt.IsSealed,
		IsArray:     rt.IsArray,
		IsNullable:  rt.IsNullable,
		IsEnum:      rt.IsEnum,
		Shape:       rt.Shape,
		ArrayRank:   rt.ArrayRank,
		FullName:    rt.FullName,
		Assembly:    rt.Assembly,
		local:       rt,
	}
	rt.td = td
	if !td.Supported || td.Kind != KindObject {
		return td
	}

	switch {
	case rt.IsNullable:
		// The one constructed generic local types produce.
		td.IsGeneric = true
		td.Element = nullableDefinitionLocked()
		td.GenericParams = []*TypeData{rt.Element.typeDataLocked()}

	case rt.IsArray:
		td.Element = rt.Element.typeDataLocked()

	case rt.IsEnum:
		td.Element = rt.Element.typeDataLocked()

	default:
		if rt.SurrogateType != nil {
			td.Surrogate = rt.SurrogateType.typeDataLocked()
			return td
		}
		td.HasConverter = rt.Converter != nil
		for _, m := range rt.Members {
			td.Members = append(td.Members, &TypeMember{
				Name: m.Name,
				Type: m.Type.typeDataLocked(),
			})
		}
		switch rt.Shape {
		case ShapeTypedCollection:
			td.Collection1 = rt.ColElem.typeDataLocked()
		case ShapeTypedDict:
			td.Collection1 = rt.ColKey.typeDataLocked()
			td.Collection2 = rt.ColVal.typeDataLocked()
		}
	}
	return td
}

// elementTypeData is the descriptor values of this type recurse at: the
// inner type for nullables, the element type for arrays and enums.
func (td *TypeData) elementTypeData() *TypeData {
	if td.IsNullable && len(td.GenericParams) == 1 {
		return td.GenericParams[0]
	}
	return td.Element
}

// substituteFromDefinition reconstructs the schema of a constructed generic
// from its generic definition. The wire carries only the definition's
// schema; base, members and collection types of the construction are derived
// by replacing each generic parameter with the matching argument.
func (td *TypeData) substituteFromDefinition() {
	def := td.Element
	if def == nil {
		return
	}
	args := td.GenericParams
	if td.FullName == "" {
		td.FullName = def.FullName
		td.Assembly = def.Assembly
	}
	td.BaseType = substituteTypeData(def.BaseType, args)
	if td.Surrogate == nil && def.Surrogate != nil {
		td.Surrogate = substituteTypeData(def.Surrogate, args)
	}
	if len(td.Members) == 0 {
		for _, m := range def.Members {
			td.Members = append(td.Members, &TypeMember{
				Name: m.Name,
				Type: substituteTypeData(m.Type, args),
			})
		}
	}
	td.Collection1 = substituteTypeData(def.Collection1, args)
	td.Collection2 = substituteTypeData(def.Collection2, args)
}

func substituteTypeData(td *TypeData, args []*TypeData) *TypeData {
	if td == nil {
		return nil
	}
	if td.IsGenericParameter {
		if td.GenericParameterIndex < len(args) {
			return args[td.GenericParameterIndex]
		}
		return td
	}
	if td.IsGeneric && !td.IsGenericDefinition {
		sub := &TypeData{}
		*sub = *td
		sub.local = nil
		sub.resolvedDone = false
		sub.resolvedRT = nil
		sub.GenericParams = make([]*TypeData, len(td.GenericParams))
		changed := false
		for i, p := range td.GenericParams {
			sub.GenericParams[i] = substituteTypeData(p, args)
			if sub.GenericParams[i] != p {
				changed = true
			}
		}
		if !changed {
			return td
		}
		sub.Members = nil
		sub.substituteFromDefinition()
		return sub
	}
	return td
}

// resolve maps the descriptor to a local RuntimeType, or nil when the local
// process has no counterpart. Locally built descriptors resolve to their
// origin; decoded ones resolve structurally for the builtin shapes and
// through the registry for named types. The result is cached: a session uses
// one registry for its whole lifetime.
func (td *TypeData) resolve(reg *TypeRegistry) *RuntimeType {
	if td.local != nil {
		return td.local
	}
	if td.resolvedDone {
		return td.resolvedRT
	}
	td.resolvedDone = true
	td.resolvedRT = td.resolveUncached(reg)
	return td.resolvedRT
}

func (td *TypeData) resolveUncached(reg *TypeRegistry) *RuntimeType {
	if !td.Supported {
		return nil
	}
	switch td.Kind {
	case KindString:
		return typeOf(stringType)
	case KindBytes:
		return typeOf(byteSliceType)
	case KindGuid:
		return typeOf(uuidType)
	case KindDecimal:
		return typeOf(decimalType)
	case KindBool:
		return typeOf(boolType)
	case KindChar:
		return typeOf(charType)
	case KindUint8:
		return typeOf(uint8Type)
	case KindInt8:
		return typeOf(int8Type)
	case KindInt16:
		return typeOf(int16Type)
	case KindUint16:
		return typeOf(uint16Type)
	case KindInt32:
		return typeOf(int32Type)
	case KindUint32:
		return typeOf(uint32Type)
	case KindInt64:
		return typeOf(int64Type)
	case KindUint64:
		return typeOf(uint64Type)
	case KindFloat32:
		return typeOf(float32Type)
	case KindFloat64:
		return typeOf(float64Type)
	case KindType:
		return typeOf(typeDataPtrType)
	case KindObject:
		return td.resolveObject(reg)
	}
	return nil
}

func (td *TypeData) resolveObject(reg *TypeRegistry) *RuntimeType {
	switch {
	case td.IsInterface:
		return typeOf(interfaceType)

	case td.IsEnum:
		t, ok := reg.Lookup(td.FullName, td.Assembly)
		if !ok {
			return nil
		}
		rt := typeOf(t)
		if !rt.IsEnum {
			return nil
		}
		return rt

	case td.IsNullable && len(td.GenericParams) == 1:
		inner := td.GenericParams[0].resolve(reg)
		if inner == nil {
			return nil
		}
		return typeOf(reflect.PtrTo(inner.Type))

	case td.IsArray:
		// Element access is enough: the value body carries the lengths, so
		// the reader builds the concrete array type per value.
		elem := td.Element.resolveOrNil(reg)
		if elem == nil {
			return nil
		}
		return typeOf(reflect.SliceOf(elem.Type))

	case td.Shape == ShapeUntypedList:
		return typeOf(interfaceSlice)

	case td.Shape == ShapeUntypedDict:
		return typeOf(interfaceMapType)

	case td.Shape == ShapeTypedCollection:
		elem := td.Collection1.resolveOrNil(reg)
		if elem == nil {
			return nil
		}
		return typeOf(reflect.SliceOf(elem.Type))

	case td.Shape == ShapeTypedDict:
		key := td.Collection1.resolveOrNil(reg)
		val := td.Collection2.resolveOrNil(reg)
		if key == nil || val == nil || !key.Type.Comparable() {
			return nil
		}
		return typeOf(reflect.MapOf(key.Type, val.Type))
	}

	t, ok := reg.Lookup(td.FullName, td.Assembly)
	if !ok {
		return nil
	}
	if t.Kind() == reflect.Struct && td.IsReference {
		t = reflect.PtrTo(t)
	}
	return typeOf(t)
}

func (td *TypeData) resolveOrNil(reg *TypeRegistry) *RuntimeType {
	if td == nil {
		return nil
	}
	return td.resolve(reg)
}
