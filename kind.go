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

// PrimitiveKind is the closed tag set every wire value is dispatched on.
// KindObject covers user-defined reference and value types, KindNone marks
// a type the codec cannot carry.
type PrimitiveKind uint8

const (
	KindNone PrimitiveKind = iota
	KindObject
	KindType
	KindString
	KindBytes
	KindGuid
	KindBool
	KindChar
	KindUint8
	KindInt8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindDecimal

	kindMax
)

// Char is a UTF-16 code unit. Go has no dedicated character scalar (rune is
// an int32 alias), so values of this declared type carry the char kind.
type Char uint16

var kindNames = [...]string{
	KindNone:    "None",
	KindObject:  "Object",
	KindType:    "Type",
	KindString:  "String",
	KindBytes:   "Bytes",
	KindGuid:    "Guid",
	KindBool:    "Bool",
	KindChar:    "Char",
	KindUint8:   "Uint8",
	KindInt8:    "Int8",
	KindInt16:   "Int16",
	KindUint16:  "Uint16",
	KindInt32:   "Int32",
	KindUint32:  "Uint32",
	KindInt64:   "Int64",
	KindUint64:  "Uint64",
	KindFloat32: "Float32",
	KindFloat64: "Float64",
	KindDecimal: "Decimal",
}

func (k PrimitiveKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

func (k PrimitiveKind) isIntegral() bool {
	switch k {
	case KindUint8, KindInt8, KindInt16, KindUint16,
		KindInt32, KindUint32, KindInt64, KindUint64:
		return true
	}
	return false
}

// CollectionShape describes how a container type stores its elements on the
// wire, after any member fields.
type CollectionShape uint8

const (
	ShapeNone CollectionShape = iota
	ShapeUntypedList
	ShapeUntypedDict
	ShapeTypedCollection
	ShapeTypedDict

	shapeMax
)

var shapeNames = [...]string{
	ShapeNone:            "None",
	ShapeUntypedList:     "UntypedList",
	ShapeUntypedDict:     "UntypedDict",
	ShapeTypedCollection: "TypedCollection",
	ShapeTypedDict:       "TypedDict",
}

func (s CollectionShape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return "Unknown"
}
