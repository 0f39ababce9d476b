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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	type sample struct {
		A int32
		b int32 // unexported, not a member
		C string
	}
	var tests = []struct {
		value     interface{}
		kind      PrimitiveKind
		reference bool
		sealed    bool
	}{
		{"s", KindString, true, true},
		{[]byte{1}, KindBytes, true, true},
		{true, KindBool, false, true},
		{Char('x'), KindChar, false, true},
		{int8(1), KindInt8, false, true},
		{int16(1), KindInt16, false, true},
		{int32(1), KindInt32, false, true},
		{int64(1), KindInt64, false, true},
		{uint8(1), KindUint8, false, true},
		{uint16(1), KindUint16, false, true},
		{uint32(1), KindUint32, false, true},
		{uint64(1), KindUint64, false, true},
		{float32(1), KindFloat32, false, true},
		{float64(1), KindFloat64, false, true},
		{&sample{}, KindObject, true, true},
		{sample{}, KindObject, false, true},
		{[]string{}, KindObject, true, true},
		{map[string]int32{}, KindObject, true, true},
		{[2]int32{}, KindObject, true, true},
	}
	for _, test := range tests {
		rt := typeOfValue(test.value)
		require.Equal(t, test.kind, rt.Kind, "%T", test.value)
		require.Equal(t, test.reference, rt.IsReference, "%T", test.value)
		require.Equal(t, test.sealed, rt.IsSealed, "%T", test.value)
	}

	rt := typeOfValue(&sample{})
	require.Len(t, rt.Members, 2)
	require.Equal(t, "A", rt.Members[0].Name)
	require.Equal(t, "C", rt.Members[1].Name)
}

func TestClassificationInterface(t *testing.T) {
	rt := typeOf(interfaceType)
	require.Equal(t, KindObject, rt.Kind)
	require.True(t, rt.IsReference)
	require.False(t, rt.IsSealed)
	require.True(t, rt.IsInterface)
}

func TestClassificationCollectionShapes(t *testing.T) {
	var tests = []struct {
		value interface{}
		shape CollectionShape
	}{
		{[]interface{}{}, ShapeUntypedList},
		{map[interface{}]interface{}{}, ShapeUntypedDict},
		{[]int32{}, ShapeTypedCollection},
		{map[string]int64{}, ShapeTypedDict},
	}
	for _, test := range tests {
		rt := typeOfValue(test.value)
		require.Equal(t, test.shape, rt.Shape, "%T", test.value)
	}
	rt := typeOfValue(map[string]int64{})
	require.Equal(t, KindString, rt.ColKey.Kind)
	require.Equal(t, KindInt64, rt.ColVal.Kind)
}

func TestClassificationNullable(t *testing.T) {
	rt := typeOfValue((*int32)(nil))
	require.Equal(t, KindObject, rt.Kind)
	require.True(t, rt.IsNullable)
	require.True(t, rt.IsReference)
	require.Equal(t, KindInt32, rt.Element.Kind)
}

func TestClassificationEnum(t *testing.T) {
	type mode uint16
	rt := typeOfValue(mode(1))
	require.Equal(t, KindObject, rt.Kind)
	require.True(t, rt.IsEnum)
	require.Equal(t, KindUint16, rt.Element.Kind)
}

func TestClassificationUnsupported(t *testing.T) {
	require.Equal(t, KindNone, typeOfValue(make(chan int)).Kind)
	require.Equal(t, KindNone, typeOfValue(func() {}).Kind)
	require.Equal(t, KindNone, typeOfValue(complex(1, 2)).Kind)
}

func TestTypeInterning(t *testing.T) {
	a := typeOf(reflect.TypeOf(int32(0)))
	b := typeOf(reflect.TypeOf(int32(0)))
	require.True(t, a == b)
	require.True(t, a.TypeData() == b.TypeData())
}

func TestIntCanonicalization(t *testing.T) {
	require.True(t, typeOf(intType) == typeOf(int64Type))
	require.True(t, typeOf(uintType) == typeOf(uint64Type))
}

func TestRegistryLookup(t *testing.T) {
	type registered struct {
		F1 string
	}
	reg := NewTypeRegistry()
	require.Nil(t, reg.Register(registered{}))
	require.Nil(t, reg.RegisterName("demo.Registered", registered{}))
	require.Error(t, reg.RegisterName("demo.Registered", struct{ Other int32 }{}))

	tt, ok := reg.Lookup(reflect.TypeOf(registered{}).String(), reflect.TypeOf(registered{}).PkgPath())
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(registered{}), tt)

	// An empty assembly on either side matches loosely.
	tt, ok = reg.Lookup(reflect.TypeOf(registered{}).String(), "")
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(registered{}), tt)

	_, ok = reg.Lookup("no.Such", "")
	require.False(t, ok)
}

func TestRegistryPointerNormalization(t *testing.T) {
	type pn struct{ X int32 }
	reg := NewTypeRegistry()
	require.Nil(t, reg.Register(&pn{}))
	tt, ok := reg.Lookup(reflect.TypeOf(pn{}).String(), reflect.TypeOf(pn{}).PkgPath())
	require.True(t, ok)
	require.Equal(t, reflect.Struct, tt.Kind())
}
