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
	"io"
	"reflect"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"
)

// Writer encodes one object graph onto a stream: the version header, the
// settings flag word, then the root value written at the universal top type.
// Not safe for concurrent use; one Writer serves one session.
type Writer struct {
	p        *PrimitiveWriter
	ctx      *Context
	settings SerializationSettings

	depth     int
	wroteRoot bool
}

// NewWriter scopes a writing session over w. Close releases the stream.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	o := applyOptions(opts)
	return &Writer{
		p:        NewPrimitiveWriter(w),
		ctx:      newContext(),
		settings: o.settings,
	}
}

// Write encodes v as the stream's root, at the universal top type. A stream
// carries exactly one root.
func (w *Writer) Write(v interface{}) error {
	if w.wroteRoot {
		return errors.New("stream already carries its root value")
	}
	w.wroteRoot = true
	return w.writeValue(typeOf(interfaceType), v)
}

// Close closes the underlying stream exactly once.
func (w *Writer) Close() error {
	return w.p.Close()
}

func (w *Writer) writeValue(expected *RuntimeType, v interface{}) error {
	w.depth++
	defer func() { w.depth-- }()
	if w.depth == 1 {
		if err := w.p.WriteVarUint(wireVersion); err != nil {
			return err
		}
		if err := w.p.WriteVarUint(w.settings.flags()); err != nil {
			return err
		}
	}

	// Types serialize as their on-wire shadows.
	switch tv := v.(type) {
	case reflect.Type:
		v = typeOf(tv).TypeData()
	case *RuntimeType:
		v = tv.TypeData()
	}
	if isNilValue(v) {
		v = nil
	}

	if expected.IsReference {
		if v == nil {
			return w.p.WriteVarUint(0)
		}
		if id, ok := w.ctx.TryGetID(v); ok {
			return w.p.WriteVarUint(id)
		}
		id := w.ctx.NewID()
		if err := w.ctx.Register(id, v); err != nil {
			return err
		}
		if err := w.p.WriteVarUint(id); err != nil {
			return err
		}
	} else if v == nil {
		return &ConstructionError{Type: expected.String(), Cause: errors.New("nil value for a non-reference type")}
	}

	actual := expected
	if expected.IsReference && !expected.IsSealed {
		actual = typeOfValue(v)
		if err := w.writeValue(typeOf(typeDataPtrType), actual.TypeData()); err != nil {
			return err
		}
	}
	if expected.Kind == KindNone || actual.Kind == KindNone {
		return nil
	}

	if actual.SurrogateBinding != nil {
		conv, err := actual.SurrogateBinding.impl.Convert(v)
		if err != nil {
			return errors.Wrapf(err, "surrogate conversion of %s", actual)
		}
		return w.writeValue(typeOf(interfaceType), conv)
	}

	if actual.Converter != nil && !w.settings.IgnoreConverter {
		s, err := actual.Converter.ConvertToString(v)
		if err != nil {
			return errors.Wrapf(err, "string conversion of %s", actual)
		}
		return w.writeValue(typeOf(stringType), s)
	}

	if actual.IsCustom && !w.settings.IgnoreCustom {
		if cs, ok := asCustomSerializable(v); ok {
			return w.writeCustom(cs)
		}
		log.Warningf("%s declares custom serialization but the value does not expose it; writing members", actual)
	}

	return w.writeBody(actual, v)
}

func (w *Writer) writeCustom(cs CustomSerializable) error {
	bag := cs.SerializeNamedValues()
	if err := w.p.WriteVarUint(uint64(len(bag))); err != nil {
		return err
	}
	for _, nv := range bag {
		if err := w.writeValue(typeOf(stringType), nv.Name); err != nil {
			return err
		}
		if err := w.writeValue(typeOf(interfaceType), nv.Value); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeBody(actual *RuntimeType, v interface{}) error {
	rv := reflect.ValueOf(v)
	switch actual.Kind {
	case KindString:
		return w.p.WriteString(rv.String())
	case KindBytes:
		return w.p.WriteBinary(rv.Bytes())
	case KindGuid:
		return w.p.WriteUUID(rv.Interface().(uuid.UUID))
	case KindDecimal:
		return w.p.WriteDecimal(rv.Interface().(decimal.Decimal))
	case KindBool:
		return w.p.WriteBool(rv.Bool())
	case KindChar:
		return w.p.WriteUint16(uint16(rv.Uint()))
	case KindUint8:
		return w.p.WriteByte_(byte(rv.Uint()))
	case KindInt8:
		return w.p.WriteByte_(byte(rv.Int()))
	case KindInt16, KindInt32, KindInt64:
		return w.p.WriteVarInt(rv.Int())
	case KindUint16, KindUint32, KindUint64:
		return w.p.WriteVarUint(rv.Uint())
	case KindFloat32:
		return w.p.WriteFloat32(float32(rv.Float()))
	case KindFloat64:
		return w.p.WriteFloat64(rv.Float())
	case KindType:
		return w.writeTypeDataBody(v.(*TypeData))
	case KindObject:
		return w.writeObjectBody(actual, rv)
	}
	return nil
}

func (w *Writer) writeObjectBody(actual *RuntimeType, rv reflect.Value) error {
	switch {
	case actual.IsArray:
		return w.writeArray(actual, rv)

	case actual.IsNullable:
		return w.writeValue(actual.Element, rv.Elem().Interface())

	case actual.IsEnum:
		if actual.Element.Kind == KindUint8 || actual.Element.Kind == KindUint16 ||
			actual.Element.Kind == KindUint32 || actual.Element.Kind == KindUint64 {
			return w.p.WriteVarUint(rv.Uint())
		}
		return w.p.WriteVarInt(rv.Int())

	default:
		target := rv
		if target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		for _, m := range actual.Members {
			if err := w.writeValue(m.Type, m.get(target).Interface()); err != nil {
				return errors.Wrapf(err, "member %s.%s", actual, m.Name)
			}
		}
		return w.writeCollectionTail(actual, rv)
	}
}

func (w *Writer) writeArray(actual *RuntimeType, rv reflect.Value) error {
	if rv.Kind() != reflect.Array {
		return &ArrayRankMismatchError{Declared: actual.ArrayRank, Actual: 0}
	}
	if actual.ArrayRank != 1 {
		return &ArrayRankMismatchError{Declared: actual.ArrayRank, Actual: 1}
	}
	n := rv.Len()
	if err := w.p.WriteVarUint(uint64(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.writeValue(actual.Element, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeCollectionTail(actual *RuntimeType, rv reflect.Value) error {
	if actual.Shape == ShapeNone {
		return nil
	}
	// Go has no read-only collections; the flag is emitted for the reader's
	// benefit and is always false here.
	if err := w.p.WriteBool(false); err != nil {
		return err
	}
	switch actual.Shape {
	case ShapeUntypedList, ShapeTypedCollection:
		elemRT := actual.ColElem
		if elemRT == nil {
			elemRT = typeOf(interfaceType)
		}
		n := rv.Len()
		if err := w.p.WriteVarUint(uint64(n)); err != nil {
			return err
		}
		written := 0
		for i := 0; i < n; i++ {
			if err := w.writeValue(elemRT, rv.Index(i).Interface()); err != nil {
				return err
			}
			written++
		}
		if written != n {
			return &CountMismatchError{Expected: n, Actual: written}
		}

	case ShapeUntypedDict, ShapeTypedDict:
		keyRT, valRT := actual.ColKey, actual.ColVal
		if keyRT == nil {
			keyRT = typeOf(interfaceType)
		}
		if valRT == nil {
			valRT = typeOf(interfaceType)
		}
		n := rv.Len()
		if err := w.p.WriteVarUint(uint64(n)); err != nil {
			return err
		}
		written := 0
		iter := rv.MapRange()
		for iter.Next() {
			if err := w.writeValue(keyRT, iter.Key().Interface()); err != nil {
				return err
			}
			if err := w.writeValue(valRT, iter.Value().Interface()); err != nil {
				return err
			}
			written++
		}
		if written != n {
			return &CountMismatchError{Expected: n, Actual: written}
		}
	}
	return nil
}

func (w *Writer) writeTypeDataBody(td *TypeData) error {
	if err := w.p.WriteVarUint(td.flags()); err != nil {
		return err
	}
	if !td.Supported || !td.hasBody() {
		return nil
	}
	if err := w.writeTypeDataRef(td.Element); err != nil {
		return err
	}
	if err := w.writeTypeDataRef(td.Surrogate); err != nil {
		return err
	}
	if err := w.p.WriteVarUint(uint64(len(td.GenericParams))); err != nil {
		return err
	}
	for _, p := range td.GenericParams {
		if err := w.writeTypeDataRef(p); err != nil {
			return err
		}
	}
	if td.hasNameSection() {
		if err := w.writeValue(typeOf(stringType), td.FullName); err != nil {
			return err
		}
		if err := w.writeValue(typeOf(stringType), td.Assembly); err != nil {
			return err
		}
		if err := w.p.WriteVarUint(uint64(td.GenericParameterIndex)); err != nil {
			return err
		}
		if err := w.writeTypeDataRef(td.BaseType); err != nil {
			return err
		}
		if err := w.p.WriteVarUint(uint64(td.ArrayRank)); err != nil {
			return err
		}
	}
	if td.hasMemberSection() {
		members := td.Members
		if w.settings.SkipMemberData {
			members = nil
		}
		if err := w.p.WriteVarUint(uint64(len(members))); err != nil {
			return err
		}
		for _, m := range members {
			if err := w.writeValue(typeOf(stringType), m.Name); err != nil {
				return err
			}
			if err := w.writeTypeDataRef(m.Type); err != nil {
				return err
			}
		}
		if err := w.writeTypeDataRef(td.Collection1); err != nil {
			return err
		}
		if err := w.writeTypeDataRef(td.Collection2); err != nil {
			return err
		}
	}
	return nil
}

// writeTypeDataRef reference-encodes a descriptor slot; empty slots emit a
// null reference.
func (w *Writer) writeTypeDataRef(td *TypeData) error {
	if td == nil {
		return w.writeValue(typeOf(typeDataPtrType), nil)
	}
	return w.writeValue(typeOf(typeDataPtrType), td)
}

func asCustomSerializable(v interface{}) (CustomSerializable, bool) {
	if cs, ok := v.(CustomSerializable); ok {
		return cs, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Struct {
		pv := reflect.New(rv.Type())
		pv.Elem().Set(rv)
		if cs, ok := pv.Interface().(CustomSerializable); ok {
			return cs, true
		}
	}
	return nil, false
}

func isNilValue(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}
