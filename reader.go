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
	"sort"

	"github.com/pkg/errors"
)

// Reader decodes one object graph from a stream. It is driven by the wire
// descriptors: local types only matter for instantiation and assignment, so
// a stream whose types are absent here still decodes, into ObjectData.
// Not safe for concurrent use; one Reader serves one session.
type Reader struct {
	p        *PrimitiveReader
	ctx      *Context
	registry *TypeRegistry
	settings SerializationSettings

	depth      int
	readHeader bool
	notified   int
}

// NewReader scopes a reading session over r. Close releases the stream.
func NewReader(r io.Reader, opts ...Option) *Reader {
	o := applyOptions(opts)
	return &Reader{
		p:        NewPrimitiveReader(r),
		ctx:      newContext(),
		registry: o.registry,
	}
}

// Read decodes the stream's root value and applies local coercion: an
// ObjectData whose type has become resolvable is materialized before return.
func (r *Reader) Read() (interface{}, error) {
	v, err := r.readRoot()
	if err != nil {
		return nil, err
	}
	return r.materialize(v), nil
}

// ReadRaw decodes the stream's root value, leaving ObjectData fallbacks
// unconverted.
func (r *Reader) ReadRaw() (interface{}, error) {
	return r.readRoot()
}

// Close closes the underlying stream exactly once.
func (r *Reader) Close() error {
	return r.p.Close()
}

// Settings returns the settings flag word decoded from the stream header.
// Zero until the first Read or ReadRaw call has consumed the header.
func (r *Reader) Settings() SerializationSettings {
	return r.settings
}

func (r *Reader) readRoot() (interface{}, error) {
	v, err := r.readValue(typeOf(interfaceType).TypeData())
	if err != nil {
		return nil, err
	}
	r.notifyDeserialized()
	return v, nil
}

// notifyDeserialized dispatches the post-construction callbacks, in id
// order, to every object registered since the previous dispatch. Decode
// order is not id order: an object's descriptor registers between the
// object's id and its instance.
func (r *Reader) notifyDeserialized() {
	pending := append([]uint64(nil), r.ctx.order[r.notified:]...)
	r.notified = len(r.ctx.order)
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	for _, id := range pending {
		obj := r.ctx.objects[id]
		if cb, ok := obj.(DeserializationCallback); ok {
			cb.OnDeserialization()
		}
		if d, ok := obj.(Deserialized); ok {
			d.OnDeserialized()
		}
	}
}

func (r *Reader) readValue(expected *TypeData) (interface{}, error) {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth == 1 && !r.readHeader {
		r.readHeader = true
		ver, err := r.p.ReadVarUint()
		if err != nil {
			return nil, err
		}
		if ver != wireVersion {
			return nil, &UnsupportedVersionError{Got: ver}
		}
		flags, err := r.p.ReadVarUint()
		if err != nil {
			return nil, err
		}
		if r.settings, err = settingsFromFlags(flags); err != nil {
			return nil, err
		}
	}

	var id uint64
	fresh := false
	if expected.IsReference {
		var err error
		if id, err = r.p.ReadVarUint(); err != nil {
			return nil, err
		}
		if id == 0 {
			return nil, nil
		}
		if obj, ok := r.ctx.TryGetObject(id); ok {
			return obj, nil
		}
		fresh = true
	}

	actual := expected
	if expected.IsReference && !expected.IsSealed {
		tv, err := r.readValue(typeOf(typeDataPtrType).TypeData())
		if err != nil {
			return nil, err
		}
		td, ok := tv.(*TypeData)
		if !ok || td == nil {
			return nil, malformed("missing actual-type descriptor", nil)
		}
		actual = td
	}

	if !actual.Supported {
		od := &ObjectData{TypeData: actual}
		if err := r.register(fresh, id, od); err != nil {
			return nil, err
		}
		log.Infof("unsupported wire type %s; carrying as ObjectData", actual.FullName)
		return od, nil
	}

	rt := actual.resolve(r.registry)

	if actual.Surrogate != nil {
		return r.readSurrogate(actual, rt, fresh, id)
	}
	if actual.HasConverter && !r.settings.IgnoreConverter {
		return r.readConverted(actual, rt, fresh, id)
	}
	if actual.IsCustom && !r.settings.IgnoreCustom {
		return r.readCustom(actual, rt, fresh, id)
	}
	return r.readKind(actual, rt, fresh, id)
}

func (r *Reader) register(fresh bool, id uint64, v interface{}) error {
	if !fresh {
		return nil
	}
	return r.ctx.Register(id, v)
}

func (r *Reader) readSurrogate(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	o, err := r.readValue(typeOf(interfaceType).TypeData())
	if err != nil {
		return nil, err
	}
	if rt != nil && rt.SurrogateBinding != nil {
		orig, err := rt.SurrogateBinding.impl.Revert(o)
		if err != nil {
			return nil, errors.Wrapf(err, "surrogate reversion of %s", actual.FullName)
		}
		return orig, r.register(fresh, id, orig)
	}
	log.Infof("no local surrogate for %s; carrying as ObjectData", actual.FullName)
	od := &ObjectData{TypeData: actual, SurrogateObject: o}
	return od, r.register(fresh, id, od)
}

func (r *Reader) readConverted(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	sv, err := r.readValue(typeOf(stringType).TypeData())
	if err != nil {
		return nil, err
	}
	s, _ := sv.(string)
	if rt != nil && rt.Converter != nil {
		v, err := rt.Converter.ConvertFromString(s)
		if err != nil {
			return nil, errors.Wrapf(err, "string conversion of %s", actual.FullName)
		}
		return v, r.register(fresh, id, v)
	}
	log.Infof("no local converter for %s; carrying as ObjectData", actual.FullName)
	od := &ObjectData{TypeData: actual, ConverterString: s}
	return od, r.register(fresh, id, od)
}

var customDeserializableType = reflect.TypeOf((*CustomDeserializable)(nil)).Elem()

func (r *Reader) readCustom(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	n, err := r.p.ReadVarUint()
	if err != nil {
		return nil, err
	}

	var elemT reflect.Type
	if rt != nil {
		elemT = rt.Type
		if elemT.Kind() == reflect.Ptr {
			elemT = elemT.Elem()
		}
	}
	canLoad := elemT != nil && reflect.PtrTo(elemT).Implements(customDeserializableType)

	var pv reflect.Value
	var od *ObjectData
	if canLoad {
		// Register before the bag is read so cycles through the instance
		// resolve to it.
		pv = reflect.New(elemT)
		if err := r.register(fresh, id, pv.Interface()); err != nil {
			return nil, err
		}
	} else {
		od = &ObjectData{TypeData: actual}
		if err := r.register(fresh, id, od); err != nil {
			return nil, err
		}
	}

	bag := make([]NamedValue, 0, n)
	for i := uint64(0); i < n; i++ {
		nv, err := r.readValue(typeOf(stringType).TypeData())
		if err != nil {
			return nil, err
		}
		name, _ := nv.(string)
		v, err := r.readValue(typeOf(interfaceType).TypeData())
		if err != nil {
			return nil, err
		}
		bag = append(bag, NamedValue{Name: name, Value: v})
	}

	if !canLoad {
		od.Info = bag
		return od, nil
	}
	if err := pv.Interface().(CustomDeserializable).DeserializeNamedValues(bag); err != nil {
		return nil, &ConstructionError{Type: actual.FullName, Cause: err}
	}
	if rt.Type.Kind() == reflect.Ptr {
		return pv.Interface(), nil
	}
	return pv.Elem().Interface(), nil
}

func (r *Reader) readKind(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	var v interface{}
	var err error
	switch actual.Kind {
	case KindString:
		v, err = r.p.ReadString()
	case KindBytes:
		v, err = r.p.ReadBinary()
	case KindGuid:
		v, err = r.p.ReadUUID()
	case KindDecimal:
		v, err = r.p.ReadDecimal()
	case KindBool:
		v, err = r.p.ReadBool()
	case KindChar:
		var c uint16
		c, err = r.p.ReadUint16()
		v = Char(c)
	case KindUint8:
		var b byte
		b, err = r.p.ReadByte_()
		v = b
	case KindInt8:
		var b byte
		b, err = r.p.ReadByte_()
		v = int8(b)
	case KindInt16:
		var i int64
		i, err = r.p.ReadVarInt()
		v = int16(i)
	case KindInt32:
		var i int64
		i, err = r.p.ReadVarInt()
		v = int32(i)
	case KindInt64:
		v, err = r.p.ReadVarInt()
	case KindUint16:
		var u uint64
		u, err = r.p.ReadVarUint()
		v = uint16(u)
	case KindUint32:
		var u uint64
		u, err = r.p.ReadVarUint()
		v = uint32(u)
	case KindUint64:
		v, err = r.p.ReadVarUint()
	case KindFloat32:
		v, err = r.p.ReadFloat32()
	case KindFloat64:
		v, err = r.p.ReadFloat64()
	case KindType:
		return r.readTypeData(fresh, id)
	case KindObject:
		return r.readObjectKind(actual, rt, fresh, id)
	default:
		return nil, malformed("value with no decodable kind", nil)
	}
	if err != nil {
		return nil, err
	}
	return v, r.register(fresh, id, v)
}

func (r *Reader) readTypeData(fresh bool, id uint64) (*TypeData, error) {
	td := &TypeData{}
	if err := r.register(fresh, id, td); err != nil {
		return nil, err
	}
	if err := r.readTypeDataBody(td); err != nil {
		return nil, err
	}
	return td, nil
}

func (r *Reader) readObjectKind(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	switch {
	case actual.IsArray:
		return r.readArray(actual, rt, fresh, id)

	case actual.IsNullable:
		inner := actual.elementTypeData()
		if inner == nil {
			return nil, malformed("nullable descriptor without an inner type", nil)
		}
		v, err := r.readValue(inner)
		if err != nil {
			return nil, err
		}
		if rt == nil || rt.Type.Kind() != reflect.Ptr {
			return v, r.register(fresh, id, v)
		}
		pv := reflect.New(rt.Type.Elem())
		if err := assignValue(pv.Elem(), v); err != nil {
			return nil, err
		}
		res := pv.Interface()
		return res, r.register(fresh, id, res)

	case actual.IsEnum:
		return r.readEnum(actual, rt, fresh, id)

	default:
		return r.readObject(actual, rt, fresh, id)
	}
}

func (r *Reader) readEnum(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	under := actual.Element
	signed := true
	if under != nil {
		switch under.Kind {
		case KindUint8, KindUint16, KindUint32, KindUint64:
			signed = false
		}
	}
	var raw interface{}
	if signed {
		i, err := r.p.ReadVarInt()
		if err != nil {
			return nil, err
		}
		raw = i
	} else {
		u, err := r.p.ReadVarUint()
		if err != nil {
			return nil, err
		}
		raw = u
	}
	if rt == nil {
		log.Infof("enum %s has no local counterpart; yielding its underlying value", actual.FullName)
		return raw, r.register(fresh, id, raw)
	}
	ev := reflect.ValueOf(raw).Convert(rt.Type).Interface()
	return ev, r.register(fresh, id, ev)
}

func (r *Reader) readArray(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	rank := actual.ArrayRank
	if rank < 1 {
		rank = 1
	}
	lens := make([]int, rank)
	total := 1
	for i := range lens {
		n, err := r.p.ReadVarUint()
		if err != nil {
			return nil, err
		}
		lens[i] = int(n)
		total *= lens[i]
	}
	elemTD := actual.Element
	if elemTD == nil {
		return nil, malformed("array descriptor without an element type", nil)
	}

	if rt == nil || rank != 1 {
		od := &ObjectData{TypeData: actual, Lengths: lens}
		if err := r.register(fresh, id, od); err != nil {
			return nil, err
		}
		for i := 0; i < total; i++ {
			v, err := r.readValue(elemTD)
			if err != nil {
				return nil, err
			}
			od.List = append(od.List, v)
		}
		return od, nil
	}

	// Local arrays are value types: a same-id reference back into a
	// still-filling array cannot arise, so registration follows the fill.
	vals := make([]interface{}, lens[0])
	for i := range vals {
		v, err := r.readValue(elemTD)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	// Wire descriptors carry no lengths: the decoded shape governs, and
	// nested array elements only take concrete shape once their values are
	// decoded.
	elemType := inferredElemType(vals, rt.Type.Elem())
	av := reflect.New(reflect.ArrayOf(lens[0], elemType)).Elem()
	for i, v := range vals {
		if err := assignValue(av.Index(i), v); err != nil {
			return nil, err
		}
	}
	res := av.Interface()
	return res, r.register(fresh, id, res)
}

// inferredElemType is the common dynamic type of vals, or fallback when they
// disagree or include nil.
func inferredElemType(vals []interface{}, fallback reflect.Type) reflect.Type {
	var t reflect.Type
	for _, v := range vals {
		if v == nil {
			return fallback
		}
		vt := reflect.TypeOf(v)
		if t == nil {
			t = vt
		} else if t != vt {
			return fallback
		}
	}
	if t == nil {
		return fallback
	}
	return t
}

func (r *Reader) readObject(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	if rt == nil {
		return r.readObjectData(actual, fresh, id)
	}

	switch rt.Type.Kind() {
	case reflect.Ptr:
		pv := reflect.New(rt.Type.Elem())
		if err := r.register(fresh, id, pv.Interface()); err != nil {
			return nil, err
		}
		if err := r.readMembers(actual, rt, pv.Elem()); err != nil {
			return nil, err
		}
		if err := r.readCollectionTailDiscard(actual); err != nil {
			return nil, err
		}
		return pv.Interface(), nil

	case reflect.Struct:
		sv := reflect.New(rt.Type).Elem()
		if err := r.readMembers(actual, rt, sv); err != nil {
			return nil, err
		}
		if err := r.readCollectionTailDiscard(actual); err != nil {
			return nil, err
		}
		res := sv.Interface()
		return res, r.register(fresh, id, res)

	case reflect.Slice:
		if err := r.discardMembers(actual); err != nil {
			return nil, err
		}
		return r.readSlice(actual, rt, fresh, id)

	case reflect.Map:
		if err := r.discardMembers(actual); err != nil {
			return nil, err
		}
		return r.readMap(actual, rt, fresh, id)
	}
	return r.readObjectData(actual, fresh, id)
}

// readCollectionTailDiscard consumes a collection tail that the local type
// has no container for. Struct descriptors normally carry no tail at all.
func (r *Reader) readCollectionTailDiscard(actual *TypeData) error {
	if actual.Shape == ShapeNone {
		return nil
	}
	readonly, err := r.p.ReadBool()
	if err != nil {
		return err
	}
	if readonly {
		return nil
	}
	n, err := r.p.ReadVarUint()
	if err != nil {
		return err
	}
	keyTD, valTD := r.collectionTypes(actual)
	for i := uint64(0); i < n; i++ {
		if _, err := r.readValue(keyTD); err != nil {
			return err
		}
		if actual.Shape == ShapeUntypedDict || actual.Shape == ShapeTypedDict {
			if _, err := r.readValue(valTD); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) collectionTypes(actual *TypeData) (*TypeData, *TypeData) {
	top := typeOf(interfaceType).TypeData()
	keyTD, valTD := top, top
	if actual.Collection1 != nil {
		keyTD = actual.Collection1
	}
	if actual.Collection2 != nil {
		valTD = actual.Collection2
	}
	return keyTD, valTD
}

func (r *Reader) readSlice(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	readonly, err := r.p.ReadBool()
	if err != nil {
		return nil, err
	}
	if readonly {
		sl := reflect.MakeSlice(rt.Type, 0, 0).Interface()
		return sl, r.register(fresh, id, sl)
	}
	n, err := r.p.ReadVarUint()
	if err != nil {
		return nil, err
	}
	elemTD, _ := r.collectionTypes(actual)
	sl := reflect.MakeSlice(rt.Type, int(n), int(n))
	// Registered before the elements: a cycle through the container finds
	// the shared backing array.
	if err := r.register(fresh, id, sl.Interface()); err != nil {
		return nil, err
	}
	for i := 0; i < int(n); i++ {
		v, err := r.readValue(elemTD)
		if err != nil {
			return nil, err
		}
		if err := assignValue(sl.Index(i), v); err != nil {
			return nil, err
		}
	}
	return sl.Interface(), nil
}

func (r *Reader) readMap(actual *TypeData, rt *RuntimeType, fresh bool, id uint64) (interface{}, error) {
	readonly, err := r.p.ReadBool()
	if err != nil {
		return nil, err
	}
	mv := reflect.MakeMap(rt.Type)
	if err := r.register(fresh, id, mv.Interface()); err != nil {
		return nil, err
	}
	if readonly {
		return mv.Interface(), nil
	}
	n, err := r.p.ReadVarUint()
	if err != nil {
		return nil, err
	}
	keyTD, valTD := r.collectionTypes(actual)
	for i := uint64(0); i < n; i++ {
		kv, err := r.readValue(keyTD)
		if err != nil {
			return nil, err
		}
		vv, err := r.readValue(valTD)
		if err != nil {
			return nil, err
		}
		key := reflect.New(rt.Type.Key()).Elem()
		if err := assignValue(key, kv); err != nil {
			return nil, err
		}
		val := reflect.New(rt.Type.Elem()).Elem()
		if err := assignValue(val, vv); err != nil {
			return nil, err
		}
		mv.SetMapIndex(key, val)
	}
	return mv.Interface(), nil
}

// readMembers consumes the member section into target, matching wire
// members to local ones by name. Unknown wire members are read at their wire
// type and discarded. With SkipMemberData the wire carries no member names
// and the local member list drives the read directly.
func (r *Reader) readMembers(actual *TypeData, rt *RuntimeType, target reflect.Value) error {
	if r.settings.SkipMemberData {
		for _, m := range rt.Members {
			v, err := r.readValue(m.Type.TypeData())
			if err != nil {
				return err
			}
			if err := assignValue(m.get(target), v); err != nil {
				return err
			}
		}
		return nil
	}
	for wi, wm := range actual.Members {
		wtd := wm.Type
		if wtd == nil {
			wtd = typeOf(interfaceType).TypeData()
		}
		v, err := r.readValue(wtd)
		if err != nil {
			return errors.Wrapf(err, "member %s.%s", actual.FullName, wm.Name)
		}
		pos := matchMember(rt, actual, wi)
		if pos < 0 {
			log.Infof("member %s.%s has no local counterpart; discarded", actual.FullName, wm.Name)
			continue
		}
		if err := assignValue(rt.Members[pos].get(target), v); err != nil {
			return err
		}
	}
	return nil
}

// discardMembers consumes a member section the local container type cannot
// hold (a producer may attach fields to its collection types).
func (r *Reader) discardMembers(actual *TypeData) error {
	if r.settings.SkipMemberData {
		return nil
	}
	for _, wm := range actual.Members {
		wtd := wm.Type
		if wtd == nil {
			wtd = typeOf(interfaceType).TypeData()
		}
		if _, err := r.readValue(wtd); err != nil {
			return err
		}
		log.Infof("member %s.%s has no local counterpart; discarded", actual.FullName, wm.Name)
	}
	return nil
}

// matchMember finds the local member the wi-th wire member lands in, or -1.
// When a name occurs more than once (shadowed members across a producer's
// class hierarchy), the wire member's vertical position among its namesakes
// maps to the same position from the bottom of the local list.
func matchMember(rt *RuntimeType, actual *TypeData, wi int) int {
	name := actual.Members[wi].Name
	locals := rt.memberPositions(name)
	if len(locals) == 0 {
		return -1
	}
	var wires []int
	for i, wm := range actual.Members {
		if wm.Name == name {
			wires = append(wires, i)
		}
	}
	pos := 0
	for i, w := range wires {
		if w == wi {
			pos = i
			break
		}
	}
	offset := len(locals) - len(wires) + pos
	if offset < 0 {
		offset = 0
	}
	if offset >= len(locals) {
		offset = len(locals) - 1
	}
	return locals[offset]
}

func (r *Reader) readObjectData(actual *TypeData, fresh bool, id uint64) (interface{}, error) {
	log.Infof("%v; carrying as ObjectData",
		&UnresolvedTypeError{FullName: actual.FullName, Assembly: actual.Assembly})
	od := &ObjectData{TypeData: actual}
	if err := r.register(fresh, id, od); err != nil {
		return nil, err
	}
	if !r.settings.SkipMemberData {
		for _, wm := range actual.Members {
			wtd := wm.Type
			if wtd == nil {
				wtd = typeOf(interfaceType).TypeData()
			}
			v, err := r.readValue(wtd)
			if err != nil {
				return nil, err
			}
			od.Members = append(od.Members, NamedValue{Name: wm.Name, Value: v})
		}
	}
	switch actual.Shape {
	case ShapeNone:
		return od, nil
	case ShapeUntypedList, ShapeTypedCollection:
		readonly, err := r.p.ReadBool()
		if err != nil {
			return nil, err
		}
		od.IsReadOnly = readonly
		if readonly {
			return od, nil
		}
		n, err := r.p.ReadVarUint()
		if err != nil {
			return nil, err
		}
		elemTD, _ := r.collectionTypes(actual)
		for i := uint64(0); i < n; i++ {
			v, err := r.readValue(elemTD)
			if err != nil {
				return nil, err
			}
			od.List = append(od.List, v)
		}
	case ShapeUntypedDict, ShapeTypedDict:
		readonly, err := r.p.ReadBool()
		if err != nil {
			return nil, err
		}
		od.IsReadOnly = readonly
		if readonly {
			return od, nil
		}
		n, err := r.p.ReadVarUint()
		if err != nil {
			return nil, err
		}
		keyTD, valTD := r.collectionTypes(actual)
		for i := uint64(0); i < n; i++ {
			kv, err := r.readValue(keyTD)
			if err != nil {
				return nil, err
			}
			vv, err := r.readValue(valTD)
			if err != nil {
				return nil, err
			}
			od.MapKeys = append(od.MapKeys, kv)
			od.MapValues = append(od.MapValues, vv)
		}
	}
	return od, nil
}

func (r *Reader) readTypeDataBody(td *TypeData) error {
	flags, err := r.p.ReadVarUint()
	if err != nil {
		return err
	}
	if flags == 0 {
		td.Supported = false
		td.Kind = KindNone
		return nil
	}
	if err := td.setFlags(flags); err != nil {
		return err
	}
	if !td.hasBody() {
		return nil
	}
	if td.Element, err = r.readTypeDataRef(); err != nil {
		return err
	}
	if td.Surrogate, err = r.readTypeDataRef(); err != nil {
		return err
	}
	n, err := r.p.ReadVarUint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		p, err := r.readTypeDataRef()
		if err != nil {
			return err
		}
		td.GenericParams = append(td.GenericParams, p)
	}
	if td.hasNameSection() {
		nv, err := r.readValue(typeOf(stringType).TypeData())
		if err != nil {
			return err
		}
		td.FullName, _ = nv.(string)
		av, err := r.readValue(typeOf(stringType).TypeData())
		if err != nil {
			return err
		}
		td.Assembly, _ = av.(string)
		gi, err := r.p.ReadVarUint()
		if err != nil {
			return err
		}
		td.GenericParameterIndex = int(gi)
		if td.BaseType, err = r.readTypeDataRef(); err != nil {
			return err
		}
		rank, err := r.p.ReadVarUint()
		if err != nil {
			return err
		}
		td.ArrayRank = int(rank)
	}
	if td.hasMemberSection() {
		mc, err := r.p.ReadVarUint()
		if err != nil {
			return err
		}
		for i := uint64(0); i < mc; i++ {
			nv, err := r.readValue(typeOf(stringType).TypeData())
			if err != nil {
				return err
			}
			name, _ := nv.(string)
			mt, err := r.readTypeDataRef()
			if err != nil {
				return err
			}
			td.Members = append(td.Members, &TypeMember{Name: name, Type: mt})
		}
		if td.Collection1, err = r.readTypeDataRef(); err != nil {
			return err
		}
		if td.Collection2, err = r.readTypeDataRef(); err != nil {
			return err
		}
	}
	if td.IsGeneric && !td.IsGenericDefinition {
		td.substituteFromDefinition()
	}
	return nil
}

func (r *Reader) readTypeDataRef() (*TypeData, error) {
	tv, err := r.readValue(typeOf(typeDataPtrType).TypeData())
	if err != nil {
		return nil, err
	}
	if tv == nil {
		return nil, nil
	}
	td, ok := tv.(*TypeData)
	if !ok {
		return nil, malformed("descriptor slot holds a non-descriptor", nil)
	}
	return td, nil
}

// assignValue sets v into dst, converting between numeric widths and named
// kinds where Go allows it. An unresolvable mismatch leaves dst at its zero
// value and is reported through the log, not as a stream error.
func assignValue(dst reflect.Value, v interface{}) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if convertibleKinds(rv.Kind(), dst.Kind()) && rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}
	if sequenceKind(rv.Kind()) && sequenceKind(dst.Kind()) {
		n := rv.Len()
		if dst.Kind() == reflect.Slice {
			dst.Set(reflect.MakeSlice(dst.Type(), n, n))
		} else if dst.Len() != n {
			log.Infof("cannot place %d elements into a %s; leaving the zero value", n, dst.Type())
			return nil
		}
		for i := 0; i < n; i++ {
			if err := assignValue(dst.Index(i), rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	log.Infof("cannot place a %s into a %s; leaving the zero value", rv.Type(), dst.Type())
	return nil
}

func sequenceKind(k reflect.Kind) bool {
	return k == reflect.Array || k == reflect.Slice
}

func convertibleKinds(from, to reflect.Kind) bool {
	return numericKind(from) && numericKind(to)
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// materialize upgrades a top-level ObjectData whose type has a local
// counterpart after all: member bags become instances, surrogate payloads
// are reverted, converter strings are parsed. Anything still unresolvable is
// returned as is.
func (r *Reader) materialize(v interface{}) interface{} {
	od, ok := v.(*ObjectData)
	if !ok || od.TypeData == nil {
		return v
	}
	rt := od.TypeData.resolve(r.registry)
	if rt == nil {
		return od
	}
	switch {
	case od.SurrogateObject != nil && rt.SurrogateBinding != nil:
		if orig, err := rt.SurrogateBinding.impl.Revert(od.SurrogateObject); err == nil {
			return orig
		}
	case od.TypeData.HasConverter && rt.Converter != nil:
		if res, err := rt.Converter.ConvertFromString(od.ConverterString); err == nil {
			return res
		}
	case len(od.Info) > 0:
		elemT := rt.Type
		if elemT.Kind() == reflect.Ptr {
			elemT = elemT.Elem()
		}
		pv := reflect.New(elemT)
		if cd, ok := pv.Interface().(CustomDeserializable); ok {
			if err := cd.DeserializeNamedValues(od.Info); err == nil {
				if rt.Type.Kind() == reflect.Ptr {
					return pv.Interface()
				}
				return pv.Elem().Interface()
			}
		}
	case len(od.Members) > 0 && (rt.Type.Kind() == reflect.Ptr || rt.Type.Kind() == reflect.Struct):
		elemT := rt.Type
		if elemT.Kind() == reflect.Ptr {
			elemT = elemT.Elem()
		}
		pv := reflect.New(elemT)
		for _, nv := range od.Members {
			positions := rt.memberPositions(nv.Name)
			if len(positions) == 0 {
				continue
			}
			_ = assignValue(rt.Members[positions[0]].get(pv.Elem()), nv.Value)
		}
		if rt.Type.Kind() == reflect.Ptr {
			return pv.Interface()
		}
		return pv.Elem().Interface()
	}
	return od
}
