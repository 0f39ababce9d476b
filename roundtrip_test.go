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
	"bytes"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustRegister(t *testing.T, samples ...interface{}) {
	t.Helper()
	for _, s := range samples {
		require.Nil(t, DefaultRegistry.Register(s))
	}
}

func roundTrip(t *testing.T, v interface{}) interface{} {
	t.Helper()
	data, err := Marshal(v)
	require.Nil(t, err)
	got, err := Unmarshal(data)
	require.Nil(t, err)
	return got
}

func primitiveData() []interface{} {
	return []interface{}{
		false,
		true,
		uint8(0),
		uint8(255),
		int8(-128),
		int8(-1),
		int8(127),
		int16(-32768),
		int16(1),
		int16(32767),
		uint16(65535),
		int32(-2147483648),
		int32(-1),
		int32(1),
		int32(2147483647),
		uint32(4294967295),
		int64(-9223372036854775808),
		int64(-1),
		int64(1),
		int64(9223372036854775807),
		uint64(18446744073709551615),
		float32(-1.5),
		float32(1.5),
		float64(-1),
		float64(1),
		Char('A'),
		Char(0xfffd),
		"str",
		"",
	}
}

func TestSerializePrimitives(t *testing.T) {
	for _, v := range primitiveData() {
		got := roundTrip(t, v)
		require.Equal(t, v, got, "value %v (%T)", v, v)
	}
}

func TestSerializeIntWidens(t *testing.T) {
	// Platform-width ints travel as their 64-bit kinds.
	require.Equal(t, int64(42), roundTrip(t, 42))
	require.Equal(t, uint64(42), roundTrip(t, uint(42)))
}

func TestSerializeGuid(t *testing.T) {
	u := uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	require.Equal(t, u, roundTrip(t, u))
}

func TestSerializeDecimal(t *testing.T) {
	for _, s := range []string{"0", "-1.5", "79228162514264337593543950335", "0.0000000001"} {
		d, err := decimal.NewFromString(s)
		require.Nil(t, err)
		got := roundTrip(t, d)
		gd, ok := got.(decimal.Decimal)
		require.True(t, ok)
		require.True(t, d.Equal(gd), "decimal %s came back as %s", d, gd)
	}
}

func TestSerializeBytes(t *testing.T) {
	for _, b := range [][]byte{{}, {0}, {1, 2, 3, 255}} {
		require.Equal(t, b, roundTrip(t, b))
	}
}

func commonSlices() []interface{} {
	return []interface{}{
		[]string{"str1", "str1", "", "", "str2"},
		[]int32{-1, 0, 1},
		[]int64{1, 2, 3},
		[]float64{1.5, -2.5},
		[]bool{true, false, true},
		[]interface{}{int32(1), "two", nil, true},
	}
}

func commonMaps() []interface{} {
	return []interface{}{
		map[string]bool{"k1": false, "k2": true, "": true},
		map[string]int32{"k1": 1, "k2": -1, "": 3},
		map[string]string{"k1": "v1", "k2": "v2", "": ""},
		map[int64]int64{1: 1, 2: 2, 3: 3},
		map[string]interface{}{"k1": "v1", "k2": int32(2)},
		map[interface{}]interface{}{"k1": "v1", int64(2): "two"},
	}
}

func TestSerializeSlices(t *testing.T) {
	for _, v := range commonSlices() {
		got := roundTrip(t, v)
		require.Equal(t, v, got, "slice %v (%T)", v, v)
	}
}

func TestSerializeMaps(t *testing.T) {
	for _, v := range commonMaps() {
		got := roundTrip(t, v)
		require.Equal(t, v, got, "map %v (%T)", v, v)
	}
}

func TestSerializeArrays(t *testing.T) {
	require.Equal(t, [3]int32{1, 2, 3}, roundTrip(t, [3]int32{1, 2, 3}))
	require.Equal(t, [2]string{"a", "b"}, roundTrip(t, [2]string{"a", "b"}))
	require.Equal(t, [2][2]int32{{1, 2}, {3, 4}}, roundTrip(t, [2][2]int32{{1, 2}, {3, 4}}))
}

func TestSerializeNil(t *testing.T) {
	data, err := Marshal(nil)
	require.Nil(t, err)
	// version 0x0102, empty settings, null reference
	require.Equal(t, []byte{0x82, 0x02, 0x00, 0x00}, data)
	got, err := Unmarshal(data)
	require.Nil(t, err)
	require.Nil(t, got)
}

func TestEmptyStringIsWellKnown(t *testing.T) {
	data, err := Marshal("")
	require.Nil(t, err)
	// The empty string is preamble slot 6; no body is ever emitted for it.
	require.Equal(t, []byte{0x82, 0x02, 0x00, 0x06}, data)
	got, err := Unmarshal(data)
	require.Nil(t, err)
	require.Equal(t, "", got)
}

func TestNullable(t *testing.T) {
	x := int32(5)
	got := roundTrip(t, &x)
	p, ok := got.(*int32)
	require.True(t, ok)
	require.Equal(t, int32(5), *p)
}

type point struct {
	X int32
	Y int32
}

type shape struct {
	Name   string
	Center point
	Tags   []string
}

func TestSerializeStruct(t *testing.T) {
	mustRegister(t, point{}, shape{})
	v := &shape{Name: "circle", Center: point{X: 1, Y: -2}, Tags: []string{"a", "b"}}
	got := roundTrip(t, v)
	require.Equal(t, v, got)
}

func TestSerializeStructValueMember(t *testing.T) {
	mustRegister(t, point{})
	got := roundTrip(t, &point{X: 7, Y: 8})
	require.Equal(t, &point{X: 7, Y: 8}, got)
}

type node struct {
	Value string
	Next  *node
}

func TestCycleTolerance(t *testing.T) {
	mustRegister(t, node{})
	n := &node{Value: "self"}
	n.Next = n
	got := roundTrip(t, n)
	gn, ok := got.(*node)
	require.True(t, ok)
	require.Equal(t, "self", gn.Value)
	require.True(t, gn.Next == gn, "cycle must close on the decoded instance")
}

func TestSharingPreserved(t *testing.T) {
	mustRegister(t, point{})
	a := &point{X: 1}
	list := []interface{}{a, a}
	got := roundTrip(t, list)
	gl, ok := got.([]interface{})
	require.True(t, ok)
	require.Len(t, gl, 2)
	require.True(t, gl[0] == gl[1], "shared reference must decode to one instance")
}

type holder struct {
	A *node
	B *node
}

func TestSharingAcrossMembers(t *testing.T) {
	mustRegister(t, node{}, holder{})
	n := &node{Value: "shared"}
	got := roundTrip(t, &holder{A: n, B: n})
	gh := got.(*holder)
	require.True(t, gh.A == gh.B)
	require.Equal(t, "shared", gh.A.Value)
}

type color int32

const (
	colorRed   color = 1
	colorGreen color = 2
)

func TestSerializeEnum(t *testing.T) {
	mustRegister(t, color(0))
	require.Equal(t, colorGreen, roundTrip(t, colorGreen))
}

type palette struct {
	Primary color
	Accent  color
}

func TestSerializeEnumMember(t *testing.T) {
	mustRegister(t, color(0), palette{})
	v := &palette{Primary: colorRed, Accent: colorGreen}
	require.Equal(t, v, roundTrip(t, v))
}

func TestSerializeType(t *testing.T) {
	got := roundTrip(t, reflect.TypeOf(int32(0)))
	td, ok := got.(*TypeData)
	require.True(t, ok)
	require.Equal(t, KindInt32, td.Kind)
}

// --- surrogate / converter / custom dispatch ---

type temperature struct {
	Celsius float64
}

type temperatureDTO struct {
	Fahrenheit float64
}

type temperatureSurrogate struct{}

func (temperatureSurrogate) Convert(original interface{}) (interface{}, error) {
	tv := original.(*temperature)
	return &temperatureDTO{Fahrenheit: tv.Celsius*9/5 + 32}, nil
}

func (temperatureSurrogate) Revert(surrogate interface{}) (interface{}, error) {
	dto := surrogate.(*temperatureDTO)
	return &temperature{Celsius: (dto.Fahrenheit - 32) * 5 / 9}, nil
}

func TestSurrogateDispatch(t *testing.T) {
	mustRegister(t, temperature{}, temperatureDTO{})
	require.Nil(t, RegisterSurrogate(&temperature{}, &temperatureDTO{}, temperatureSurrogate{}))
	got := roundTrip(t, &temperature{Celsius: 100})
	tv, ok := got.(*temperature)
	require.True(t, ok)
	require.InDelta(t, 100, tv.Celsius, 1e-9)
}

type semver struct {
	Major int32
	Minor int32
}

type semverConverter struct{}

func (semverConverter) ConvertToString(v interface{}) (string, error) {
	sv := v.(*semver)
	return fmt.Sprintf("%d.%d", sv.Major, sv.Minor), nil
}

func (semverConverter) ConvertFromString(s string) (interface{}, error) {
	sv := &semver{}
	if _, err := fmt.Sscanf(s, "%d.%d", &sv.Major, &sv.Minor); err != nil {
		return nil, err
	}
	return sv, nil
}

var semverConverterOnce sync.Once

func registerSemverConverter(t *testing.T) {
	t.Helper()
	semverConverterOnce.Do(func() {
		if err := RegisterConverter(&semver{}, semverConverter{}); err != nil {
			t.Fatal(err)
		}
	})
}

func TestConverterDispatch(t *testing.T) {
	mustRegister(t, semver{})
	registerSemverConverter(t)
	got := roundTrip(t, &semver{Major: 1, Minor: 4})
	require.Equal(t, &semver{Major: 1, Minor: 4}, got)
}

func TestIgnoreConverterFallsThrough(t *testing.T) {
	mustRegister(t, semver{})
	registerSemverConverter(t)
	data, err := Marshal(&semver{Major: 2, Minor: 7}, WithSettings(SerializationSettings{IgnoreConverter: true}))
	require.Nil(t, err)
	got, err := Unmarshal(data)
	require.Nil(t, err)
	require.Equal(t, &semver{Major: 2, Minor: 7}, got)
}

type envelope struct {
	Kind string
	Body string
}

func (e *envelope) SerializeNamedValues() []NamedValue {
	return []NamedValue{
		{Name: "kind", Value: e.Kind},
		{Name: "body", Value: e.Body},
	}
}

func (e *envelope) DeserializeNamedValues(values []NamedValue) error {
	for _, nv := range values {
		switch nv.Name {
		case "kind":
			e.Kind, _ = nv.Value.(string)
		case "body":
			e.Body, _ = nv.Value.(string)
		}
	}
	return nil
}

func TestCustomSerializable(t *testing.T) {
	mustRegister(t, envelope{})
	v := &envelope{Kind: "greeting", Body: "hello"}
	require.Equal(t, v, roundTrip(t, v))
}

func TestIgnoreCustomFallsThrough(t *testing.T) {
	mustRegister(t, envelope{})
	v := &envelope{Kind: "a", Body: "b"}
	data, err := Marshal(v, WithSettings(SerializationSettings{IgnoreCustom: true}))
	require.Nil(t, err)
	got, err := Unmarshal(data)
	require.Nil(t, err)
	require.Equal(t, v, got)
}

func TestSkipMemberData(t *testing.T) {
	mustRegister(t, point{})
	v := &point{X: 3, Y: 4}
	data, err := Marshal(v, WithSettings(SerializationSettings{SkipMemberData: true}))
	require.Nil(t, err)
	got, err := Unmarshal(data)
	require.Nil(t, err)
	require.Equal(t, v, got)
	// The member-less stream must be shorter than the named one.
	named, err := Marshal(v)
	require.Nil(t, err)
	require.Less(t, len(data), len(named))
}

// --- deserialization callbacks ---

type audited struct {
	Name     string
	Notified bool

	callbackRan bool
}

func (a *audited) OnDeserialization() { a.callbackRan = true }
func (a *audited) OnDeserialized()    { a.Notified = true }

func TestDeserializedCallbacks(t *testing.T) {
	mustRegister(t, audited{})
	got := roundTrip(t, &audited{Name: "x"})
	ga := got.(*audited)
	require.Equal(t, "x", ga.Name)
	require.True(t, ga.Notified)
	require.True(t, ga.callbackRan)
}

// --- fallbacks and tolerance ---

type onlyHere struct {
	Secret string
	Count  int32
}

func TestUnsupportedTypeDecodesToObjectData(t *testing.T) {
	mustRegister(t, onlyHere{})
	data, err := Marshal(&onlyHere{Secret: "s", Count: 9})
	require.Nil(t, err)

	got, err := UnmarshalRaw(data, WithRegistry(NewTypeRegistry()))
	require.Nil(t, err)
	od, ok := got.(*ObjectData)
	require.True(t, ok)
	secret, ok := od.Member("Secret")
	require.True(t, ok)
	require.Equal(t, "s", secret)
	count, ok := od.Member("Count")
	require.True(t, ok)
	require.Equal(t, int32(9), count)
}

func TestUnsupportedNestedTypeStillDecodes(t *testing.T) {
	mustRegister(t, onlyHere{})
	data, err := Marshal([]interface{}{"lead", &onlyHere{Count: 1}, "tail"})
	require.Nil(t, err)
	got, err := UnmarshalRaw(data, WithRegistry(NewTypeRegistry()))
	require.Nil(t, err)
	gl, ok := got.([]interface{})
	require.True(t, ok)
	require.Len(t, gl, 3)
	require.Equal(t, "lead", gl[0])
	require.Equal(t, "tail", gl[2])
	_, ok = gl[1].(*ObjectData)
	require.True(t, ok)
}

type widgetV1 struct {
	Label string
}

type widgetV2 struct {
	Label string
	Size  int32
}

func TestVersionToleranceAdditive(t *testing.T) {
	require.Nil(t, DefaultRegistry.RegisterName("demo.Widget", widgetV1{}))
	data, err := Marshal(&widgetV1{Label: "old"})
	require.Nil(t, err)

	reg := NewTypeRegistry()
	require.Nil(t, reg.RegisterName("demo.Widget", widgetV2{}))
	got, err := Unmarshal(data, WithRegistry(reg))
	require.Nil(t, err)
	gw, ok := got.(*widgetV2)
	require.True(t, ok)
	require.Equal(t, "old", gw.Label)
	require.Equal(t, int32(0), gw.Size, "the added member takes its default")
}

type gadgetV2 struct {
	Label string
	Size  int32
}

type gadgetV1 struct {
	Label string
}

func TestVersionToleranceSubtractive(t *testing.T) {
	require.Nil(t, DefaultRegistry.RegisterName("demo.Gadget", gadgetV2{}))
	data, err := Marshal(&gadgetV2{Label: "new", Size: 5})
	require.Nil(t, err)

	reg := NewTypeRegistry()
	require.Nil(t, reg.RegisterName("demo.Gadget", gadgetV1{}))
	got, err := Unmarshal(data, WithRegistry(reg))
	require.Nil(t, err)
	gw, ok := got.(*gadgetV1)
	require.True(t, ok)
	require.Equal(t, "new", gw.Label, "the removed member's bytes are consumed and discarded")
}

// --- error taxonomy ---

func TestUnsupportedVersion(t *testing.T) {
	_, err := Unmarshal([]byte{0x01, 0x00, 0x00})
	require.Error(t, err)
	var uv *UnsupportedVersionError
	require.ErrorAs(t, err, &uv)
	require.Equal(t, uint64(1), uv.Got)
}

func TestTruncatedStream(t *testing.T) {
	mustRegister(t, point{})
	data, err := Marshal(&point{X: 1, Y: 2})
	require.Nil(t, err)
	_, err = Unmarshal(data[:len(data)-2])
	require.Error(t, err)
	var ms *MalformedStreamError
	require.ErrorAs(t, err, &ms)
}

func TestUnknownSettingsBits(t *testing.T) {
	_, err := Unmarshal([]byte{0x82, 0x02, 0x40, 0x00})
	require.Error(t, err)
	var ms *MalformedStreamError
	require.ErrorAs(t, err, &ms)
}

func TestOneRootPerStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.Nil(t, w.Write("first"))
	require.Error(t, w.Write("second"))
	require.Nil(t, w.Close())
}

// --- identity and id invariants ---

func TestIDMonotonicity(t *testing.T) {
	mustRegister(t, node{})
	var buf bytes.Buffer
	w := NewWriter(&buf)
	a := &node{Value: "a"}
	b := &node{Value: "b", Next: a}
	require.Nil(t, w.Write([]interface{}{a, b}))
	require.Nil(t, w.Close())

	prev := uint64(wellKnownCount)
	for _, id := range w.ctx.order {
		require.Greater(t, id, prev, "session ids must be strictly increasing")
		prev = id
	}
	require.Equal(t, uint64(wellKnownCount+1), w.ctx.order[0])
}

func TestSettingsObservedBeforePayload(t *testing.T) {
	data, err := Marshal("x", WithSettings(SerializationSettings{IgnoreConverter: true, IgnoreCustom: true}))
	require.Nil(t, err)
	r := NewReader(bytes.NewReader(data))
	require.Equal(t, SerializationSettings{}, r.Settings(), "settings are zero before the header is read")
	_, err = r.Read()
	require.Nil(t, err)
	require.True(t, r.Settings().IgnoreConverter)
	require.True(t, r.Settings().IgnoreCustom)
	require.False(t, r.Settings().SkipMemberData)
	require.Nil(t, r.Close())
}

func TestDeepGraph(t *testing.T) {
	mustRegister(t, node{})
	head := &node{Value: "0"}
	cur := head
	for i := 1; i < 200; i++ {
		cur.Next = &node{Value: fmt.Sprint(i)}
		cur = cur.Next
	}
	got := roundTrip(t, head)
	diff := cmp.Diff(head, got)
	require.Empty(t, diff)
}

func TestNestedContainers(t *testing.T) {
	v := map[string]interface{}{
		"list": []interface{}{int32(1), []string{"a", "b"}},
		"map":  map[string]int32{"x": 1},
	}
	got := roundTrip(t, v)
	diff := cmp.Diff(v, got)
	require.Empty(t, diff)
}
