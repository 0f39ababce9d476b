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
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"
)

// maxVarUintBytes bounds the continuation chain of a base-128 varuint; a
// longer chain cannot fit in 64 bits and marks a malformed stream.
const maxVarUintBytes = 10

// PrimitiveWriter encodes the scalar vocabulary of the wire format onto an
// io.Writer: base-128 varuints, zig-zag varints, length-prefixed strings and
// blobs, and the fixed-size scalars.
type PrimitiveWriter struct {
	w      io.Writer
	buf    [16]byte
	closed bool
}

func NewPrimitiveWriter(w io.Writer) *PrimitiveWriter {
	return &PrimitiveWriter{w: w}
}

func (p *PrimitiveWriter) write(b []byte) error {
	_, err := p.w.Write(b)
	return errors.Wrap(err, "stream write")
}

func (p *PrimitiveWriter) WriteByte_(b byte) error {
	p.buf[0] = b
	return p.write(p.buf[:1])
}

func (p *PrimitiveWriter) WriteBool(b bool) error {
	if b {
		return p.WriteByte_(1)
	}
	return p.WriteByte_(0)
}

// WriteVarUint emits v as an unsigned little-endian base-128 varuint, seven
// data bits per byte, high bit set on continuation.
func (p *PrimitiveWriter) WriteVarUint(v uint64) error {
	n := 0
	for v >= 0x80 {
		p.buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	p.buf[n] = byte(v)
	return p.write(p.buf[:n+1])
}

// WriteVarInt emits v zig-zag mapped over the varuint encoding.
func (p *PrimitiveWriter) WriteVarInt(v int64) error {
	return p.WriteVarUint(uint64(v<<1) ^ uint64(v>>63))
}

func (p *PrimitiveWriter) WriteUint16(v uint16) error {
	binary.LittleEndian.PutUint16(p.buf[:2], v)
	return p.write(p.buf[:2])
}

func (p *PrimitiveWriter) WriteFloat32(v float32) error {
	binary.LittleEndian.PutUint32(p.buf[:4], math.Float32bits(v))
	return p.write(p.buf[:4])
}

func (p *PrimitiveWriter) WriteFloat64(v float64) error {
	binary.LittleEndian.PutUint64(p.buf[:8], math.Float64bits(v))
	return p.write(p.buf[:8])
}

func (p *PrimitiveWriter) WriteBinary(b []byte) error {
	if err := p.WriteVarUint(uint64(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return p.write(b)
}

func (p *PrimitiveWriter) WriteString(s string) error {
	return p.WriteBinary([]byte(s))
}

func (p *PrimitiveWriter) WriteUUID(u uuid.UUID) error {
	copy(p.buf[:16], u.Bytes())
	return p.write(p.buf[:16])
}

// WriteDecimal carries the decimal as its invariant string form; the exact
// C#-style 128-bit layout has no Go analog worth preserving.
func (p *PrimitiveWriter) WriteDecimal(d decimal.Decimal) error {
	return p.WriteString(d.String())
}

// Close closes the underlying stream when it is a Closer. Safe to call more
// than once; only the first call reaches the stream.
func (p *PrimitiveWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if c, ok := p.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// PrimitiveReader is the decoding mirror of PrimitiveWriter. All read errors
// surface as MalformedStreamError; a short stream is never silently padded.
type PrimitiveReader struct {
	r      *bufio.Reader
	src    io.Reader
	buf    [16]byte
	closed bool
}

func NewPrimitiveReader(r io.Reader) *PrimitiveReader {
	return &PrimitiveReader{r: bufio.NewReader(r), src: r}
}

func (p *PrimitiveReader) read(n int) ([]byte, error) {
	if _, err := io.ReadFull(p.r, p.buf[:n]); err != nil {
		return nil, malformed("short read", err)
	}
	return p.buf[:n], nil
}

func (p *PrimitiveReader) ReadByte_() (byte, error) {
	b, err := p.r.ReadByte()
	if err != nil {
		return 0, malformed("short read", err)
	}
	return b, nil
}

func (p *PrimitiveReader) ReadBool() (bool, error) {
	b, err := p.ReadByte_()
	return b != 0, err
}

func (p *PrimitiveReader) ReadVarUint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < maxVarUintBytes; i++ {
		b, err := p.ReadByte_()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, malformed("varuint overflow", nil)
}

func (p *PrimitiveReader) ReadVarInt() (int64, error) {
	u, err := p.ReadVarUint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

func (p *PrimitiveReader) ReadUint16() (uint16, error) {
	b, err := p.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (p *PrimitiveReader) ReadFloat32() (float32, error) {
	b, err := p.read(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (p *PrimitiveReader) ReadFloat64() (float64, error) {
	b, err := p.read(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (p *PrimitiveReader) ReadBinary() ([]byte, error) {
	n, err := p.ReadVarUint()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(p.r, b); err != nil {
		return nil, malformed("short blob", err)
	}
	return b, nil
}

func (p *PrimitiveReader) ReadString() (string, error) {
	b, err := p.ReadBinary()
	return string(b), err
}

func (p *PrimitiveReader) ReadUUID() (uuid.UUID, error) {
	b, err := p.read(16)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(b)
}

func (p *PrimitiveReader) ReadDecimal() (decimal.Decimal, error) {
	s, err := p.ReadString()
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, malformed("bad decimal literal", err)
	}
	return d, nil
}

func (p *PrimitiveReader) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if c, ok := p.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
