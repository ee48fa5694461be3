package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	errShortBody   = errors.New("unexpected end of body")
	errVarIntLong  = errors.New("varint too long")
	errStringLong  = errors.New("string exceeds max length")
	errStringUTF8  = errors.New("string is not valid utf-8")
	errNegativeLen = errors.New("negative length prefix")
)

// Reader reads protocol fields from a frame body. All multi-byte fields are
// big-endian. The first failed read is remembered and every later read
// returns a zero value, so handlers can decode a whole schema and check
// Err once before touching any state.
type Reader struct {
	data  []byte
	off   int
	field string
	err   error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first decode failure, annotated with the field being read.
func (r *Reader) Err() error {
	return r.err
}

// Field labels the next reads for error reporting.
func (r *Reader) Field(name string) *Reader {
	r.field = name
	return r
}

// Failed reports whether a previous read failed.
func (r *Reader) Failed() bool {
	return r.err != nil
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		if r.field != "" {
			r.err = fmt.Errorf("%s: %w", r.field, err)
		} else {
			r.err = err
		}
	}
	r.off = len(r.data)
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail(errShortBody)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadU8 reads 1 unsigned byte.
func (r *Reader) ReadU8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadBool reads 1 byte; any non-zero value is true.
func (r *Reader) ReadBool() bool {
	return r.ReadU8() != 0
}

// ReadI16 reads 2 bytes as big-endian int16.
func (r *Reader) ReadI16() int16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.BigEndian.Uint16(b))
}

// ReadI32 reads 4 bytes as big-endian int32.
func (r *Reader) ReadI32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// ReadI64 reads 8 bytes as big-endian int64.
func (r *Reader) ReadI64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *Reader) ReadF32() float32 {
	return math.Float32frombits(uint32(r.ReadI32()))
}

func (r *Reader) ReadF64() float64 {
	return math.Float64frombits(uint64(r.ReadI64()))
}

// ReadVarInt reads a LEB128-style signed 32-bit integer (max 5 bytes).
func (r *Reader) ReadVarInt() int32 {
	var val uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b := r.take(1)
		if b == nil {
			return 0
		}
		val |= uint32(b[0]&0x7F) << (7 * i)
		if b[0]&0x80 == 0 {
			return int32(val)
		}
	}
	r.fail(errVarIntLong)
	return 0
}

// ReadString reads a VarInt length-prefixed UTF-8 string of at most maxChars
// characters.
func (r *Reader) ReadString(maxChars int) string {
	n := int(r.ReadVarInt())
	if r.err != nil {
		return ""
	}
	if n < 0 {
		r.fail(errNegativeLen)
		return ""
	}
	if n > maxChars*4 {
		r.fail(errStringLong)
		return ""
	}
	raw := r.take(n)
	if raw == nil {
		return ""
	}
	if !utf8.Valid(raw) {
		r.fail(errStringUTF8)
		return ""
	}
	if utf8.RuneCount(raw) > maxChars {
		r.fail(errStringLong)
		return ""
	}
	return string(raw)
}

// ReadUUID reads 16 raw bytes.
func (r *Reader) ReadUUID() uuid.UUID {
	var id uuid.UUID
	b := r.take(16)
	if b != nil {
		copy(id[:], b)
	}
	return id
}

// ReadBlockPos reads a packed 64-bit block position (x:26, z:26, y:12).
func (r *Reader) ReadBlockPos() BlockPos {
	return UnpackBlockPos(r.ReadI64())
}

// ReadBytes reads n raw bytes. The returned slice is a copy.
func (r *Reader) ReadBytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
