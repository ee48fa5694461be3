package packet

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// MaxVarIntLen is the longest encoding of a 32-bit VarInt.
const MaxVarIntLen = 5

// Writer builds a packet body. All multi-byte writes are big-endian.
// A body always starts with the VarInt packet id.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithID(id int32) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteVarInt(id)
	return w
}

// WriteU8 writes 1 byte.
func (w *Writer) WriteU8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteI16 writes 2 bytes big-endian.
func (w *Writer) WriteI16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

// WriteI32 writes 4 bytes big-endian.
func (w *Writer) WriteI32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

// WriteI64 writes 8 bytes big-endian.
func (w *Writer) WriteI64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *Writer) WriteF32(v float32) {
	w.WriteI32(int32(math.Float32bits(v)))
}

func (w *Writer) WriteF64(v float64) {
	w.WriteI64(int64(math.Float64bits(v)))
}

// WriteVarInt writes v as a VarInt.
func (w *Writer) WriteVarInt(v int32) {
	w.buf = AppendVarInt(w.buf, v)
}

// WriteString writes a VarInt length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteVarInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteUUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

func (w *Writer) WriteBlockPos(p BlockPos) {
	w.WriteI64(p.Pack())
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes returns the body built so far.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current body length.
func (w *Writer) Len() int {
	return len(w.buf)
}

// AppendVarInt appends the VarInt encoding of v to dst.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// VarIntLen returns the encoded size of v.
func VarIntLen(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
