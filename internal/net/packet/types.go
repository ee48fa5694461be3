package packet

import (
	"errors"
	"fmt"
)

// Frame is one discrete inbound protocol message: the VarInt id and the
// undecoded body that follows it.
type Frame struct {
	ID   int32
	Body []byte
}

// DecodeError reports a malformed or truncated frame body. It is local to
// the frame it was raised for; the caller decides how the connection reacts.
type DecodeError struct {
	ID  int32
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode packet 0x%02X: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// BlockPos is an integer block coordinate.
type BlockPos struct {
	X, Y, Z int32
}

// Pack encodes the position as x:26 | z:26 | y:12.
func (p BlockPos) Pack() int64 {
	return (int64(p.X)&0x3FFFFFF)<<38 | (int64(p.Z)&0x3FFFFFF)<<12 | int64(p.Y)&0xFFF
}

// UnpackBlockPos is the inverse of BlockPos.Pack; fields are sign-extended.
func UnpackBlockPos(v int64) BlockPos {
	return BlockPos{
		X: int32(v >> 38),
		Y: int32(v << 52 >> 52),
		Z: int32(v << 26 >> 38),
	}
}
