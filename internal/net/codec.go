package net

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/l1jgo/blockstream/internal/net/packet"
)

const (
	// MaxFrameLen is the largest length prefix accepted (3-byte VarInt).
	MaxFrameLen = 1<<21 - 1
	// MaxUncompressedLen bounds the declared size of a compressed body.
	MaxUncompressedLen = 8 << 20
)

var errVarIntTooLong = errors.New("frame length varint too long")

// ReadFrame reads one frame from r.
// Wire format without compression (threshold < 0):
//
//	[VarInt length][VarInt id][body]
//
// With compression enabled:
//
//	[VarInt length][VarInt dataLength][zlib(id+body) | id+body]
//
// where dataLength is 0 for bodies sent uncompressed.
func ReadFrame(r *bufio.Reader, threshold int) (packet.Frame, error) {
	payload, err := ReadPayload(r)
	if err != nil {
		return packet.Frame{}, err
	}
	return DecodeFrame(payload, threshold)
}

// ReadPayload reads one length-prefixed frame and returns its payload.
func ReadPayload(r *bufio.Reader) ([]byte, error) {
	length, err := readVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	if length <= 0 || length > MaxFrameLen {
		return nil, fmt.Errorf("invalid frame length: %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", length, err)
	}
	return payload, nil
}

// DecodeFrame splits a payload into id and body, inflating it first when
// compression is on (threshold >= 0).
func DecodeFrame(payload []byte, threshold int) (packet.Frame, error) {
	body := payload
	if threshold >= 0 {
		var err error
		body, err = inflate(payload, threshold)
		if err != nil {
			return packet.Frame{}, err
		}
	}

	pr := packet.NewReader(body)
	id := pr.ReadVarInt()
	if pr.Err() != nil {
		return packet.Frame{}, fmt.Errorf("read packet id: %w", pr.Err())
	}
	return packet.Frame{ID: id, Body: body[len(body)-pr.Remaining():]}, nil
}

func inflate(payload []byte, threshold int) ([]byte, error) {
	pr := packet.NewReader(payload)
	dataLen := int(pr.ReadVarInt())
	if pr.Err() != nil {
		return nil, fmt.Errorf("read data length: %w", pr.Err())
	}
	rest := payload[len(payload)-pr.Remaining():]
	if dataLen == 0 {
		return rest, nil
	}
	if dataLen < threshold {
		return nil, fmt.Errorf("compressed body of %d bytes is below threshold %d", dataLen, threshold)
	}
	if dataLen > MaxUncompressedLen {
		return nil, fmt.Errorf("declared body length %d too large", dataLen)
	}

	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("open zlib body: %w", err)
	}
	defer zr.Close()

	body := make([]byte, dataLen)
	if _, err := io.ReadFull(zr, body); err != nil {
		return nil, fmt.Errorf("inflate body (%d bytes): %w", dataLen, err)
	}
	return body, nil
}

func readVarInt(r io.ByteReader) (int, error) {
	var val uint32
	for i := 0; i < packet.MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		val |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int(int32(val)), nil
		}
	}
	return 0, errVarIntTooLong
}

// WriteFrame writes pre-framed bytes to w.
func WriteFrame(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FrameUncompressed frames body without the dataLength field. Used for the
// few packets sent before compression is negotiated.
func FrameUncompressed(body []byte) []byte {
	out := make([]byte, 0, len(body)+packet.MaxVarIntLen)
	out = packet.AppendVarInt(out, int32(len(body)))
	return append(out, body...)
}
