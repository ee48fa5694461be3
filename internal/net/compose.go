package net

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/l1jgo/blockstream/internal/net/packet"
)

// Compose is the encoder configuration shared by every connection. It turns
// typed packets and raw bodies into wire frames, compressing bodies at or
// above the threshold. Safe for concurrent use.
type Compose struct {
	threshold int
	level     int
	zw        sync.Pool // *zlib.Writer
}

// NewCompose creates an encoder. A negative threshold disables compression.
func NewCompose(threshold, level int) *Compose {
	if level == 0 {
		level = zlib.DefaultCompression
	}
	return &Compose{threshold: threshold, level: level}
}

// Threshold returns the compression threshold (negative = disabled).
func (c *Compose) Threshold() int {
	return c.threshold
}

// Encode encodes p and frames it.
func (c *Compose) Encode(p packet.Outbound) ([]byte, error) {
	return c.Frame(packet.Body(p))
}

// Frame wraps an unframed body (id + fields) into a wire frame.
func (c *Compose) Frame(body []byte) ([]byte, error) {
	if c.threshold < 0 {
		return FrameUncompressed(body), nil
	}

	if len(body) < c.threshold {
		out := make([]byte, 0, len(body)+packet.MaxVarIntLen+1)
		out = packet.AppendVarInt(out, int32(len(body)+1))
		out = append(out, 0)
		return append(out, body...), nil
	}

	var buf bytes.Buffer
	zw, err := c.writer(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("deflate body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate body: %w", err)
	}
	c.zw.Put(zw)

	dataLen := int32(len(body))
	out := make([]byte, 0, buf.Len()+2*packet.MaxVarIntLen)
	out = packet.AppendVarInt(out, int32(packet.VarIntLen(dataLen)+buf.Len()))
	out = packet.AppendVarInt(out, dataLen)
	return append(out, buf.Bytes()...), nil
}

func (c *Compose) writer(buf *bytes.Buffer) (*zlib.Writer, error) {
	if zw, ok := c.zw.Get().(*zlib.Writer); ok {
		zw.Reset(buf)
		return zw, nil
	}
	zw, err := zlib.NewWriterLevel(buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	return zw, nil
}
