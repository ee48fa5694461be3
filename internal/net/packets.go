package net

import (
	"sync"

	"github.com/l1jgo/blockstream/internal/net/packet"
)

// Packets is a connection's append-only outbound buffer, flushed once per
// tick. It has no lock: tick phases that write to the same connection run
// one after another, never concurrently.
type Packets struct {
	buf []byte
}

// Append encodes p with the shared compose settings and appends the frame.
func (p *Packets) Append(pkt packet.Outbound, c *Compose) error {
	frame, err := c.Encode(pkt)
	if err != nil {
		return err
	}
	p.buf = append(p.buf, frame...)
	return nil
}

// AppendRaw appends already framed bytes, e.g. cached chunk data.
func (p *Packets) AppendRaw(b []byte) {
	p.buf = append(p.buf, b...)
}

func (p *Packets) Len() int {
	return len(p.buf)
}

// Bytes returns the pending bytes without consuming them.
func (p *Packets) Bytes() []byte {
	return p.buf
}

// Take returns the pending bytes and starts a fresh buffer. The returned
// slice is owned by the caller.
func (p *Packets) Take() []byte {
	out := p.buf
	p.buf = nil
	return out
}

// Broadcast is the single outbound buffer shared by all connections, for
// packets with no single addressee. Appends may come from any goroutine.
type Broadcast struct {
	mu  sync.Mutex
	out Packets
}

func NewBroadcast() *Broadcast {
	return &Broadcast{}
}

func (b *Broadcast) Append(pkt packet.Outbound, c *Compose) error {
	frame, err := c.Encode(pkt)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.out.AppendRaw(frame)
	b.mu.Unlock()
	return nil
}

func (b *Broadcast) AppendRaw(data []byte) {
	b.mu.Lock()
	b.out.AppendRaw(data)
	b.mu.Unlock()
}

// Take drains the buffer; the caller fans the bytes out to every connection.
func (b *Broadcast) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.Take()
}
