package handler

import (
	"errors"
	"strings"

	"github.com/l1jgo/blockstream/internal/core/event"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"golang.org/x/text/unicode/norm"
)

const (
	maxCommandLen     = 256
	maxArgSignatures  = 8
	argNameLen        = 16
	signatureLen      = 256
	ackBitsetByteSize = 3 // 20 bits
)

var errTooManySignatures = errors.New("too many argument signatures")

// HandleChatCommand processes a slash command: command string, timestamp,
// salt, argument signatures, message count and the acknowledgement bitset.
// Signatures are read and discarded; the command text becomes an event.
func HandleChatCommand(c *Conn, r *packet.Reader, _ *Deps) error {
	raw := r.Field("command").ReadString(maxCommandLen)
	r.Field("timestamp").ReadI64()
	r.Field("salt").ReadI64()
	n := r.Field("signature_count").ReadVarInt()
	if n < 0 || n > maxArgSignatures {
		if r.Failed() {
			return nil
		}
		return &packet.DecodeError{ID: packet.C_PLAY_CHAT_COMMAND, Err: errTooManySignatures}
	}
	for i := int32(0); i < n && !r.Failed(); i++ {
		r.Field("argument").ReadString(argNameLen)
		r.Field("signature").Skip(signatureLen)
	}
	r.Field("message_count").ReadVarInt()
	r.Field("acknowledged").Skip(ackBitsetByteSize)
	if r.Failed() {
		return nil
	}

	c.Player.Events.Push(event.Command{
		By:  c.Player.ID,
		Raw: norm.NFC.String(strings.TrimSpace(raw)),
	})
	return nil
}
