package packet

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Outbound is a typed server → client packet.
type Outbound interface {
	PacketID() int32
	Encode(w *Writer)
}

// Body encodes p into an uncompressed, unframed body (id + fields).
func Body(p Outbound) []byte {
	w := NewWriterWithID(p.PacketID())
	p.Encode(w)
	return w.Bytes()
}

// SetCompression enables compression for the rest of the connection.
type SetCompression struct {
	Threshold int32
}

func (SetCompression) PacketID() int32 { return S_LOGIN_COMPRESSION }

func (p SetCompression) Encode(w *Writer) {
	w.WriteVarInt(p.Threshold)
}

// LoginSuccess ends the login state.
type LoginSuccess struct {
	UUID uuid.UUID
	Name string
}

func (LoginSuccess) PacketID() int32 { return S_LOGIN_SUCCESS }

func (p LoginSuccess) Encode(w *Writer) {
	w.WriteUUID(p.UUID)
	w.WriteString(p.Name)
	w.WriteVarInt(0) // no profile properties
}

// SetCenterChunk tells the client which chunk is the reference point for
// its view-distance culling.
type SetCenterChunk struct {
	ChunkX int32
	ChunkZ int32
}

func (SetCenterChunk) PacketID() int32 { return S_PLAY_CENTER_CHUNK }

func (p SetCenterChunk) Encode(w *Writer) {
	w.WriteVarInt(p.ChunkX)
	w.WriteVarInt(p.ChunkZ)
}

type KeepAlive struct {
	ID int64
}

func (KeepAlive) PacketID() int32 { return S_PLAY_KEEP_ALIVE }

func (p KeepAlive) Encode(w *Writer) {
	w.WriteI64(p.ID)
}

// SystemChat carries a plain-text chat component.
type SystemChat struct {
	Text    string
	Overlay bool
}

func (SystemChat) PacketID() int32 { return S_PLAY_SYSTEM_CHAT }

func (p SystemChat) Encode(w *Writer) {
	raw, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: p.Text})
	if err != nil {
		raw = []byte(`{"text":""}`)
	}
	w.WriteString(string(raw))
	w.WriteBool(p.Overlay)
}

// SyncPosition teleports the client to an absolute pose.
type SyncPosition struct {
	X, Y, Z    float64
	Yaw, Pitch float32
	Flags      byte
	TeleportID int32
}

func (SyncPosition) PacketID() int32 { return S_PLAY_SYNC_POSITION }

func (p SyncPosition) Encode(w *Writer) {
	w.WriteF64(p.X)
	w.WriteF64(p.Y)
	w.WriteF64(p.Z)
	w.WriteF32(p.Yaw)
	w.WriteF32(p.Pitch)
	w.WriteU8(p.Flags)
	w.WriteVarInt(p.TeleportID)
}
