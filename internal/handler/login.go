package handler

import (
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"go.uber.org/zap"
)

const (
	nextStateStatus = 1
	nextStateLogin  = 2

	maxHostLen = 255
	maxNameLen = 16
)

var (
	errUnsupportedVersion = errors.New("unsupported protocol version")
	errBadNextState       = errors.New("bad next state")
)

// HandleHandshake processes the handshake: VarInt protocol version, server
// address, u16 port, VarInt next state. Status pings are not served.
func HandleHandshake(c *Conn, r *packet.Reader, deps *Deps) error {
	version := r.Field("protocol_version").ReadVarInt()
	r.Field("server_address").ReadString(maxHostLen)
	r.Field("server_port").ReadI16()
	next := r.Field("next_state").ReadVarInt()
	if r.Failed() {
		return nil
	}

	sess := c.Session
	switch next {
	case nextStateLogin:
		if version != packet.ProtocolVersion {
			sess.Log().Info("協定版本不符",
				zap.Int32("client", version),
				zap.Int32("server", packet.ProtocolVersion),
			)
			sess.Close()
			return fmt.Errorf("%w: %d", errUnsupportedVersion, version)
		}
		sess.SetState(packet.StateLogin)
	case nextStateStatus:
		sess.SetState(packet.StateStatus)
		sess.Close()
	default:
		sess.Close()
		return fmt.Errorf("%w: %d", errBadNextState, next)
	}
	return nil
}

// HandleLoginStart processes login start: name, [has uuid, uuid]. The
// server runs offline, so the profile id is always derived from the name.
// Compression is negotiated before Login Success.
func HandleLoginStart(c *Conn, r *packet.Reader, deps *Deps) error {
	name := r.Field("name").ReadString(maxNameLen)
	if r.Field("has_uuid").ReadBool() {
		r.Field("uuid").ReadUUID()
	}
	if r.Failed() {
		return nil
	}

	sess := c.Session
	sess.Username = name
	sess.UUID = OfflineUUID(name)

	if threshold := deps.Compose.Threshold(); threshold >= 0 {
		sess.Out.AppendRaw(net.FrameUncompressed(packet.Body(packet.SetCompression{Threshold: int32(threshold)})))
		sess.EnableCompression(threshold)
	}
	sess.Send(packet.LoginSuccess{UUID: sess.UUID, Name: name}, deps.Compose)
	sess.SetState(packet.StatePlay)

	sess.Log().Info("玩家登入",
		zap.String("name", name),
		zap.Stringer("uuid", sess.UUID),
	)
	deps.Joins.QueueJoin(sess)
	return nil
}

// OfflineUUID derives the version 3 profile id an offline-mode server
// assigns to name.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return uuid.UUID(sum)
}
