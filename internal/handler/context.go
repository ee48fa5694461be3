package handler

import (
	"sync/atomic"

	"github.com/l1jgo/blockstream/internal/config"
	"github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap"
)

// JoinQueuer receives sessions that finished login.
type JoinQueuer interface {
	QueueJoin(sess *net.Session)
}

// Deps holds shared dependencies injected into all packet handlers.
// Nothing here is mutated by handlers except through its own locking.
type Deps struct {
	Config    *config.Config
	Compose   *net.Compose
	Lookups   *world.Lookups
	Joins     JoinQueuer
	Log       *zap.Logger
	Teleports *TeleportIDs
}

// TeleportIDs hands out the ids carried by server-initiated position syncs.
// Join and the movement rubber-band draw from the same counter.
type TeleportIDs struct {
	n atomic.Int32
}

func (t *TeleportIDs) Next() int32 {
	return t.n.Add(1)
}

// Conn is what the registry passes to a handler: the connection and, once
// joined, its player. Only the goroutine dispatching this connection's frames
// touches it.
type Conn struct {
	Session *net.Session
	Player  *world.Player
}

type connHandler func(c *Conn, r *packet.Reader, deps *Deps) error

func adapt(fn connHandler, deps *Deps) packet.HandlerFunc {
	return func(conn any, r *packet.Reader) error {
		return fn(conn.(*Conn), r, deps)
	}
}

// inWorld wraps a play handler so it only runs for joined players. Frames
// that arrive between login and join are dropped.
func inWorld(fn connHandler) connHandler {
	return func(c *Conn, r *packet.Reader, deps *Deps) error {
		if c.Player == nil {
			return nil
		}
		return fn(c, r, deps)
	}
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	// Handshake and login
	reg.Register(packet.C_HANDSHAKE,
		[]packet.SessionState{packet.StateHandshake},
		adapt(HandleHandshake, deps),
	)
	reg.Register(packet.C_LOGIN_START,
		[]packet.SessionState{packet.StateLogin},
		adapt(HandleLoginStart, deps),
	)

	play := []packet.SessionState{packet.StatePlay}

	// Accepted and ignored.
	reg.Register(packet.C_PLAY_TELEPORT_CONFIRM, play, adapt(HandleTeleportConfirm, deps))
	reg.Register(packet.C_PLAY_KEEP_ALIVE, play, adapt(HandleKeepAlive, deps))

	// Movement writes Pose directly.
	reg.Register(packet.C_PLAY_FULL, play, adapt(inWorld(HandleFull), deps))
	reg.Register(packet.C_PLAY_POSITION_ON_GROUND, play, adapt(inWorld(HandlePositionOnGround), deps))
	reg.Register(packet.C_PLAY_LOOK_ON_GROUND, play, adapt(inWorld(HandleLookOnGround), deps))

	// Everything else becomes an event.
	reg.Register(packet.C_PLAY_CHAT_COMMAND, play, adapt(inWorld(HandleChatCommand), deps))
	reg.Register(packet.C_PLAY_SWING_ARM, play, adapt(inWorld(HandleSwingArm), deps))
	reg.Register(packet.C_PLAY_INTERACT_ENTITY, play, adapt(inWorld(HandleInteractEntity), deps))
	reg.Register(packet.C_PLAY_PLAYER_ACTION, play, adapt(inWorld(HandlePlayerAction), deps))
	reg.Register(packet.C_PLAY_PLAYER_COMMAND, play, adapt(inWorld(HandlePlayerCommand), deps))
}
