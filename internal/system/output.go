package system

import (
	"time"

	coresys "github.com/l1jgo/blockstream/internal/core/system"
	"github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/world"
)

// OutputSystem sends keep-alives, fans the broadcast buffer out to every
// player, then hands each session's bytes to its writer goroutine.
// Phase 4 (Output).
type OutputSystem struct {
	store     *net.SessionStore
	world     *world.State
	broadcast *net.Broadcast
	compose   *net.Compose

	keepAliveEvery int // ticks, 0 = never
	ticks          int
	keepAliveID    int64
}

func NewOutputSystem(store *net.SessionStore, ws *world.State, broadcast *net.Broadcast, compose *net.Compose, keepAliveEvery int) *OutputSystem {
	return &OutputSystem{
		store:          store,
		world:          ws,
		broadcast:      broadcast,
		compose:        compose,
		keepAliveEvery: keepAliveEvery,
	}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.ticks++
	players := s.world.Players()

	if s.keepAliveEvery > 0 && s.ticks%s.keepAliveEvery == 0 {
		s.keepAliveID++
		for _, p := range players {
			p.Session.Send(packet.KeepAlive{ID: s.keepAliveID}, s.compose)
		}
	}

	// Only joined players get broadcasts; a session still in login would
	// not understand play packets.
	if data := s.broadcast.Take(); len(data) > 0 {
		for _, p := range players {
			p.Session.Out.AppendRaw(data)
		}
	}

	for _, sess := range s.store.Raw() {
		sess.FlushOutput()
	}
}

// CleanupSystem finishes entity removals queued this tick. Phase 5 (Cleanup).
type CleanupSystem struct {
	world *world.State
}

func NewCleanupSystem(ws *world.State) *CleanupSystem {
	return &CleanupSystem{world: ws}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.world.FlushDestroyed()
}
