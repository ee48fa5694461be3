package system

import (
	"time"

	"github.com/l1jgo/blockstream/internal/core/event"
	coresys "github.com/l1jgo/blockstream/internal/core/system"
	"github.com/l1jgo/blockstream/internal/handler"
	"github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap"
)

// SessionSource delivers accepted and dead sessions. *net.Server implements it.
type SessionSource interface {
	NewSessions() <-chan *net.Session
	DeadSessions() <-chan uint64
	NotifyDead(sessionID uint64)
}

// InputSystem admits new sessions, reaps closed ones, and dispatches every
// session's queued frames. Connections are dispatched in parallel; each
// worker touches only its own connection and player. Phase 0 (Input).
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	world      *world.State
	bus        *event.Bus
	broadcast  *net.Broadcast
	compose    *net.Compose
	maxPerTick int
	maxErrors  int
	workers    int
	log        *zap.Logger
}

type InputOptions struct {
	MaxPacketsPerTick int
	MaxDecodeErrors   int // 0 = unlimited
	Workers           int
}

func NewInputSystem(
	source SessionSource,
	registry *packet.Registry,
	store *net.SessionStore,
	ws *world.State,
	bus *event.Bus,
	broadcast *net.Broadcast,
	compose *net.Compose,
	opts InputOptions,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		world:      ws,
		bus:        bus,
		broadcast:  broadcast,
		compose:    compose,
		maxPerTick: opts.MaxPacketsPerTick,
		maxErrors:  opts.MaxDecodeErrors,
		workers:    opts.Workers,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	s.admit()

	sessions := s.store.Snapshot()
	coresys.ForEach(sessions, s.workers, s.dispatch)

	// Reap after dispatch so frames sent just before a disconnect still count.
	for _, sess := range sessions {
		if sess.IsClosed() {
			s.handleDisconnect(sess)
		}
	}

	// Merge per-connection events in one goroutine.
	for _, p := range s.world.Players() {
		p.Events.DrainTo(s.bus)
	}
}

func (s *InputSystem) admit() {
	for {
		select {
		case sess := <-s.source.NewSessions():
			s.store.Add(sess)
		case id := <-s.source.DeadSessions():
			s.store.Remove(id)
		default:
			return
		}
	}
}

// dispatch drains up to maxPerTick frames of one connection.
func (s *InputSystem) dispatch(sess *net.Session) {
	conn := &handler.Conn{Session: sess, Player: s.world.GetBySession(sess.ID)}
	for i := 0; i < s.maxPerTick; i++ {
		var f packet.Frame
		select {
		case f = <-sess.InQueue:
		default:
			return
		}

		err := s.registry.Dispatch(conn, sess.State(), f)
		if err == nil {
			continue
		}
		if !packet.IsDecodeError(err) {
			sess.Log().Debug("封包處理失敗", zap.Int32("id", f.ID), zap.Error(err))
			continue
		}

		sess.Log().Debug("封包解碼失敗", zap.Error(err))
		if conn.Player == nil {
			// Nothing sane can follow a malformed login frame.
			sess.Close()
			return
		}
		conn.Player.DecodeErrors++
		if s.maxErrors > 0 && conn.Player.DecodeErrors > s.maxErrors {
			sess.Log().Warn("解碼錯誤過多，斷開連線", zap.Int("errors", conn.Player.DecodeErrors))
			sess.Close()
			return
		}
	}
}

// handleDisconnect removes a closed session from the store and, if it had
// joined, from the world.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	s.store.Remove(sess.ID)
	s.source.NotifyDead(sess.ID)

	p := s.world.RemovePlayer(sess.ID)
	if p == nil {
		return
	}
	// Events decoded before the close are still delivered.
	p.Events.DrainTo(s.bus)
	event.Emit(s.bus, event.PlayerDisconnected{EntityID: p.ID, SessionID: sess.ID})
	if err := s.broadcast.Append(packet.SystemChat{Text: p.Name + " left the world"}, s.compose); err != nil {
		s.log.Error("廣播編碼失敗", zap.Error(err))
	}
	s.log.Info("玩家離線",
		zap.String("name", p.Name),
		zap.Uint64("session", sess.ID),
		zap.Int("online", s.world.PlayerCount()),
	)
}
