package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/blockstream/internal/core/event"
	coresys "github.com/l1jgo/blockstream/internal/core/system"
	"github.com/l1jgo/blockstream/internal/handler"
	"github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap"
)

// SnapshotSource materialises a chunk synchronously. *world.ChunkCache
// implements it.
type SnapshotSource interface {
	FetchBlocking(ctx context.Context, pos world.ChunkPos) ([]byte, error)
}

type JoinOptions struct {
	Spawn        mgl64.Vec3
	ViewDistance int
	MaxPlayers   int // 0 = unlimited
	Teleports    *handler.TeleportIDs
}

// JoinSystem turns logged-in sessions into players. Login handlers queue
// sessions from dispatch workers; the tick goroutine admits them here.
// Phase 1 (PreUpdate).
type JoinSystem struct {
	mu      sync.Mutex
	pending []*net.Session

	ctx       context.Context
	world     *world.State
	chunks    SnapshotSource
	compose   *net.Compose
	bus       *event.Bus
	broadcast *net.Broadcast
	opts      JoinOptions

	// snapshot is the recenter on the spawn chunk plus its chunk data,
	// shared by every join after the first.
	snapshot world.OnceCell[[]byte]

	log *zap.Logger
}

func NewJoinSystem(
	ctx context.Context,
	ws *world.State,
	chunks SnapshotSource,
	compose *net.Compose,
	bus *event.Bus,
	broadcast *net.Broadcast,
	opts JoinOptions,
	log *zap.Logger,
) *JoinSystem {
	if opts.Teleports == nil {
		opts.Teleports = &handler.TeleportIDs{}
	}
	return &JoinSystem{
		ctx:       ctx,
		world:     ws,
		chunks:    chunks,
		compose:   compose,
		bus:       bus,
		broadcast: broadcast,
		opts:      opts,
		log:       log,
	}
}

func (s *JoinSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

// QueueJoin is called by the login handler once Login Success was sent.
func (s *JoinSystem) QueueJoin(sess *net.Session) {
	s.mu.Lock()
	s.pending = append(s.pending, sess)
	s.mu.Unlock()
}

func (s *JoinSystem) Update(_ time.Duration) {
	s.mu.Lock()
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, sess := range queued {
		if sess.IsClosed() {
			continue
		}
		s.join(sess)
	}
}

func (s *JoinSystem) join(sess *net.Session) {
	if s.opts.MaxPlayers > 0 && s.world.PlayerCount() >= s.opts.MaxPlayers {
		sess.Log().Info("伺服器已滿，拒絕加入", zap.Int("max", s.opts.MaxPlayers))
		sess.Close()
		return
	}

	pose := world.Pose{Position: s.opts.Spawn, OnGround: true}
	snap, err := s.snapshot.Get(func() ([]byte, error) {
		return s.buildSnapshot(pose.Chunk())
	})
	if err != nil {
		sess.Log().Error("加入快照建立失敗", zap.Error(err))
		sess.Close()
		return
	}

	p := s.world.AddPlayer(sess, pose, s.opts.ViewDistance)
	sess.Out.AppendRaw(snap)
	sess.Send(packet.SyncPosition{
		X:          pose.Position.X(),
		Y:          pose.Position.Y(),
		Z:          pose.Position.Z(),
		TeleportID: s.opts.Teleports.Next(),
	}, s.compose)

	if err := s.broadcast.Append(packet.SystemChat{Text: p.Name + " joined the world"}, s.compose); err != nil {
		s.log.Error("廣播編碼失敗", zap.Error(err))
	}
	event.Emit(s.bus, event.PlayerJoined{EntityID: p.ID, UUID: p.UUID, Name: p.Name})

	s.log.Info("玩家進入世界",
		zap.String("name", p.Name),
		zap.Uint64("session", sess.ID),
		zap.Int32("entity", p.NetID()),
		zap.Int("pending", len(p.Interest.Pending)),
		zap.Int("online", s.world.PlayerCount()),
	)
}

// buildSnapshot blocks on the spawn chunk. It runs once per process unless
// it fails.
func (s *JoinSystem) buildSnapshot(spawn world.ChunkPos) ([]byte, error) {
	start := time.Now()
	center, err := s.compose.Encode(packet.SetCenterChunk{ChunkX: int32(spawn.X), ChunkZ: int32(spawn.Z)})
	if err != nil {
		return nil, fmt.Errorf("encode center chunk: %w", err)
	}
	data, err := s.chunks.FetchBlocking(s.ctx, spawn)
	if err != nil {
		return nil, fmt.Errorf("spawn chunk %s: %w", spawn, err)
	}

	out := make([]byte, 0, len(center)+len(data))
	out = append(out, center...)
	out = append(out, data...)
	s.log.Info("加入快照已建立",
		zap.Stringer("chunk", spawn),
		zap.Int("bytes", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}
