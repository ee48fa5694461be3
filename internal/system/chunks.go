package system

import (
	"sync/atomic"
	"time"

	coresys "github.com/l1jgo/blockstream/internal/core/system"
	"github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap"
)

// ChunkInterestSystem recomputes every player's chunk interest from the pose
// written during input. A player that crossed a chunk boundary is sent a
// recenter, then the newly entered region is added to its pending set.
// Phase 2 (Update).
type ChunkInterestSystem struct {
	world   *world.State
	compose *net.Compose
	radius  int
	workers int
}

func NewChunkInterestSystem(ws *world.State, compose *net.Compose, radius, workers int) *ChunkInterestSystem {
	return &ChunkInterestSystem{world: ws, compose: compose, radius: radius, workers: workers}
}

func (s *ChunkInterestSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ChunkInterestSystem) Update(_ time.Duration) {
	coresys.ForEach(s.world.Players(), s.workers, s.advance)
}

func (s *ChunkInterestSystem) advance(p *world.Player) {
	p.Interest.Advance(p.Pose.Chunk(), s.radius, func(c world.ChunkPos) {
		p.Session.Send(packet.SetCenterChunk{ChunkX: int32(c.X), ChunkZ: int32(c.Z)}, s.compose)
	})
}

// ChunkDrainSystem moves ready chunk bytes from the cache into each
// player's outbound buffer. Runs after interest, so a recenter always
// precedes the region it opened. Phase 3 (PostUpdate).
type ChunkDrainSystem struct {
	world   *world.State
	cache   world.ChunkSource
	workers int
	log     *zap.Logger

	delivered atomic.Int64
}

func NewChunkDrainSystem(ws *world.State, cache world.ChunkSource, workers int, log *zap.Logger) *ChunkDrainSystem {
	return &ChunkDrainSystem{world: ws, cache: cache, workers: workers, log: log}
}

func (s *ChunkDrainSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *ChunkDrainSystem) Update(_ time.Duration) {
	coresys.ForEach(s.world.Players(), s.workers, s.drain)
}

func (s *ChunkDrainSystem) drain(p *world.Player) {
	if len(p.Interest.Pending) == 0 {
		return
	}
	st := p.Interest.Drain(s.cache, p.Session.Out.AppendRaw, p.Session.Log())
	s.delivered.Add(int64(st.Delivered))
}

// Delivered returns how many chunk packets have been queued in total.
func (s *ChunkDrainSystem) Delivered() int64 {
	return s.delivered.Load()
}
