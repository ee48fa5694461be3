package world

import (
	"errors"
	"math"

	"go.uber.org/zap"
)

// AddedChunks returns the coordinates of the square of half-width radius
// around cur that are not in the square around prev. Both ranges are
// inclusive. Coordinates outside the int16 chunk range are skipped.
func AddedChunks(prev, cur ChunkPos, radius int) []ChunkPos {
	r := int32(radius)
	px, pz := int32(prev.X), int32(prev.Z)
	cx, cz := int32(cur.X), int32(cur.Z)

	var out []ChunkPos
	for x := cx - r; x <= cx+r; x++ {
		if x < math.MinInt16 || x > math.MaxInt16 {
			continue
		}
		inOldX := x >= px-r && x <= px+r
		for z := cz - r; z <= cz+r; z++ {
			if z < math.MinInt16 || z > math.MaxInt16 {
				continue
			}
			if inOldX && z >= pz-r && z <= pz+r {
				continue
			}
			out = append(out, ChunkPos{X: int16(x), Z: int16(z)})
		}
	}
	return out
}

// InterestState tracks which chunks a connection still needs. A coordinate
// leaves Pending only once its bytes were appended to the connection's
// outbound buffer, or it turned out to be outside the world.
type InterestState struct {
	Last    ChunkPos
	Pending map[ChunkPos]struct{}
}

// NewInterestState starts tracking at center. Every chunk of the view square
// except center itself is pending; the center chunk goes out with the join
// snapshot.
func NewInterestState(center ChunkPos, radius int) *InterestState {
	s := &InterestState{
		Last:    center,
		Pending: make(map[ChunkPos]struct{}, (2*radius+1)*(2*radius+1)),
	}
	for x := int32(center.X) - int32(radius); x <= int32(center.X)+int32(radius); x++ {
		for z := int32(center.Z) - int32(radius); z <= int32(center.Z)+int32(radius); z++ {
			if x < math.MinInt16 || x > math.MaxInt16 || z < math.MinInt16 || z > math.MaxInt16 {
				continue
			}
			c := ChunkPos{X: int16(x), Z: int16(z)}
			if c != center {
				s.Pending[c] = struct{}{}
			}
		}
	}
	return s
}

// Advance moves the tracked center to cur. When cur differs from Last,
// recenter is called before Last changes and the newly entered region is
// added to Pending. Returns whether the center moved.
func (s *InterestState) Advance(cur ChunkPos, radius int, recenter func(ChunkPos)) bool {
	if cur == s.Last {
		return false
	}
	if recenter != nil {
		recenter(cur)
	}
	for _, c := range AddedChunks(s.Last, cur, radius) {
		s.Pending[c] = struct{}{}
	}
	s.Last = cur
	return true
}

// ChunkSource is the non-blocking side of the chunk cache.
type ChunkSource interface {
	RequestOrFetch(pos ChunkPos) (CacheLookup, error)
}

// DrainStats summarises one drain pass.
type DrainStats struct {
	Delivered int
	Waiting   int
	Failed    int
	Dropped   int
}

// Drain polls src for every pending coordinate. Ready bytes are passed to
// sink and the coordinate is removed. Pending and failed coordinates stay
// for the next tick. Coordinates the cache can never serve are dropped.
func (s *InterestState) Drain(src ChunkSource, sink func([]byte), log *zap.Logger) DrainStats {
	var st DrainStats
	for pos := range s.Pending {
		res, err := src.RequestOrFetch(pos)
		if err != nil {
			st.Failed++
			if !errors.Is(err, ErrCacheClosed) {
				log.Warn("區塊取得失敗，下次重試", zap.Stringer("chunk", pos), zap.Error(err))
			}
			continue
		}
		switch res.Status {
		case LookupReady:
			sink(res.Data)
			delete(s.Pending, pos)
			st.Delivered++
		case LookupPending:
			st.Waiting++
		case LookupUnavailable:
			log.Debug("區塊不可用，略過", zap.Stringer("chunk", pos))
			delete(s.Pending, pos)
			st.Dropped++
		}
	}
	return st
}
