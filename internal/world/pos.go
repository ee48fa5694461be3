package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ChunkSize is the horizontal edge length of a chunk, in blocks.
const ChunkSize = 16

// ChunkPos identifies a chunk column on the horizontal plane.
type ChunkPos struct {
	X int16
	Z int16
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// ChunkAt returns the chunk containing the block coordinate (x, z).
// Coordinates beyond the int16 chunk range saturate.
func ChunkAt(x, z float64) ChunkPos {
	return ChunkPos{
		X: clampChunk(math.Floor(x / ChunkSize)),
		Z: clampChunk(math.Floor(z / ChunkSize)),
	}
}

func clampChunk(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Pose is the last known position and orientation of an entity, as the
// client reported it. Angles are in degrees.
type Pose struct {
	Position mgl64.Vec3
	Yaw      float32
	Pitch    float32
	OnGround bool
}

// Chunk returns the chunk the pose stands in.
func (p *Pose) Chunk() ChunkPos {
	return ChunkAt(p.Position.X(), p.Position.Z())
}
