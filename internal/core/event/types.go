package event

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/l1jgo/blockstream/internal/core/ecs"
	"github.com/l1jgo/blockstream/internal/net/packet"
)

// PlayerJoined is emitted once the entity exists and both lookup tables
// resolve it.
type PlayerJoined struct {
	EntityID ecs.EntityID
	UUID     uuid.UUID
	Name     string
}

type PlayerDisconnected struct {
	EntityID  ecs.EntityID
	SessionID uint64
}

// Command is a slash command typed by a player, without the leading slash.
type Command struct {
	By  ecs.EntityID
	Raw string
}

// Hand identifies which arm performed an action.
type Hand int32

const (
	HandMain Hand = iota
	HandOff
)

type SwingArm struct {
	Target ecs.EntityID
	Hand   Hand
}

type AttackType int

const (
	AttackMelee AttackType = iota
)

// AttackEntity is emitted when a player attacks another live entity.
type AttackEntity struct {
	Target  ecs.EntityID
	From    ecs.EntityID
	FromPos mgl64.Vec3
	Damage  float32
	Source  AttackType
}

// Block-break events carry the client's sequence number opaquely so the
// consumer can order and acknowledge them.
type BlockStartBreak struct {
	By       ecs.EntityID
	Position packet.BlockPos
	Sequence int32
}

type BlockAbortBreak struct {
	By       ecs.EntityID
	Position packet.BlockPos
	Sequence int32
}

type BlockFinishBreak struct {
	By       ecs.EntityID
	Position packet.BlockPos
	Sequence int32
}

// Stance is a player's posture.
type Stance int

const (
	StanceStanding Stance = iota
	StanceSneaking
)

type PoseUpdate struct {
	Target ecs.EntityID
	State  Stance
}
