package handler

import (
	"errors"

	"github.com/l1jgo/blockstream/internal/core/event"
	"github.com/l1jgo/blockstream/internal/net/packet"
)

// Interaction kinds.
const (
	interactUse    = 0
	interactAttack = 1
	interactAt     = 2
)

// meleeDamage is the flat damage of an unarmed hit.
const meleeDamage = 10

var errBadInteraction = errors.New("unknown interaction type")

// HandleInteractEntity processes an entity interaction: VarInt target id,
// VarInt kind, [3×f32 target position], [VarInt hand], sneaking. Only
// attacks on a live entity produce an event.
func HandleInteractEntity(c *Conn, r *packet.Reader, deps *Deps) error {
	target := r.Field("entity_id").ReadVarInt()
	kind := r.Field("type").ReadVarInt()
	switch kind {
	case interactUse:
		r.Field("hand").ReadVarInt()
	case interactAttack:
	case interactAt:
		r.Field("target_x").ReadF32()
		r.Field("target_y").ReadF32()
		r.Field("target_z").ReadF32()
		r.Field("hand").ReadVarInt()
	default:
		if r.Failed() {
			return nil
		}
		return &packet.DecodeError{ID: packet.C_PLAY_INTERACT_ENTITY, Err: errBadInteraction}
	}
	r.Field("sneaking").ReadBool()
	if r.Failed() || kind != interactAttack {
		return nil
	}

	id, ok := deps.Lookups.EntityIDs.Get(target)
	if !ok {
		// Target despawned after the client saw it.
		return nil
	}
	c.Player.Events.Push(event.AttackEntity{
		Target:  id,
		From:    c.Player.ID,
		FromPos: c.Player.Pose.Position,
		Damage:  meleeDamage,
		Source:  event.AttackMelee,
	})
	return nil
}
