package handler

import (
	"github.com/l1jgo/blockstream/internal/core/event"
	"github.com/l1jgo/blockstream/internal/net/packet"
)

// Player action statuses that map to block-break events.
const (
	actionStartDigging     = 0
	actionCancelledDigging = 1
	actionFinishedDigging  = 2
)

// Player command actions that toggle sneaking.
const (
	commandStartSneaking = 0
	commandStopSneaking  = 1
)

// HandleTeleportConfirm acknowledges a position sync. Nothing to do.
func HandleTeleportConfirm(_ *Conn, r *packet.Reader, _ *Deps) error {
	r.Field("teleport_id").ReadVarInt()
	return nil
}

// HandleKeepAlive accepts the client's echo. Liveness is covered by the
// read deadline, so the id is not checked.
func HandleKeepAlive(_ *Conn, r *packet.Reader, _ *Deps) error {
	r.Field("keep_alive_id").ReadI64()
	return nil
}

// HandleSwingArm processes an arm swing: VarInt hand.
func HandleSwingArm(c *Conn, r *packet.Reader, _ *Deps) error {
	hand := r.Field("hand").ReadVarInt()
	if r.Failed() {
		return nil
	}
	c.Player.Events.Push(event.SwingArm{
		Target: c.Player.ID,
		Hand:   event.Hand(hand),
	})
	return nil
}

// HandlePlayerAction processes digging: VarInt status, packed position,
// face, VarInt sequence. Other statuses (drop item, swap hands) are ignored.
func HandlePlayerAction(c *Conn, r *packet.Reader, _ *Deps) error {
	status := r.Field("status").ReadVarInt()
	pos := r.Field("location").ReadBlockPos()
	r.Field("face").ReadU8()
	seq := r.Field("sequence").ReadVarInt()
	if r.Failed() {
		return nil
	}

	by := c.Player.ID
	switch status {
	case actionStartDigging:
		c.Player.Events.Push(event.BlockStartBreak{By: by, Position: pos, Sequence: seq})
	case actionCancelledDigging:
		c.Player.Events.Push(event.BlockAbortBreak{By: by, Position: pos, Sequence: seq})
	case actionFinishedDigging:
		c.Player.Events.Push(event.BlockFinishBreak{By: by, Position: pos, Sequence: seq})
	}
	return nil
}

// HandlePlayerCommand processes entity actions: VarInt entity id, VarInt
// action, VarInt jump boost. Only the sneak toggles become events.
func HandlePlayerCommand(c *Conn, r *packet.Reader, _ *Deps) error {
	r.Field("entity_id").ReadVarInt()
	action := r.Field("action").ReadVarInt()
	r.Field("jump_boost").ReadVarInt()
	if r.Failed() {
		return nil
	}

	switch action {
	case commandStartSneaking:
		c.Player.Events.Push(event.PoseUpdate{Target: c.Player.ID, State: event.StanceSneaking})
	case commandStopSneaking:
		c.Player.Events.Push(event.PoseUpdate{Target: c.Player.ID, State: event.StanceStanding})
	}
	return nil
}
