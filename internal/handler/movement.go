package handler

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"go.uber.org/zap"
)

// ErrMoveTooFast is returned when the speed check rejects a movement frame.
var ErrMoveTooFast = errors.New("moved too fast")

// ErrBadPosition is returned for NaN or infinite coordinates.
var ErrBadPosition = errors.New("non-finite position")

// HandleFull processes a position + look frame: 3×f64, 2×f32, on-ground.
func HandleFull(c *Conn, r *packet.Reader, deps *Deps) error {
	pos := readVec3(r)
	yaw := r.Field("yaw").ReadF32()
	pitch := r.Field("pitch").ReadF32()
	onGround := r.Field("on_ground").ReadBool()
	if r.Failed() {
		return nil
	}
	if err := moveTo(c, pos, deps); err != nil {
		return err
	}
	c.Player.Pose.Yaw = yaw
	c.Player.Pose.Pitch = pitch
	c.Player.Pose.OnGround = onGround
	return nil
}

// HandlePositionOnGround processes a position-only frame: 3×f64, on-ground.
func HandlePositionOnGround(c *Conn, r *packet.Reader, deps *Deps) error {
	pos := readVec3(r)
	onGround := r.Field("on_ground").ReadBool()
	if r.Failed() {
		return nil
	}
	if err := moveTo(c, pos, deps); err != nil {
		return err
	}
	c.Player.Pose.OnGround = onGround
	return nil
}

// HandleLookOnGround processes a look-only frame: 2×f32, on-ground.
func HandleLookOnGround(c *Conn, r *packet.Reader, _ *Deps) error {
	yaw := r.Field("yaw").ReadF32()
	pitch := r.Field("pitch").ReadF32()
	onGround := r.Field("on_ground").ReadBool()
	if r.Failed() {
		return nil
	}
	c.Player.Pose.Yaw = yaw
	c.Player.Pose.Pitch = pitch
	c.Player.Pose.OnGround = onGround
	return nil
}

func readVec3(r *packet.Reader) mgl64.Vec3 {
	x := r.Field("x").ReadF64()
	y := r.Field("y").ReadF64()
	z := r.Field("z").ReadF64()
	return mgl64.Vec3{x, y, z}
}

// moveTo applies the speed policy and stores the new position. A rejected
// move leaves Pose untouched and teleports the client back.
func moveTo(c *Conn, pos mgl64.Vec3, deps *Deps) error {
	for _, v := range pos {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrBadPosition
		}
	}

	pose := &c.Player.Pose
	ac := deps.Config.AntiCheat
	if ac.SpeedCheck {
		if d := pos.Sub(pose.Position).Len(); d > ac.MaxDisplacement {
			c.Session.Send(packet.SyncPosition{
				X: pose.Position.X(), Y: pose.Position.Y(), Z: pose.Position.Z(),
				Yaw: pose.Yaw, Pitch: pose.Pitch,
				TeleportID: deps.Teleports.Next(),
			}, deps.Compose)
			c.Session.Log().Debug("移動速度過快，已拉回",
				zap.Float64("distance", d),
				zap.Float64("max", ac.MaxDisplacement),
			)
			return fmt.Errorf("%w: %.1f blocks", ErrMoveTooFast, d)
		}
	}
	pose.Position = pos
	return nil
}
