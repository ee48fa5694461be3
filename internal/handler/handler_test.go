package handler

import (
	"bufio"
	"bytes"
	"errors"
	stdnet "net"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/l1jgo/blockstream/internal/config"
	"github.com/l1jgo/blockstream/internal/core/ecs"
	"github.com/l1jgo/blockstream/internal/core/event"
	"github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap/zaptest"
)

type joinRecorder struct {
	joined []*net.Session
}

func (j *joinRecorder) QueueJoin(sess *net.Session) {
	j.joined = append(j.joined, sess)
}

type fixture struct {
	reg   *packet.Registry
	deps  *Deps
	conn  *Conn
	joins *joinRecorder
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	server, client := stdnet.Pipe()
	t.Cleanup(func() { client.Close() })
	sess := net.NewSession(server, 1, net.SessionOptions{InQueueSize: 1, OutQueueSize: 1}, log)

	joins := &joinRecorder{}
	deps := &Deps{
		Config:    config.Defaults(),
		Compose:   net.NewCompose(threshold, 0),
		Lookups:   world.NewLookups(),
		Joins:     joins,
		Log:       log,
		Teleports: &TeleportIDs{},
	}
	reg := packet.NewRegistry(log)
	RegisterAll(reg, deps)

	player := &world.Player{
		ID:      ecs.NewEntityID(1, 0),
		Session: sess,
		Pose:    world.Pose{Position: mgl64.Vec3{0.5, 64, 0.5}},
	}
	return &fixture{reg: reg, deps: deps, conn: &Conn{Session: sess, Player: player}, joins: joins}
}

func (f *fixture) dispatch(id int32, w *packet.Writer) error {
	return f.reg.Dispatch(f.conn, packet.StatePlay, packet.Frame{ID: id, Body: w.Bytes()})
}

func fullBody(x, y, z float64, yaw, pitch float32) *packet.Writer {
	w := packet.NewWriter()
	w.WriteF64(x)
	w.WriteF64(y)
	w.WriteF64(z)
	w.WriteF32(yaw)
	w.WriteF32(pitch)
	w.WriteBool(true)
	return w
}

func TestUnknownFrameIsIgnored(t *testing.T) {
	f := newFixture(t, -1)
	w := packet.NewWriter()
	w.WriteBytes([]byte{1, 2, 3})
	if err := f.dispatch(0x7E, w); err != nil {
		t.Fatalf("unknown id returned %v", err)
	}
	if f.conn.Player.Events.Len() != 0 {
		t.Fatalf("unknown id produced events")
	}
}

func TestFullMovesPose(t *testing.T) {
	f := newFixture(t, -1)
	if err := f.dispatch(packet.C_PLAY_FULL, fullBody(40, 70, -3, 90, 10)); err != nil {
		t.Fatal(err)
	}
	p := f.conn.Player.Pose
	if p.Position != (mgl64.Vec3{40, 70, -3}) || p.Yaw != 90 || p.Pitch != 10 || !p.OnGround {
		t.Fatalf("pose = %+v", p)
	}
	if p.Chunk() != (world.ChunkPos{X: 2, Z: -1}) {
		t.Fatalf("chunk = %v", p.Chunk())
	}
}

func TestTruncatedMovementLeavesPose(t *testing.T) {
	f := newFixture(t, -1)
	before := f.conn.Player.Pose

	full := fullBody(99, 99, 99, 45, 45).Bytes()
	err := f.reg.Dispatch(f.conn, packet.StatePlay, packet.Frame{ID: packet.C_PLAY_FULL, Body: full[:len(full)-3]})
	if !packet.IsDecodeError(err) {
		t.Fatalf("err = %v, want decode error", err)
	}
	if f.conn.Player.Pose != before {
		t.Fatalf("pose changed on decode failure: %+v", f.conn.Player.Pose)
	}

	w := packet.NewWriter()
	w.WriteF64(1)
	w.WriteF64(2)
	if err := f.dispatch(packet.C_PLAY_POSITION_ON_GROUND, w); !packet.IsDecodeError(err) {
		t.Fatalf("err = %v", err)
	}
	if f.conn.Player.Pose != before {
		t.Fatalf("pose changed on decode failure")
	}
}

func TestLookOnGround(t *testing.T) {
	f := newFixture(t, -1)
	w := packet.NewWriter()
	w.WriteF32(-30)
	w.WriteF32(15)
	w.WriteBool(false)
	for i := 0; i < 2; i++ {
		if err := f.dispatch(packet.C_PLAY_LOOK_ON_GROUND, w); err != nil {
			t.Fatal(err)
		}
	}
	p := f.conn.Player.Pose
	if p.Yaw != -30 || p.Pitch != 15 || p.Position != (mgl64.Vec3{0.5, 64, 0.5}) {
		t.Fatalf("pose = %+v", p)
	}
}

func TestSpeedCheck(t *testing.T) {
	f := newFixture(t, -1)

	// disabled by default: any distance is accepted
	if err := f.dispatch(packet.C_PLAY_FULL, fullBody(5000, 64, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}

	f.deps.Config.AntiCheat.SpeedCheck = true
	f.deps.Config.AntiCheat.MaxDisplacement = 10
	before := f.conn.Player.Pose
	err := f.dispatch(packet.C_PLAY_FULL, fullBody(5100, 64, 0, 0, 0))
	if !errors.Is(err, ErrMoveTooFast) {
		t.Fatalf("err = %v", err)
	}
	if f.conn.Player.Pose != before {
		t.Fatalf("rejected move changed pose")
	}
	got, err := net.ReadFrame(bufio.NewReader(bytes.NewReader(f.conn.Session.Out.Take())), -1)
	if err != nil || got.ID != packet.S_PLAY_SYNC_POSITION {
		t.Fatalf("expected a position sync, got %+v %v", got, err)
	}

	if err := f.dispatch(packet.C_PLAY_FULL, fullBody(5005, 64, 0, 0, 0)); err != nil {
		t.Fatalf("short move rejected: %v", err)
	}
}

func TestNonFinitePositionRejected(t *testing.T) {
	f := newFixture(t, -1)
	nan := fullBody(0, 0, 0, 0, 0).Bytes()
	copy(nan[0:8], []byte{0x7F, 0xF8, 0, 0, 0, 0, 0, 1})
	err := f.reg.Dispatch(f.conn, packet.StatePlay, packet.Frame{ID: packet.C_PLAY_FULL, Body: nan})
	if !errors.Is(err, ErrBadPosition) {
		t.Fatalf("err = %v", err)
	}
}

func interactBody(target, kind int32) *packet.Writer {
	w := packet.NewWriter()
	w.WriteVarInt(target)
	w.WriteVarInt(kind)
	switch kind {
	case 0:
		w.WriteVarInt(0)
	case 2:
		w.WriteF32(0.5)
		w.WriteF32(1)
		w.WriteF32(0.5)
		w.WriteVarInt(1)
	}
	w.WriteBool(false)
	return w
}

func TestAttackMissingTargetIsDropped(t *testing.T) {
	f := newFixture(t, -1)
	if err := f.dispatch(packet.C_PLAY_INTERACT_ENTITY, interactBody(42, 1)); err != nil {
		t.Fatalf("err = %v", err)
	}
	if f.conn.Player.Events.Len() != 0 {
		t.Fatalf("attack on a missing target produced an event")
	}
}

func TestAttackStaleIDAfterRejoin(t *testing.T) {
	f := newFixture(t, -1)
	log := zaptest.NewLogger(t)
	ws := world.NewState(f.deps.Lookups)

	join := func(id uint64) *world.Player {
		server, client := stdnet.Pipe()
		t.Cleanup(func() { client.Close() })
		sess := net.NewSession(server, id, net.SessionOptions{InQueueSize: 1, OutQueueSize: 1}, log)
		sess.UUID = uuid.New()
		return ws.AddPlayer(sess, world.Pose{}, 1)
	}

	gone := join(10)
	ws.RemovePlayer(10)
	ws.FlushDestroyed()
	join(11)

	if err := f.dispatch(packet.C_PLAY_INTERACT_ENTITY, interactBody(gone.NetID(), 1)); err != nil {
		t.Fatal(err)
	}
	if f.conn.Player.Events.Len() != 0 {
		t.Fatalf("attack on a departed player's id hit someone: %v", f.conn.Player.Events.Events())
	}
}

func TestAttackLiveTarget(t *testing.T) {
	f := newFixture(t, -1)
	target := ecs.NewEntityID(42, 3)
	f.deps.Lookups.Insert(42, target, uuid.New())

	for _, kind := range []int32{0, 2} {
		if err := f.dispatch(packet.C_PLAY_INTERACT_ENTITY, interactBody(42, kind)); err != nil {
			t.Fatal(err)
		}
	}
	if f.conn.Player.Events.Len() != 0 {
		t.Fatalf("non-attack interactions must not produce events")
	}

	if err := f.dispatch(packet.C_PLAY_INTERACT_ENTITY, interactBody(42, 1)); err != nil {
		t.Fatal(err)
	}
	evs := f.conn.Player.Events.Events()
	if len(evs) != 1 {
		t.Fatalf("events = %v", evs)
	}
	atk, ok := evs[0].(event.AttackEntity)
	if !ok || atk.Target != target || atk.From != f.conn.Player.ID || atk.Source != event.AttackMelee {
		t.Fatalf("event = %+v", evs[0])
	}
	if atk.FromPos != f.conn.Player.Pose.Position {
		t.Fatalf("from pos = %v", atk.FromPos)
	}

	if err := f.dispatch(packet.C_PLAY_INTERACT_ENTITY, interactBody(42, 7)); !packet.IsDecodeError(err) {
		t.Fatalf("bad kind err = %v", err)
	}
}

func TestChatCommand(t *testing.T) {
	f := newFixture(t, -1)
	w := packet.NewWriter()
	w.WriteString("say café ")
	w.WriteI64(1700000000000)
	w.WriteI64(12345)
	w.WriteVarInt(1)
	w.WriteString("message")
	w.WriteBytes(make([]byte, 256))
	w.WriteVarInt(0)
	w.WriteBytes([]byte{0, 0, 0})
	if err := f.dispatch(packet.C_PLAY_CHAT_COMMAND, w); err != nil {
		t.Fatal(err)
	}
	evs := f.conn.Player.Events.Events()
	if len(evs) != 1 {
		t.Fatalf("events = %v", evs)
	}
	cmd := evs[0].(event.Command)
	if cmd.Raw != "say café" || cmd.By != f.conn.Player.ID {
		t.Fatalf("command = %q", cmd.Raw)
	}

	bad := packet.NewWriter()
	bad.WriteString("x")
	bad.WriteI64(0)
	bad.WriteI64(0)
	bad.WriteVarInt(100)
	if err := f.dispatch(packet.C_PLAY_CHAT_COMMAND, bad); !packet.IsDecodeError(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestPlayerActionEvents(t *testing.T) {
	f := newFixture(t, -1)
	pos := packet.BlockPos{X: -10, Y: 64, Z: 300}
	for status := int32(0); status <= 3; status++ {
		w := packet.NewWriter()
		w.WriteVarInt(status)
		w.WriteBlockPos(pos)
		w.WriteU8(1)
		w.WriteVarInt(100 + status)
		if err := f.dispatch(packet.C_PLAY_PLAYER_ACTION, w); err != nil {
			t.Fatal(err)
		}
	}
	evs := f.conn.Player.Events.Events()
	if len(evs) != 3 {
		t.Fatalf("events = %v", evs)
	}
	if e, ok := evs[0].(event.BlockStartBreak); !ok || e.Position != pos || e.Sequence != 100 {
		t.Fatalf("start = %+v", evs[0])
	}
	if e, ok := evs[1].(event.BlockAbortBreak); !ok || e.Sequence != 101 {
		t.Fatalf("abort = %+v", evs[1])
	}
	if e, ok := evs[2].(event.BlockFinishBreak); !ok || e.Sequence != 102 {
		t.Fatalf("finish = %+v", evs[2])
	}
}

func TestSneakAndSwing(t *testing.T) {
	f := newFixture(t, -1)
	for _, action := range []int32{0, 1, 3} {
		w := packet.NewWriter()
		w.WriteVarInt(f.conn.Player.NetID())
		w.WriteVarInt(action)
		w.WriteVarInt(0)
		if err := f.dispatch(packet.C_PLAY_PLAYER_COMMAND, w); err != nil {
			t.Fatal(err)
		}
	}
	swing := packet.NewWriter()
	swing.WriteVarInt(1)
	if err := f.dispatch(packet.C_PLAY_SWING_ARM, swing); err != nil {
		t.Fatal(err)
	}

	evs := f.conn.Player.Events.Events()
	if len(evs) != 3 {
		t.Fatalf("events = %v", evs)
	}
	if e := evs[0].(event.PoseUpdate); e.State != event.StanceSneaking {
		t.Fatalf("first = %+v", e)
	}
	if e := evs[1].(event.PoseUpdate); e.State != event.StanceStanding {
		t.Fatalf("second = %+v", e)
	}
	if e := evs[2].(event.SwingArm); e.Hand != event.HandOff || e.Target != f.conn.Player.ID {
		t.Fatalf("swing = %+v", e)
	}
}

func TestPlayFramesBeforeJoinAreDropped(t *testing.T) {
	f := newFixture(t, -1)
	f.conn.Player = nil
	if err := f.dispatch(packet.C_PLAY_FULL, fullBody(1, 2, 3, 0, 0)); err != nil {
		t.Fatal(err)
	}
}

func TestLoginFlow(t *testing.T) {
	f := newFixture(t, 256)
	f.conn.Player = nil
	sess := f.conn.Session

	hs := packet.NewWriter()
	hs.WriteVarInt(packet.ProtocolVersion)
	hs.WriteString("localhost")
	hs.WriteBytes([]byte{0x63, 0xDD}) // port 25565
	hs.WriteVarInt(2)
	if err := f.reg.Dispatch(f.conn, sess.State(), packet.Frame{ID: packet.C_HANDSHAKE, Body: hs.Bytes()}); err != nil {
		t.Fatal(err)
	}
	if sess.State() != packet.StateLogin {
		t.Fatalf("state = %s", sess.State())
	}

	ls := packet.NewWriter()
	ls.WriteString("steve")
	ls.WriteBool(false)
	if err := f.reg.Dispatch(f.conn, sess.State(), packet.Frame{ID: packet.C_LOGIN_START, Body: ls.Bytes()}); err != nil {
		t.Fatal(err)
	}
	if sess.State() != packet.StatePlay || sess.Username != "steve" || sess.UUID != OfflineUUID("steve") {
		t.Fatalf("session = %s %q %s", sess.State(), sess.Username, sess.UUID)
	}
	if len(f.joins.joined) != 1 {
		t.Fatalf("join not queued")
	}

	br := bufio.NewReader(bytes.NewReader(sess.Out.Take()))
	first, err := net.ReadFrame(br, -1)
	if err != nil || first.ID != packet.S_LOGIN_COMPRESSION {
		t.Fatalf("first packet %+v %v", first, err)
	}
	if th := packet.NewReader(first.Body).ReadVarInt(); th != 256 {
		t.Fatalf("threshold = %d", th)
	}
	second, err := net.ReadFrame(br, 256)
	if err != nil || second.ID != packet.S_LOGIN_SUCCESS {
		t.Fatalf("second packet %+v %v", second, err)
	}
}

func TestHandshakeRejectsWrongVersion(t *testing.T) {
	f := newFixture(t, -1)
	hs := packet.NewWriter()
	hs.WriteVarInt(packet.ProtocolVersion - 1)
	hs.WriteString("localhost")
	hs.WriteBytes([]byte{0x63, 0xDD}) // port 25565
	hs.WriteVarInt(2)
	err := f.reg.Dispatch(f.conn, packet.StateHandshake, packet.Frame{ID: packet.C_HANDSHAKE, Body: hs.Bytes()})
	if !errors.Is(err, errUnsupportedVersion) || !f.conn.Session.IsClosed() {
		t.Fatalf("err = %v closed = %v", err, f.conn.Session.IsClosed())
	}
}

func TestOfflineUUID(t *testing.T) {
	a := OfflineUUID("alex")
	if a != OfflineUUID("alex") || a == OfflineUUID("steve") {
		t.Fatalf("offline uuid must be deterministic per name")
	}
	if a.Version() != 3 || a.Variant() != uuid.RFC4122 {
		t.Fatalf("uuid %s: version %d variant %s", a, a.Version(), a.Variant())
	}
}
