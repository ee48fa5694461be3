package system

import (
	"fmt"
	"strings"
	"time"

	"github.com/l1jgo/blockstream/internal/core/event"
	coresys "github.com/l1jgo/blockstream/internal/core/system"
	"github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap"
)

// EventSystem delivers the events published last tick. Phase 1 (PreUpdate).
type EventSystem struct {
	bus *event.Bus
	log *zap.Logger
}

func NewEventSystem(bus *event.Bus, log *zap.Logger) *EventSystem {
	return &EventSystem{bus: bus, log: log}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	if n := s.bus.DispatchAll(); n > 0 {
		s.log.Debug("事件已派送", zap.Int("count", n))
	}
}

// Commands answers the few slash commands the core understands itself.
// Everything else is left to whatever else subscribes to event.Command.
type Commands struct {
	world   *world.State
	compose *net.Compose
	log     *zap.Logger
}

// SubscribeCommands wires the built-in commands into bus.
func SubscribeCommands(bus *event.Bus, ws *world.State, compose *net.Compose, log *zap.Logger) *Commands {
	c := &Commands{world: ws, compose: compose, log: log}
	event.Subscribe(bus, c.handle)
	return c
}

func (c *Commands) handle(ev event.Command) {
	p := c.world.Get(ev.By)
	if p == nil {
		// Left before the command was delivered.
		return
	}
	name, _, _ := strings.Cut(ev.Raw, " ")
	switch name {
	case "where":
		pos := p.Pose.Position
		c.reply(p, fmt.Sprintf("%.1f %.1f %.1f in chunk %s", pos.X(), pos.Y(), pos.Z(), p.Pose.Chunk()))
	case "online":
		c.reply(p, fmt.Sprintf("%d online", c.world.PlayerCount()))
	default:
		c.log.Debug("未處理的指令", zap.String("name", p.Name), zap.String("command", ev.Raw))
	}
}

func (c *Commands) reply(p *world.Player, text string) {
	p.Session.Send(packet.SystemChat{Text: text}, c.compose)
}
