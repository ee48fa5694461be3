package world

import (
	"github.com/google/uuid"
	"github.com/l1jgo/blockstream/internal/core/ecs"
	"github.com/l1jgo/blockstream/internal/core/event"
	"github.com/l1jgo/blockstream/internal/net"
)

// Player is the in-world component of a joined connection.
// Pose and Interest are written by one worker at a time: the dispatcher for
// this connection during input, the interest and drain phases afterwards.
type Player struct {
	ID      ecs.EntityID
	netID   int32
	UUID    uuid.UUID
	Name    string
	Session *net.Session

	Pose     Pose
	Interest *InterestState

	// Events collects what the dispatcher decoded this tick.
	Events event.Queue

	DecodeErrors int
}

// NetID is the entity id clients see. It is never handed out twice, so a
// frame aimed at a departed player cannot resolve to a later one.
func (p *Player) NetID() int32 {
	return p.netID
}

// State holds every joined player. Membership changes only from the join
// and input phases on the tick goroutine.
type State struct {
	ecs       *ecs.World
	players   *ecs.PtrComponentStore[Player]
	bySession map[uint64]*Player
	lookups   *Lookups
	nextNetID int32
}

func NewState(lookups *Lookups) *State {
	w := ecs.NewWorld()
	players := ecs.NewPtrComponentStore[Player]()
	w.Registry().Register(players)
	return &State{
		ecs:       w,
		players:   players,
		bySession: make(map[uint64]*Player, 256),
		lookups:   lookups,
	}
}

// AddPlayer creates the entity for sess and makes it resolvable through
// both lookup tables.
func (s *State) AddPlayer(sess *net.Session, pose Pose, radius int) *Player {
	id := s.ecs.CreateEntity()
	s.nextNetID++
	p := &Player{
		ID:       id,
		netID:    s.nextNetID,
		UUID:     sess.UUID,
		Name:     sess.Username,
		Session:  sess,
		Pose:     pose,
		Interest: NewInterestState(pose.Chunk(), radius),
	}
	s.players.Set(id, p)
	s.bySession[sess.ID] = p
	s.lookups.Insert(p.netID, id, p.UUID)
	return p
}

// RemovePlayer drops the player of sessionID from the lookups and queues its
// entity for destruction. Returns nil if the session never joined.
func (s *State) RemovePlayer(sessionID uint64) *Player {
	p, ok := s.bySession[sessionID]
	if !ok {
		return nil
	}
	delete(s.bySession, sessionID)
	s.lookups.Remove(p.netID, p.ID, p.UUID)
	s.ecs.MarkForDestruction(p.ID)
	return p
}

func (s *State) GetBySession(sessionID uint64) *Player {
	return s.bySession[sessionID]
}

func (s *State) Get(id ecs.EntityID) *Player {
	p, _ := s.players.Get(id)
	return p
}

// Players returns the joined players in unspecified order.
func (s *State) Players() []*Player {
	out := make([]*Player, 0, len(s.bySession))
	for _, p := range s.bySession {
		out = append(out, p)
	}
	return out
}

func (s *State) PlayerCount() int {
	return len(s.bySession)
}

func (s *State) Lookups() *Lookups {
	return s.lookups
}

// FlushDestroyed finishes removals queued this tick.
func (s *State) FlushDestroyed() int {
	return s.ecs.FlushDestroyQueue()
}

// Alive reports whether id is a live entity.
func (s *State) Alive(id ecs.EntityID) bool {
	return s.ecs.Alive(id)
}
