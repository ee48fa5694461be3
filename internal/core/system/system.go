package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain frame queues, dispatch, merge events
	PhasePreUpdate               // 1: joins/leaves, deliver last tick's events
	PhaseUpdate                  // 2: chunk interest (recenter + newly entered region)
	PhasePostUpdate              // 3: drain pending chunks against the cache
	PhaseOutput                  // 4: keep-alive, broadcast fan-out, flush
	PhaseCleanup                 // 5: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
