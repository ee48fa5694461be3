package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase. Packet ids
// are only unique within one state.
type SessionState int

const (
	StateHandshake SessionState = iota
	StateStatus
	StateLogin
	StatePlay
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateStatus:
		return "Status"
	case StateLogin:
		return "Login"
	case StatePlay:
		return "Play"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc decodes one frame body. conn is the per-connection context,
// passed as an opaque value to avoid import cycles.
type HandlerFunc func(conn any, r *Reader) error

type routeKey struct {
	state SessionState
	id    int32
}

// Registry maps (state, packet id) to handlers. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	handlers map[routeKey]HandlerFunc
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[routeKey]HandlerFunc),
		log:      log,
	}
}

// Register maps a packet id to a handler in each of the given states.
func (reg *Registry) Register(id int32, states []SessionState, fn HandlerFunc) {
	for _, s := range states {
		reg.handlers[routeKey{state: s, id: id}] = fn
	}
}

// Dispatch routes the frame on its id. Unknown ids are silently ignored.
// A body that fails to decode yields a *DecodeError; the handler is expected
// not to have mutated anything in that case.
func (reg *Registry) Dispatch(conn any, state SessionState, f Frame) error {
	fn, ok := reg.handlers[routeKey{state: state, id: f.ID}]
	if !ok {
		reg.log.Debug("未知封包",
			zap.Int32("id", f.ID),
			zap.Int("size", len(f.Body)),
			zap.String("state", state.String()),
		)
		return nil
	}

	r := NewReader(f.Body)
	err := reg.safeCall(fn, conn, r, f.ID)
	if rerr := r.Err(); rerr != nil {
		return &DecodeError{ID: f.ID, Err: rerr}
	}
	return err
}

// safeCall executes a handler with panic recovery so a single bad frame
// cannot take down the tick.
func (reg *Registry) safeCall(fn HandlerFunc, conn any, r *Reader, id int32) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.Int32("id", id),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for packet 0x%02X: %v", id, rec)
		}
	}()
	return fn(conn, r)
}
