package net

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	acceptBacklog    = 128
	maxAcceptBackoff = time.Second
)

// Server owns the TCP listener. Accepted connections become started
// Sessions handed to the tick loop over a channel; the tick loop reports
// back the ids of sessions it has dropped.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	live     atomic.Int64

	newConns chan *Session
	deadCh   chan uint64

	opts    SessionOptions
	closing atomic.Bool
	log     *zap.Logger
}

func NewServer(bindAddr string, opts SessionOptions, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		newConns: make(chan *Session, acceptBacklog),
		deadCh:   make(chan uint64, acceptBacklog),
		opts:     opts,
		log:      log,
	}, nil
}

// AcceptLoop accepts until Shutdown. Transient accept errors back off
// exponentially up to maxAcceptBackoff.
func (s *Server) AcceptLoop() {
	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), maxAcceptBackoff)
			s.log.Error("連線接受失敗", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if tc, ok := conn.(*net.TCPConn); ok {
			// Tick batches are already coalesced; Nagle only adds latency.
			tc.SetNoDelay(true)
		}

		sess := NewSession(conn, s.nextID.Add(1), s.opts, s.log)
		select {
		case s.newConns <- sess:
			s.live.Add(1)
			sess.Start()
			sess.Log().Info("玩家連線", zap.String("ip", sess.IP))
		default:
			s.log.Warn("連線佇列已滿，拒絕新連線", zap.String("ip", sess.IP))
			sess.Close()
		}
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead reports a session the tick loop has dropped.
func (s *Server) NotifyDead(sessionID uint64) {
	s.live.Add(-1)
	select {
	case s.deadCh <- sessionID:
	default:
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.deadCh
}

// Live returns the number of accepted sessions not yet reported dead.
func (s *Server) Live() int64 {
	return s.live.Load()
}

// Shutdown stops accepting new connections. Existing sessions are left to
// the caller.
func (s *Server) Shutdown() {
	s.closing.Store(true)
	s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
