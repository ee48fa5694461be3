package net

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionOptions carries the per-connection limits from [network].
type SessionOptions struct {
	InQueueSize      int
	OutQueueSize     int
	PacketsPerSecond int // 0 = unlimited
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
}

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; everything else is touched only from tick phases.
type Session struct {
	ID   uint64
	conn net.Conn

	state     atomic.Int32 // packet.SessionState
	threshold atomic.Int32 // inbound compression threshold, -1 = off

	InQueue  chan packet.Frame // tick loop reads frames from here
	OutQueue chan []byte       // writer goroutine reads from here

	IP string

	// Profile, set by the login handlers.
	Username string
	UUID     uuid.UUID

	// Out buffers this tick's packets; flushed by OutputSystem.
	Out Packets

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	limiter      *rate.Limiter // readLoop goroutine only
	writeTimeout time.Duration
	readTimeout  time.Duration

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan packet.Frame, opts.InQueueSize),
		OutQueue:     make(chan []byte, opts.OutQueueSize),
		IP:           conn.RemoteAddr().String(),
		closeCh:      make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		readTimeout:  opts.ReadTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	if opts.PacketsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.PacketsPerSecond), opts.PacketsPerSecond)
	}
	s.state.Store(int32(packet.StateHandshake))
	s.threshold.Store(-1)
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// EnableCompression makes the reader expect compressed framing. Must be
// called before the Set Compression packet is flushed.
func (s *Session) EnableCompression(threshold int) {
	s.threshold.Store(int32(threshold))
}

// Log returns the session-scoped logger.
func (s *Session) Log() *zap.Logger {
	return s.log
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send encodes a packet into this tick's output buffer.
func (s *Session) Send(p packet.Outbound, c *Compose) {
	if s.closed.Load() {
		return
	}
	if err := s.Out.Append(p, c); err != nil {
		s.log.Error("封包編碼失敗", zap.Int32("id", p.PacketID()), zap.Error(err))
	}
}

// FlushOutput hands this tick's bytes to the writer goroutine.
// Non-blocking: if OutQueue is full the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	if s.Out.Len() == 0 {
		return
	}
	data := s.Out.Take()
	if s.closed.Load() {
		return
	}
	select {
	case s.OutQueue <- data:
	default:
		s.log.Warn("輸出佇列已滿，斷開慢速連線")
		s.Close()
	}
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads frames from the connection and pushes them onto InQueue.
func (s *Session) readLoop() {
	defer s.Close()

	br := bufio.NewReader(s.conn)
	for {
		if s.readTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		payload, err := ReadPayload(br)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}
		// The threshold is read after the payload arrives: the client
		// switches framing only once Set Compression reached it.
		frame, err := DecodeFrame(payload, int(s.threshold.Load()))
		if err != nil {
			s.log.Debug("封包解框失敗", zap.Error(err))
			return
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("封包速率超限，斷開連線")
			return
		}

		// Block until InQueue has space or the session closes; dropping
		// movement frames would desync the client's position.
		select {
		case s.InQueue <- frame:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop writes each flushed tick batch to the connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if s.writeTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := WriteFrame(s.conn, data); err != nil {
				if !s.closed.Load() {
					s.log.Debug("寫入錯誤", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
