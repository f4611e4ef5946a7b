package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mrshakil015/channels/internal/app"
	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const defaultWriteWait = 5 * time.Second

// sink implements core.Sink for one WebSocket.
//
// Until the HTTP upgrade happens frames are buffered and the accept frame only
// records the decision. After attach, frames go through a bounded queue to the
// write pump, which is the only goroutine writing to the socket.
type sink struct {
	owner      *core.Connection
	policy     app.Policy
	pingPeriod time.Duration
	writeWait  time.Duration
	logger     zerolog.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	attached bool
	accepted bool
	pending  []domain.Frame

	send     chan domain.Frame
	done     chan struct{}
	once     sync.Once
	finished chan struct{}

	// closeCode is the code of the close frame written by the server, 0 if none.
	closeCode atomic.Int32
}

func newSink(opts Options, logger zerolog.Logger) *sink {
	policy := opts.Policy
	if policy == nil {
		policy = app.SimplePolicy{Action: app.Block}
	}
	writeWait := opts.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	return &sink{
		policy:     policy,
		pingPeriod: opts.PingPeriod,
		writeWait:  writeWait,
		logger:     logger,
		send:       make(chan domain.Frame, opts.SendBuffer),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

func (s *sink) Send(ctx context.Context, f domain.Frame) error {
	s.mu.Lock()
	if !s.attached {
		defer s.mu.Unlock()
		if f.Type == domain.FrameAccept {
			s.accepted = true
			return nil
		}
		s.pending = append(s.pending, f)
		return nil
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return core.ErrClosed
	default:
	}
	select {
	case s.send <- f:
		return nil
	default:
	}

	switch s.policy.OnBackpressure(s.owner) {
	case app.DropFrame:
		s.logger.Warn().Str("frame", string(f.Type)).Msg("send queue full, frame dropped")
		return ErrBackpressure
	case app.CloseConnection:
		s.logger.Warn().Msg("send queue full, closing")
		s.Close()
		return core.ErrClosed
	}
	select {
	case s.send <- f:
		return nil
	case <-s.done:
		return core.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sink) wasAccepted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// attach switches the sink to the upgraded socket and returns the frames
// sent before the upgrade.
func (s *sink) attach(ws *websocket.Conn) []domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws = ws
	s.attached = true
	pending := s.pending
	s.pending = nil
	return pending
}

// Close stops the write pump after it flushed what is already queued.
func (s *sink) Close() {
	s.once.Do(func() { close(s.done) })
}
