package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrshakil015/channels/internal/domain"
)

// Sender is handed to a handler for the duration of one invocation. It may be
// used from other goroutines the handler starts, but only until the handler
// returns.
type Sender interface {
	Send(f domain.Frame) error
	Accept() error
	SendText(s string) error
	SendBinary(b []byte) error
	Close(code int, reason string) error
}

type sender struct {
	ctx  context.Context
	conn *Connection
	kind domain.EventKind

	mu       sync.Mutex
	sent     int
	released bool
}

func newSender(ctx context.Context, conn *Connection, kind domain.EventKind) *sender {
	return &sender{ctx: ctx, conn: conn, kind: kind}
}

func (s *sender) release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}

func (s *sender) Send(f domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrSenderReleased
	}
	c := s.conn
	st := c.State()
	if st == domain.StateClosed || c.closing.Load() {
		return ErrClosed
	}

	switch f.Type {
	case domain.FrameAccept:
		if s.kind != domain.EventConnect || st != domain.StatePending || s.sent > 0 {
			return fmt.Errorf("%w: accept must be the first frame sent from connect", ErrHandshake)
		}
	case domain.FrameSend:
		if st != domain.StateOpen {
			return fmt.Errorf("%w: send before accept", ErrHandshake)
		}
	case domain.FrameClose:
	default:
		return fmt.Errorf("%w: unknown frame type %q", ErrHandshake, f.Type)
	}

	if err := c.sink.Send(s.ctx, f); err != nil {
		return err
	}
	s.sent++

	switch f.Type {
	case domain.FrameAccept:
		c.setState(domain.StateOpen)
	case domain.FrameClose:
		c.closing.Store(true)
	}
	return nil
}

func (s *sender) Accept() error             { return s.Send(domain.Accept()) }
func (s *sender) SendText(t string) error   { return s.Send(domain.SendText(t)) }
func (s *sender) SendBinary(b []byte) error { return s.Send(domain.SendBinary(b)) }

func (s *sender) Close(code int, reason string) error {
	return s.Send(domain.Close(code, reason))
}
