package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mrshakil015/channels/internal/domain"
)

// Sink abstracts the outbound side of a transport endpoint.
// Owned by the adapter; the adapter must close the underlying transport.
// Send must preserve call order and return ErrClosed once the endpoint is gone.
type Sink interface {
	Send(ctx context.Context, f domain.Frame) error
}

// Connection is one logical client session as seen by the dispatcher.
type Connection struct {
	id    domain.ConnID
	scope *domain.Scope
	sink  Sink

	// mu serializes dispatch and guards connected.
	mu        sync.Mutex
	connected bool

	// closing is set once a close frame went to the sink. Senders read it
	// without holding mu.
	closing atomic.Bool
	state   atomic.Int32
}

func NewConnection(id domain.ConnID, scope *domain.Scope, sink Sink) *Connection {
	if scope == nil {
		scope = &domain.Scope{}
	}
	return &Connection{id: id, scope: scope, sink: sink}
}

func (c *Connection) ID() domain.ConnID               { return c.id }
func (c *Connection) Scope() *domain.Scope            { return c.scope }
func (c *Connection) Transport() domain.TransportKind { return c.scope.Transport }

func (c *Connection) State() domain.State {
	return domain.State(c.state.Load())
}

func (c *Connection) setState(s domain.State) {
	c.state.Store(int32(s))
}

// admit checks whether an event of kind k is legal in the current state.
// Caller holds c.mu.
func (c *Connection) admit(k domain.EventKind) error {
	switch st := c.State(); {
	case st == domain.StateClosed:
		return invalidState(k, st)
	case k == domain.EventConnect:
		if c.connected {
			return invalidState(k, st)
		}
	case k == domain.EventReceive:
		if st != domain.StateOpen {
			return invalidState(k, st)
		}
	case k == domain.EventDisconnect:
	default:
		return invalidState(k, st)
	}
	return nil
}

// shutdown sends a best-effort close frame unless one was already sent,
// then moves the connection to Closed. Caller holds c.mu.
func (c *Connection) shutdown(ctx context.Context, code int, reason string) {
	if c.State() != domain.StateClosed && c.closing.CompareAndSwap(false, true) {
		_ = c.sink.Send(ctx, domain.Close(code, reason))
	}
	c.setState(domain.StateClosed)
}
