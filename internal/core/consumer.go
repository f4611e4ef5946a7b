package core

import (
	"context"

	"github.com/mrshakil015/channels/internal/domain"
)

// Result tells the caller whether the connection continues after a handler.
type Result int

const (
	Continue Result = iota
	Terminate
)

func (r Result) String() string {
	if r == Terminate {
		return "terminate"
	}
	return "continue"
}

// Event is one lifecycle notification for a connection.
// Body is set for receive, Code for disconnect.
type Event struct {
	Kind domain.EventKind
	Conn *Connection
	Body domain.Body
	Code int
}

func Connect(c *Connection) Event { return Event{Kind: domain.EventConnect, Conn: c} }

func Receive(c *Connection, body domain.Body) Event {
	return Event{Kind: domain.EventReceive, Conn: c, Body: body}
}

func Disconnect(c *Connection, code int) Event {
	return Event{Kind: domain.EventDisconnect, Conn: c, Code: code}
}

// HandlerFunc handles one event. out is valid only until the handler returns.
type HandlerFunc func(ctx context.Context, ev Event, out Sender) (Result, error)

type handlerKey struct {
	transport domain.TransportKind
	kind      domain.EventKind
}

// Consumer is a named set of handlers keyed by transport and event kind.
// Register handlers before the consumer is handed to a Dispatcher.
type Consumer struct {
	name     string
	handlers map[handlerKey]HandlerFunc
}

func NewConsumer(name string) *Consumer {
	return &Consumer{name: name, handlers: make(map[handlerKey]HandlerFunc)}
}

func (c *Consumer) Name() string { return c.name }

// On registers h for one transport and event kind, replacing any previous one.
func (c *Consumer) On(t domain.TransportKind, k domain.EventKind, h HandlerFunc) *Consumer {
	c.handlers[handlerKey{t, k}] = h
	return c
}

// OnAny registers h for event kind k on every known transport.
func (c *Consumer) OnAny(k domain.EventKind, h HandlerFunc) *Consumer {
	for _, t := range []domain.TransportKind{domain.TransportWebSocket, domain.TransportDataChannel} {
		c.On(t, k, h)
	}
	return c
}

// Handles reports whether the consumer has any handler for transport t.
func (c *Consumer) Handles(t domain.TransportKind) bool {
	for k := range c.handlers {
		if k.transport == t {
			return true
		}
	}
	return false
}

func (c *Consumer) lookup(t domain.TransportKind, k domain.EventKind) HandlerFunc {
	return c.handlers[handlerKey{t, k}]
}
