// Package core maps connection lifecycle events to consumer handlers and
// enforces the per-connection state machine:
//
//	Pending --accept during connect--> Open --disconnect--> Closed
//	Pending --disconnect / rejection--> Closed
//
// Events for one connection are dispatched one at a time, in call order.
// Different connections are independent and may be dispatched in parallel.
package core

import (
	"context"
	"fmt"

	"github.com/mrshakil015/channels/internal/domain"
)

type Dispatcher struct {
	consumer *Consumer
	observer Observer
}

type Option func(*Dispatcher)

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

func NewDispatcher(consumer *Consumer, opts ...Option) *Dispatcher {
	d := &Dispatcher{consumer: consumer, observer: nopObserver{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Consumer() *Consumer { return d.consumer }

// Dispatch runs the handler registered for ev and applies its outcome.
//
// Terminate means the connection is now Closed: the caller must close the
// transport and stop dispatching. A connect handler that returns without
// accepting is rejected with a close frame and also yields Terminate.
// Handler errors and panics close the connection and are returned wrapped
// in ErrHandlerFault. Events illegal for the current state return
// ErrInvalidState without running a handler. On error the Result is
// Terminate exactly when the connection is Closed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Result, error) {
	c := ev.Conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.admit(ev.Kind); err != nil {
		res := Continue
		if c.State() == domain.StateClosed {
			res = Terminate
		}
		d.observer.Dispatched(ev, res, err)
		return res, err
	}
	if ev.Kind == domain.EventConnect {
		c.connected = true
	}

	out := newSender(ctx, c, ev.Kind)
	res, err := d.invoke(ctx, ev, out)
	out.release()

	switch {
	case err != nil:
		err = fmt.Errorf("%w: %s %s: %w", ErrHandlerFault, c.Transport(), ev.Kind, err)
		d.close(ctx, ev, domain.CloseInternal, "internal error")
		res = Terminate
	case ev.Kind == domain.EventDisconnect:
		d.close(ctx, ev, ev.Code, "")
		res = Terminate
	case res == Terminate:
		d.close(ctx, ev, domain.CloseNormal, "")
	case ev.Kind == domain.EventConnect && c.State() == domain.StatePending:
		d.close(ctx, ev, domain.CloseNotAccepted, "not accepted")
		res = Terminate
	}

	d.observer.Dispatched(ev, res, err)
	return res, err
}

func (d *Dispatcher) invoke(ctx context.Context, ev Event, out Sender) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Terminate, fmt.Errorf("panic: %v", r)
		}
	}()
	h := d.consumer.lookup(ev.Conn.Transport(), ev.Kind)
	if h == nil {
		return Continue, nil
	}
	return h(ctx, ev, out)
}

// close moves the connection to Closed. No close frame is sent for
// disconnect: the remote side is already gone.
func (d *Dispatcher) close(ctx context.Context, ev Event, code int, reason string) {
	c := ev.Conn
	if ev.Kind == domain.EventDisconnect {
		c.closing.Store(true)
	}
	c.shutdown(ctx, code, reason)
	d.observer.Closed(c, code)
}
