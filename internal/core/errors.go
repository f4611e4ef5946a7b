package core

import (
	"errors"
	"fmt"

	"github.com/mrshakil015/channels/internal/domain"
)

var (
	// ErrInvalidState is returned when an event is dispatched for a
	// connection whose state does not allow it. No handler runs.
	ErrInvalidState = errors.New("invalid connection state")
	// ErrClosed is returned by Send once the connection is closed or a
	// close frame has already been sent.
	ErrClosed = errors.New("connection closed")
	// ErrHandshake is returned for frames that break the accept rules.
	ErrHandshake = errors.New("handshake violation")
	// ErrSenderReleased is returned when a Sender is used after its
	// handler has returned.
	ErrSenderReleased = errors.New("sender used outside its handler")
	// ErrHandlerFault wraps any error or panic coming out of a handler.
	ErrHandlerFault = errors.New("handler fault")
)

func invalidState(k domain.EventKind, st domain.State) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidState, k, st)
}
