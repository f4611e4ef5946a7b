package app

import (
	"fmt"

	"github.com/mrshakil015/channels/internal/core"
)

type BackpressureAction int

const (
	// Block makes the sending handler wait until the frame is queued or its
	// context ends.
	Block BackpressureAction = iota
	DropFrame
	CloseConnection
)

func ParseBackpressureAction(s string) (BackpressureAction, error) {
	switch s {
	case "", "block":
		return Block, nil
	case "drop":
		return DropFrame, nil
	case "close":
		return CloseConnection, nil
	}
	return Block, fmt.Errorf("unknown backpressure action %q", s)
}

// Policy decides what happens when a connection's outbound queue is full.
type Policy interface {
	OnBackpressure(c *core.Connection) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackpressure(*core.Connection) BackpressureAction {
	return p.Action
}
