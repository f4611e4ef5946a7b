package domain

import (
	"github.com/google/uuid"
)

// ConnID identifies one logical client session.
type ConnID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }

type State int32

const (
	StatePending State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type TransportKind string

const (
	TransportWebSocket   TransportKind = "websocket"
	TransportDataChannel TransportKind = "datachannel"
)

type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventReceive    EventKind = "receive"
	EventDisconnect EventKind = "disconnect"
)

type FrameType string

const (
	FrameAccept FrameType = "accept"
	FrameSend   FrameType = "send"
	FrameClose  FrameType = "close"
)

// Close codes.
const (
	CloseNormal      = 1000
	CloseGoingAway   = 1001
	CloseAbnormal    = 1006
	CloseInternal    = 1011
	CloseNotAccepted = 4403
)

// Body is a message payload. Exactly one of Text or Binary is meaningful,
// selected by IsBinary.
type Body struct {
	Text     string
	Binary   []byte
	IsBinary bool
}

func TextBody(s string) Body   { return Body{Text: s} }
func BinaryBody(b []byte) Body { return Body{Binary: b, IsBinary: true} }

func (b Body) Bytes() []byte {
	if b.IsBinary {
		return b.Binary
	}
	return []byte(b.Text)
}

// Frame is an outbound message the handler asks the transport to send.
// Code and Reason are only used by close frames.
type Frame struct {
	Type   FrameType
	Body   Body
	Code   int
	Reason string
}

func Accept() Frame             { return Frame{Type: FrameAccept} }
func SendText(s string) Frame   { return Frame{Type: FrameSend, Body: TextBody(s)} }
func SendBinary(b []byte) Frame { return Frame{Type: FrameSend, Body: BinaryBody(b)} }
func Close(code int, reason string) Frame {
	return Frame{Type: FrameClose, Code: code, Reason: reason}
}
