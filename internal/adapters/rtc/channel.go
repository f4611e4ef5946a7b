package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/mrshakil015/channels/internal/app"
	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

// channel is the part of *webrtc.DataChannel the sink writes to.
type channel interface {
	SendText(s string) error
	Send(b []byte) error
	Close() error
}

// sink writes frames straight to the data channel. Calls arrive one at a
// time because dispatch is serialized per connection.
type sink struct {
	ch        channel
	logger    zerolog.Logger
	closed    atomic.Bool
	closeCode atomic.Int32
}

func (s *sink) Send(_ context.Context, f domain.Frame) error {
	if s.closed.Load() {
		return core.ErrClosed
	}
	switch f.Type {
	case domain.FrameSend:
		if f.Body.IsBinary {
			return s.ch.Send(f.Body.Binary)
		}
		return s.ch.SendText(f.Body.Text)
	case domain.FrameClose:
		// Data channels carry no close code; keep it for the disconnect event.
		s.closeCode.Store(int32(f.Code))
		s.close()
	}
	return nil
}

func (s *sink) close() {
	if s.closed.CompareAndSwap(false, true) {
		if err := s.ch.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("channel close")
		}
	}
}

// session maps the events of one data channel onto its connection.
type session struct {
	conn   *core.Connection
	d      *core.Dispatcher
	reg    *app.Registry
	sink   *sink
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	disconnectOnce sync.Once
}

func newSession(ctx context.Context, reg *app.Registry, d *core.Dispatcher, scope *domain.Scope, ch channel, logger zerolog.Logger) *session {
	sc := *scope
	sc.Transport = domain.TransportDataChannel
	id := domain.NewConnID()
	logger = logger.With().Str("conn_id", string(id)).Logger()

	s := &sink{ch: ch, logger: logger}
	conn := core.NewConnection(id, &sc, s)
	ctx, cancel := context.WithCancel(ctx)
	reg.Bind(conn, d, cancel)

	sess := &session{conn: conn, d: d, reg: reg, sink: s, ctx: ctx, cancel: cancel, logger: logger}
	go func() {
		<-ctx.Done()
		sess.sink.close()
		sess.disconnect(domain.CloseGoingAway)
	}()
	return sess
}

// open dispatches connect. Channels are already open at the transport level,
// so a rejected connect closes the channel.
func (s *session) open() {
	res, err := s.d.Dispatch(s.ctx, core.Connect(s.conn))
	if err != nil {
		s.logger.Debug().Err(err).Msg("connect")
	}
	if res == core.Terminate {
		s.sink.close()
		s.cancel()
	}
}

func (s *session) message(body domain.Body) {
	if res, _ := s.d.Dispatch(s.ctx, core.Receive(s.conn, body)); res == core.Terminate {
		s.sink.close()
		s.cancel()
	}
}

// closed reports the end of the channel with the code of the close frame
// the server sent, or a normal closure.
func (s *session) closed() {
	s.sink.closed.Store(true)
	code := int(s.sink.closeCode.Load())
	if code == 0 {
		code = domain.CloseNormal
	}
	s.disconnect(code)
	s.cancel()
}

func (s *session) disconnect(code int) {
	s.disconnectOnce.Do(func() {
		if s.conn.State() == domain.StateClosed {
			s.reg.Unbind(s.conn.ID())
			return
		}
		_, _ = s.d.Dispatch(context.WithoutCancel(s.ctx), core.Disconnect(s.conn, code))
		s.reg.Unbind(s.conn.ID())
	})
}

// bind wires pion's data channel callbacks to the session.
func bind(dc *webrtc.DataChannel, sess *session) {
	dc.OnOpen(sess.open)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			sess.message(domain.TextBody(string(msg.Data)))
			return
		}
		sess.message(domain.BinaryBody(msg.Data))
	})
	dc.OnClose(sess.closed)
}
