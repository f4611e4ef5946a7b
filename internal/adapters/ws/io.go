package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

// writePump is the only writer of s.ws. It returns after writing a close
// frame, on a write error, or once the sink is closed and the queue drained.
// On return the sink is closed, so senders waiting on a full queue get
// ErrClosed instead of blocking the connection.
func (ctl *Controller) writePump(s *sink, initial []domain.Frame) {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
		_ = s.ws.Close()
		close(s.finished)
	}()

	for _, f := range initial {
		if done := s.write(f); done {
			return
		}
	}
	for {
		select {
		case f := <-s.send:
			if done := s.write(f); done {
				return
			}
		case <-ticker.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				s.logger.Debug().Err(err).Msg("writePump ping")
				return
			}
		case <-s.done:
			for {
				select {
				case f := <-s.send:
					if done := s.write(f); done {
						return
					}
				default:
					s.write(domain.Close(domain.CloseGoingAway, ""))
					return
				}
			}
		}
	}
}

// write sends one frame and reports whether the pump must stop.
func (s *sink) write(f domain.Frame) bool {
	if err := s.ws.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("writePump set deadline")
		return true
	}
	var err error
	switch f.Type {
	case domain.FrameSend:
		if f.Body.IsBinary {
			err = s.ws.WriteMessage(websocket.BinaryMessage, f.Body.Binary)
		} else {
			err = s.ws.WriteMessage(websocket.TextMessage, []byte(f.Body.Text))
		}
	case domain.FrameClose:
		s.closeCode.Store(int32(f.Code))
		err = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(f.Code, f.Reason))
		if err != nil {
			s.logger.Debug().Err(err).Msg("writePump close")
		}
		return true
	default:
		return false
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("writePump write error")
		return true
	}
	return false
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, conn *core.Connection, d *core.Dispatcher, s *sink) {
	defer func() {
		s.logger.Info().Msg("readPump closing")
		s.Close()
		cancel()
	}()

	ws := s.ws
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}
	extend := func() {
		if ctl.opts.IdleTimeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.IdleTimeout))
		}
	}
	extend()
	ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			code := s.disconnectCode(err)
			s.logger.Debug().Err(err).Int("code", code).Msg("readPump read error")
			_, _ = d.Dispatch(context.WithoutCancel(ctx), core.Disconnect(conn, code))
			return
		}
		extend()

		var body domain.Body
		switch mt {
		case websocket.TextMessage:
			body = domain.TextBody(string(data))
		case websocket.BinaryMessage:
			body = domain.BinaryBody(data)
		default:
			continue
		}
		if res, _ := d.Dispatch(ctx, core.Receive(conn, body)); res == core.Terminate {
			return
		}
	}
}

// disconnectCode picks the code reported with disconnect: the peer's close
// code, else the code of a close frame we wrote, else abnormal closure.
func (s *sink) disconnectCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	if code := s.closeCode.Load(); code != 0 {
		return int(code)
	}
	return domain.CloseAbnormal
}
