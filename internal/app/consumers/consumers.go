// Package consumers holds the application handlers bound to routes.
package consumers

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

const (
	LoggingName = "logging"
	EchoName    = "echo"

	// Reply is what the logging consumer answers to every message.
	Reply = "Message sent to client"
)

func connLogger(ev core.Event, name string) zerolog.Logger {
	l := log.With().
		Str("module", "consumers").
		Str("consumer", name).
		Str("conn_id", string(ev.Conn.ID())).
		Str("transport", string(ev.Conn.Transport()))
	if u := ev.Conn.Scope().User; u != nil {
		l = l.Str("user", u.Username)
	}
	return l.Logger()
}

// NewLogging accepts every connection, logs each lifecycle step and answers
// every message with Reply.
func NewLogging() *core.Consumer {
	return core.NewConsumer(LoggingName).
		OnAny(domain.EventConnect, func(_ context.Context, ev core.Event, out core.Sender) (core.Result, error) {
			l := connLogger(ev, LoggingName)
			l.Info().Msg("connected")
			return core.Continue, out.Accept()
		}).
		OnAny(domain.EventReceive, func(_ context.Context, ev core.Event, out core.Sender) (core.Result, error) {
			l := connLogger(ev, LoggingName)
			l.Info().Bool("binary", ev.Body.IsBinary).Int("size", len(ev.Body.Bytes())).Msg("message received")
			return core.Continue, out.SendText(Reply)
		}).
		OnAny(domain.EventDisconnect, func(_ context.Context, ev core.Event, _ core.Sender) (core.Result, error) {
			l := connLogger(ev, LoggingName)
			l.Info().Int("code", ev.Code).Msg("disconnected")
			return core.Terminate, nil
		})
}

// NewEcho sends every message back unchanged. The text "close" makes the
// server close the connection.
func NewEcho() *core.Consumer {
	return core.NewConsumer(EchoName).
		OnAny(domain.EventConnect, func(_ context.Context, _ core.Event, out core.Sender) (core.Result, error) {
			return core.Continue, out.Accept()
		}).
		OnAny(domain.EventReceive, func(_ context.Context, ev core.Event, out core.Sender) (core.Result, error) {
			if !ev.Body.IsBinary && ev.Body.Text == "close" {
				return core.Continue, out.Close(domain.CloseNormal, "bye")
			}
			if ev.Body.IsBinary {
				return core.Continue, out.SendBinary(ev.Body.Binary)
			}
			return core.Continue, out.SendText(ev.Body.Text)
		}).
		OnAny(domain.EventDisconnect, func(context.Context, core.Event, core.Sender) (core.Result, error) {
			return core.Terminate, nil
		})
}
