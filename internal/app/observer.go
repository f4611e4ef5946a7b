package app

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mrshakil015/channels/internal/core"
)

// LogObserver writes dispatch outcomes to zerolog. Terminations are not
// faults and are logged at info level.
type LogObserver struct {
	logger zerolog.Logger
}

func NewLogObserver() *LogObserver {
	return &LogObserver{logger: log.With().Str("module", "core.dispatch").Logger()}
}

func NewLogObserverWith(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Dispatched(ev core.Event, res core.Result, err error) {
	var e *zerolog.Event
	switch {
	case err == nil && res == core.Terminate:
		e = o.logger.Info()
	case err == nil:
		e = o.logger.Debug()
	case errors.Is(err, core.ErrInvalidState):
		e = o.logger.Warn().Err(err)
	default:
		e = o.logger.Error().Err(err)
	}
	e.Str("conn_id", string(ev.Conn.ID())).
		Str("transport", string(ev.Conn.Transport())).
		Str("event", string(ev.Kind)).
		Str("result", res.String()).
		Msg("dispatched")
}

func (o *LogObserver) Closed(c *core.Connection, code int) {
	o.logger.Info().
		Str("conn_id", string(c.ID())).
		Str("transport", string(c.Transport())).
		Str("route", c.Scope().Route).
		Int("code", code).
		Msg("connection closed")
}
