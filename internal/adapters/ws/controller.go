// Package ws runs the WebSocket transport: it turns an HTTP upgrade request
// into connect/receive/disconnect events and writes the frames handlers send.
package ws

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mrshakil015/channels/internal/app"
	"github.com/mrshakil015/channels/internal/config"
	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

type Options struct {
	ReadLimit        int64
	PingPeriod       time.Duration
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	SendBuffer       int
	Policy           app.Policy
	AllowedOrigins   []string
}

func OptionsFromConfig(cfg *config.Config) (Options, error) {
	action, err := app.ParseBackpressureAction(cfg.Backpressure)
	if err != nil {
		return Options{}, err
	}
	return Options{
		ReadLimit:        cfg.ReadLimit,
		PingPeriod:       cfg.PingPeriod,
		IdleTimeout:      cfg.IdleTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteWait:        cfg.WriteWait,
		SendBuffer:       cfg.SendBuffer,
		Policy:           app.SimplePolicy{Action: action},
		AllowedOrigins:   cfg.AllowedOrigins,
	}, nil
}

type Controller struct {
	Registry *app.Registry
	opts     Options
	upgrader websocket.Upgrader
}

func NewController(reg *app.Registry, opts Options) *Controller {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	ctl := &Controller{Registry: reg, opts: opts}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *Controller) checkOrigin(r *http.Request) bool {
	if len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(ctl.opts.AllowedOrigins, r.Header.Get("Origin"))
}

// HandleWS dispatches connect before upgrading. The upgrade only happens
// when the connect handler accepted; otherwise the request is answered with
// 403 (500 when the handler failed). ctx bounds the connection lifetime and
// must outlive the HTTP request.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context, d *core.Dispatcher, scope *domain.Scope) {
	scope.Transport = domain.TransportWebSocket
	id := domain.NewConnID()
	logger := log.With().Str("module", "ws").Str("conn_id", string(id)).Str("route", scope.Route).Logger()

	s := newSink(ctl.opts, logger)
	conn := core.NewConnection(id, scope, s)
	s.owner = conn

	connCtx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(conn, d, cancel)
	logger.Info().Str("path", scope.Path).Msg("new WS connection")

	hctx := connCtx
	if ctl.opts.HandshakeTimeout > 0 {
		var hcancel context.CancelFunc
		hctx, hcancel = context.WithTimeout(connCtx, ctl.opts.HandshakeTimeout)
		defer hcancel()
	}
	res, err := d.Dispatch(hctx, core.Connect(conn))
	if !s.wasAccepted() {
		status := http.StatusForbidden
		if errors.Is(err, core.ErrHandlerFault) {
			status = http.StatusInternalServerError
		}
		logger.Info().Int("status", status).Msg("connection rejected")
		c.AbortWithStatus(status)
		ctl.Registry.Unbind(id)
		cancel()
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		_, _ = d.Dispatch(context.WithoutCancel(connCtx), core.Disconnect(conn, domain.CloseAbnormal))
		ctl.Registry.Unbind(id)
		cancel()
		return
	}

	pending := s.attach(ws)
	go func() {
		<-connCtx.Done()
		s.Close()
	}()
	go ctl.writePump(s, pending)
	if res == core.Terminate {
		// Accepted and closed within connect: flush and hang up.
		s.Close()
		cancel()
		return
	}
	go ctl.readPump(connCtx, cancel, conn, d, s)
}
