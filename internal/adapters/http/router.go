package http

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mrshakil015/channels/internal/adapters/rtc"
	"github.com/mrshakil015/channels/internal/adapters/ws"
	"github.com/mrshakil015/channels/internal/app"
	"github.com/mrshakil015/channels/internal/app/consumers"
	"github.com/mrshakil015/channels/internal/config"
	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

const (
	clientTokenKey = "client_token"
	freshTokenKey  = "client_token_fresh"
	usernameKey    = "username"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
			c.Set(freshTokenKey, true)
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// BuildScope describes the request for handlers. A ?name= query parameter
// renames the client and is remembered in the session.
func BuildScope(c *gin.Context, route string) *domain.Scope {
	user := domain.Anonymous(c.GetString(clientTokenKey))
	sess := sessions.Default(c)
	if name, ok := sess.Get(usernameKey).(string); ok {
		_ = user.SetUsername(name)
	}
	if name := c.Query("name"); name != "" {
		if err := user.SetUsername(name); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("ignoring name")
		} else {
			sess.Set(usernameKey, user.Username)
			if err := sess.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
	}

	header := c.Request.Header.Clone()
	header.Del("Cookie")
	return &domain.Scope{
		Route:   route,
		Path:    c.Request.URL.Path,
		Query:   c.Request.URL.Query(),
		Header:  header,
		User:    user,
		Session: map[string]any{usernameKey: user.Username},
	}
}

// Routes maps route names to their dispatchers.
type Routes map[string]*core.Dispatcher

func NewRoutes(observer core.Observer) Routes {
	routes := Routes{}
	for _, cons := range []*core.Consumer{consumers.NewEcho(), consumers.NewLogging()} {
		routes[cons.Name()] = core.NewDispatcher(cons, core.WithObserver(observer))
	}
	return routes
}

// SetupRouter wires the HTTP surface. ctx bounds the lifetime of every
// connection accepted through it.
func SetupRouter(ctx context.Context, cfg *config.Config, reg *app.Registry) (*gin.Engine, error) {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	opts, err := ws.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	wsCtl := ws.NewController(reg, opts)
	rtcCtl := rtc.NewController(reg, rtc.WebRTCConfig(cfg.STUNURLs))
	routes := NewRoutes(core.Observers{app.NewLogObserver(), reg})
	limiter := NewConnectLimiter(cfg.ConnectLimit, cfg.ConnectInterval)

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChannelsSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": reg.Count(),
			"live":        reg.Snapshot(),
		})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	wsGroup := r.Group("/ws", limiter.Middleware())
	wsRoute := func(path, route string) {
		d := routes[route]
		wsGroup.GET(path, func(c *gin.Context) {
			log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Str("route", route).Msg("ws endpoint hit")
			wsCtl.HandleWS(ctx, c, d, BuildScope(c, route))
		})
	}
	wsRoute("/echo/", consumers.EchoName)
	wsRoute("/sc/", consumers.LoggingName)

	api := r.Group("/api")
	api.POST("/rtc/offer", limiter.Middleware(), func(c *gin.Context) {
		route := c.Query("route")
		d, ok := routes[route]
		if !ok || !d.Consumer().Handles(domain.TransportDataChannel) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown route"})
			return
		}
		rtcCtl.HandleOffer(ctx, c, d, BuildScope(c, route))
	})

	api.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.Snapshot())
	})
	api.GET("/connections/:id", func(c *gin.Context) {
		conn, ok := reg.Get(domain.ConnID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown connection"})
			return
		}
		c.JSON(http.StatusOK, app.InfoOf(conn))
	})
	api.DELETE("/connections/:id", func(c *gin.Context) {
		if !reg.Cancel(domain.ConnID(c.Param("id"))) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown connection"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	return r, nil
}
