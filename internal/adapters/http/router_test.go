package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrshakil015/channels/internal/app"
	"github.com/mrshakil015/channels/internal/app/consumers"
	"github.com/mrshakil015/channels/internal/config"
	"github.com/mrshakil015/channels/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:             "test",
		Port:             8080,
		StaticPath:       "./web",
		Secret:           "secret",
		LogLevel:         "debug",
		ReadLimit:        1 << 16,
		PingPeriod:       time.Second,
		IdleTimeout:      5 * time.Second,
		HandshakeTimeout: time.Second,
		SendBuffer:       16,
		Backpressure:     "block",
		ConnectLimit:     2,
		ConnectInterval:  time.Minute,
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, *app.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := app.NewRegistry()
	r, err := SetupRouter(ctx, testConfig(), reg)
	require.NoError(t, err)
	return r, reg
}

func TestSetupRouter_BadBackpressure(t *testing.T) {
	cfg := testConfig()
	cfg.Backpressure = "explode"
	_, err := SetupRouter(context.Background(), cfg, app.NewRegistry())
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status      string         `json:"status"`
		Connections int            `json:"connections"`
		Live        []app.ConnInfo `json:"live"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Connections)
	assert.Empty(t, body.Live)
}

func TestClientTokenCookie(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, w.Header().Values("Set-Cookie")[0], "ct=")
}

func TestRTCOffer_UnknownRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rtc/offer?route=nope", strings.NewReader(`{"type":"offer","sdp":"v=0"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownWSRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/missing/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectLimit(t *testing.T) {
	r, _ := newTestRouter(t)
	status := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ws/echo/", nil)
		req.AddCookie(&http.Cookie{Name: "ct", Value: "client-1"})
		r.ServeHTTP(w, req)
		return w.Code
	}
	// Plain GETs are accepted by the consumer but fail the upgrade.
	assert.Equal(t, http.StatusBadRequest, status())
	assert.Equal(t, http.StatusBadRequest, status())
	assert.Equal(t, http.StatusTooManyRequests, status())
}

func TestWebSocketThroughRouter(t *testing.T) {
	r, reg := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sc/?name=alice"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("hi")))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, consumers.Reply, string(data))

	live := reg.Snapshot()
	require.Len(t, live, 1)
	assert.Equal(t, "alice", live[0].Username)
	assert.Equal(t, consumers.LoggingName, live[0].Route)
	assert.Equal(t, "open", live[0].State)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connections/"+string(live[0].ID), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var info app.ConnInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, live[0].ID, info.ID)
	assert.Equal(t, domain.TransportWebSocket, info.Transport)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/connections/"+string(live[0].ID), nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	_, _, err = c.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CloseGoingAway, ce.Code)
	assert.Eventually(t, func() bool { return reg.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/connections/"+string(live[0].ID), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuildScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("secret"))))
	r.Use(ClientTokenMiddleware())
	var scope *domain.Scope
	r.GET("/ws/echo/", func(c *gin.Context) { scope = BuildScope(c, "echo") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/echo/?name="+strings.Repeat("x", 40)+"&k=v", nil)
	req.AddCookie(&http.Cookie{Name: "ct", Value: "abc"})
	req.Header.Set("X-Trace", "1")
	r.ServeHTTP(w, req)

	require.NotNil(t, scope)
	assert.Equal(t, "echo", scope.Route)
	assert.Equal(t, "/ws/echo/", scope.Path)
	assert.Equal(t, "v", scope.Query.Get("k"))
	assert.Empty(t, scope.Header.Get("Cookie"))
	assert.Equal(t, "1", scope.Header.Get("X-Trace"))
	require.NotNil(t, scope.User)
	assert.Equal(t, "abc", scope.User.ClientToken)
	assert.Equal(t, "guest", scope.User.Username, "too long names are ignored")
}

func TestConnectLimiter_Window(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewConnectLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.Len(t, rl.clients, 1, "idle clients are swept")

	assert.True(t, NewConnectLimiter(0, time.Minute).Allow("a"))
}

func TestConnectLimiter_RefillsGradually(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewConnectLimiter(3, 30*time.Second)
	rl.now = func() time.Time { return now }

	for range 3 {
		require.True(t, rl.Allow("a"))
	}
	assert.False(t, rl.Allow("a"))

	// One attempt comes back every interval/limit.
	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}
