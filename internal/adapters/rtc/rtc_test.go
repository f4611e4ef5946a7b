package rtc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrshakil015/channels/internal/app"
	"github.com/mrshakil015/channels/internal/app/consumers"
	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

type fakeChannel struct {
	mu     sync.Mutex
	texts  []string
	bins   [][]byte
	closed int
}

func (f *fakeChannel) SendText(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, s)
	return nil
}

func (f *fakeChannel) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bins = append(f.bins, b)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestSession(t *testing.T, cons *core.Consumer) (*session, *fakeChannel, *app.Registry) {
	t.Helper()
	reg := app.NewRegistry()
	d := core.NewDispatcher(cons, core.WithObserver(core.Observers{app.NewLogObserver(), reg}))
	ch := &fakeChannel{}
	sess := newSession(context.Background(), reg, d, &domain.Scope{Route: cons.Name()}, ch, zerolog.Nop())
	t.Cleanup(sess.cancel)
	return sess, ch, reg
}

func TestSession_Lifecycle(t *testing.T) {
	sess, ch, reg := newTestSession(t, consumers.NewLogging())
	assert.Equal(t, domain.TransportDataChannel, sess.conn.Transport())
	assert.Equal(t, 1, reg.Count())

	sess.open()
	assert.Equal(t, domain.StateOpen, sess.conn.State())

	sess.message(domain.TextBody("hi"))
	sess.message(domain.BinaryBody([]byte{1}))
	assert.Equal(t, []string{consumers.Reply, consumers.Reply}, ch.texts)

	sess.closed()
	assert.Equal(t, domain.StateClosed, sess.conn.State())
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, 0, ch.closeCount(), "peer-closed channel is not closed again")
}

func TestSession_EchoBinary(t *testing.T) {
	sess, ch, _ := newTestSession(t, consumers.NewEcho())
	sess.open()
	sess.message(domain.BinaryBody([]byte{7, 8}))
	require.Len(t, ch.bins, 1)
	assert.Equal(t, []byte{7, 8}, ch.bins[0])
}

func TestSession_ServerCloseReportsCode(t *testing.T) {
	var got int
	cons := consumers.NewEcho().
		OnAny(domain.EventDisconnect, func(_ context.Context, ev core.Event, _ core.Sender) (core.Result, error) {
			got = ev.Code
			return core.Terminate, nil
		})
	sess, ch, _ := newTestSession(t, cons)
	sess.open()
	sess.message(domain.TextBody("close"))
	assert.Equal(t, 1, ch.closeCount())
	assert.Equal(t, domain.StateOpen, sess.conn.State())

	sess.closed()
	assert.Equal(t, domain.CloseNormal, got)
	assert.Equal(t, domain.StateClosed, sess.conn.State())
}

func TestSession_RejectedConnectClosesChannel(t *testing.T) {
	cons := core.NewConsumer("reject")
	sess, ch, reg := newTestSession(t, cons)
	sess.open()
	assert.Equal(t, domain.StateClosed, sess.conn.State())
	assert.Equal(t, 1, ch.closeCount())
	assert.Eventually(t, func() bool { return reg.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSession_ContextDoneDisconnects(t *testing.T) {
	var codes []int
	var mu sync.Mutex
	cons := consumers.NewEcho().
		OnAny(domain.EventDisconnect, func(_ context.Context, ev core.Event, _ core.Sender) (core.Result, error) {
			mu.Lock()
			codes = append(codes, ev.Code)
			mu.Unlock()
			return core.Terminate, nil
		})
	sess, ch, _ := newTestSession(t, cons)
	sess.open()
	sess.cancel()

	assert.Eventually(t, func() bool { return sess.conn.State() == domain.StateClosed }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ch.closeCount())
	sess.closed()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{domain.CloseGoingAway}, codes)
}

func TestHandleOffer_BadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := app.NewRegistry()
	ctl := NewController(reg, WebRTCConfig(nil))
	d := core.NewDispatcher(consumers.NewEcho())

	r := gin.New()
	r.POST("/api/rtc/offer", func(c *gin.Context) {
		ctl.HandleOffer(context.Background(), c, d, &domain.Scope{Route: "echo"})
	})

	cases := map[string]string{
		"not json":   "{",
		"no sdp":     `{"type":"offer"}`,
		"wrong type": `{"type":"answer","sdp":"v=0"}`,
		"bad sdp":    `{"type":"offer","sdp":"garbage"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/rtc/offer", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestWebRTCConfig(t *testing.T) {
	assert.Empty(t, WebRTCConfig(nil).ICEServers)
	cfg := WebRTCConfig([]string{"stun:example.org:3478"})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:example.org:3478"}, cfg.ICEServers[0].URLs)
}
