package app

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

type connEntry struct {
	Conn       *core.Connection
	Dispatcher *core.Dispatcher
	Cancel     context.CancelFunc
}

// Registry tracks live connections so they can be listed and shut down.
// It implements core.Observer and forgets a connection once it is Closed.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*connEntry)}
}

func (r *Registry) Bind(c *core.Connection, d *core.Dispatcher, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = &connEntry{Conn: c, Dispatcher: d, Cancel: cancel}
	log.Debug().Str("module", "app.registry").Str("conn_id", string(c.ID())).Msg("bound connection")
}

func (r *Registry) Get(id domain.ConnID) (*core.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Unbind(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return
	}
	delete(r.conns, id)
	log.Debug().Str("module", "app.registry").Str("conn_id", string(id)).Msg("unbound connection")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ConnInfo is a read-only view for APIs (no transport fields).
type ConnInfo struct {
	ID        domain.ConnID        `json:"id"`
	Transport domain.TransportKind `json:"transport"`
	Route     string               `json:"route"`
	State     string               `json:"state"`
	Username  string               `json:"username,omitempty"`
}

func InfoOf(c *core.Connection) ConnInfo {
	info := ConnInfo{
		ID:        c.ID(),
		Transport: c.Transport(),
		Route:     c.Scope().Route,
		State:     c.State().String(),
	}
	if u := c.Scope().User; u != nil {
		info.Username = u.Username
	}
	return info
}

func (r *Registry) Snapshot() []ConnInfo {
	r.mu.RLock()
	out := make([]ConnInfo, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, InfoOf(e.Conn))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cancel stops the transport pumps of one connection.
func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn_id", string(id)).Msg("canceled connection")
	return true
}

// Shutdown delivers a going-away disconnect to every live connection through
// its dispatcher, then cancels its transport.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	entries := make([]*connEntry, 0, len(r.conns))
	for _, e := range r.conns {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		if _, err := e.Dispatcher.Dispatch(ctx, core.Disconnect(e.Conn, domain.CloseGoingAway)); err != nil {
			log.Debug().Err(err).Str("module", "app.registry").Str("conn_id", string(e.Conn.ID())).Msg("shutdown disconnect")
		}
		if e.Cancel != nil {
			e.Cancel()
		}
		r.Unbind(e.Conn.ID())
	}
	log.Info().Str("module", "app.registry").Int("count", len(entries)).Msg("connections shut down")
}

func (r *Registry) Dispatched(core.Event, core.Result, error) {}

func (r *Registry) Closed(c *core.Connection, _ int) { r.Unbind(c.ID()) }
