package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ConnectLimiter bounds connection attempts per client: a token bucket of
// limit attempts refilled over interval.
type ConnectLimiter struct {
	mu        sync.Mutex
	clients   map[string]*limitedClient
	limit     int
	every     rate.Limit
	interval  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectLimiter(limit int, interval time.Duration) *ConnectLimiter {
	rl := &ConnectLimiter{
		clients:  make(map[string]*limitedClient),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
	if limit > 0 {
		rl.every = rate.Every(interval / time.Duration(limit))
	}
	return rl
}

// Allow records an attempt for key. A non-positive limit disables limiting.
func (rl *ConnectLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	cl, ok := rl.clients[key]
	if !ok {
		cl = &limitedClient{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// sweep drops clients idle for a whole interval, whose buckets are full
// again anyway. Runs at most once per interval.
func (rl *ConnectLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.interval {
		return
	}
	rl.lastSweep = now
	for key, cl := range rl.clients {
		if now.Sub(cl.lastSeen) >= rl.interval {
			delete(rl.clients, key)
		}
	}
}

// Middleware rejects over-limit attempts with 429. Clients that arrived
// without a token cookie are keyed by IP.
func (rl *ConnectLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(clientTokenKey)
		if c.GetBool(freshTokenKey) || key == "" {
			key = c.ClientIP()
		}
		if !rl.Allow(key) {
			log.Warn().Str("module", "adapters.http").Str("client", key).Msg("connect rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
			return
		}
		c.Next()
	}
}
