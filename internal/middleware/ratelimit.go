package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type clientWindow struct {
	count int
	start time.Time
}

// RateLimiter budgets requests per client IP over a fixed window. It sits on
// the generation endpoints, where every request fans out to the AI
// collaborator; normal editing traffic is never limited.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	window  time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
	}
	go rl.sweep()
	return rl
}

// sweep drops windows that have fully expired so the map stays bounded by
// the number of recently active clients.
func (rl *RateLimiter) sweep() {
	for {
		time.Sleep(rl.window)
		rl.mu.Lock()
		for ip, c := range rl.clients {
			if time.Since(c.start) > rl.window {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		retryAfter, ok := rl.allow(r.RemoteAddr)
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"Generation limit reached. Please try again shortly.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow counts the request against the client's current window. When the
// budget is exhausted it reports how many seconds remain until the window
// rolls over.
func (rl *RateLimiter) allow(ip string) (int, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, exists := rl.clients[ip]
	if !exists || now.Sub(c.start) > rl.window {
		rl.clients[ip] = &clientWindow{count: 1, start: now}
		return 0, true
	}

	c.count++
	if c.count > rl.limit {
		remaining := rl.window - now.Sub(c.start)
		return int(remaining.Seconds()) + 1, false
	}
	return 0, true
}
