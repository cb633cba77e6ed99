// Package inflight counts requests that must finish before the process may
// exit during a drain.
package inflight

import (
	"context"
	"net/http"
	"sync"
)

// Counter tracks in-flight requests. The zero value is ready to use.
type Counter struct {
	mu     sync.Mutex
	count  int64
	zeroCh chan struct{}
	onSet  func(int64)
}

// OnChange registers fn to observe every count change.
func (c *Counter) OnChange(fn func(int64)) {
	c.mu.Lock()
	c.onSet = fn
	c.mu.Unlock()
}

// Inc increments the counter.
func (c *Counter) Inc() {
	c.mu.Lock()
	c.ensure()
	if c.count == 0 {
		c.zeroCh = make(chan struct{})
	}
	c.count++
	n, fn := c.count, c.onSet
	c.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// Dec decrements the counter; it never goes below zero.
func (c *Counter) Dec() {
	c.mu.Lock()
	c.ensure()
	if c.count > 0 {
		c.count--
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
	n, fn := c.count, c.onSet
	c.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// Load returns the current count.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitForZero blocks until the count is zero or ctx is done. It reports
// whether zero was reached.
func (c *Counter) WaitForZero(ctx context.Context) bool {
	c.mu.Lock()
	c.ensure()
	ch := c.zeroCh
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// ensure lazily creates zeroCh; callers hold mu.
func (c *Counter) ensure() {
	if c.zeroCh == nil {
		c.zeroCh = make(chan struct{})
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
}

// Middleware counts requests for the duration of the wrapped handler.
func (c *Counter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Inc()
		defer c.Dec()
		next.ServeHTTP(w, r)
	})
}
