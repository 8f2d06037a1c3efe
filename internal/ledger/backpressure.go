package ledger

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrBackpressure is returned when a domain key's post rate exceeds its
// configured token-bucket limit, or when its actor's inbox is full (§5
// Backpressure): callers should treat it as retryable rather than a hard
// failure.
var ErrBackpressure = errors.New("ledger: BACKPRESSURE: domain key is over its admission limit")

// domainLimiters hands out one token-bucket rate.Limiter per domain key,
// so a single hot key (e.g. a merchant running a sale) can't starve the
// actor pool's goroutines or the database out from under every other key.
// A zero-value limit (the default) means unlimited: Engine.Post never
// rejects on backpressure until a deployment opts in via SetDomainKeyRateLimit.
type domainLimiters struct {
	mu      sync.Mutex
	perKey  map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	enabled bool
}

func newDomainLimiters() *domainLimiters {
	return &domainLimiters{perKey: make(map[string]*rate.Limiter)}
}

func (d *domainLimiters) configure(ratePerSecond float64, burst int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limit = rate.Limit(ratePerSecond)
	d.burst = burst
	d.enabled = true
	d.perKey = make(map[string]*rate.Limiter)
}

func (d *domainLimiters) allow(domainKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return true
	}
	l, ok := d.perKey[domainKey]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.perKey[domainKey] = l
	}
	return l.Allow()
}
