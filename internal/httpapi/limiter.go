package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter is a token bucket per client key. max attempts refill
// evenly over window.
type attemptLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	entryTTL time.Duration
	entries  map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		entryTTL: 10 * window,
		entries:  make(map[string]*limiterEntry),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= 1024 {
			l.sweep(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops keys idle for longer than entryTTL. Caller holds mu.
func (l *attemptLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.entryTTL)
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
