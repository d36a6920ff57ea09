package auth

import (
	"strings"
	"sync"
	"time"
)

// Login limiter defaults.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// AttemptLimiter locks a username after too many consecutive failures inside
// a sliding window. The lock lifts when the oldest failure leaves the window.
type AttemptLimiter struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
}

func NewAttemptLimiter(max int, window time.Duration) *AttemptLimiter {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &AttemptLimiter{max: max, window: window, failures: make(map[string][]time.Time)}
}

func limiterKey(username string) string { return strings.ToLower(strings.TrimSpace(username)) }

// prune drops failures older than the window. Caller holds mu.
func (l *AttemptLimiter) prune(key string, now time.Time) []time.Time {
	list := l.failures[key]
	i := 0
	for i < len(list) && !now.Before(list[i].Add(l.window)) {
		i++
	}
	list = list[i:]
	if len(list) == 0 {
		delete(l.failures, key)
		return nil
	}
	l.failures[key] = list
	return list
}

// Check reports whether username is locked and for how long.
func (l *AttemptLimiter) Check(username string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.prune(limiterKey(username), now)
	if len(list) < l.max {
		return false, 0
	}
	return true, list[len(list)-l.max].Add(l.window).Sub(now)
}

// Fail records a failed attempt.
func (l *AttemptLimiter) Fail(username string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := limiterKey(username)
	l.failures[key] = append(l.prune(key, now), now)
}

// Reset clears the counter after a successful login.
func (l *AttemptLimiter) Reset(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, limiterKey(username))
}

// Sweep forgets usernames whose failures all left the window.
func (l *AttemptLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key := range l.failures {
		if l.prune(key, now) == nil {
			n++
		}
	}
	return n
}
