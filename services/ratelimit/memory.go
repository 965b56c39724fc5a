package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter is a per-key token bucket holding up to attempts tokens that
// refill evenly over window. State is local to the process.
type MemoryLimiter struct {
	attempts int
	window   time.Duration
	buckets  map[string]*bucket
	mu       sync.Mutex
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a limiter and starts its cleanup goroutine
func NewMemoryLimiter(attempts int, window, cleanupInterval time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		attempts: attempts,
		window:   window,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go l.cleanup(cleanupInterval)
	}
	return l
}

func (l *MemoryLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stopCh:
			return
		}
	}
}

// evictIdle drops buckets that have fully refilled
func (l *MemoryLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > l.window {
			delete(l.buckets, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{tokens: float64(l.attempts) - 1, lastUpdate: now}
		return l.attempts > 0, nil
	}

	perSecond := float64(l.attempts) / l.window.Seconds()
	b.tokens = min(float64(l.attempts), b.tokens+now.Sub(b.lastUpdate).Seconds()*perSecond)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}

// Len returns the number of tracked keys
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
