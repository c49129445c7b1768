package limiter

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	fails        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter for the single-instance dev server.
type Memory struct {
	p   Policy
	now func() time.Time

	mu sync.Mutex
	m  map[string]*attempts
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs an in-memory limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{p: p, now: time.Now, m: map[string]*attempts{}}
}

func (l *Memory) Check(_ context.Context, k Key) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.m[k.String()]
	if !ok {
		return 0, nil
	}
	if d := a.blockedUntil.Sub(l.now()); d > 0 {
		return d, nil
	}
	return 0, nil
}

func (l *Memory) Succeeded(_ context.Context, k Key) error {
	l.mu.Lock()
	delete(l.m, k.String())
	l.mu.Unlock()
	return nil
}

func (l *Memory) Failed(_ context.Context, k Key) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	a, ok := l.m[k.String()]
	if !ok || now.Sub(a.windowStart) > l.p.Window {
		a = &attempts{windowStart: now}
		l.m[k.String()] = a
	}
	a.fails++
	if a.fails >= l.p.MaxFails {
		a.blockedUntil = now.Add(l.p.BlockFor)
		return l.p.BlockFor, nil
	}
	return 0, nil
}
