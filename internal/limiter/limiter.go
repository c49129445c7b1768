// Package limiter throttles login attempts per (email, client address).
package limiter

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Check returns a positive retry-after while k is locked out.
	Check(ctx context.Context, k Key) (time.Duration, error)
	// Succeeded resets the counters of k.
	Succeeded(ctx context.Context, k Key) error
	// Failed records a failed attempt and returns the lockout it caused, if any.
	Failed(ctx context.Context, k Key) (time.Duration, error)
}

// Key identifies a login source. Raw addresses are never stored.
type Key struct {
	Email  string
	IPHash []byte
}

// NewKey normalizes email and hashes ip.
func NewKey(email, ip string) Key {
	return Key{Email: strings.ToLower(strings.TrimSpace(email)), IPHash: HashIP(ip)}
}

func (k Key) String() string { return k.Email + "|" + string(k.IPHash) }

// HashIP returns a stable hash for an IP string.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Policy is the sliding window and lockout configuration.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows 5 failures per 15 minutes, then locks for 15 minutes.
func DefaultPolicy() Policy {
	return Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}
}
