// Package throttle implements the continuous token bucket that decides which
// log events are forwarded to chat.
package throttle

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Unlimited disables throttling: every Admit call succeeds.
var Unlimited = math.Inf(1)

var (
	ErrInvalidPer  = errors.New("throttle: per must be a positive number of seconds")
	ErrInvalidRate = errors.New("throttle: rate must be >= 0")
)

// Bucket admits at most Rate events per Per seconds, with a burst capacity of
// Rate tokens. Tokens replenish continuously with elapsed wall time.
//
// It is safe for concurrent use.
type Bucket struct {
	rate float64
	per  float64

	mu         sync.Mutex
	allowance  float64
	lastMillis int64
	started    bool
}

// New validates the parameters and returns a bucket that starts full.
func New(rate, per float64) (*Bucket, error) {
	if math.IsNaN(per) || per <= 0 || math.IsInf(per, 0) {
		return nil, fmt.Errorf("%w (got %v)", ErrInvalidPer, per)
	}
	if math.IsNaN(rate) || rate < 0 {
		return nil, fmt.Errorf("%w (got %v)", ErrInvalidRate, rate)
	}
	return &Bucket{rate: rate, per: per}, nil
}

func (b *Bucket) Rate() float64 { return b.rate }
func (b *Bucket) Per() float64  { return b.per }

// Unlimited reports whether the bucket admits everything.
func (b *Bucket) Unlimited() bool { return math.IsInf(b.rate, 1) }

// Admit reports whether an event observed at nowMillis may pass.
// A rejected event only updates the bucket's clock and replenishment.
func (b *Bucket) Admit(nowMillis int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		// No previous event: treat the last one as infinitely old.
		b.started = true
		b.lastMillis = nowMillis
		b.allowance = b.rate
	} else {
		elapsed := float64(nowMillis-b.lastMillis) / 1000.0
		b.lastMillis = nowMillis
		// A clock step backwards must not drain tokens.
		if elapsed < 0 {
			elapsed = 0
		}
		if !b.Unlimited() {
			b.allowance = math.Min(b.rate, b.allowance+elapsed*(b.rate/b.per))
		}
	}

	if b.Unlimited() {
		return true
	}
	if b.allowance >= 1.0 {
		b.allowance -= 1.0
		return true
	}
	return false
}

// Snapshot returns the current allowance and the timestamp of the last check.
func (b *Bucket) Snapshot() (allowance float64, lastMillis int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowance, b.lastMillis
}
