package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrBreakerOpen is returned while the remote counter is cooling down.
var ErrBreakerOpen = errors.New("remote counter circuit open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// BreakerCounter wraps a remote Counter with a circuit breaker. After a
// failure the remote is skipped for an exponentially growing cooldown
// (base, 2·base, ... up to max); the first call after the cooldown is a
// probe, and a success closes the breaker.
type BreakerCounter struct {
	next        Counter
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	retryAt  time.Time
}

func NewBreakerCounter(next Counter, baseBackoff, maxBackoff time.Duration) *BreakerCounter {
	if baseBackoff <= 0 {
		baseBackoff = 5 * time.Second
	}
	if maxBackoff < baseBackoff {
		maxBackoff = baseBackoff
	}
	return &BreakerCounter{next: next, baseBackoff: baseBackoff, maxBackoff: maxBackoff, now: time.Now}
}

func (b *BreakerCounter) Get(ctx context.Context, key string) (int64, error) {
	if err := b.allow(); err != nil {
		return 0, err
	}
	n, err := b.next.Get(ctx, key)
	b.observe(err)
	return n, err
}

func (b *BreakerCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := b.allow(); err != nil {
		return 0, err
	}
	n, err := b.next.Incr(ctx, key, ttl)
	b.observe(err)
	return n, err
}

func (b *BreakerCounter) Raise(ctx context.Context, key string, n int64, ttl time.Duration) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := b.next.Raise(ctx, key, n, ttl)
	b.observe(err)
	return err
}

// IsOpen reports whether calls are currently being short-circuited.
func (b *BreakerCounter) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && b.now().Before(b.retryAt)
}

func (b *BreakerCounter) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateOpen {
		return nil
	}
	if b.now().Before(b.retryAt) {
		return ErrBreakerOpen
	}
	b.state = stateHalfOpen
	log.Info().Msg("usage: remote counter breaker HALF-OPEN")
	return nil
}

func (b *BreakerCounter) observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		if b.state != stateClosed {
			log.Info().Int("failures", b.failures).Msg("usage: remote counter breaker CLOSED")
		}
		b.state = stateClosed
		b.failures = 0
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	b.failures++
	backoff := b.baseBackoff
	for i := 1; i < b.failures; i++ {
		backoff *= 2
		if backoff >= b.maxBackoff {
			backoff = b.maxBackoff
			break
		}
	}
	b.state = stateOpen
	b.retryAt = b.now().Add(backoff)
	log.Warn().Err(err).Dur("cooldown", backoff).Int("failures", b.failures).Msg("usage: remote counter breaker OPENED")
}
