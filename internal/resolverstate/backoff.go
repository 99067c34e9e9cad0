package resolverstate

import (
	"context"
	"math/rand"
	"time"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// backoff paces state-fetch retries: exponential growth capped at maxBackoff,
// with up to 50% jitter so restarting clients do not retry in lockstep.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: initialBackoff}
}

// next returns the delay for the upcoming retry and grows the base for the
// one after.
func (b *backoff) next() time.Duration {
	delay := b.current + time.Duration(rand.Int63n(int64(b.current)/2+1))
	b.current *= 2
	if b.current > maxBackoff {
		b.current = maxBackoff
	}
	return delay
}

func (b *backoff) reset() {
	b.current = initialBackoff
}

// wait sleeps for the next delay, or returns early when ctx is done.
func (b *backoff) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(b.next()):
	}
}
