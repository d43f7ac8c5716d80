package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound calls to one downstream directory.
// Wait blocks until the next call may be issued or ctx is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NoPacer never waits.
type NoPacer struct{}

// Wait implements Pacer.
func (NoPacer) Wait(ctx context.Context) error { return ctx.Err() }

// RatePacer is a token bucket with a small seeded jitter added after each
// token. The jitter sequence is a pure function of the seed, so two runs
// with the same seed pace identically.
//
// Thread-safety: safe for concurrent use.
type RatePacer struct {
	limiter *rate.Limiter
	jitter  time.Duration

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRatePacer allows perSecond calls per second with the given burst, plus
// up to jitter of extra delay per call. perSecond <= 0 means unlimited.
func NewRatePacer(perSecond float64, burst int, jitter time.Duration, seed int64) *RatePacer {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RatePacer{
		limiter: rate.NewLimiter(limit, burst),
		jitter:  jitter,
		rng:     rand.New(rand.NewSource(seed)),
		sleep:   sleepCtx,
	}
}

// Wait implements Pacer.
func (p *RatePacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if d := p.nextJitter(); d > 0 {
		return p.sleep(ctx, d)
	}
	return ctx.Err()
}

// nextJitter draws the next delay in [0, jitter).
func (p *RatePacer) nextJitter() time.Duration {
	if p.jitter <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rng.Int63n(int64(p.jitter)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
