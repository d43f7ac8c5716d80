package directory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/roach88/roster/internal/model"
)

// BreakerConfig tunes the circuit breaker around a Directory.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures that
	// opens the breaker.
	FailureThreshold uint32

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
}

// DefaultBreakerConfig opens after 5 consecutive transient failures for 30s.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	Timeout:          30 * time.Second,
	MaxRequests:      1,
}

// Breaker decorates a Directory with a circuit breaker.
//
// Only transient failures count against the breaker: a NotFound or
// DuplicateKey says nothing about the directory's health. While the breaker
// is open every call fails fast with KindTransient, so a run against a dead
// directory finishes quickly with every remaining action reported.
type Breaker struct {
	next Directory
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Directory, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = DefaultBreakerConfig.MaxRequests
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultBreakerConfig.Timeout
	}

	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: cfg.MaxRequests,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !IsTransient(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("directory circuit breaker state changed",
					"directory", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
	}
}

// State returns the breaker state, for diagnostics.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name implements Directory.
func (b *Breaker) Name() string { return b.next.Name() }

// FetchSnapshot implements Directory. Snapshots bypass the breaker: a pass
// that cannot read its snapshot is already fatal.
func (b *Breaker) FetchSnapshot(ctx context.Context) ([]model.DownstreamEntity, error) {
	return b.next.FetchSnapshot(ctx)
}

// Create implements Directory.
func (b *Breaker) Create(ctx context.Context, payload map[string]string) (string, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Create(ctx, payload)
	})
	if err != nil {
		return "", b.wrap(OpCreate, payload[model.FieldExternalID], err)
	}
	return v.(string), nil
}

// Update implements Directory.
func (b *Breaker) Update(ctx context.Context, id string, patch model.Patch) error {
	return b.run(OpUpdate, id, func() error { return b.next.Update(ctx, id, patch) })
}

// Suspend implements Directory.
func (b *Breaker) Suspend(ctx context.Context, id string) error {
	return b.run(OpSuspend, id, func() error { return b.next.Suspend(ctx, id) })
}

// Remove implements Directory.
func (b *Breaker) Remove(ctx context.Context, id string) error {
	return b.run(OpRemove, id, func() error { return b.next.Remove(ctx, id) })
}

func (b *Breaker) run(op, id string, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return b.wrap(op, id, err)
	}
	return nil
}

// wrap maps breaker rejections to transient errors and passes everything
// else through untouched.
func (b *Breaker) wrap(op, id string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewError(KindTransient, op, id, err)
	}
	return err
}
