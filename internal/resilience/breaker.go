// Package resilience wraps outbound calls to the blob store and
// warehouse clients with a circuit breaker, so a wedged external
// system fails fast for the rest of a cycle instead of holding up the
// tick. This does not add retries within a single ship — the design
// explicitly forbids that — it only bounds how long a doomed call is
// allowed to run before BatchShipper gives up and falls back to backup.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fleetmetra/geoingest/internal/metrics"
)

// Breaker wraps gobreaker.CircuitBreaker for a single named external
// dependency (e.g. "blobstore" or "warehouse").
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New creates a Breaker that opens after consecutiveFailures in a row
// and stays open for openFor before allowing a trial request through.
func New(name string, consecutiveFailures uint32, openFor time.Duration) *Breaker {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn through the breaker. If the breaker is open, fn is not
// called and gobreaker.ErrOpenState is returned — callers should treat
// that the same as any other transient failure from the wrapped client.
func (b *Breaker) Do(_ context.Context, fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		metrics.CircuitBreakerOpenTotal.WithLabelValues(b.name).Inc()
	}
	return err
}
