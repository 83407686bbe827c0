package circuitbreaker

import (
	"errors"

	"github.com/sony/gobreaker"

	"folderzip/internal/config"
	"folderzip/internal/metrics"
)

// Breaker wraps gobreaker with metrics around blob store fetches
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	name    string
}

// New creates a new circuit breaker
func New(name string, cfg *config.Config, m *metrics.Metrics) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.CircuitBreakerMaxRequests),
		Interval:    cfg.CircuitBreakerTimeout,
		Timeout:     cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.CircuitBreakerThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotCounted)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	}

	m.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	return &Breaker{
		cb:      gobreaker.NewCircuitBreaker(settings),
		metrics: m,
		name:    name,
	}
}

// ErrNotCounted marks errors that should not move the breaker toward open.
// Wrap it with fmt.Errorf("%w: ...", ErrNotCounted) or errors.Join.
var ErrNotCounted = errors.New("not counted by circuit breaker")

// Execute runs the given function through the circuit breaker
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the breaker name used as the metrics label
func (b *Breaker) Name() string {
	return b.name
}

// IsRejection reports whether err came from the breaker itself refusing a call
func IsRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
