// Package circuitbreaker is a thin wrapper over sony/gobreaker with the
// configuration shape used across the service.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/poolcard/poolcard_service/pkg/logger"
)

// Config controls when the breaker trips and recovers
type Config struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// DefaultConfig trips after five consecutive failures and probes again
// after thirty seconds.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker guards an outbound dependency
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a named circuit breaker
func New(name string, cfg Config, log *logger.Logger) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker
func (c *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return c.cb.Execute(fn)
}

// State returns the current breaker state
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}
