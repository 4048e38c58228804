package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"commetrics-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Consecutive failures that open the circuit
	FailureThreshold int64

	// Consecutive half-open successes that close it again
	SuccessThreshold int64

	// Time the circuit stays open before a probe is let through
	Timeout time.Duration

	// Upper bound for the open period when backing off
	MaxTimeout time.Duration
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxTimeout:       5 * time.Minute,
	}
}

// Statistics is a snapshot of breaker counters
type Statistics struct {
	State                string    `json:"state"`
	TotalRequests        int64     `json:"total_requests"`
	FailedRequests       int64     `json:"failed_requests"`
	RejectedRequests     int64     `json:"rejected_requests"`
	ConsecutiveFailures  int64     `json:"consecutive_failures"`
	StateTransitions     int64     `json:"state_transitions"`
	LastFailureTime      time.Time `json:"last_failure_time,omitempty"`
	NextAttempt          time.Time `json:"next_attempt,omitempty"`
	consecutiveSuccesses int64
}

// CircuitBreaker stops calling a failing dependency until it has had time to recover
type CircuitBreaker struct {
	name   string
	logger *logrus.Entry
	config Config

	state       State
	opens       int64
	nextAttempt time.Time
	probing     bool
	stats       Statistics
	mutex       sync.Mutex

	now func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config Config, logger *logrus.Logger) *CircuitBreaker {
	defaults := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxTimeout < config.Timeout {
		config.MaxTimeout = config.Timeout
	}

	cb := &CircuitBreaker{
		name:   name,
		logger: logger.WithField("circuit_breaker", name),
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
	metrics.SetCircuitState(name, int(StateClosed))
	return cb
}

// Execute runs fn unless the circuit is open. Cancellation by the caller is
// not counted as a failure of the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return &OpenError{Name: cb.name, RetryAt: cb.NextAttempt()}
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.recordSuccess()
	case errors.Is(err, context.Canceled):
		cb.releaseProbe()
	default:
		cb.recordFailure(err)
	}
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.now().Before(cb.nextAttempt) {
			cb.stats.RejectedRequests++
			return false
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return true

	default:
		// one probe at a time while half-open
		if cb.probing {
			cb.stats.RejectedRequests++
			return false
		}
		cb.probing = true
		return true
	}
}

func (cb *CircuitBreaker) releaseProbe() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.probing = false
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.probing = false
	cb.stats.TotalRequests++
	cb.stats.ConsecutiveFailures = 0
	cb.stats.consecutiveSuccesses++

	if cb.state == StateHalfOpen && cb.stats.consecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.probing = false
	cb.stats.TotalRequests++
	cb.stats.FailedRequests++
	cb.stats.ConsecutiveFailures++
	cb.stats.consecutiveSuccesses = 0
	cb.stats.LastFailureTime = cb.now()

	if cb.state == StateHalfOpen || cb.stats.ConsecutiveFailures >= cb.config.FailureThreshold {
		cb.setState(StateOpen)
	}

	cb.logger.WithError(err).WithFields(logrus.Fields{
		"failures": cb.stats.ConsecutiveFailures,
		"state":    cb.state.String(),
	}).Debug("Circuit breaker recorded failure")
}

// setState must be called with the mutex held
func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.stats.StateTransitions++

	switch newState {
	case StateOpen:
		// each reopening without a full recovery doubles the wait
		timeout := cb.config.Timeout << uint(min(cb.opens, 10))
		if timeout > cb.config.MaxTimeout || timeout <= 0 {
			timeout = cb.config.MaxTimeout
		}
		cb.opens++
		cb.nextAttempt = cb.now().Add(timeout)

	case StateClosed:
		cb.opens = 0
		cb.nextAttempt = time.Time{}
		cb.stats.ConsecutiveFailures = 0

	case StateHalfOpen:
		cb.stats.consecutiveSuccesses = 0
	}

	metrics.SetCircuitState(cb.name, int(newState))
	cb.logger.WithFields(logrus.Fields{
		"from_state":   oldState.String(),
		"to_state":     newState.String(),
		"next_attempt": cb.nextAttempt,
	}).Info("Circuit breaker state changed")
}

// State returns the current circuit breaker state
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// NextAttempt returns when an open circuit lets the next probe through
func (cb *CircuitBreaker) NextAttempt() time.Time {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.nextAttempt
}

// Statistics returns a snapshot of the breaker counters
func (cb *CircuitBreaker) Statistics() Statistics {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	stats := cb.stats
	stats.State = cb.state.String()
	stats.NextAttempt = cb.nextAttempt
	return stats
}

// Name returns the circuit breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
