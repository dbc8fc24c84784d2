package backend

import (
	"sync"
	"time"
)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after FailureThreshold consecutive failures and
// rejects calls until ResetTimeout has passed. The first call after that
// runs half-open: success closes the circuit, failure reopens it.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitState
	failures         int
	openedAt         time.Time
	failureThreshold int
	resetTimeout     time.Duration
	onStateChange    func(CircuitState)

	now func() time.Time
}

func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, onStateChange func(CircuitState)) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		onStateChange:    onStateChange,
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen while the circuit is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.transition(CircuitHalfOpen)
	}
	return nil
}

func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != CircuitClosed {
		cb.transition(CircuitClosed)
	}
}

func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.failureThreshold {
		cb.openedAt = cb.now()
		if cb.state != CircuitOpen {
			cb.transition(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	cb.state = to
	if to == CircuitClosed {
		cb.failures = 0
	}
	if cb.onStateChange != nil {
		cb.onStateChange(to)
	}
}
