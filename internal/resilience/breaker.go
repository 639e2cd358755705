package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen indicates the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrCircuitBusy indicates a half-open probe is already in flight.
	ErrCircuitBusy = errors.New("circuit breaker half-open probe in flight")
)

// State is the externally visible breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	Name         string
	MaxFailures  int
	ResetTimeout time.Duration
	Now          func() time.Time
	// OnStateChange runs with the breaker lock held and must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker tracks consecutive failures of one dependency.
//
// Callers bracket every guarded call with BeforeCall and OnFinish and report
// the outcome with OnSuccess or OnFailure in between, passing back the Ticket
// BeforeCall returned. The mutex is only held around state transitions, never
// across the guarded call.
type CircuitBreaker struct {
	mu         sync.Mutex
	name       string
	maxFails   int
	resetAfter time.Duration
	now        func() time.Time
	onChange   func(name string, from, to State)

	state          State
	generation     uint64
	failures       int
	openedAt       time.Time
	halfOpenFlight bool
}

// Ticket identifies one admitted call. Outcomes reported with a ticket from
// an earlier state generation are ignored.
type Ticket struct {
	generation uint64
	probe      bool
}

// Probe reports whether the call was admitted as the half-open probe.
func (t Ticket) Probe() bool { return t.probe }

// Snapshot is a point-in-time copy of breaker state.
type Snapshot struct {
	Name                string    `json:"name"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
	ProbeInFlight       bool      `json:"probe_in_flight"`
}

// NewCircuitBreaker constructs a circuit breaker with sane defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	maxFails := cfg.MaxFailures
	if maxFails < 1 {
		maxFails = 1
	}
	resetAfter := cfg.ResetTimeout
	if resetAfter <= 0 {
		resetAfter = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		name:       cfg.Name,
		maxFails:   maxFails,
		resetAfter: resetAfter,
		now:        now,
		onChange:   cfg.OnStateChange,
		state:      StateClosed,
	}
}

// Name returns the dependency name the breaker guards.
func (c *CircuitBreaker) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// BeforeCall admits or rejects a call. An admitted call in HALF_OPEN becomes
// the single probe.
func (c *CircuitBreaker) BeforeCall() (Ticket, error) {
	if c == nil {
		return Ticket{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.refresh()
	switch c.state {
	case StateOpen:
		return Ticket{}, ErrCircuitOpen
	case StateHalfOpen:
		if c.halfOpenFlight {
			return Ticket{}, ErrCircuitBusy
		}
		c.halfOpenFlight = true
		return Ticket{generation: c.generation, probe: true}, nil
	}
	return Ticket{generation: c.generation}, nil
}

// OnSuccess closes the circuit and clears the failure count.
func (c *CircuitBreaker) OnSuccess(t Ticket) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t.generation != c.generation {
		return
	}
	c.failures = 0
	if t.probe {
		c.halfOpenFlight = false
	}
	c.setState(StateClosed)
}

// OnFailure records a failure and opens the circuit at the threshold. A failed
// half-open probe reopens immediately.
func (c *CircuitBreaker) OnFailure(t Ticket) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t.generation != c.generation {
		return
	}
	c.failures++
	if t.probe {
		c.halfOpenFlight = false
	}
	if c.state == StateHalfOpen || c.failures >= c.maxFails {
		c.openedAt = c.now()
		c.setState(StateOpen)
	}
}

// OnFinish releases the probe slot held by t. It must run after every
// admitted call.
func (c *CircuitBreaker) OnFinish(t Ticket) {
	if c == nil || !t.probe {
		return
	}

	c.mu.Lock()
	if t.generation == c.generation {
		c.halfOpenFlight = false
	}
	c.mu.Unlock()
}

// State reports the current state, promoting OPEN to HALF_OPEN once the reset
// timeout has elapsed.
func (c *CircuitBreaker) State() State {
	if c == nil {
		return StateClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.refresh()
	return c.state
}

// Snapshot returns a copy of the breaker state.
func (c *CircuitBreaker) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{State: StateClosed}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.refresh()
	return Snapshot{
		Name:                c.name,
		State:               c.state,
		ConsecutiveFailures: c.failures,
		OpenedAt:            c.openedAt,
		ProbeInFlight:       c.halfOpenFlight,
	}
}

// refresh must be called with mu held.
func (c *CircuitBreaker) refresh() {
	if c.state == StateOpen && c.now().Sub(c.openedAt) >= c.resetAfter {
		c.halfOpenFlight = false
		c.setState(StateHalfOpen)
	}
}

// setState must be called with mu held.
func (c *CircuitBreaker) setState(next State) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	c.generation++
	if c.onChange != nil {
		c.onChange(c.name, prev, next)
	}
}
