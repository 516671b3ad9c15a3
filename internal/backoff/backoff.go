// ABOUTME: Exponential backoff controller with a bounded retry budget.
// ABOUTME: Classifies socket closes as normal, not-ready, or transient.

package backoff

import (
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// StatusNotReady is the application close code meaning the remote execution
// environment is still provisioning. Closes with this code are excluded from
// the backoff loop entirely; recovery is owned by the readiness poller.
const StatusNotReady websocket.StatusCode = 4503

// Defaults for the retry schedule.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMaxAttempts  = 10
)

// ErrRetriesExhausted is returned once the consecutive-failure budget is
// spent. The session is terminal at that point; the user must retry manually.
var ErrRetriesExhausted = errors.New("reconnect retries exhausted")

// Class categorizes a socket close for retry purposes.
type Class int

const (
	// ClassNormal is a closure requested by this client. Never retried.
	ClassNormal Class = iota
	// ClassNotReady means the backend is not yet listening. Handed to the
	// readiness poller, never to the backoff loop.
	ClassNotReady
	// ClassTransient is any other abnormal close. Recovered via backoff.
	ClassTransient
)

// Classify maps a websocket close status to a retry class. Only the
// normal-closure code counts as clean: a going-away close is a server
// restart, which is exactly the transient case retry exists for. Errors
// that carry no close status (dial failures, dropped TCP connections) are
// transient too.
func Classify(err error) Class {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure:
		return ClassNormal
	case StatusNotReady:
		return ClassNotReady
	default:
		return ClassTransient
	}
}

// Controller schedules reconnect attempts. The delay doubles after every
// consecutive failure from InitialDelay up to MaxDelay, and resets on every
// successful open. After MaxAttempts consecutive failures the budget is
// exhausted and no further attempt is scheduled.
type Controller struct {
	initial     time.Duration
	max         time.Duration
	maxAttempts int

	mu       sync.Mutex
	attempts int
}

// Config tunes a Controller. Zero values take the package defaults.
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// New creates a Controller from cfg.
func New(cfg Config) *Controller {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Controller{
		initial:     cfg.InitialDelay,
		max:         cfg.MaxDelay,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Next consumes one attempt from the budget and returns the delay to wait
// before it. Returns ok=false when the budget is exhausted; no delay is
// valid in that case and the caller must surface a terminal failure.
func (c *Controller) Next() (delay time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempts >= c.maxAttempts {
		return 0, false
	}

	delay = c.initial
	for i := 0; i < c.attempts; i++ {
		delay *= 2
		if delay >= c.max {
			delay = c.max
			break
		}
	}
	c.attempts++
	return delay, true
}

// Reset restores the full budget and the initial delay. Called on every
// successful open.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = 0
}

// Attempts returns the number of consecutive failed attempts consumed.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}
