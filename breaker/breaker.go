// Package breaker guards calls to one quote provider. After enough
// consecutive failures the breaker opens and refuses calls for a cool-down,
// then lets a bounded number of probes through. Enough probe successes
// close it again; a probe failure reopens it.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is wrapped by the error [Breaker.Do] returns while it refuses
// calls.
var ErrOpen = errors.New("breaker: circuit open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the run of consecutive failures that opens a
	// closed breaker.
	FailureThreshold int

	// OpenTimeout is the cool-down before the first probe.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is both the number of concurrent probes and the
	// run of probe successes that closes the breaker.
	HalfOpenMaxSuccess int

	// IsFailure picks the errors that count against the provider. Other
	// errors, such as an unknown ticker, mean the provider answered. Nil
	// counts every error.
	IsFailure func(error) bool

	// OnStateChange is called after each transition, outside the lock.
	OnStateChange func(from, to State)
}

// DefaultConfig opens after five consecutive failures and probes once
// after thirty seconds.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, OpenTimeout: 30 * time.Second, HalfOpenMaxSuccess: 1}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg     Config
	nowFunc func() time.Time

	mu       sync.Mutex
	state    State
	failures int // consecutive, while closed
	probes   int // in flight, while half-open
	passed   int // successful probes, while half-open
	openedAt time.Time
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	cfg.FailureThreshold = max(cfg.FailureThreshold, 1)
	cfg.HalfOpenMaxSuccess = max(cfg.HalfOpenMaxSuccess, 1)
	return &Breaker{cfg: cfg, nowFunc: time.Now}
}

// Do runs fn unless the breaker refuses it, and records the outcome. A
// refusal returns an error wrapping ErrOpen without calling fn.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}
	ferr := fn()
	b.record(probe, ferr != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(ferr)))
	return ferr
}

// State returns the current position. An open breaker whose cool-down
// has passed reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	from := b.state
	b.cooled()
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return to
}

// acquire admits one call. probe reports whether the call is a half-open
// probe.
func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	b.cooled()
	to := b.state
	switch b.state {
	case Open:
		wait := b.cfg.OpenTimeout - b.nowFunc().Sub(b.openedAt)
		err = fmt.Errorf("%w: next probe in %s", ErrOpen, wait.Round(time.Second))
	case HalfOpen:
		if b.probes+b.passed >= b.cfg.HalfOpenMaxSuccess {
			err = fmt.Errorf("%w: probe in flight", ErrOpen)
		} else {
			b.probes++
			probe = true
		}
	}
	b.mu.Unlock()
	b.notify(from, to)
	return probe, err
}

func (b *Breaker) record(probe, failed bool) {
	b.mu.Lock()
	from := b.state
	if probe && b.probes > 0 {
		b.probes--
	}
	switch {
	case b.state == Closed && failed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case b.state == Closed:
		b.failures = 0
	case b.state == HalfOpen && probe && failed:
		b.trip()
	case b.state == HalfOpen && probe:
		b.passed++
		if b.passed >= b.cfg.HalfOpenMaxSuccess {
			b.state, b.failures, b.passed = Closed, 0, 0
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// cooled moves an open breaker to half-open once OpenTimeout has passed.
// b.mu must be held.
func (b *Breaker) cooled() {
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state, b.probes, b.passed = HalfOpen, 0, 0
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.nowFunc()
	b.probes, b.passed = 0, 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
