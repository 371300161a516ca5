package forward

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrBreakerOpen is returned by Breaker.Execute when the breaker is open
// and the reset timeout has not yet elapsed.
var ErrBreakerOpen = errors.New("endpoint breaker is open")

// BreakerState represents the current operating mode of a Breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state, all calls go through.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls immediately until the reset timeout elapses.
	BreakerOpen

	// BreakerHalfOpen lets a limited number of probe calls through to see
	// whether the endpoint has recovered.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a Breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed deliveries before
	// the breaker opens. Default 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing the
	// endpoint again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default 3.
	HalfOpenMax int
}

// Breaker guards the inference endpoint so a dead endpoint does not make
// every detection block through the full retry schedule. Safe for
// concurrent use.
type Breaker struct {
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	log          zerolog.Logger

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// NewBreaker creates a Breaker. Zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig, log zerolog.Logger) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &Breaker{
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		log:          log.With().Str("component", "breaker").Logger(),
		state:        BreakerClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// ErrBreakerOpen without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastFailure) >= b.resetTimeout {
			b.state = BreakerHalfOpen
			b.halfOpenCalls = 0
			b.halfOpenFails = 0
			b.log.Info().Msg("Breaker transitioning to half-open")
		} else {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	case BreakerHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMax {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	inHalfOpen := b.state == BreakerHalfOpen
	if inHalfOpen {
		b.halfOpenCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailure(inHalfOpen)
	} else {
		b.recordSuccess(inHalfOpen)
	}
	return err
}

// recordFailure must be called with b.mu held.
func (b *Breaker) recordFailure(inHalfOpen bool) {
	b.lastFailure = time.Now()

	if inHalfOpen {
		b.halfOpenFails++
		// Any failure during probing re-opens immediately.
		b.state = BreakerOpen
		b.consecutiveFail = b.maxFailures
		b.log.Warn().Msg("Breaker re-opened from half-open")
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.maxFailures {
		b.state = BreakerOpen
		b.log.Warn().
			Int("consecutive_failures", b.consecutiveFail).
			Msg("Breaker opened")
	}
}

// recordSuccess must be called with b.mu held.
func (b *Breaker) recordSuccess(inHalfOpen bool) {
	if inHalfOpen {
		successes := b.halfOpenCalls - b.halfOpenFails
		if successes >= b.halfOpenMax {
			b.state = BreakerClosed
			b.consecutiveFail = 0
			b.halfOpenCalls = 0
			b.halfOpenFails = 0
			b.log.Info().Msg("Breaker closed after successful probes")
		}
		return
	}
	b.consecutiveFail = 0
}

// State returns the current breaker state. If the breaker is open and the
// reset timeout has elapsed, the returned state is BreakerHalfOpen; the
// actual transition happens on the next Execute call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.resetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}
