package notifier

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the transport while the
// breaker is open.
var ErrCircuitOpen = errors.New("notifier circuit open")

// breaker is a consecutive-failure circuit breaker with cooldown over the
// whole transport:
//   - On success: resets failures and closes the circuit.
//   - On a transient failure: increments failures and, once failures >= trip,
//     opens the circuit for an exponentially increasing cooldown.
//
// Permanent per-recipient errors (a blocked bot) say nothing about the
// transport and are not recorded.
type breaker struct {
	mu          sync.Mutex
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

// circuitCfg holds effective settings after applying defaults.
type circuitCfg struct {
	trip       int
	baseDelay  time.Duration
	maxDelay   time.Duration
	resetAfter time.Duration
	enabled    bool
}

func effectiveCircuitCfg(cfg Config) circuitCfg {
	trip := cfg.CircuitTripFailures
	if trip == 0 {
		trip = 5
	}
	if trip < 0 {
		return circuitCfg{enabled: false}
	}
	base := cfg.CircuitBaseDelay
	if base <= 0 {
		base = 5 * time.Second
	}
	maxD := cfg.CircuitMaxDelay
	if maxD <= 0 {
		maxD = 2 * time.Minute
	}
	reset := cfg.CircuitResetAfter
	if reset <= 0 {
		reset = 5 * time.Minute
	}
	return circuitCfg{trip: trip, baseDelay: base, maxDelay: maxD, resetAfter: reset, enabled: true}
}

// resetStaleLocked forgets failures that are older than resetAfter.
func (b *breaker) resetStaleLocked(now time.Time, cc circuitCfg) {
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > cc.resetAfter {
		b.fails = 0
		b.openUntil = time.Time{}
	}
}

func (b *breaker) isOpen(now time.Time, cfg Config) (bool, time.Time) {
	cc := effectiveCircuitCfg(cfg)
	if !cc.enabled {
		return false, time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetStaleLocked(now, cc)
	if !b.openUntil.IsZero() && now.Before(b.openUntil) {
		return true, b.openUntil
	}
	return false, time.Time{}
}

// record notes a send result. It reports whether this failure tripped the
// circuit open.
func (b *breaker) record(now time.Time, cfg Config, err error) (tripped bool, until time.Time) {
	cc := effectiveCircuitCfg(cfg)
	if !cc.enabled {
		return false, time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetStaleLocked(now, cc)

	if err == nil {
		b.fails = 0
		b.openUntil = time.Time{}
		b.lastFailure = time.Time{}
		return false, time.Time{}
	}

	b.fails++
	b.lastFailure = now
	if b.fails < cc.trip {
		return false, time.Time{}
	}

	// Exponential cooldown after tripping.
	d := cc.baseDelay
	for i := 0; i < b.fails-cc.trip; i++ {
		d *= 2
		if d >= cc.maxDelay {
			break
		}
	}
	d = min(d, cc.maxDelay)
	b.openUntil = now.Add(d)
	return true, b.openUntil
}
