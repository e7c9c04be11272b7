package notifier

import "time"

// Config controls outbound sends.
//
// The circuit opens after CircuitTripFailures consecutive transient failures
// (default 5, negative disables it). Cooldown starts at CircuitBaseDelay
// (5s), doubles per further failure up to CircuitMaxDelay (2m), and failures
// older than CircuitResetAfter (5m) are forgotten.
type Config struct {
	RatePerSec  float64
	Burst       int
	SendTimeout time.Duration
	HistorySize int

	CircuitTripFailures int
	CircuitBaseDelay    time.Duration
	CircuitMaxDelay     time.Duration
	CircuitResetAfter   time.Duration
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Size   int
	Error  string
}

type Option func(*Service)

// WithPermanentErrors sets the classifier for errors that will not heal by
// themselves, such as a user who blocked the bot.
func WithPermanentErrors(fn func(error) bool) Option {
	return func(s *Service) { s.permanent = fn }
}
