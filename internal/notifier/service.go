package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vocabot/internal/metrics"
	kit "vocabot/internal/transport"
	logx "vocabot/pkg/logx"
)

var ErrNoTransport = errors.New("notifier has no transport")

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	out       kit.Sender
	log       logx.Logger
	met       *metrics.Metrics
	permanent func(error) bool
	now       func() time.Time
	circuit   breaker

	hmu     sync.Mutex
	history []HistoryItem
}

func withDefaults(cfg Config) Config {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSec))
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	return cfg
}

func New(cfg Config, out kit.Sender, log logx.Logger, met *metrics.Metrics, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	s := &Service{
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		out:       out,
		log:       log.With(logx.String("comp", "notifier")),
		met:       met,
		permanent: func(error) bool { return false },
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetTransport swaps the outbound transport.
func (s *Service) SetTransport(out kit.Sender) {
	s.mu.Lock()
	s.out = out
	s.mu.Unlock()
}

func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	s.cfg = cfg
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.Burst)
	s.mu.Unlock()
}

// SendMessage sends an HTML message to the user's private chat. In Telegram
// the private chat id equals the user id.
func (s *Service) SendMessage(ctx context.Context, userID int64, text string) error {
	return s.Send(ctx, kit.ChatTarget{ChatID: userID}, text)
}

// Send waits for the rate limiter and sends text to a chat.
func (s *Service) Send(ctx context.Context, to kit.ChatTarget, text string) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	out := s.out
	s.mu.Unlock()

	if out == nil {
		s.met.Message("no_transport")
		return ErrNoTransport
	}

	if open, until := s.circuit.isOpen(s.now(), cfg); open {
		s.met.Message("circuit_open")
		return fmt.Errorf("%w until %s", ErrCircuitOpen, until.Format(time.RFC3339))
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	if err := lim.Wait(sctx); err != nil {
		s.met.Message("rate_limited")
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err := out.SendText(sctx, to, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	now := s.now()
	item := HistoryItem{At: now, ChatID: to.ChatID, Size: len(text)}
	switch {
	case err == nil:
		s.circuit.record(now, cfg, nil)
		s.met.Message("ok")
	case s.permanent(err):
		item.Error = err.Error()
		s.met.Message("blocked")
		s.log.Info("recipient unreachable", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	default:
		item.Error = err.Error()
		s.met.Message("error")
		s.log.Warn("send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		// A caller giving up says nothing about the transport.
		if ctx.Err() == nil {
			if tripped, until := s.circuit.record(now, cfg, err); tripped {
				s.log.Warn("notifier circuit opened", logx.Time("until", until))
			}
		}
	}
	s.record(item, cfg.HistorySize)
	return err
}

// History returns recent sends, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) record(item HistoryItem, limit int) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}
