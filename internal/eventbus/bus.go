package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vocabot/internal/metrics"
	"vocabot/internal/runtime/supervisor"
	logx "vocabot/pkg/logx"
)

// Handler receives dispatched events. A returned error is logged and counted;
// it never affects other handlers or later events.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

type Options struct {
	// HandlerTimeout bounds each handler invocation (0 = none).
	HandlerTimeout time.Duration
	Metrics        *metrics.Metrics
}

// Bus is an in-process publish/subscribe bus with a single dispatch loop.
//
// Contract:
//   - Publish never blocks and never fails. The queue is unbounded FIFO.
//   - Events are dispatched one at a time in publish order.
//   - All handlers of an event run concurrently; the loop waits for every one
//     of them before taking the next event.
//   - Events published before Start are kept and delivered after Start.
//   - Events published after Stop are dropped.
type Bus struct {
	log logx.Logger
	met *metrics.Metrics

	handlerTimeout atomic.Int64

	mu       sync.Mutex
	queue    []entry
	started  bool
	stopping bool
	wake     chan struct{}
	done     chan struct{}
	sup      *supervisor.Supervisor

	subsMu sync.RWMutex
	subs   map[Kind]map[uint64]Handler
	seq    uint64

	published  atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64
}

// entry is a queue slot. stop marks the shutdown sentinel.
type entry struct {
	ev   Event
	stop bool
}

func New(log logx.Logger, opts Options) *Bus {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bus{
		log:  log.With(logx.String("comp", "eventbus")),
		met:  opts.Metrics,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		subs: map[Kind]map[uint64]Handler{},
	}
	b.handlerTimeout.Store(int64(opts.HandlerTimeout))
	return b
}

// SetHandlerTimeout changes the per-handler bound for later invocations.
func (b *Bus) SetHandlerTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.handlerTimeout.Store(int64(d))
}

// Subscribe registers h for kind. The returned func removes it; removal
// takes effect before the next dispatch.
func (b *Bus) Subscribe(kind Kind, h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	b.subsMu.Lock()
	b.seq++
	id := b.seq
	if b.subs[kind] == nil {
		b.subs[kind] = map[uint64]Handler{}
	}
	b.subs[kind][id] = h
	b.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs[kind], id)
			b.subsMu.Unlock()
		})
	}
}

func (b *Bus) SubscribeFunc(kind Kind, fn func(ctx context.Context, e Event) error) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return b.Subscribe(kind, HandlerFunc(fn))
}

func (b *Bus) handlers(kind Kind) []Handler {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	hs := make([]Handler, 0, len(b.subs[kind]))
	for _, h := range b.subs[kind] {
		hs = append(hs, h)
	}
	return hs
}

// Publish enqueues e and returns its assigned ID. ID and Time are always
// overwritten. After Stop the event is dropped and "" is returned.
func (b *Bus) Publish(e Event) string {
	e = e.clone()
	e.ID = uuid.NewString()
	e.Time = time.Now()

	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		b.dropped.Add(1)
		b.met.Dropped()
		b.log.Debug("event dropped (bus stopped)", logx.String("kind", e.Kind.String()), logx.Int64("user_id", e.UserID))
		return ""
	}
	b.queue = append(b.queue, entry{ev: e})
	depth := len(b.queue)
	b.mu.Unlock()

	b.published.Add(1)
	b.met.Published(e.Kind.String())
	b.met.SetQueueDepth(depth)
	b.signal()
	return e.ID
}

func (b *Bus) PublishSettingsUpdated(userID int64, payload map[string]any) string {
	return b.Publish(Event{Kind: SettingsUpdated, UserID: userID, Payload: payload})
}

// PublishReminderChanged publishes the fast-path event. An empty at omits
// the time, which sends handlers down the general path.
func (b *Bus) PublishReminderChanged(userID int64, enabled bool, at string) string {
	payload := map[string]any{KeyReminderEnabled: enabled}
	if at != "" {
		payload[KeyReminderTime] = at
	}
	return b.Publish(Event{Kind: ReminderSettingsChanged, UserID: userID, Payload: payload})
}

func (b *Bus) PublishUserDeleted(userID int64) string {
	return b.Publish(Event{Kind: UserDeleted, UserID: userID})
}

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Start launches the dispatch loop. Calling it again is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.stopping {
		return
	}
	b.started = true
	b.sup = supervisor.New(context.Background(), supervisor.WithLogger(b.log))
	b.sup.Go0("eventbus.dispatch", b.loop)
	b.log.Info("event bus started", logx.Int("queued", len(b.queue)))
}

// Stop enqueues a sentinel behind every event already published and waits,
// bounded by ctx, until the loop has dispatched them all and every running
// handler has returned. On deadline the loop keeps draining in the background.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.stopping {
		b.stopping = true
		if !b.started {
			n := len(b.queue)
			b.queue = nil
			b.mu.Unlock()
			close(b.done)
			if n > 0 {
				b.log.Warn("event bus stopped before start; queued events discarded", logx.Int("count", n))
			}
			return nil
		}
		b.queue = append(b.queue, entry{stop: true})
		b.mu.Unlock()
		b.signal()
	} else {
		b.mu.Unlock()
	}

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the dispatch loop has exited.
func (b *Bus) Done() <-chan struct{} { return b.done }

func (b *Bus) loop(ctx context.Context) {
	defer close(b.done)
	for {
		e, ok := b.next(ctx)
		if !ok {
			return
		}
		if e.stop {
			b.log.Info("event bus drained", logx.Uint64("dispatched", b.dispatched.Load()))
			return
		}
		b.dispatch(ctx, e.ev)
	}
}

// next blocks until an entry is available. ok is false when ctx is done.
func (b *Bus) next(ctx context.Context) (entry, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			e := b.queue[0]
			b.queue[0] = entry{}
			b.queue = b.queue[1:]
			depth := len(b.queue)
			if depth == 0 {
				b.queue = nil
			}
			b.mu.Unlock()
			b.met.SetQueueDepth(depth)
			return e, true
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return entry{}, false
		case <-b.wake:
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e Event) {
	hs := b.handlers(e.Kind)
	if len(hs) == 0 {
		b.log.Debug("no subscribers", logx.String("kind", e.Kind.String()), logx.String("event_id", e.ID))
	}

	var wg sync.WaitGroup
	for _, h := range hs {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if err := b.invoke(ctx, h, e.clone()); err != nil {
				b.failed.Add(1)
				b.met.HandlerFailed(e.Kind.String())
				b.log.Error("event handler failed",
					logx.String("kind", e.Kind.String()),
					logx.Int64("user_id", e.UserID),
					logx.String("event_id", e.ID),
					logx.Err(err),
				)
			}
		}(h)
	}
	wg.Wait()

	b.dispatched.Add(1)
	b.met.Dispatched(e.Kind.String())
}

func (b *Bus) invoke(ctx context.Context, h Handler, e Event) (err error) {
	if d := time.Duration(b.handlerTimeout.Load()); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", logx.String("kind", e.Kind.String()), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, e)
}

type Stats struct {
	Published  uint64 `json:"published"`
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
	Queued     int    `json:"queued"`
	Running    bool   `json:"running"`
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	queued := len(b.queue)
	running := b.started && !b.stopping
	b.mu.Unlock()
	return Stats{
		Published:  b.published.Load(),
		Dispatched: b.dispatched.Load(),
		Failed:     b.failed.Load(),
		Dropped:    b.dropped.Load(),
		Queued:     queued,
		Running:    running,
	}
}
