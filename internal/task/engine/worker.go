package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	logx "vocabot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			atomic.AddInt32(&s.inFlight, 1)
			s.execOne(ctx, t)
			atomic.AddInt32(&s.inFlight, -1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	if qt.state != nil {
		defer qt.state.release()
	}
	start := s.clock()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Due: qt.task.Due, Started: start, QueueDelay: queueDelay}

	if !WithinGrace(qt.task.Due, start, cfg.MisfireGrace) {
		atomic.AddUint64(&s.dropped, 1)
		atomic.AddUint64(&s.droppedMisfire, 1)
		s.met.TaskDropped("misfire")
		item.Error = ErrMisfire.Error()
		s.record(item, cfg.HistorySize)
		s.log.Warn("task skipped: misfire",
			logx.String("task", qt.task.Name),
			logx.Time("due", qt.task.Due),
			logx.Duration("late", start.Sub(qt.task.Due)),
			logx.Duration("grace", cfg.MisfireGrace),
		)
		return
	}

	s.log.Debug("task.started", logx.String("task", qt.task.Name), logx.Duration("queue_delay", queueDelay))

	runCtx := ctx
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}

	// One bad task must not kill the worker.
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task.panic", logx.String("task", qt.task.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		return qt.task.Run(runCtx)
	}()

	item.Duration = s.clock().Sub(start)
	s.met.ObserveTask(item.Duration.Seconds())
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task.failed", logx.String("task", qt.task.Name), logx.Err(err), logx.Duration("dur", item.Duration))
	} else {
		s.log.Debug("task.completed", logx.String("task", qt.task.Name), logx.Duration("dur", item.Duration))
	}
	s.record(item, cfg.HistorySize)
}
