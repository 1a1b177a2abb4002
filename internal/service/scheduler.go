package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tv_bridge/internal/logger"
	"tv_bridge/internal/metrics"
	"tv_bridge/internal/models"
	"tv_bridge/internal/remote"

	"github.com/jonboulle/clockwork"
)

// DefaultQueueSize bounds how many macros may wait behind the running one.
const DefaultQueueSize = 16

var (
	// ErrBusy is returned when the macro queue is full.
	ErrBusy = errors.New("macro queue full")
	// ErrStopped is returned once the scheduler has stopped.
	ErrStopped = errors.New("scheduler stopped")
)

// KeySender is the part of remote.Session the scheduler drives.
type KeySender interface {
	SendKey(ctx context.Context, code remote.KeyCode, kind remote.PressKind) error
}

// MacroRunner accepts macros for execution.
type MacroRunner interface {
	Submit(m Macro) (<-chan error, error)
}

type job struct {
	macro Macro
	done  chan error
}

// Scheduler runs macros one at a time, in submission order, so key sends of
// different commands never interleave.
type Scheduler struct {
	sender  KeySender
	clock   clockwork.Clock
	journal EventLog
	metrics *metrics.Metrics
	log     *logger.Logger

	queue chan job

	mu      sync.Mutex // guards stopped and sends on queue
	stopped bool
}

var _ MacroRunner = (*Scheduler)(nil)

func NewScheduler(sender KeySender, clock clockwork.Clock, queueSize int, journal EventLog, m *metrics.Metrics, log *logger.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		sender:  sender,
		clock:   clock,
		journal: journal,
		metrics: m,
		log:     log,
		queue:   make(chan job, queueSize),
	}
}

// Submit enqueues m without blocking. The returned channel receives nil once
// the macro finished (or was skipped), or ctx.Err() if the scheduler stopped
// midway.
func (s *Scheduler) Submit(m Macro) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	j := job{macro: m, done: make(chan error, 1)}
	select {
	case s.queue <- j:
		s.metrics.MacroQueueDepth.Set(float64(len(s.queue)))
		return j.done, nil
	default:
		return nil, fmt.Errorf("%s: %w", m.Name, ErrBusy)
	}
}

// Run executes queued macros until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.stop(ctx.Err())
			return
		case j := <-s.queue:
			s.metrics.MacroQueueDepth.Set(float64(len(s.queue)))
			j.done <- s.execute(ctx, j.macro)
		}
	}
}

// stop refuses further submissions, then fails everything still queued.
func (s *Scheduler) stop(err error) {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	for {
		select {
		case j := <-s.queue:
			j.done <- err
		default:
			s.metrics.MacroQueueDepth.Set(0)
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, m Macro) error {
	if m.When != nil && !m.When() {
		s.log.Debugw("macro_skipped", "macro", m.Name)
		return nil
	}
	for i, st := range m.Steps {
		// Delay runs from the start of the send, journal write included.
		start := s.clock.Now()
		if err := s.sender.SendKey(ctx, st.Key, st.Press); err != nil {
			// no retry; the rest of the macro still runs
			s.metrics.KeySendsTotal.WithLabelValues(st.Key.String(), metrics.OutcomeError).Inc()
			s.log.Warnw("key_send_failed", "macro", m.Name, "step", i, "key", st.Key.String(), "err", err)
			s.record(ctx, models.EventError, "key send failed: "+st.Key.String(), map[string]any{
				"macro": m.Name, "step": i, "error": err.Error(),
			})
		} else {
			s.metrics.KeySendsTotal.WithLabelValues(st.Key.String(), metrics.OutcomeOK).Inc()
			s.record(ctx, models.EventKey, st.Key.String(), map[string]any{
				"macro": m.Name, "step": i, "press": st.Press.String(),
			})
		}
		wait := st.Delay - s.clock.Since(start)
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}
	return nil
}

func (s *Scheduler) record(ctx context.Context, typ, desc string, meta any) {
	if s.journal != nil {
		s.journal.Record(ctx, typ, desc, meta)
	}
}
