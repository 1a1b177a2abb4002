package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"tv_bridge/internal/remote"

	"github.com/jonboulle/clockwork"
)

type sentKey struct {
	Key   remote.KeyCode
	Press remote.PressKind
	At    time.Duration
}

// recordingSender stores every key with its offset from start on the fake clock.
type recordingSender struct {
	clock clockwork.Clock
	start time.Time

	mu    sync.Mutex
	sent  []sentKey
	err   error
	onKey func(remote.KeyCode)
}

func newRecordingSender(clock clockwork.Clock) *recordingSender {
	return &recordingSender{clock: clock, start: clock.Now()}
}

func (r *recordingSender) SendKey(_ context.Context, code remote.KeyCode, kind remote.PressKind) error {
	r.mu.Lock()
	r.sent = append(r.sent, sentKey{Key: code, Press: kind, At: r.clock.Since(r.start)})
	err, hook := r.err, r.onKey
	r.mu.Unlock()
	if hook != nil {
		hook(code)
	}
	return err
}

func (r *recordingSender) keys() []remote.KeyCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]remote.KeyCode, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.Key
	}
	return out
}

func (r *recordingSender) offsets() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.At
	}
	return out
}

// startScheduler runs a scheduler on a fake clock until the test ends.
func startScheduler(t *testing.T, sender KeySender, clock *clockwork.FakeClock, queue int) *Scheduler {
	t.Helper()
	s := NewScheduler(sender, clock, queue, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return s
}

// awaitTick is fine enough to land exactly on every delay used in tests.
const awaitTick = 10 * time.Millisecond

// await advances the fake clock in awaitTick steps whenever the worker is
// sleeping, until every done channel has reported.
func await(t *testing.T, clock *clockwork.FakeClock, done ...<-chan error) []error {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	errs := make([]error, 0, len(done))
	for _, d := range done {
		for {
			select {
			case err := <-d:
				errs = append(errs, err)
			default:
				if time.Now().After(deadline) {
					t.Fatalf("macro did not finish in time")
				}
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
				if clock.BlockUntilContext(ctx, 1) == nil {
					clock.Advance(awaitTick)
				}
				cancel()
				continue
			}
			break
		}
	}
	return errs
}

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, n := range v {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}
