package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tv_bridge/internal/bus"
	"tv_bridge/internal/certstore"
	"tv_bridge/internal/models"
	"tv_bridge/internal/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	events chan remote.Event

	mu    sync.Mutex
	codes []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan remote.Event, 8)}
}

func (f *fakeSession) Start(context.Context) error { return nil }

func (f *fakeSession) SendKey(context.Context, remote.KeyCode, remote.PressKind) error { return nil }

func (f *fakeSession) SendCode(_ context.Context, code string) error {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()
	f.events <- remote.Event{Kind: remote.EventReady}
	return nil
}

func (f *fakeSession) Certificate(context.Context) (certstore.Blob, error) {
	return certstore.Blob{"serial": "tv:5555"}, nil
}

func (f *fakeSession) Events() <-chan remote.Event { return f.events }

func (f *fakeSession) sentCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...)
}

type stubPrompter struct {
	answer string
	err    error
	calls  int
	mu     sync.Mutex
}

func (p *stubPrompter) Prompt(_ context.Context, label string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.answer, p.err
}

type memCerts struct {
	mu    sync.Mutex
	saved []certstore.Blob
}

func (m *memCerts) Save(b certstore.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, b)
	return nil
}

func (m *memCerts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type chanHandler struct{ got chan models.CommandMessage }

func (h *chanHandler) Handle(_ context.Context, m models.CommandMessage) (<-chan error, error) {
	h.got <- m
	return nil, nil
}

type supervisorFixture struct {
	session  *fakeSession
	prompter *stubPrompter
	certs    *memCerts
	bus      *bus.Memory
	handler  *chanHandler
	state    *SessionState
	cancel   context.CancelFunc
	done     chan error
}

func startSupervisor(t *testing.T, answer string) *supervisorFixture {
	t.Helper()
	f := &supervisorFixture{
		session:  newFakeSession(),
		prompter: &stubPrompter{answer: answer},
		certs:    &memCerts{},
		bus:      bus.NewMemory(nil),
		handler:  &chanHandler{got: make(chan models.CommandMessage, 8)},
		state:    NewSessionState(nil),
		done:     make(chan error, 1),
	}
	sup := NewSupervisor(SupervisorDeps{
		Session:    f.session,
		Certs:      f.certs,
		Prompter:   f.prompter,
		Subscriber: f.bus,
		Handler:    f.handler,
		State:      f.state,
	})
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- sup.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
		_ = f.bus.Close()
	})
	return f
}

func TestSupervisor_PairsThroughPrompt(t *testing.T) {
	cases := []struct {
		name   string
		answer string
		want   string
	}{
		{"code", " 1A2B3C\n", "1A2B3C"},
		{"pairing port and code", "37123 1A2B3C\r\n", "37123 1A2B3C"},
		{"pairing address and code", "192.168.1.170:41005 1A2B3C\n", "192.168.1.170:41005 1A2B3C"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := startSupervisor(t, tc.answer)

			f.session.events <- remote.Event{Kind: remote.EventSecretNeeded}

			require.Eventually(t, func() bool { return f.state.Snapshot().Subscribed }, time.Second, 5*time.Millisecond)
			assert.Equal(t, []string{tc.want}, f.session.sentCodes())
			assert.Equal(t, 1, f.certs.count())
			assert.True(t, f.state.Snapshot().Paired)
		})
	}
}

func TestSupervisor_RepeatedReadySubscribesOnce(t *testing.T) {
	f := startSupervisor(t, "")

	f.session.events <- remote.Event{Kind: remote.EventReady}
	require.Eventually(t, func() bool { return f.state.Snapshot().Subscribed }, time.Second, 5*time.Millisecond)
	f.session.events <- remote.Event{Kind: remote.EventReady}
	require.Eventually(t, func() bool { return f.certs.count() == 2 }, time.Second, 5*time.Millisecond)

	ack, err := f.bus.Publish(context.Background(), models.ChannelKeypadSelect, map[string]any{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, ack.Receivers)

	select {
	case m := <-f.handler.got:
		assert.Equal(t, models.ChannelKeypadSelect, m.Channel)
		assert.JSONEq(t, `{}`, string(m.Message))
	case <-time.After(time.Second):
		t.Fatal("message was not forwarded to the dispatcher")
	}
}

func TestSupervisor_PowerAndAppUpdates(t *testing.T) {
	f := startSupervisor(t, "")

	f.session.events <- remote.Event{Kind: remote.EventPowerChanged, Powered: true}
	f.session.events <- remote.Event{Kind: remote.EventAppChanged, App: "com.netflix.ninja"}

	require.Eventually(t, func() bool {
		st := f.state.Snapshot()
		return st.Powered && st.CurrentApp == "com.netflix.ninja"
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisor_PromptFailureDoesNotPair(t *testing.T) {
	f := startSupervisor(t, "")
	f.prompter.err = errors.New("no terminal")

	f.session.events <- remote.Event{Kind: remote.EventSecretNeeded}

	require.Eventually(t, func() bool {
		f.prompter.mu.Lock()
		defer f.prompter.mu.Unlock()
		return f.prompter.calls == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.session.sentCodes())
	assert.False(t, f.state.Snapshot().Subscribed)
}

func TestSupervisor_StopsWhenEventsClose(t *testing.T) {
	f := startSupervisor(t, "")
	close(f.session.events)

	select {
	case err := <-f.done:
		assert.NoError(t, err)
		f.done <- err // let cleanup drain
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
}
