package service

import (
	"sync"

	"tv_bridge/internal/models"

	"github.com/jonboulle/clockwork"
)

// SessionState is the in-memory view of the television. The powered flag is
// written only from session power notifications and read by the power
// command when it executes.
type SessionState struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	state models.TVState
}

func NewSessionState(clock clockwork.Clock) *SessionState {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionState{clock: clock, state: models.TVState{UpdatedAt: clock.Now().UTC()}}
}

func (s *SessionState) Powered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Powered
}

func (s *SessionState) SetPowered(powered bool) {
	s.update(func(st *models.TVState) { st.Powered = powered })
}

func (s *SessionState) SetCurrentApp(app string) {
	s.update(func(st *models.TVState) { st.CurrentApp = app })
}

func (s *SessionState) SetPaired(paired bool) {
	s.update(func(st *models.TVState) { st.Paired = paired })
}

func (s *SessionState) SetSubscribed(subscribed bool) {
	s.update(func(st *models.TVState) { st.Subscribed = subscribed })
}

// Snapshot returns a copy of the current state.
func (s *SessionState) Snapshot() models.TVState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *SessionState) update(fn func(*models.TVState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.state.UpdatedAt = s.clock.Now().UTC()
}
