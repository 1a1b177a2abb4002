package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tv_bridge/internal/bus"
	"tv_bridge/internal/models"
	"tv_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	enabled      bool
	parseSubject string
	parseErr     error

	lastParseToken string
}

func (m *mockAuth) Enabled() bool { return m.enabled }

func (m *mockAuth) GenerateToken(subject string) (string, error) {
	return "token-for-" + subject, nil
}

func (m *mockAuth) ParseToken(token string) (string, error) {
	m.lastParseToken = token
	return m.parseSubject, m.parseErr
}

type mockPower struct {
	mu     sync.Mutex
	ack    bus.Ack
	err    error
	states []string
}

func (m *mockPower) PublishPower(ctx context.Context, powerState string) (bus.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, powerState)
	return m.ack, m.err
}

func (m *mockPower) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.states...)
}

type mockMonitoring struct {
	mu    sync.Mutex
	state models.TVState
	err   error
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.TVState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

func (m *mockMonitoring) set(st models.TVState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
}

type mockEventLog struct {
	resp     []models.JournalEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
	calls    int
}

func (m *mockEventLog) Record(ctx context.Context, typ, description string, metadata any) {}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.JournalEvent, error) {
	m.calls++
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
