package service

import (
	"context"

	"tv_bridge/internal/bus"
	"tv_bridge/internal/logger"
	"tv_bridge/internal/metrics"
	"tv_bridge/internal/models"
	"tv_bridge/internal/repository"
)

// Authorization guards the read-only journal API.
type Authorization interface {
	GenerateToken(subject string) (string, error)
	ParseToken(accessToken string) (string, error)
	Enabled() bool
}

// Power republishes desired power states onto the bus.
type Power interface {
	PublishPower(ctx context.Context, powerState string) (bus.Ack, error)
}

// Monitoring exposes the current television state.
type Monitoring interface {
	GetState(ctx context.Context) (models.TVState, error)
}

// EventLog exposes the command journal.
type EventLog interface {
	Record(ctx context.Context, typ, description string, metadata any)
	List(ctx context.Context, f LogFilter) ([]models.JournalEvent, error)
}

// Service aggregates what the HTTP layer needs.
type Service struct {
	Power
	Monitoring
	EventLog
	Authorization
}

// Deps are the collaborators NewService wires together.
type Deps struct {
	Repos      *repository.Repository
	Publisher  bus.Publisher
	State      *SessionState
	Metrics    *metrics.Metrics
	AuthSecret string
	Log        *logger.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		Power:         NewPowerService(d.Publisher, d.Metrics),
		Monitoring:    NewMonitoringService(d.State),
		EventLog:      NewEventLogService(d.Repos.Journal).WithLogger(d.Log),
		Authorization: NewAuthService(d.AuthSecret),
	}
}
