package service

import (
	"context"

	"tv_bridge/internal/models"
)

type MonitoringService struct {
	state *SessionState
}

func NewMonitoringService(state *SessionState) *MonitoringService {
	return &MonitoringService{state: state}
}

// GetState returns the latest known television state. It never persists;
// after a restart everything reads false until the session reports.
func (s *MonitoringService) GetState(ctx context.Context) (models.TVState, error) {
	if err := ctx.Err(); err != nil {
		return models.TVState{}, err
	}
	return s.state.Snapshot(), nil
}
