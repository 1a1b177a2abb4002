package service

import (
	"context"

	"tv_bridge/internal/bus"
	"tv_bridge/internal/metrics"
	"tv_bridge/internal/models"
)

// PowerService republishes desired power states for the dispatcher, so
// HTTP callers never talk to the bus directly.
type PowerService struct {
	pub     bus.Publisher
	metrics *metrics.Metrics
}

func NewPowerService(pub bus.Publisher, m *metrics.Metrics) *PowerService {
	if m == nil {
		m = metrics.NewNop()
	}
	return &PowerService{pub: pub, metrics: m}
}

// PublishPower publishes {"powerState": powerState} to power_controller. The
// value is passed through unchecked.
func (s *PowerService) PublishPower(ctx context.Context, powerState string) (bus.Ack, error) {
	ack, err := s.pub.Publish(ctx, models.ChannelPowerController, models.PowerCommand{PowerState: powerState})
	if err != nil {
		s.metrics.PublishesTotal.WithLabelValues(models.ChannelPowerController, metrics.OutcomeError).Inc()
		return bus.Ack{}, err
	}
	s.metrics.PublishesTotal.WithLabelValues(models.ChannelPowerController, metrics.OutcomeOK).Inc()
	return ack, nil
}
