package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tv_bridge/internal/logger"
	"tv_bridge/internal/models"
	"tv_bridge/internal/repository"
)

type EventLogService struct {
	repo repository.JournalRepo
	log  *logger.Logger
}

func NewEventLogService(repo repository.JournalRepo) *EventLogService {
	return &EventLogService{repo: repo, log: logger.Nop()}
}

// WithLogger sets the logger used for failed appends.
func (s *EventLogService) WithLogger(log *logger.Logger) *EventLogService {
	if log != nil {
		s.log = log
	}
	return s
}

var errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims and upper-cases a journal type filter.
func normalizeEventType(typ string) string {
	return strings.ToUpper(strings.TrimSpace(typ))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}
	return from, to, normalizeEventType(f.Type), nil
}

// Record appends an event. Journal failures never interrupt the caller.
func (s *EventLogService) Record(ctx context.Context, typ, description string, metadata any) {
	err := s.repo.Append(ctx, models.JournalEvent{
		Type:        typ,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		s.log.Warnw("journal_append_failed", "type", typ, "err", err)
	}
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.JournalEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, from, to, typ)
}
