package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"tv_bridge/internal/bus"
	"tv_bridge/internal/certstore"
	"tv_bridge/internal/logger"
	"tv_bridge/internal/metrics"
	"tv_bridge/internal/models"
	"tv_bridge/internal/remote"
)

// CodePrompt is shown to the operator when the television displays a pairing code.
const CodePrompt = "Code : "

// Prompter asks the operator for a line of input.
type Prompter interface {
	Prompt(ctx context.Context, label string) (string, error)
}

// CertSaver persists the credential blob after pairing.
type CertSaver interface {
	Save(b certstore.Blob) error
}

// CommandHandler consumes bus messages.
type CommandHandler interface {
	Handle(ctx context.Context, msg models.CommandMessage) (<-chan error, error)
}

// Supervisor reacts to remote session events: it pairs through the operator,
// stores credentials, keeps the state view current and owns the bus
// subscription that feeds the dispatcher.
type Supervisor struct {
	session    remote.Session
	certs      CertSaver
	prompter   Prompter
	subscriber bus.Subscriber
	handler    CommandHandler
	state      *SessionState
	journal    EventLog
	metrics    *metrics.Metrics
	log        *logger.Logger

	subscribed atomic.Bool
	prompting  atomic.Bool
}

type SupervisorDeps struct {
	Session    remote.Session
	Certs      CertSaver
	Prompter   Prompter
	Subscriber bus.Subscriber
	Handler    CommandHandler
	State      *SessionState
	Journal    EventLog
	Metrics    *metrics.Metrics
	Log        *logger.Logger
}

func NewSupervisor(d SupervisorDeps) *Supervisor {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Supervisor{
		session:    d.Session,
		certs:      d.Certs,
		prompter:   d.Prompter,
		subscriber: d.Subscriber,
		handler:    d.Handler,
		state:      d.State,
		journal:    d.Journal,
		metrics:    d.Metrics,
		log:        d.Log,
	}
}

// Run starts the session and handles its events until ctx ends or the
// session closes its event stream.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.session.Start(ctx); err != nil {
		return fmt.Errorf("start remote session: %w", err)
	}
	events := s.session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.metrics.SessionEvents.WithLabelValues(ev.Kind.String()).Inc()
			s.handle(ctx, ev)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev remote.Event) {
	switch ev.Kind {
	case remote.EventSecretNeeded:
		s.log.Infow("pairing_code_required")
		s.state.SetPaired(false)
		s.record(ctx, "pairing code required", nil)
		if s.prompting.CompareAndSwap(false, true) {
			go s.pair(ctx)
		}
	case remote.EventReady:
		s.onReady(ctx)
	case remote.EventPowerChanged:
		s.state.SetPowered(ev.Powered)
		if ev.Powered {
			s.metrics.Powered.Set(1)
		} else {
			s.metrics.Powered.Set(0)
		}
		s.log.Infow("power_changed", "powered", ev.Powered)
		s.record(ctx, "power changed", map[string]any{"powered": ev.Powered})
	case remote.EventAppChanged:
		s.state.SetCurrentApp(ev.App)
		s.log.Debugw("app_changed", "app", ev.App)
	default:
		s.log.Debugw("session_event_ignored", "kind", ev.Kind.String())
	}
}

func (s *Supervisor) pair(ctx context.Context) {
	defer s.prompting.Store(false)
	code, err := s.prompter.Prompt(ctx, CodePrompt)
	if err != nil {
		s.log.Errorw("pairing_prompt_failed", "err", err)
		return
	}
	if err := s.session.SendCode(ctx, strings.TrimSpace(code)); err != nil {
		s.log.Errorw("pairing_failed", "err", err)
		s.journalError(ctx, "pairing failed", err)
	}
}

func (s *Supervisor) onReady(ctx context.Context) {
	s.log.Infow("remote_session_ready")
	s.state.SetPaired(true)
	s.record(ctx, "session ready", nil)

	if blob, err := s.session.Certificate(ctx); err != nil {
		s.log.Errorw("certificate_read_failed", "err", err)
	} else if err := s.certs.Save(blob); err != nil {
		// already logged by the store; pairing stays usable for this run
		s.journalError(ctx, "certificate save failed", err)
	}

	if !s.subscribed.CompareAndSwap(false, true) {
		return
	}
	sub, err := s.subscriber.Subscribe(ctx, models.CommandChannels...)
	if err != nil {
		s.subscribed.Store(false)
		s.log.Errorw("bus_subscribe_failed", "err", err)
		s.journalError(ctx, "bus subscribe failed", err)
		return
	}
	s.state.SetSubscribed(true)
	s.log.Infow("bus_subscribed", "channels", models.CommandChannels)
	go s.consume(ctx, sub)
}

// consume feeds subscription messages to the handler until the subscription
// ends. A later ready event subscribes again.
func (s *Supervisor) consume(ctx context.Context, sub *bus.Subscription) {
	defer func() {
		_ = sub.Close()
		s.state.SetSubscribed(false)
		s.subscribed.Store(false)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				s.log.Warnw("bus_subscription_closed")
				return
			}
			// errors are logged and counted by the handler
			_, _ = s.handler.Handle(ctx, models.CommandMessage{Channel: msg.Channel, Message: msg.Payload})
		}
	}
}

func (s *Supervisor) record(ctx context.Context, desc string, meta any) {
	if s.journal != nil {
		s.journal.Record(ctx, models.EventSession, desc, meta)
	}
}

func (s *Supervisor) journalError(ctx context.Context, desc string, err error) {
	if s.journal != nil {
		s.journal.Record(ctx, models.EventError, desc, map[string]any{"error": err.Error()})
	}
}
