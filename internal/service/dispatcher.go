package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tv_bridge/internal/logger"
	"tv_bridge/internal/metrics"
	"tv_bridge/internal/models"
	"tv_bridge/internal/remote"
)

const (
	// KeyInterval paces key sends; the television drops input that arrives faster.
	KeyInterval = 100 * time.Millisecond
	// MaxRepeat caps the repeated presses of one navigation or input command.
	MaxRepeat = 100
)

var navigationKeys = map[string]remote.KeyCode{
	"up":    remote.KeyDpadUp,
	"down":  remote.KeyDpadDown,
	"left":  remote.KeyDpadLeft,
	"right": remote.KeyDpadRight,
	"back":  remote.KeyBack,
}

// DefaultInputPrefix walks from the launcher to the first entry of the
// input grid. It assumes a specific launcher layout.
func DefaultInputPrefix() []Step {
	return []Step{
		{Key: remote.KeyHome, Delay: time.Second},
		{Key: remote.KeyHome, Delay: 300 * time.Millisecond},
		{Key: remote.KeyDpadUp, Delay: KeyInterval},
		{Key: remote.KeyDpadUp, Delay: KeyInterval},
		{Key: remote.KeyDpadRight, Delay: KeyInterval},
		{Key: remote.KeyDpadRight, Delay: KeyInterval},
		{Key: remote.KeyDpadCenter, Delay: 300 * time.Millisecond},
	}
}

// ParseSteps reads steps written as "KEY:delay", e.g. "HOME:1s" or "DPAD_UP:100ms".
// The delay part is optional.
func ParseSteps(raw []string) ([]Step, error) {
	steps := make([]Step, 0, len(raw))
	for _, item := range raw {
		name, delay, _ := strings.Cut(strings.TrimSpace(item), ":")
		key, ok := remote.ParseKey(strings.ToUpper(name))
		if !ok {
			return nil, fmt.Errorf("unknown key %q in step %q", name, item)
		}
		st := Step{Key: key}
		if delay != "" {
			d, err := time.ParseDuration(delay)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("bad delay in step %q", item)
			}
			st.Delay = d
		}
		steps = append(steps, st)
	}
	return steps, nil
}

// Dispatcher turns bus messages into macros.
type Dispatcher struct {
	state       *SessionState
	runner      MacroRunner
	inputPrefix []Step
	journal     EventLog
	metrics     *metrics.Metrics
	log         *logger.Logger
}

type DispatcherOptions struct {
	InputPrefix []Step // nil uses DefaultInputPrefix
	Journal     EventLog
	Metrics     *metrics.Metrics
	Log         *logger.Logger
}

func NewDispatcher(state *SessionState, runner MacroRunner, opts DispatcherOptions) *Dispatcher {
	if opts.InputPrefix == nil {
		opts.InputPrefix = DefaultInputPrefix()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Dispatcher{
		state:       state,
		runner:      runner,
		inputPrefix: opts.InputPrefix,
		journal:     opts.Journal,
		metrics:     opts.Metrics,
		log:         opts.Log,
	}
}

// Handle queues the macro for msg. Unknown channels and directions return
// (nil, nil). The returned channel reports when the macro has run.
func (d *Dispatcher) Handle(ctx context.Context, msg models.CommandMessage) (<-chan error, error) {
	label := channelLabel(msg.Channel)
	macro, err := d.compile(msg)
	if err != nil {
		d.metrics.CommandsTotal.WithLabelValues(label, metrics.OutcomeError).Inc()
		d.log.Warnw("command_malformed", "channel", msg.Channel, "err", err)
		return nil, err
	}
	if macro == nil {
		d.metrics.CommandsTotal.WithLabelValues(label, metrics.OutcomeIgnored).Inc()
		return nil, nil
	}

	done, err := d.runner.Submit(*macro)
	if err != nil {
		d.metrics.CommandsTotal.WithLabelValues(label, metrics.OutcomeRejected).Inc()
		d.log.Warnw("command_rejected", "channel", msg.Channel, "err", err)
		return nil, err
	}
	d.metrics.CommandsTotal.WithLabelValues(label, metrics.OutcomeOK).Inc()
	if d.journal != nil {
		var payload any
		if json.Valid(msg.Message) {
			payload = msg.Message
		}
		d.journal.Record(ctx, models.EventCommand, msg.Channel, payload)
	}
	return done, nil
}

// channelLabel bounds metric cardinality to the known channels.
func channelLabel(channel string) string {
	for _, c := range models.CommandChannels {
		if c == channel {
			return c
		}
	}
	return "unknown"
}

// compile maps a message to its macro; nil means nothing to do.
func (d *Dispatcher) compile(msg models.CommandMessage) (*Macro, error) {
	switch msg.Channel {
	case models.ChannelKeypadNavigation:
		var cmd models.NavigationCommand
		if err := decode(msg.Message, &cmd); err != nil {
			return nil, err
		}
		if cmd.Count > MaxRepeat {
			return nil, fmt.Errorf("count %d exceeds %d", cmd.Count, MaxRepeat)
		}
		return Navigation(cmd.Direction, cmd.Count), nil
	case models.ChannelKeypadSelect:
		return Select(), nil
	case models.ChannelRemoteInput:
		var cmd models.InputCommand
		if err := decode(msg.Message, &cmd); err != nil {
			return nil, err
		}
		if cmd.Number > MaxRepeat+1 {
			return nil, fmt.Errorf("number %d exceeds %d", cmd.Number, MaxRepeat+1)
		}
		return Input(d.inputPrefix, cmd.Number), nil
	case models.ChannelPowerController:
		var cmd models.PowerCommand
		if err := decode(msg.Message, &cmd); err != nil {
			return nil, err
		}
		return d.power(cmd.PowerState), nil
	default:
		return nil, nil
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Navigation presses the key for direction count times. Unknown directions
// and counts outside 1..MaxRepeat yield nil.
func Navigation(direction string, count int) *Macro {
	key, ok := navigationKeys[direction]
	if !ok || count <= 0 || count > MaxRepeat {
		return nil
	}
	steps := make([]Step, count)
	for i := range steps {
		steps[i] = Step{Key: key, Delay: KeyInterval}
	}
	return &Macro{Name: models.ChannelKeypadNavigation, Steps: steps}
}

// Select presses confirm once.
func Select() *Macro {
	return &Macro{Name: models.ChannelKeypadSelect, Steps: []Step{{Key: remote.KeyDpadCenter}}}
}

// Input runs prefix, moves down number-1 rows and confirms. Numbers above
// MaxRepeat+1 yield nil.
func Input(prefix []Step, number int) *Macro {
	if number > MaxRepeat+1 {
		return nil
	}
	steps := append([]Step(nil), prefix...)
	for i := 1; i < number; i++ {
		steps = append(steps, Step{Key: remote.KeyDpadDown, Delay: KeyInterval})
	}
	steps = append(steps, Step{Key: remote.KeyDpadCenter})
	return &Macro{Name: models.ChannelRemoteInput, Steps: steps}
}

// NeedsToggle reports whether POWER must be pressed to reach requested.
func NeedsToggle(requested string, powered bool) bool {
	return (requested == models.PowerOn && !powered) || (requested == models.PowerOff && powered)
}

func (d *Dispatcher) power(requested string) *Macro {
	return &Macro{
		Name:  models.ChannelPowerController,
		Steps: []Step{{Key: remote.KeyPower}},
		When: func() bool {
			powered := d.state.Powered()
			if !NeedsToggle(requested, powered) {
				d.log.Debugw("power_toggle_skipped", "requested", requested, "powered", powered)
				return false
			}
			if d.journal != nil {
				d.journal.Record(context.Background(), models.EventPowerToggle, "POWER", map[string]any{
					"requested": requested, "powered": powered,
				})
			}
			return true
		},
	}
}
