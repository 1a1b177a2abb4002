package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tv_bridge/internal/metrics"
	"tv_bridge/internal/models"
	"tv_bridge/internal/remote"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingRunner records macros instead of running them.
type capturingRunner struct {
	macros []Macro
	err    error
}

func (c *capturingRunner) Submit(m Macro) (<-chan error, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.macros = append(c.macros, m)
	done := make(chan error, 1)
	done <- nil
	return done, nil
}

func msg(channel, payload string) models.CommandMessage {
	return models.CommandMessage{Channel: channel, Message: json.RawMessage(payload)}
}

func stepKeys(m Macro) []remote.KeyCode {
	out := make([]remote.KeyCode, len(m.Steps))
	for i, s := range m.Steps {
		out[i] = s.Key
	}
	return out
}

func TestDispatcher_Navigation(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    []remote.KeyCode
		wantErr bool
	}{
		{"up three", `{"direction":"up","count":3}`, []remote.KeyCode{remote.KeyDpadUp, remote.KeyDpadUp, remote.KeyDpadUp}, false},
		{"back once", `{"direction":"back","count":1}`, []remote.KeyCode{remote.KeyBack}, false},
		{"zero count", `{"direction":"left","count":0}`, nil, false},
		{"unknown direction", `{"direction":"sideways","count":2}`, nil, false},
		{"count at limit", `{"direction":"down","count":100}`, repeatKey(remote.KeyDpadDown, MaxRepeat), false},
		{"count over limit", `{"direction":"down","count":101}`, nil, true},
		{"huge count", `{"direction":"up","count":1000000000000000}`, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &capturingRunner{}
			m := metrics.New(metrics.NewRegistry())
			d := NewDispatcher(NewSessionState(nil), runner, DispatcherOptions{Metrics: m})

			done, err := d.Handle(context.Background(), msg(models.ChannelKeypadNavigation, tc.payload))
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, done)
				assert.Empty(t, runner.macros)
				assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues(models.ChannelKeypadNavigation, metrics.OutcomeError)))
				return
			}
			require.NoError(t, err)
			if tc.want == nil {
				assert.Empty(t, runner.macros)
				return
			}
			require.Len(t, runner.macros, 1)
			assert.Equal(t, tc.want, stepKeys(runner.macros[0]))
			for _, st := range runner.macros[0].Steps {
				assert.Equal(t, KeyInterval, st.Delay)
			}
		})
	}
}

func repeatKey(key remote.KeyCode, n int) []remote.KeyCode {
	out := make([]remote.KeyCode, n)
	for i := range out {
		out[i] = key
	}
	return out
}

func TestDispatcher_SelectSendsOneConfirm(t *testing.T) {
	runner := &capturingRunner{}
	d := NewDispatcher(NewSessionState(nil), runner, DispatcherOptions{})

	_, err := d.Handle(context.Background(), msg(models.ChannelKeypadSelect, `{}`))
	require.NoError(t, err)
	require.Len(t, runner.macros, 1)
	assert.Equal(t, []Step{{Key: remote.KeyDpadCenter}}, runner.macros[0].Steps)
}

func TestDispatcher_IgnoresUnknownChannel(t *testing.T) {
	runner := &capturingRunner{}
	d := NewDispatcher(NewSessionState(nil), runner, DispatcherOptions{})

	done, err := d.Handle(context.Background(), msg("volume", `{"level":3}`))
	require.NoError(t, err)
	assert.Nil(t, done)
	assert.Empty(t, runner.macros)
}

func TestDispatcher_MalformedPayload(t *testing.T) {
	runner := &capturingRunner{}
	d := NewDispatcher(NewSessionState(nil), runner, DispatcherOptions{})

	_, err := d.Handle(context.Background(), msg(models.ChannelKeypadNavigation, `{"count":"many"}`))
	require.Error(t, err)
	assert.Empty(t, runner.macros)
}

func TestDispatcher_RejectedWhenBusy(t *testing.T) {
	runner := &capturingRunner{err: ErrBusy}
	d := NewDispatcher(NewSessionState(nil), runner, DispatcherOptions{})

	_, err := d.Handle(context.Background(), msg(models.ChannelKeypadSelect, `{}`))
	assert.ErrorIs(t, err, ErrBusy)
}

func TestDispatcher_RemoteInputTiming(t *testing.T) {
	cases := []struct {
		name    string
		number  int
		keys    []remote.KeyCode
		offsets []time.Duration
		wantErr bool
	}{
		{
			name:   "first entry",
			number: 1,
			keys: []remote.KeyCode{
				remote.KeyHome, remote.KeyHome, remote.KeyDpadUp, remote.KeyDpadUp,
				remote.KeyDpadRight, remote.KeyDpadRight, remote.KeyDpadCenter, remote.KeyDpadCenter,
			},
			offsets: ms(0, 1000, 1300, 1400, 1500, 1600, 1700, 2000),
		},
		{
			name:   "fifth entry",
			number: 5,
			keys: []remote.KeyCode{
				remote.KeyHome, remote.KeyHome, remote.KeyDpadUp, remote.KeyDpadUp,
				remote.KeyDpadRight, remote.KeyDpadRight, remote.KeyDpadCenter,
				remote.KeyDpadDown, remote.KeyDpadDown, remote.KeyDpadDown, remote.KeyDpadDown,
				remote.KeyDpadCenter,
			},
			offsets: ms(0, 1000, 1300, 1400, 1500, 1600, 1700, 2000, 2100, 2200, 2300, 2400),
		},
		{
			name:    "number over limit",
			number:  MaxRepeat + 2,
			wantErr: true,
		},
		{
			name:    "huge number",
			number:  1 << 50,
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			sender := newRecordingSender(clock)
			s := startScheduler(t, sender, clock, 0)
			d := NewDispatcher(NewSessionState(clock), s, DispatcherOptions{})

			payload, _ := json.Marshal(models.InputCommand{Number: tc.number})
			done, err := d.Handle(context.Background(), models.CommandMessage{Channel: models.ChannelRemoteInput, Message: payload})
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, done)
				assert.Empty(t, sender.keys())
				return
			}
			require.NoError(t, err)

			await(t, clock, done)
			assert.Equal(t, tc.keys, sender.keys())
			assert.Equal(t, tc.offsets, sender.offsets())
		})
	}
}

func TestDispatcher_PowerToggleRule(t *testing.T) {
	cases := []struct {
		requested string
		powered   bool
		toggle    bool
	}{
		{models.PowerOn, false, true},
		{models.PowerOn, true, false},
		{models.PowerOff, true, true},
		{models.PowerOff, false, false},
		{"STANDBY", true, false},
		{"", false, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.toggle, NeedsToggle(tc.requested, tc.powered), "%q powered=%v", tc.requested, tc.powered)
	}
}

func TestDispatcher_PowerOnTwiceTogglesOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	state := NewSessionState(clock)
	sender := newRecordingSender(clock)
	// the television reports the new state as soon as it toggles
	sender.onKey = func(k remote.KeyCode) {
		if k == remote.KeyPower {
			state.SetPowered(!state.Powered())
		}
	}
	s := startScheduler(t, sender, clock, 0)
	d := NewDispatcher(state, s, DispatcherOptions{})

	first, err := d.Handle(context.Background(), msg(models.ChannelPowerController, `{"powerState":"ON"}`))
	require.NoError(t, err)
	second, err := d.Handle(context.Background(), msg(models.ChannelPowerController, `{"powerState":"ON"}`))
	require.NoError(t, err)

	await(t, clock, first, second)
	assert.Equal(t, []remote.KeyCode{remote.KeyPower}, sender.keys())
	assert.True(t, state.Powered())
}

func TestDispatcher_PowerDecisionUsesStateAtExecution(t *testing.T) {
	runner := &capturingRunner{}
	state := NewSessionState(nil)
	d := NewDispatcher(state, runner, DispatcherOptions{})

	_, err := d.Handle(context.Background(), msg(models.ChannelPowerController, `{"powerState":"OFF"}`))
	require.NoError(t, err)
	require.Len(t, runner.macros, 1)

	when := runner.macros[0].When
	require.NotNil(t, when)
	assert.False(t, when())
	state.SetPowered(true)
	assert.True(t, when())
}

func TestDispatcher_CustomInputPrefix(t *testing.T) {
	prefix, err := ParseSteps([]string{"HOME:1s", "DPAD_LEFT:100ms"})
	require.NoError(t, err)
	runner := &capturingRunner{}
	d := NewDispatcher(NewSessionState(nil), runner, DispatcherOptions{InputPrefix: prefix})

	_, err = d.Handle(context.Background(), msg(models.ChannelRemoteInput, `{"number":2}`))
	require.NoError(t, err)
	require.Len(t, runner.macros, 1)
	assert.Equal(t, []remote.KeyCode{remote.KeyHome, remote.KeyDpadLeft, remote.KeyDpadDown, remote.KeyDpadCenter}, stepKeys(runner.macros[0]))
}

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps([]string{"home:1s", " DPAD_UP:100ms ", "DPAD_CENTER"})
	require.NoError(t, err)
	assert.Equal(t, []Step{
		{Key: remote.KeyHome, Delay: time.Second},
		{Key: remote.KeyDpadUp, Delay: 100 * time.Millisecond},
		{Key: remote.KeyDpadCenter},
	}, steps)

	_, err = ParseSteps([]string{"VOLUME_UP:1s"})
	assert.Error(t, err)
	_, err = ParseSteps([]string{"HOME:soon"})
	assert.Error(t, err)
	_, err = ParseSteps([]string{"HOME:-1s"})
	assert.Error(t, err)
}
