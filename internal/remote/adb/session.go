// Package adb drives a television through the host's ADB server. Pairing,
// device authentication and key injection are performed by adb itself; this
// package frames host requests and turns device polling into session events.
package adb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"tv_bridge/internal/certstore"
	"tv_bridge/internal/logger"
	"tv_bridge/internal/remote"

	"github.com/jonboulle/clockwork"
)

// Defaults for Options fields left empty.
const (
	DefaultServer       = "127.0.0.1:5037"
	DefaultPort         = 5555
	DefaultPairingPort  = 6467
	DefaultPollInterval = 5 * time.Second

	eventBuffer = 32
)

// Options configures a Session.
type Options struct {
	Server       string // adb server address
	Host         string // television address
	Port         int    // adb port on the television
	PairingPort  int    // wireless debugging pairing port
	PollInterval time.Duration
	Credentials  certstore.Blob // blob saved by a previous pairing, may be empty
	Clock        clockwork.Clock
	Dial         func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (o *Options) withDefaults() {
	if o.Server == "" {
		o.Server = DefaultServer
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.PairingPort == 0 {
		o.PairingPort = DefaultPairingPort
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Dial == nil {
		var d net.Dialer
		o.Dial = d.DialContext
	}
}

// Session implements remote.Session on top of adb.
type Session struct {
	opts Options
	log  *logger.Logger

	events chan remote.Event

	mu       sync.Mutex
	started  bool
	closed   bool
	ready    bool
	pairedAt time.Time
	powered  *bool
	app      string
	runCtx   context.Context
}

var _ remote.Session = (*Session)(nil)

func New(opts Options, log *logger.Logger) *Session {
	opts.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		opts:   opts,
		log:    log,
		events: make(chan remote.Event, eventBuffer),
	}
}

// Serial is the adb device serial of the television.
func (s *Session) Serial() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

func (s *Session) Events() <-chan remote.Event { return s.events }

// Start connects in the background. Without stored credentials it asks for a
// pairing code straight away.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("adb session already started")
	}
	s.started = true
	s.runCtx = ctx
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer s.close()

	if s.opts.Credentials.Empty() {
		s.emit(remote.Event{Kind: remote.EventSecretNeeded})
	} else if err := s.connect(ctx); err != nil {
		s.log.Errorw("adb_connect_failed", "serial", s.Serial(), "err", err)
	}

	<-ctx.Done()
}

// connect asks adb to attach to the television and marks the session ready.
func (s *Session) connect(ctx context.Context) error {
	reply, err := s.hostQuery(ctx, "host:connect:"+s.Serial())
	if err != nil {
		return err
	}
	switch {
	case connectSucceeded(reply):
		s.markReady(ctx)
		return nil
	case connectNeedsPairing(reply):
		s.log.Infow("adb_pairing_required", "serial", s.Serial(), "reply", reply)
		s.emit(remote.Event{Kind: remote.EventSecretNeeded})
		return nil
	default:
		return fmt.Errorf("adb connect %s: %s", s.Serial(), reply)
	}
}

// SendCode pairs with the code shown on the television, then connects.
// input is "code", "port code" or "host:port code"; without a port the
// configured PairingPort is used.
func (s *Session) SendCode(ctx context.Context, input string) error {
	code, addr, err := parsePairingInput(input, s.opts.Host, s.opts.PairingPort)
	if err != nil {
		return err
	}
	reply, err := s.hostQuery(ctx, "host:pair:"+code+":"+addr)
	if err != nil {
		return err
	}
	if !pairSucceeded(reply) {
		return fmt.Errorf("adb pair %s: %s", addr, reply)
	}
	s.mu.Lock()
	s.pairedAt = s.opts.Clock.Now().UTC()
	s.mu.Unlock()
	return s.connect(ctx)
}

// SendKey injects one key event on the television.
func (s *Session) SendKey(ctx context.Context, code remote.KeyCode, kind remote.PressKind) error {
	if !s.isReady() {
		return remote.ErrNotReady
	}
	cmd := "input keyevent "
	if kind == remote.PressLong {
		cmd += "--longpress "
	}
	cmd += strconv.Itoa(int(code))
	if _, err := s.shell(ctx, cmd); err != nil {
		return fmt.Errorf("send %s: %w", code, err)
	}
	return nil
}

// Certificate returns what a later run needs to reconnect without pairing.
// The key material itself stays with the adb server.
func (s *Session) Certificate(ctx context.Context) (certstore.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, remote.ErrNotReady
	}
	pairedAt := s.pairedAt
	if pairedAt.IsZero() {
		if v, ok := s.opts.Credentials["paired_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				pairedAt = t
			}
		}
	}
	blob := certstore.Blob{
		"serial": s.Serial(),
		"host":   s.opts.Host,
		"server": s.opts.Server,
	}
	if !pairedAt.IsZero() {
		blob["paired_at"] = pairedAt.Format(time.RFC3339)
	}
	return blob, nil
}

func (s *Session) isReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Session) markReady(ctx context.Context) {
	s.mu.Lock()
	already := s.ready
	s.ready = true
	pollCtx := s.runCtx
	s.mu.Unlock()

	s.emit(remote.Event{Kind: remote.EventReady})
	if already {
		return
	}
	if pollCtx == nil {
		pollCtx = ctx
	}
	go s.poll(pollCtx)
}

// poll reports power and foreground-app changes.
func (s *Session) poll(ctx context.Context) {
	ticker := s.opts.Clock.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.pollOnce(ctx)
		}
	}
}

func (s *Session) pollOnce(ctx context.Context) {
	if out, err := s.shell(ctx, "dumpsys power"); err != nil {
		s.log.Debugw("adb_poll_power_failed", "err", err)
	} else if powered, ok := parsePowered(out); ok {
		s.mu.Lock()
		changed := s.powered == nil || *s.powered != powered
		s.powered = &powered
		s.mu.Unlock()
		if changed {
			s.emit(remote.Event{Kind: remote.EventPowerChanged, Powered: powered})
		}
	}

	if out, err := s.shell(ctx, "dumpsys window"); err != nil {
		s.log.Debugw("adb_poll_window_failed", "err", err)
	} else if app, ok := parseForegroundApp(out); ok {
		s.mu.Lock()
		changed := s.app != app
		s.app = app
		s.mu.Unlock()
		if changed {
			s.emit(remote.Event{Kind: remote.EventAppChanged, App: app})
		}
	}
}

func (s *Session) emit(ev remote.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warnw("adb_event_dropped", "event", ev.Kind.String())
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// hostQuery runs a host service that answers with one string.
func (s *Session) hostQuery(ctx context.Context, req string) (string, error) {
	h, err := openHost(ctx, s.opts.Dial, s.opts.Server)
	if err != nil {
		return "", err
	}
	defer h.Close()
	if err := h.request(req); err != nil {
		return "", err
	}
	return h.readString()
}

// shell runs cmd on the television and returns its output.
func (s *Session) shell(ctx context.Context, cmd string) (string, error) {
	h, err := openHost(ctx, s.opts.Dial, s.opts.Server)
	if err != nil {
		return "", err
	}
	defer h.Close()
	if err := h.request("host:transport:" + s.Serial()); err != nil {
		return "", err
	}
	if err := h.request("shell:" + cmd); err != nil {
		return "", err
	}
	return h.readAll()
}
