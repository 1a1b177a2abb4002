// Package remote defines the capability a television driver offers to the
// bridge. Drivers own pairing, credentials and the key-event transport; the
// bridge only sends keys and reacts to session events.
package remote

import (
	"context"
	"errors"
	"strconv"

	"tv_bridge/internal/certstore"
)

// KeyCode is an Android key code.
type KeyCode int

// Key codes used by the bridge.
const (
	KeyHome       KeyCode = 3
	KeyBack       KeyCode = 4
	KeyDpadUp     KeyCode = 19
	KeyDpadDown   KeyCode = 20
	KeyDpadLeft   KeyCode = 21
	KeyDpadRight  KeyCode = 22
	KeyDpadCenter KeyCode = 23
	KeyPower      KeyCode = 26
)

var keyNames = map[KeyCode]string{
	KeyHome:       "HOME",
	KeyBack:       "BACK",
	KeyDpadUp:     "DPAD_UP",
	KeyDpadDown:   "DPAD_DOWN",
	KeyDpadLeft:   "DPAD_LEFT",
	KeyDpadRight:  "DPAD_RIGHT",
	KeyDpadCenter: "DPAD_CENTER",
	KeyPower:      "POWER",
}

func (k KeyCode) String() string {
	if n, ok := keyNames[k]; ok {
		return n
	}
	return "KEYCODE_" + strconv.Itoa(int(k))
}

// ParseKey resolves a key name (as printed by String) back to a code.
func ParseKey(name string) (KeyCode, bool) {
	for k, n := range keyNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// PressKind is the duration modifier of a key press.
type PressKind int

const (
	PressShort PressKind = iota
	PressLong
)

func (p PressKind) String() string {
	if p == PressLong {
		return "long"
	}
	return "short"
}

// EventKind identifies a session notification.
type EventKind int

const (
	EventSecretNeeded EventKind = iota + 1
	EventReady
	EventPowerChanged
	EventAppChanged
)

func (k EventKind) String() string {
	switch k {
	case EventSecretNeeded:
		return "secret_needed"
	case EventReady:
		return "ready"
	case EventPowerChanged:
		return "power_changed"
	case EventAppChanged:
		return "app_changed"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by a Session.
type Event struct {
	Kind    EventKind
	Powered bool   // EventPowerChanged
	App     string // EventAppChanged
}

// ErrNotReady is returned by drivers asked to send keys before the session is usable.
var ErrNotReady = errors.New("remote session not ready")

// Session is a long-lived connection to one television.
type Session interface {
	// Start begins connecting. Progress is reported through Events.
	Start(ctx context.Context) error
	// SendKey transmits one key press. Callers do not retry on error.
	SendKey(ctx context.Context, code KeyCode, kind PressKind) error
	// SendCode completes pairing with the operator's answer to the code
	// prompt. Drivers may accept an address alongside the code.
	SendCode(ctx context.Context, code string) error
	// Certificate returns the credentials to persist after a successful pairing.
	Certificate(ctx context.Context) (certstore.Blob, error)
	// Events is closed when the session stops.
	Events() <-chan Event
}
