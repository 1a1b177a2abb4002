package models

import "time"

// Journal event types.
const (
	EventCommand     = "COMMAND"
	EventKey         = "KEY"
	EventPowerToggle = "POWER_TOGGLE"
	EventSession     = "SESSION"
	EventError       = "ERROR"
)

// JournalEvent is a single entry of the command journal.
type JournalEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // COMMAND | KEY | POWER_TOGGLE | SESSION | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
