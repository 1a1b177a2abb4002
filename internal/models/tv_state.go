package models

import "time"

// TVState is the current snapshot of the paired television.
type TVState struct {
	Powered    bool      `json:"powered"`
	CurrentApp string    `json:"current_app,omitempty"`
	Paired     bool      `json:"paired"`
	Subscribed bool      `json:"subscribed"` // bus subscription active
	UpdatedAt  time.Time `json:"updated_at"`
}
