package models

import "encoding/json"

// Bus channels the dispatcher listens on.
const (
	ChannelKeypadNavigation = "keypad_navigation"
	ChannelKeypadSelect     = "keypad_select"
	ChannelRemoteInput      = "remote_input"
	ChannelPowerController  = "power_controller"
)

// CommandChannels lists every channel the bridge subscribes to.
var CommandChannels = []string{
	ChannelKeypadNavigation,
	ChannelKeypadSelect,
	ChannelRemoteInput,
	ChannelPowerController,
}

// Power states carried by power_controller messages.
const (
	PowerOn  = "ON"
	PowerOff = "OFF"
)

// CommandMessage is one inbound bus message. Message shape depends on Channel.
type CommandMessage struct {
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message"`
}

// NavigationCommand is the keypad_navigation payload.
type NavigationCommand struct {
	Direction string `json:"direction"`
	Count     int    `json:"count"`
}

// InputCommand is the remote_input payload.
type InputCommand struct {
	Number int `json:"number"`
}

// PowerCommand is the power_controller payload.
type PowerCommand struct {
	PowerState string `json:"powerState,omitempty"`
}
