// Package connection classifies a chat transport's liveness into one of three
// presentation states and tracks that state for the transport.
package connection

// Status is the tri-state liveness of a transport.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusConnected, StatusConnecting, StatusDisconnected:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Label is the user-facing text for s.
func (s Status) Label() string {
	switch s {
	case StatusConnected:
		return "Connected"
	case StatusConnecting:
		return "Connecting..."
	default:
		return "Disconnected"
	}
}

// State pairs a Status with its display label.
type State struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
}

// Classify maps two independently owned transport flags to a State.
// Connected wins over connecting, so (true, true) is connected.
func Classify(isConnected, isConnecting bool) State {
	switch {
	case isConnected:
		return stateOf(StatusConnected)
	case isConnecting:
		return stateOf(StatusConnecting)
	default:
		return stateOf(StatusDisconnected)
	}
}

func stateOf(s Status) State {
	return State{Status: s, Label: s.Label()}
}
