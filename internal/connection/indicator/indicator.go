// Package indicator turns a connection status into presentation data. It is
// kept apart from classification so the classifier stays free of visuals.
package indicator

import "petchat/internal/connection"

// Color is a semantic color token, not a concrete palette value.
type Color string

const (
	ColorSuccess Color = "success"
	ColorWarning Color = "warning"
	ColorError   Color = "error"
)

// Indicator describes how a status dot should be drawn.
type Indicator struct {
	Status  connection.Status `json:"status"`
	Label   string            `json:"label"`
	Color   Color             `json:"color"`
	Pulsing bool              `json:"pulsing"`
}

// For returns the indicator for s. Only the connecting state pulses.
func For(s connection.Status) Indicator {
	ind := Indicator{Status: s, Label: s.Label()}
	switch s {
	case connection.StatusConnected:
		ind.Color = ColorSuccess
	case connection.StatusConnecting:
		ind.Color = ColorWarning
		ind.Pulsing = true
	default:
		ind.Status = connection.StatusDisconnected
		ind.Color = ColorError
	}
	return ind
}

// FromState is For(state.Status).
func FromState(state connection.State) Indicator {
	return For(state.Status)
}
