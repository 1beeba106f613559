package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_ConnectedAndConnecting(t *testing.T) {
	assert.Equal(t, State{Status: StatusConnected, Label: "Connected"}, Classify(true, true))
}

func TestClassify_ConnectedOnly(t *testing.T) {
	assert.Equal(t, State{Status: StatusConnected, Label: "Connected"}, Classify(true, false))
}

func TestClassify_ConnectingOnly(t *testing.T) {
	assert.Equal(t, State{Status: StatusConnecting, Label: "Connecting..."}, Classify(false, true))
}

func TestClassify_Neither(t *testing.T) {
	assert.Equal(t, State{Status: StatusDisconnected, Label: "Disconnected"}, Classify(false, false))
}

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, StatusConnecting.IsValid())
	assert.False(t, Status("reconnecting").IsValid())
	assert.Equal(t, "Disconnected", Status("reconnecting").Label())
}
