package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceArguments(t *testing.T) {
	fs := flag.NewFlagSet("telemetry", flag.ContinueOnError)
	fs.String("port", "/dev/ttyUSB0", "")
	fs.String("framing", "cobs", "")
	fs.String("service", "", "")
	fs.Bool("dev", false, "")

	require.NoError(t, fs.Parse([]string{"-port=/dev/ttyACM0", "-service", "install", "-dev"}))
	assert.Equal(t, []string{"-dev=true", "-port=/dev/ttyACM0"}, serviceArguments(fs))
}

func TestValidServiceAction(t *testing.T) {
	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		assert.True(t, validServiceAction(action), action)
	}
	assert.False(t, validServiceAction("reload"))
	assert.False(t, validServiceAction(""))
}

func TestRunService_RejectsUnknownAction(t *testing.T) {
	err := runService("reload")
	assert.ErrorContains(t, err, "unknown action")
}
