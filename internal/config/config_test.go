package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileDeviceAndMeter(t *testing.T) {
	text := `
# a comment
DEVICE im871a=/dev/ttyUSB0:im871a:12345678:9600:c1,t1
METER kitchen=kamheat:12345678:1234567890ABCDEF1234567890ABCDEF:total,status
LOGLEVEL debug
LOGTELEGRAMS true
`
	cfg, err := ParseFile(strings.NewReader(text), "test.conf")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogTelegrams)

	require.Len(t, cfg.Devices, 1)
	d := cfg.Devices[0]
	assert.Equal(t, "im871a", d.Alias)
	assert.Equal(t, "/dev/ttyUSB0", d.File)
	assert.Equal(t, "12345678", d.ID)
	assert.Equal(t, 9600, d.BPS)
	assert.Equal(t, []string{"c1", "t1"}, d.LinkModes)

	require.Len(t, cfg.Meters, 1)
	m := cfg.Meters[0]
	assert.Equal(t, "kitchen", m.Name)
	assert.Equal(t, "kamheat", m.Driver)
	assert.Equal(t, []string{"total", "status"}, m.Fields)
}

func TestParseFileBadDirective(t *testing.T) {
	_, err := ParseFile(strings.NewReader("NOTACOMMAND foo\n"), "test.conf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test.conf:1")
}

func TestMergeFlagsOverrideFile(t *testing.T) {
	cfg := &Configuration{LogLevel: "info"}
	f := &Flags{LogLevel: "debug", Device: []string{"d=/dev/ttyUSB1:amb8465::115200:"}}
	merged, err := Merge(cfg, f)
	require.NoError(t, err)
	assert.Equal(t, "debug", merged.LogLevel)
	require.Len(t, merged.Devices, 1)
	assert.Equal(t, "/dev/ttyUSB1", merged.Devices[0].File)
}
