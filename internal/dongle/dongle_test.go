package dongle

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"
)

// fakePort is an in-memory port used to drive BusDevice tests without
// a real tty: writes are captured, and tests feed canned bytes back
// in as if they'd been read off the wire.
type fakePort struct {
	written bytes.Buffer
}

func (f *fakePort) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakePort) Read(p []byte) (int, error)  { return 0, nil }
func (f *fakePort) Close() error                { return nil }

func TestLinkModeSetRoundTrip(t *testing.T) {
	s, err := ParseLinkModeSet("c1,T1")
	require.NoError(t, err)
	assert.True(t, s.Has(C1))
	assert.True(t, s.Has(T1))
	assert.False(t, s.Has(S1))
	assert.Equal(t, "C1,T1", s.String())
}

func TestParseLinkModeSetRejectsUnknown(t *testing.T) {
	_, err := ParseLinkModeSet("q9")
	assert.Error(t, err)
}

func TestRSSIConversion(t *testing.T) {
	assert.InDelta(t, -74.0, rssiToDBm(0), 1e-9)
	assert.InDelta(t, -138.0, rssiToDBm(128), 1e-9)
}

func TestRSSIConversionSignedRanges(t *testing.T) {
	// raw < 128: raw/2 - 74
	assert.InDelta(t, -74.0+10, rssiToDBm(20), 1e-9)
	// raw >= 128: (raw-256)/2 - 74
	assert.InDelta(t, -74.0-10, rssiToDBm(236), 1e-9) // (236-256)/2-74 = -10-74 = -84
}

func TestIM871APingRoundTrip(t *testing.T) {
	fp := &fakePort{}
	d := NewIM871A(fp)

	done := make(chan error, 1)
	go func() { done <- d.Ping(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	// The dongle replies with an empty DEVMGMT PING_RSP frame.
	resp := im871aHeader(im871aEndpointDevMgmt, 0, im871aMsgPingRsp, 0)
	d.HandleBytes(resp)

	require.NoError(t, <-done)
}

func TestParseIM871AFrameWithCRC(t *testing.T) {
	payload := []byte{0xAA, 0xBB}
	header := im871aHeader(im871aEndpointRadioLink, im871aCtrlBitCRC16, im871aMsgRadioLinkData, len(payload))
	body := append(header, payload...)
	crc := bytesx.CRC16CCITT(body)
	frame := append(body, byte(crc>>8), byte(crc))

	endpoint, msgID, got, rssi, consumed, err := ParseIM871AFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), consumed)
	assert.Equal(t, byte(im871aEndpointRadioLink), endpoint)
	assert.Equal(t, byte(im871aMsgRadioLinkData), msgID)
	assert.Equal(t, payload, got)
	assert.Nil(t, rssi)
}

func TestAMB8465CommandRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02}
	cs := amb8465Checksum(amb8465CmdPingRsp, byte(len(payload)), payload)
	frame := append([]byte{amb8465SOF, amb8465CmdPingRsp, byte(len(payload))}, payload...)
	frame = append(frame, cs)

	isCommand, cmd, got, rssi, consumed, err := ParseAMB8465Frame(frame)
	require.NoError(t, err)
	assert.True(t, isCommand)
	assert.Equal(t, byte(amb8465CmdPingRsp), cmd)
	assert.Equal(t, payload, got)
	assert.Nil(t, rssi)
	assert.Equal(t, len(frame), consumed)
}

func TestAMB8465TelegramFrameWithRSSI(t *testing.T) {
	telegram := []byte{0x44, 0x93, 0x7C, 0x12, 0x34, 0x56, 0x78}
	frame := append([]byte{byte(len(telegram))}, telegram...)
	frame = append(frame, 0x20) // RSSI byte

	isCommand, _, got, rssi, consumed, err := ParseAMB8465Frame(frame)
	require.NoError(t, err)
	assert.False(t, isCommand)
	assert.Equal(t, telegram, got)
	require.NotNil(t, rssi)
	assert.Equal(t, byte(0x20), *rssi)
	assert.Equal(t, len(frame), consumed)
}

func TestIM871ASetLinkModesRejectsUnsupported(t *testing.T) {
	fp := &fakePort{}
	d := NewIM871A(fp)
	var unsupported LinkModeSet
	unsupported = unsupported.Set(N1A)
	err := d.SetLinkModes(context.Background(), unsupported)
	assert.Error(t, err)
}
