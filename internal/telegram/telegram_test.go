package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"
)

// noKeys is a KeyLookup that never has a key, for telegrams that
// carry no encryption.
func noKeys(string) ([]byte, bool) { return nil, false }

func TestParseUnencryptedShortTPL(t *testing.T) {
	// DLL: C=0x44 (SND_NR), an arbitrary 2-byte mfct code, id 12345678
	// (BCD, little-endian reversed), version 0x01, type 0x07 (water).
	// TPL short: ACC=0x00, STATUS=0x00, CONFIG=0x0000 (no security).
	// Payload: one DIF/VIF record 0x0B 0x13 (6-digit BCD volume),
	// data 56 34 12.
	frame := buildUnencryptedFrame()

	p := NewParser(noKeys)
	tg, err := p.Parse(frame)
	require.NoError(t, err)
	assert.Equal(t, "12345678", tg.DLL.Address.ID)
	assert.Equal(t, byte(0x07), tg.DLL.Address.Type)
	require.NotNil(t, tg.Entries)
	e, ok := tg.Entries.ByKey["0B13"]
	require.True(t, ok)
	assert.Equal(t, []byte{0x56, 0x34, 0x12}, e.Value)
}

// buildUnencryptedFrame constructs a minimal valid unencrypted
// short-TPL wM-Bus frame by hand (byte literals).
func buildUnencryptedFrame() []byte {
	mfct, _ := bytesx.HexDecodeLenient("937C") // arbitrary 2-byte mfct code
	body := []byte{}
	body = append(body, 0x44)           // C-field
	body = append(body, mfct...)        // mfct
	body = append(body, 0x78, 0x56, 0x34, 0x12) // id BCD reversed bytes for 12345678
	body = append(body, 0x01)           // version
	body = append(body, 0x07)           // type
	body = append(body, 0x7A)           // CI short TPL
	body = append(body, 0x00)           // ACC
	body = append(body, 0x00)           // STATUS
	body = append(body, 0x00, 0x00)     // CONFIG mode 0
	body = append(body, 0x0B, 0x13, 0x56, 0x34, 0x12) // one DV record

	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, byte(len(body)))
	frame = append(frame, body...)
	return frame
}

func TestCompactFrameRoundTrip(t *testing.T) {
	p := NewParser(noKeys)

	full := buildUnencryptedFrame()
	_, err := p.Parse(full)
	require.NoError(t, err)

	sig := p.Signatures.Remember([]byte{0x0B, 0x13})
	assert.NotZero(t, sig)

	formatBytes, data, gotSig, err := resolveCompactFrame(p.Signatures, append(
		leUint16(sig),
		0x56, 0x34, 0x12,
	))
	require.NoError(t, err)
	assert.Equal(t, sig, gotSig)
	assembled := assembleCompactPayload(formatBytes, data)
	assert.Equal(t, []byte{0x0B, 0x13, 0x56, 0x34, 0x12}, assembled)
}

func leUint16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
