package telegram

import (
	"encoding/binary"
	"fmt"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/dvparser"
)

// resolveCompactFrame decodes a CI 0x79 compact frame: a 2-byte
// format signature followed directly by data bytes with no DIF/VIF
// format run of their own. The full format bytes must have been
// remembered earlier from a CI 0x78/0x72/0x7A frame carrying the same
// signature (§4.E, §5).
func resolveCompactFrame(cache *dvparser.FormatSignatureCache, payload []byte) (formatBytes, data []byte, sig uint16, err error) {
	if len(payload) < 2 {
		return nil, nil, 0, fmt.Errorf("telegram: compact frame too short for signature")
	}
	sig = binary.LittleEndian.Uint16(payload[0:2])
	formatBytes, ok := cache.Lookup(sig)
	if !ok {
		return nil, nil, sig, fmt.Errorf("telegram: unknown compact frame format signature 0x%04X", sig)
	}
	return formatBytes, payload[2:], sig, nil
}

// assembleCompactPayload re-synthesises the equivalent of a full
// DIF/VIF + data run so the ordinary dvparser walk can run over it
// unmodified: remembered format bytes concatenated with the compact
// frame's own data bytes.
func assembleCompactPayload(formatBytes, data []byte) []byte {
	out := make([]byte, 0, len(formatBytes)+len(data))
	out = append(out, formatBytes...)
	out = append(out, data...)
	return out
}
