package telegram

import (
	"encoding/binary"
	"fmt"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/address"
)

// CI field values that select the Transport Layer header shape, per
// EN 13757-7 and the de-facto values wmbusmeters-style tools dispatch
// on.
const (
	ciTPLNone  = 0x78 // no TPL header, raw application data follows directly
	ciTPLShort = 0x7A // short TPL header: ACC, STATUS, Config
	ciTPLLong  = 0x72 // long TPL header: mfct/id/version/type again, then ACC, STATUS, Config
	ciCompact  = 0x79 // compact frame: 2-byte format signature + payload
)

// parseTPL decodes the Transport Layer header at pos, dispatching on
// the CI byte. Returns the header and the offset of the first
// application-layer byte.
func parseTPL(frame []byte, pos int) (TPLHeader, int, error) {
	if pos >= len(frame) {
		return TPLHeader{}, pos, fmt.Errorf("telegram: missing CI field")
	}
	ci := frame[pos]
	start := pos
	pos++

	switch ci {
	case ciTPLNone, ciCompact:
		return TPLHeader{Present: false}, pos, nil

	case ciTPLShort:
		if pos+4 > len(frame) {
			return TPLHeader{}, start, fmt.Errorf("telegram: truncated short TPL header")
		}
		accessNr := frame[pos]
		status := frame[pos+1]
		cfg := binary.LittleEndian.Uint16(frame[pos+2 : pos+4])
		pos += 4
		hdr, pos, err := finishTPL(frame, pos, accessNr, status, cfg, nil)
		return hdr, pos, err

	case ciTPLLong:
		if pos+10 > len(frame) {
			return TPLHeader{}, start, fmt.Errorf("telegram: truncated long TPL header")
		}
		mfct := binary.LittleEndian.Uint16(frame[pos : pos+2])
		idBytes := frame[pos+2 : pos+6]
		version := frame[pos+6]
		typ := frame[pos+7]
		accessNr := frame[pos+8]
		status := frame[pos+9]
		pos += 10
		if pos+2 > len(frame) {
			return TPLHeader{}, start, fmt.Errorf("telegram: truncated long TPL config word")
		}
		cfg := binary.LittleEndian.Uint16(frame[pos : pos+2])
		pos += 2

		idStr, err := bcdIDString(idBytes)
		if err != nil {
			return TPLHeader{}, start, err
		}
		addr := address.Address{ID: idStr, Mfct: mfct, Version: version, Type: typ}
		hdr, pos, err := finishTPL(frame, pos, accessNr, status, cfg, &addr)
		return hdr, pos, err

	default:
		return TPLHeader{}, start, fmt.Errorf("telegram: unrecognised CI field 0x%02X", ci)
	}
}

func finishTPL(frame []byte, pos int, accessNr, status byte, cfg uint16, addr *address.Address) (TPLHeader, int, error) {
	mode := SecurityMode((cfg >> 8) & 0x1F)
	numBlocks := int((cfg >> 13) & 0x1F)

	hdr := TPLHeader{
		Present:       true,
		Long:          addr != nil,
		Address:       addr,
		AccessNr:      accessNr,
		Status:        status,
		ConfigWord:    cfg,
		SecurityMode:  mode,
		NumEncrBlocks: numBlocks,
	}

	// Mode 13 (0xD in the high config byte, non-standard but used by
	// several manufacturers) carries a second configuration-extension
	// word immediately after the base config word.
	if mode == SecurityVendor && pos+2 <= len(frame) {
		hdr.CfgExt = binary.LittleEndian.Uint16(frame[pos : pos+2])
		hdr.HasCfgExt = true
		pos += 2
	}
	return hdr, pos, nil
}
