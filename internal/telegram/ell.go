package telegram

import (
	"encoding/binary"
	"fmt"
)

// CI field values that introduce an Extended Link Layer, per EN 13757-4.
const (
	ciELLI  = 0x8A // ELL-I: CC, ACC
	ciELLII = 0x8C // ELL-II: CC, ACC, SN, CRC (short)
	ciELLIV = 0x8D
	ciELLV  = 0x8E // ELL-V: encrypted, CC, ACC, SN, Payload CRC
	ciELLVI = 0x8F
)

// parseELL decodes the Extended Link Layer, if the CI byte at pos
// indicates one is present. Returns the header (its Present field
// tells whether an ELL was found) and the new pos (first byte after
// the ELL).
func parseELL(frame []byte, pos int) (ELLHeader, int, error) {
	if pos >= len(frame) {
		return ELLHeader{}, pos, nil
	}
	ci := frame[pos]
	switch ci {
	case ciELLI:
		if pos+2 >= len(frame) {
			return ELLHeader{}, pos, fmt.Errorf("telegram: truncated ELL-I header")
		}
		return ELLHeader{Present: true, CC: frame[pos+1], AccessNr: frame[pos+2]}, pos + 3, nil
	case ciELLII, ciELLIV:
		if pos+9 > len(frame) {
			return ELLHeader{}, pos, fmt.Errorf("telegram: truncated ELL-II header")
		}
		cc := frame[pos+1]
		accessNr := frame[pos+2]
		sn := binary.LittleEndian.Uint32(frame[pos+3 : pos+7])
		crc := binary.LittleEndian.Uint16(frame[pos+7 : pos+9])
		return ELLHeader{
			Present:      true,
			Long:         true,
			CC:           cc,
			AccessNr:     accessNr,
			SessionNr:    sn,
			CRC:          crc,
			SecurityMode: SecurityMode((sn >> 29) & 0x7),
		}, pos + 9, nil
	case ciELLV, ciELLVI:
		if pos+10 > len(frame) {
			return ELLHeader{}, pos, fmt.Errorf("telegram: truncated ELL-V header")
		}
		cc := frame[pos+1]
		accessNr := frame[pos+2]
		sn := binary.LittleEndian.Uint32(frame[pos+3 : pos+7])
		crc := binary.LittleEndian.Uint16(frame[pos+7 : pos+9])
		return ELLHeader{
			Present:      true,
			Long:         true,
			CC:           cc,
			AccessNr:     accessNr,
			SessionNr:    sn,
			CRC:          crc,
			SecurityMode: SecurityMode((sn >> 29) & 0x7),
		}, pos + 9, nil
	default:
		return ELLHeader{}, pos, nil
	}
}
