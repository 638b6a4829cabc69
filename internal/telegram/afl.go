package telegram

import (
	"encoding/binary"
	"fmt"
)

const ciAFL = 0x90

// parseAFL decodes the Authentication & Fragmentation Layer (CI
// 0x90 or 0x91), if present at pos. The fragment control byte's bit 4 (MAC
// present) selects whether a trailing MAC follows the message
// counter.
func parseAFL(frame []byte, pos int) (AFLHeader, int, error) {
	if pos >= len(frame) || (frame[pos] != ciAFL && frame[pos] != ciAFL+1) {
		return AFLHeader{}, pos, nil
	}
	start := pos
	pos++
	if pos+1 > len(frame) {
		return AFLHeader{}, start, fmt.Errorf("telegram: truncated AFL")
	}
	aflLen := int(frame[pos])
	pos++
	if pos+aflLen > len(frame) {
		return AFLHeader{}, start, fmt.Errorf("telegram: AFL declares %d bytes but only %d remain", aflLen, len(frame)-pos)
	}
	body := frame[pos : pos+aflLen]
	end := pos + aflLen

	hdr := AFLHeader{Present: true}
	i := 0
	if i >= len(body) {
		return hdr, end, fmt.Errorf("telegram: empty AFL body")
	}
	hdr.FragmentCtrl = body[i]
	i++
	macPresent := hdr.FragmentCtrl&0x10 != 0
	if i+2 <= len(body) {
		hdr.MessageCtrl = body[i]
		i++
		hdr.KeyInfo = uint16(body[i])
		i++
	}
	if i+4 <= len(body) {
		hdr.MessageCounter = binary.LittleEndian.Uint32(body[i : i+4])
		i += 4
	}
	if macPresent && i+8 <= len(body) {
		hdr.MAC = append([]byte{}, body[i:i+8]...)
		hdr.MustCheckMAC = true
		i += 8
	}
	return hdr, end, nil
}
