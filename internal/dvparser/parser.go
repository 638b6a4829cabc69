package dvparser

import (
	"fmt"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"
)

// Entries preserves insertion order alongside the key->entry map the
// spec describes (§3 Telegram.dv_entries), so a caller can both look
// a key up and walk records in telegram order.
type Entries struct {
	ByKey map[string]*DVEntry
	Order []*DVEntry
}

func newEntries() *Entries {
	return &Entries{ByKey: map[string]*DVEntry{}}
}

func (e *Entries) add(entry *DVEntry) {
	key := entry.DifVifKey
	if _, exists := e.ByKey[key]; exists {
		n := 2
		for {
			candidate := fmt.Sprintf("%s_%d", key, n)
			if _, exists := e.ByKey[candidate]; !exists {
				entry.DifVifKey = candidate
				break
			}
			n++
		}
	}
	e.ByKey[entry.DifVifKey] = entry
	e.Order = append(e.Order, entry)
}

// ParseResult is the outcome of walking one APL payload's DIF/VIF
// record run.
type ParseResult struct {
	Entries       *Entries
	FormatBytes   []byte // the raw DIF/VIF/VIFE byte run (sans filler), for the format-signature cache
	MfctDataStart int    // offset of trailing manufacturer-specific data, -1 if none
}

// ParseDVEntries walks data (the APL payload) producing DVEntry
// records. baseOffset is added to every entry's reported Offset so
// callers can report positions relative to the whole telegram.
func ParseDVEntries(data []byte, baseOffset int) (*ParseResult, error) {
	entries := newEntries()
	result := &ParseResult{Entries: entries, MfctDataStart: -1}
	var format []byte

	pos := 0
	for pos < len(data) {
		dif := data[pos]
		if dif == difSkip {
			pos++
			continue
		}

		start := pos
		pos++

		storageNr := uint64((dif >> 6) & 0x1)
		var tariffNr, subunitNr uint64
		difeIndex := 0
		if dif&0x80 != 0 {
			for {
				if pos >= len(data) {
					return nil, fmt.Errorf("dvparser: truncated DIFE chain at offset %d", baseOffset+start)
				}
				dife := data[pos]
				pos++
				storageNr |= uint64(dife&0x0F) << (1 + 4*difeIndex)
				tariffNr |= uint64((dife>>4)&0x3) << (2 * difeIndex)
				subunitNr |= uint64((dife>>6)&0x1) << difeIndex
				difeIndex++
				if dife&0x80 == 0 {
					break
				}
			}
		}

		width := difLenBytes(dif)
		if width == -2 {
			result.MfctDataStart = baseOffset + start
			break
		}

		if pos >= len(data) {
			return nil, fmt.Errorf("dvparser: truncated record, missing VIF at offset %d", baseOffset+start)
		}
		vif := data[pos]
		pos++
		vifValue := int(vif & 0x7F)
		if isVifExtensionMarker(vif) {
			if pos >= len(data) {
				return nil, fmt.Errorf("dvparser: truncated VIF extension at offset %d", baseOffset+start)
			}
			vifValue = 0x100 | int(data[pos])
			vif = data[pos]
			pos++
		}

		var combinables []Combinable
		var combinablesRaw []uint16
		for vif&0x80 != 0 {
			if pos >= len(data) {
				return nil, fmt.Errorf("dvparser: truncated VIFE chain at offset %d", baseOffset+start)
			}
			vife := data[pos]
			pos++
			raw := uint16(vife)
			if named, ok := namedCombinable(vife); ok {
				combinables = append(combinables, named)
			} else {
				combinablesRaw = append(combinablesRaw, raw)
			}
			vif = vife
		}

		formatEnd := pos
		format = append(format, data[start:formatEnd]...)

		var value []byte
		switch width {
		case -1: // variable length: an explicit length byte governs
			if pos >= len(data) {
				return nil, fmt.Errorf("dvparser: missing variable-length byte at offset %d", baseOffset+start)
			}
			length := int(data[pos])
			pos++
			if pos+length > len(data) {
				return nil, fmt.Errorf("dvparser: variable-length record declares %d bytes but only %d remain", length, len(data)-pos)
			}
			value = append([]byte{}, data[pos:pos+length]...)
			pos += length
		default:
			if pos+width > len(data) {
				return nil, fmt.Errorf("dvparser: record declares %d bytes but only %d remain", width, len(data)-pos)
			}
			value = append([]byte{}, data[pos:pos+width]...)
			pos += width
		}

		key := bytesx.HexEncode(data[start:formatEnd])
		entry := &DVEntry{
			Offset:            baseOffset + start,
			DifVifKey:         key,
			MeasurementType:   measurementTypeOf(storageNr),
			VIF:               vifValue,
			CombinableVifs:    combinables,
			CombinableVifsRaw: combinablesRaw,
			StorageNr:         storageNr,
			TariffNr:          tariffNr,
			SubunitNr:         subunitNr,
			Value:             value,
			IsBCD:             isBCDWidth(dif),
			IsFloat:           dif&0x0F == 0x5,
			IsVariableLength:  width == -1,
		}
		entries.add(entry)
	}

	result.FormatBytes = format
	return result, nil
}

// measurementTypeOf reports the measurement-type implied by an
// entry's storage number: storage 0 is the instantaneous value;
// wmbusmeters conventionally treats odd/even storage slots as
// minimum/maximum history for meters that use them that way, but
// absent further per-driver context the parser reports Instantaneous
// for slot 0 and Any for every historised slot, leaving refinement to
// the field matcher (§4.F) which has driver-specific context.
func measurementTypeOf(storageNr uint64) MeasurementType {
	if storageNr == 0 {
		return Instantaneous
	}
	return Any
}

func namedCombinable(vife byte) (Combinable, bool) {
	switch vife & 0x7F {
	case 0x3B:
		return CombinableBackward, true
	case 0x3A:
		return CombinableForward, true
	default:
		return "", false
	}
}
