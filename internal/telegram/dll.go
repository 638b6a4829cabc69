package telegram

import (
	"encoding/binary"
	"fmt"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/address"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"
)

// parseDLL decodes the wM-Bus Data Link Layer header starting at
// frame[0]: L-field, C-field, and the 8-byte A-field (mfct, id,
// version, type). Returns the header and the offset of the next byte
// (the CI field).
func parseDLL(frame []byte) (DLLHeader, int, error) {
	if len(frame) < 10 {
		return DLLHeader{}, 0, fmt.Errorf("telegram: frame too short for DLL header (%d bytes)", len(frame))
	}
	length := frame[0]
	if int(length)+1 > len(frame) {
		return DLLHeader{}, 0, fmt.Errorf("telegram: L-field declares %d bytes but only %d available", length, len(frame)-1)
	}
	c := frame[1]
	mfct := binary.LittleEndian.Uint16(frame[2:4])
	version := frame[8]
	typ := frame[9]

	idStr, err := bcdIDString(frame[4:8])
	if err != nil {
		return DLLHeader{}, 0, err
	}

	hdr := DLLHeader{
		Length: length,
		CField: c,
		Address: address.Address{
			ID:      idStr,
			Mfct:    mfct,
			Version: version,
			Type:    typ,
		},
	}
	return hdr, 10, nil
}

// bcdIDString renders the 4-byte little-endian packed-BCD id field as
// an 8-digit decimal string, falling back to its hex rendering for
// non-compliant meters whose id field isn't valid BCD (§4.E edge
// case noted for several manufacturers that ship raw binary ids).
func bcdIDString(idBytes []byte) (string, error) {
	v, err := bytesx.BCD2Int(idBytes, false)
	if err != nil {
		return bytesx.HexEncode(idBytes), nil
	}
	return fmt.Sprintf("%08d", v), nil
}
