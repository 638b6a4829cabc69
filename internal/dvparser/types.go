// Package dvparser walks the self-describing DIF/VIF data records of
// an M-Bus application layer and produces DVEntry values keyed by the
// exact byte sequence that described them, generalising the
// struct-tag field extraction shown in the DSMR P1 reference parser
// to wmbusmeters' fully self-describing record format.
package dvparser

import "github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"

// MeasurementType classifies which of a meter's historised values a
// DVEntry carries.
type MeasurementType int

const (
	Instantaneous MeasurementType = iota
	Minimum
	Maximum
	AtError
	Any
)

// Combinable names a VIFE combinable modifier (direction, tariff,
// per-phase, etc.) that was recognised from the pack's combinable
// table.
type Combinable string

const (
	CombinableForward  Combinable = "FORWARD"
	CombinableBackward Combinable = "BACKWARD"
)

// DVEntry is one decoded DIF/VIF data record.
type DVEntry struct {
	Offset            int
	DifVifKey         string // hex-encoded DIF+DIFE+VIF+VIFE bytes, "_N" suffixed on duplicate
	MeasurementType   MeasurementType
	VIF               int // 7-bit vif, or (0x100|extbyte) when an 0xFB/0xFD/0xEF/0xFF marker extended it
	CombinableVifs    []Combinable
	CombinableVifsRaw []uint16
	StorageNr         uint64
	TariffNr          uint64
	SubunitNr         uint64
	Value             []byte // raw data bytes for the record
	IsBCD             bool   // true when the DIF declared a packed-BCD width
	IsFloat           bool   // true when the DIF declared the 32-bit IEEE-754 real width
	IsVariableLength  bool   // true when the DIF was the 0xD variable-length marker
}

// HexValue renders the entry's raw data bytes as the hex string used
// for string-typed fields (e.g. VIF 0x7C user-defined strings).
func (e DVEntry) HexValue() string {
	return bytesx.HexEncode(e.Value)
}
