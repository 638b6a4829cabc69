package dvparser

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/units"
)

// ScalePolicy selects how a DVEntry's numeric value is scaled.
type ScalePolicy int

const (
	ScaleAuto ScalePolicy = iota // VIF-implicit, table-driven scale
	ScaleNone
)

// vifRangeScale describes one contiguous VIF low-7-bit range sharing
// a quantity and a 10^(n+base) scale, where n is the low bits of vif
// within the range.
type vifRangeScale struct {
	lo, hi   int
	mask     int // how many low bits of (vif-lo) select n
	base     float64
	quantity units.Quantity
	unit     units.Unit
}

var vifRanges = []vifRangeScale{
	{0x00, 0x07, 0x7, -6, units.Energy, units.KWh},     // Wh * 10^(n-3)
	{0x08, 0x0F, 0x7, 0, units.Energy, units.KWh},      // J * 10^n (approx, stored as kWh base unit)
	{0x10, 0x17, 0x7, -6, units.Volume, units.M3},      // m3 * 10^(n-6)
	{0x28, 0x2F, 0x7, -6, units.Power, units.KW},       // W * 10^(n-3)
	{0x38, 0x3F, 0x7, -6, units.Flow, units.M3PerHour}, // m3/h * 10^(n-6)
	{0x58, 0x5B, 0x3, -3, units.Temperature, units.C},  // flow temperature
	{0x5C, 0x5F, 0x3, -3, units.Temperature, units.C},  // return temperature
	{0x64, 0x67, 0x3, -3, units.Temperature, units.C},  // external temperature
	{0x68, 0x6B, 0x3, -3, units.Pressure, units.Bar},
}

// VIFScale looks up the Auto scale factor and target unit for a
// (non-extended) VIF value. ok is false for VIFs this table doesn't
// cover, such as dates, strings, or manufacturer-specific codes.
func VIFScale(vif int) (scale float64, quantity units.Quantity, unit units.Unit, ok bool) {
	if vif > 0x7F {
		return 0, 0, 0, false
	}
	for _, r := range vifRanges {
		if vif >= r.lo && vif <= r.hi {
			n := vif - r.lo
			return math.Pow(10, r.base+float64(n)), r.quantity, r.unit, true
		}
	}
	return 0, 0, 0, false
}

// ExtractInt decodes e.Value as a little-endian integer, optionally
// sign-extended from the top bit of the declared width when signed
// is true.
func ExtractInt(e DVEntry, signed bool) (int64, error) {
	b := e.Value
	n := len(b)
	if n == 0 || n > 8 {
		return 0, fmt.Errorf("dvparser: unsupported integer width %d", n)
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	if !signed {
		return int64(v), nil
	}
	shift := uint(64 - 8*n)
	return int64(v<<shift) >> shift, nil
}

// ExtractBCD decodes e.Value as little-endian packed BCD, honouring a
// top nibble of 0xF as a sign marker when signed is true.
func ExtractBCD(e DVEntry, signed bool) (int64, error) {
	return bytesx.BCD2Int(e.Value, signed)
}

// ExtractFloat32 decodes e.Value as an IEEE-754 32-bit float.
func ExtractFloat32(e DVEntry) (float64, error) {
	if len(e.Value) != 4 {
		return 0, fmt.Errorf("dvparser: float32 record must be 4 bytes, got %d", len(e.Value))
	}
	bits := binary.LittleEndian.Uint32(e.Value)
	return float64(math.Float32frombits(bits)), nil
}

// NumericValue extracts e's raw numeric reading (float, BCD or
// integer, chosen by e's IsFloat/IsBCD flags) and applies the VIF-implicit
// Auto scale or leaves it unscaled, per policy.
func NumericValue(e DVEntry, signed bool, policy ScalePolicy, overrideScale float64) (float64, units.Unit, error) {
	var raw float64
	switch {
	case e.IsFloat:
		f, err := ExtractFloat32(e)
		if err != nil {
			return 0, 0, err
		}
		raw = f
	case e.IsBCD:
		v, err := ExtractBCD(e, signed)
		if err != nil {
			return 0, 0, err
		}
		raw = float64(v)
	default:
		v, err := ExtractInt(e, signed)
		if err != nil {
			return 0, 0, err
		}
		raw = float64(v)
	}

	scale, _, unit, ok := VIFScale(e.VIF)
	if policy == ScaleNone || !ok {
		scale = 1
	}
	if overrideScale != 0 {
		scale *= overrideScale
	}
	return raw * scale, unit, nil
}

