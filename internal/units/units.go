// Package units implements the closed enumeration of measurement
// units wmbusmeters can emit, grouped by quantity, with conversion
// between units of the same quantity and the synthesized dimensions
// the formula engine (internal/formula) needs for multiply/divide.
package units

import "fmt"

// Quantity groups units that can be converted into one another.
type Quantity int

const (
	Dimensionless Quantity = iota
	Volume
	Energy
	ReactiveEnergy
	Power
	Temperature
	Flow
	Time
	PointInTime
	Angle
	Voltage
	Current
	Pressure
	Frequency
	Text
	Counter
	Currency
	Unknown
)

// Unit is one member of the closed unit enumeration.
type Unit int

const (
	None Unit = iota
	M3
	KWh
	KVARh
	W
	KW
	C // degree Celsius
	K // Kelvin
	Bar
	Pascal
	Hertz
	Second
	Minute
	Hour
	M3PerHour
	MPerSecond
	Volt
	Ampere
	Degree
	Factor
	Number
	Date
	DateTimeUT
	DateTimeLT
	DateTimeUTC
	CounterUnit
	CurrencyUnit

	// UnitCount is one past the last valid Unit value, for callers
	// that need to iterate the enumeration (e.g. the formula engine's
	// unit-suffix lookup).
	UnitCount
)

type unitInfo struct {
	name     string
	quantity Quantity
	scale    float64 // multiply a value in this unit by scale to get SI base value
	offset   float64 // SI base value = raw*scale + offset (only Temperature is affine)
}

var table = map[Unit]unitInfo{
	None:        {"", Dimensionless, 1, 0},
	M3:          {"m3", Volume, 1, 0},
	KWh:         {"kWh", Energy, 3600000, 0},
	KVARh:       {"kVArh", ReactiveEnergy, 3600000, 0},
	W:           {"W", Power, 1, 0},
	KW:          {"kW", Power, 1000, 0},
	C:           {"°C", Temperature, 1, 273.15},
	K:           {"K", Temperature, 1, 0},
	Bar:         {"bar", Pressure, 100000, 0},
	Pascal:      {"Pa", Pressure, 1, 0},
	Hertz:       {"Hz", Frequency, 1, 0},
	Second:      {"s", Time, 1, 0},
	Minute:      {"min", Time, 60, 0},
	Hour:        {"h", Time, 3600, 0},
	M3PerHour:   {"m3/h", Flow, 1.0 / 3600.0, 0},
	MPerSecond:  {"m/s", Flow, 1, 0},
	Volt:        {"V", Voltage, 1, 0},
	Ampere:      {"A", Current, 1, 0},
	Degree:      {"degree", Angle, 1, 0},
	Factor:      {"factor", Dimensionless, 1, 0},
	Number:      {"number", Dimensionless, 1, 0},
	Date:        {"date", PointInTime, 1, 0},
	DateTimeUT:  {"datetimeut", PointInTime, 1, 0},
	DateTimeLT:  {"datetimelt", PointInTime, 1, 0},
	DateTimeUTC: {"datetimeutc", PointInTime, 1, 0},
	CounterUnit: {"counter", Counter, 1, 0},
	CurrencyUnit: {"currency", Currency, 1, 0},
}

// Name returns the canonical printable name of a unit, e.g. "kWh".
func Name(u Unit) string {
	return table[u].name
}

// QuantityOf reports which quantity a unit belongs to.
func QuantityOf(u Unit) Quantity {
	return table[u].quantity
}

// DefaultUnitForQuantity gives the canonical unit used to print a
// quantity when no display unit was configured.
func DefaultUnitForQuantity(q Quantity) Unit {
	switch q {
	case Volume:
		return M3
	case Energy:
		return KWh
	case ReactiveEnergy:
		return KVARh
	case Power:
		return KW
	case Temperature:
		return C
	case Flow:
		return M3PerHour
	case Time:
		return Second
	case Angle:
		return Degree
	case Voltage:
		return Volt
	case Current:
		return Ampere
	case Pressure:
		return Bar
	case Frequency:
		return Hertz
	case Counter:
		return CounterUnit
	case Currency:
		return CurrencyUnit
	default:
		return None
	}
}

// ErrIncompatibleUnits is returned by Convert when from and to belong
// to different quantities.
type ErrIncompatibleUnits struct {
	From, To Unit
}

func (e *ErrIncompatibleUnits) Error() string {
	return fmt.Sprintf("units: cannot convert %s to %s: incompatible quantities", Name(e.From), Name(e.To))
}

// Convert converts value expressed in `from` into the equivalent
// value expressed in `to`. Temperature is the only affine unit; every
// other unit is a pure multiplicative scale of its quantity's SI base.
func Convert(value float64, from, to Unit) (float64, error) {
	fi, to_i := table[from], table[to]
	if fi.quantity != to_i.quantity {
		return 0, &ErrIncompatibleUnits{From: from, To: to}
	}
	si := value*fi.scale + fi.offset
	return (si - to_i.offset) / to_i.scale, nil
}
