// Package address implements the meter-address model: a concrete
// Address five-tuple decoded off the wire, and AddressExpression, the
// wildcard/qualifier pattern meter configurations use to pick which
// telegrams belong to which meter.
package address

// Address is a concrete address as decoded from a telegram: the
// BCD-like id (decimal for compliant meters, hex for many
// non-compliant ones), the 15-bit manufacturer code, a 1-byte
// version, a 1-byte type (medium), and the wired M-Bus primary
// address (0-250) when applicable.
type Address struct {
	ID          string // always 8 hex/decimal characters
	Mfct        uint16
	Version     byte
	Type        byte
	MBusPrimary byte
	HasPrimary  bool
}
