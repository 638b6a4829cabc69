// Package fieldmatch implements the FieldMatcher predicate and the
// Lookup/Rule bit-translation engine (§4.F) that turns a DVEntry's
// StorageNr/TariffNr/SubunitNr/VIF into a named field, and a raw
// status/bitfield integer into human tokens (UNKNOWN_* for unmapped
// bits; a malformed rule is a BAD_RULE error, not a token),
// generalising the teacher's yaml-loaded `tocalls.yaml` lookup table
// in deviceid.go.
package fieldmatch

import (
	"fmt"
	"sort"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/dvparser"
)

// Matcher selects which DVEntry values a named field should be read
// from.
type Matcher struct {
	Name          string
	VIFRange      [2]int // inclusive low/high 7-bit VIF range this field accepts, or {-1,-1} for "any"
	MeasurementOf dvparser.MeasurementType
	StorageNr     *uint64 // nil matches any storage number
	TariffNr      *uint64
	SubunitNr     *uint64
}

// Matches reports whether e satisfies m's predicate.
func (m Matcher) Matches(e dvparser.DVEntry) bool {
	if m.VIFRange != [2]int{-1, -1} {
		vif := e.VIF &^ 0x100 // ignore the extension marker bit when range-checking
		if vif < m.VIFRange[0] || vif > m.VIFRange[1] {
			return false
		}
	}
	if m.MeasurementOf != dvparser.Any && e.MeasurementType != m.MeasurementOf {
		return false
	}
	if m.StorageNr != nil && e.StorageNr != *m.StorageNr {
		return false
	}
	if m.TariffNr != nil && e.TariffNr != *m.TariffNr {
		return false
	}
	if m.SubunitNr != nil && e.SubunitNr != *m.SubunitNr {
		return false
	}
	return true
}

// FindFirst returns the first entry (in telegram order) matching m, or
// ok=false if none does.
func FindFirst(entries *dvparser.Entries, m Matcher) (dvparser.DVEntry, bool) {
	for _, e := range entries.Order {
		if m.Matches(*e) {
			return *e, true
		}
	}
	return dvparser.DVEntry{}, false
}

// BitRule is one named bit or bit-range translation within a status
// Lookup table.
type BitRule struct {
	Name string
	Mask uint64
	// Values maps a shifted-down field value to its human token. A
	// single-bit rule (Mask a power of two) typically maps {1: Name}.
	Values map[uint64]string
}

// Lookup is an ordered set of BitRule entries describing how to
// translate a raw status/bitfield integer into tokens, plus the set
// of bits it claims are meaningful (for BAD_RULE/UNKNOWN_* detection).
type Lookup struct {
	Name  string
	Rules []BitRule
}

// shift returns the number of trailing zero bits in mask, used to
// normalise a masked-out field down to its low bits before a Values
// lookup.
func shift(mask uint64) uint {
	if mask == 0 {
		return 0
	}
	var n uint
	for mask&1 == 0 {
		mask >>= 1
		n++
	}
	return n
}

// Translate decodes raw against l, returning the matched tokens in
// rule-declaration order, plus synthetic UNKNOWN_<hex> tokens for any
// raw bits not claimed by any rule's mask.
func Translate(l Lookup, raw uint64) ([]string, error) {
	var tokens []string
	var claimed uint64
	for _, r := range l.Rules {
		claimed |= r.Mask
		val := (raw & r.Mask) >> shift(r.Mask)
		if val == 0 {
			continue
		}
		tok, ok := r.Values[val]
		if !ok {
			return nil, fmt.Errorf("fieldmatch: BAD_RULE in lookup %q: rule %q has no mapping for value %d", l.Name, r.Name, val)
		}
		tokens = append(tokens, tok)
	}
	unclaimed := raw &^ claimed
	if unclaimed != 0 {
		for _, bit := range setBits(unclaimed) {
			tokens = append(tokens, fmt.Sprintf("UNKNOWN_%X", bit))
		}
	}
	return tokens, nil
}

func setBits(v uint64) []uint64 {
	var out []uint64
	for b := uint64(1); v != 0; b <<= 1 {
		if v&b != 0 {
			out = append(out, b)
			v &^= b
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
