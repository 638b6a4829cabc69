// Package dongle controls the two wM-Bus radio dongles this build
// targets, the IMST iM871A and the Amber AMB8465 (§4.J), behind a
// shared BusDevice contract. Serial I/O follows the teacher's
// serial_port.go: github.com/pkg/term opened in raw mode, explicit
// bps switch, blocking single-byte/whole-buffer reads driven by the
// caller rather than an internal goroutine.
package dongle

import (
	"sort"
	"strings"
)

// LinkMode is one wM-Bus physical-layer mode (EN 13757-4 table 44).
type LinkMode int

const (
	S1 LinkMode = iota
	S1m
	S2
	T1
	T2
	C1
	C2
	N1A
)

var linkModeNames = map[LinkMode]string{
	S1: "S1", S1m: "S1m", S2: "S2",
	T1: "T1", T2: "T2",
	C1: "C1", C2: "C2",
	N1A: "N1a",
}

func (m LinkMode) String() string {
	if s, ok := linkModeNames[m]; ok {
		return s
	}
	return "unknown"
}

// LinkModeSet is a bitmask over LinkMode, the unit devices negotiate
// and meters are configured to expect (e.g. "C1,T1").
type LinkModeSet uint16

// Set returns a LinkModeSet with m added.
func (s LinkModeSet) Set(m LinkMode) LinkModeSet { return s | (1 << uint(m)) }

// Has reports whether m is a member of s.
func (s LinkModeSet) Has(m LinkMode) bool { return s&(1<<uint(m)) != 0 }

// Intersects reports whether s and other share any mode.
func (s LinkModeSet) Intersects(other LinkModeSet) bool { return s&other != 0 }

// String renders the set as a comma-joined mode list, e.g. "C1,T1".
func (s LinkModeSet) String() string {
	var names []string
	for m := S1; m <= N1A; m++ {
		if s.Has(m) {
			names = append(names, m.String())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// ParseLinkModeSet parses a comma-separated mode list such as "c1,t1"
// into a LinkModeSet, the form used in bus-device specifications
// (§6 `alias=file:type(extras):id:bps:linkmodes`).
func ParseLinkModeSet(spec string) (LinkModeSet, error) {
	var s LinkModeSet
	if spec == "" {
		return s, nil
	}
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		m, ok := lookupLinkMode(tok)
		if !ok {
			return 0, &unknownLinkModeError{tok}
		}
		s = s.Set(m)
	}
	return s, nil
}

func lookupLinkMode(tok string) (LinkMode, bool) {
	for m, name := range linkModeNames {
		if strings.EqualFold(name, tok) {
			return m, true
		}
	}
	return 0, false
}

type unknownLinkModeError struct{ tok string }

func (e *unknownLinkModeError) Error() string { return "dongle: unknown link mode " + e.tok }
