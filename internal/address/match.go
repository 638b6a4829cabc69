package address

import "strings"

// matchesID reports whether addr's id satisfies e's id pattern alone
// (ignoring qualifiers and negation), and whether doing so consumed a
// wildcard.
func (e Expression) matchesID(addr Address) (matched, usedWildcard bool) {
	switch {
	case e.MatchAny:
		return true, true
	case e.IsPrimary:
		return addr.HasPrimary && addr.MBusPrimary == e.Primary, false
	case e.ExactID != "":
		return strings.EqualFold(e.ExactID, addr.ID), false
	default:
		return strings.HasPrefix(strings.ToUpper(addr.ID), strings.ToUpper(e.Prefix)), true
	}
}

func (e Expression) matchesQualifiers(addr Address) bool {
	for _, q := range e.qualifiers {
		var eq bool
		switch q.kind {
		case 'M':
			eq = addr.Mfct == q.mfct
		case 'T':
			eq = addr.Type == q.byt
		case 'V':
			eq = addr.Version == q.byt
		}
		if q.op == opEq && !eq {
			return false
		}
		if q.op == opNeq && eq {
			return false
		}
	}
	return true
}

// Match reports whether addr matches the expression (id pattern AND
// all qualifiers hold), plus whether a wildcard was used to get
// there.
func (e Expression) Match(addr Address) (matched, usedWildcard bool) {
	m, uw := e.matchesID(addr)
	if !m {
		return false, false
	}
	if !e.matchesQualifiers(addr) {
		return false, false
	}
	return true, uw
}

// DoesIdMatchExpressions reports whether addr matches the expression
// set: at least one positive expression matches AND no negative
// expression matches. usedWildcard is true when the matching
// positive expression relied on a wildcard (negative expressions
// never affect it), matching the driver auto-detection warning
// semantics of §4.C.
func DoesIdMatchExpressions(addr Address, exprs []Expression) (matched, usedWildcard bool) {
	positiveMatched := false
	positiveWildcard := false
	exactPositiveMatch := false
	for _, e := range exprs {
		if e.FilterOut {
			continue
		}
		m, uw := e.Match(addr)
		if m {
			if !uw {
				exactPositiveMatch = true
			}
			positiveMatched = true
			positiveWildcard = positiveWildcard || uw
		}
	}
	if !positiveMatched {
		return false, false
	}
	for _, e := range exprs {
		if !e.FilterOut {
			continue
		}
		m, _ := e.Match(addr)
		if m {
			return false, false
		}
	}
	// An exact 8-character id match is preferred: report no wildcard
	// usage when at least one matching positive expression was exact.
	if exactPositiveMatch {
		return true, false
	}
	return true, positiveWildcard
}
