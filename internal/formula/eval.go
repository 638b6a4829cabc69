package formula

import (
	"fmt"
	"strings"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/units"
)

// Value is a dimensioned result: a float64 paired with the SI
// dimension vector of the unit it's expressed in, so a chain of
// multiplies/divides can be checked for physical sense (§4.G).
type Value struct {
	Number float64
	Dim    units.Dimension
	Unit   units.Unit
}

// FieldLookup resolves a bare identifier (a field name, or a
// storage/tariff/subunit interpolation marker already substituted by
// the caller) to its current Value.
type FieldLookup func(name string) (Value, error)

// Eval walks node, resolving FieldNodes through lookup and checking
// dimensional consistency on every BinaryNode the way a physical unit
// calculator must: '+' and '-' require identical dimensions, '*' and
// '/' combine them, per internal/units.Dimension arithmetic.
func Eval(node Node, lookup FieldLookup) (Value, error) {
	switch n := node.(type) {
	case *NumberNode:
		u, ok := unitFor(n.Unit)
		if !ok {
			u = units.None
		}
		return Value{Number: n.Value, Dim: units.Of(units.QuantityOf(u)), Unit: u}, nil

	case *FieldNode:
		if lookup == nil {
			return Value{}, fmt.Errorf("formula: no field lookup configured, cannot resolve %q", n.Name)
		}
		return lookup(n.Name)

	case *BinaryNode:
		l, err := Eval(n.Left, lookup)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(n.Right, lookup)
		if err != nil {
			return Value{}, err
		}
		switch n.Op {
		case '+', '-':
			if !l.Dim.Equal(r.Dim) {
				return Value{}, fmt.Errorf("formula: cannot add/subtract incompatible dimensions %s and %s", l.Dim, r.Dim)
			}
			rv, err := units.Convert(r.Number, r.Unit, l.Unit)
			if err != nil {
				return Value{}, err
			}
			if n.Op == '+' {
				return Value{Number: l.Number + rv, Dim: l.Dim, Unit: l.Unit}, nil
			}
			return Value{Number: l.Number - rv, Dim: l.Dim, Unit: l.Unit}, nil
		case '*':
			return Value{Number: l.Number * r.Number, Dim: l.Dim.Mul(r.Dim), Unit: l.Unit}, nil
		case '/':
			if r.Number == 0 {
				return Value{}, fmt.Errorf("formula: division by zero")
			}
			return Value{Number: l.Number / r.Number, Dim: l.Dim.Div(r.Dim), Unit: l.Unit}, nil
		default:
			return Value{}, fmt.Errorf("formula: unknown operator %q", n.Op)
		}

	default:
		return Value{}, fmt.Errorf("formula: unknown node type %T", node)
	}
}

// StringInterpolator substitutes {storage_counter}, {tariff_counter},
// and {subunit_counter} markers in a driver-file field name template
// with the entry's actual numbers, the way §4.G's field-name
// generation requires for historised/tariff/subunit field variants.
func StringInterpolator(template string, storageNr, tariffNr, subunitNr uint64) string {
	s := strings.ReplaceAll(template, "{storage_counter}", fmt.Sprintf("%d", storageNr))
	s = strings.ReplaceAll(s, "{tariff_counter}", fmt.Sprintf("%d", tariffNr))
	s = strings.ReplaceAll(s, "{subunit_counter}", fmt.Sprintf("%d", subunitNr))
	return s
}
