package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/units"
)

func TestEvalArithmetic(t *testing.T) {
	node, err := Parse("2 + 3 * (4 - 1)")
	require.NoError(t, err)
	v, err := Eval(node, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(11), v.Number)
}

func TestEvalFieldLookup(t *testing.T) {
	node, err := Parse("total_m3 * 1000")
	require.NoError(t, err)
	lookup := func(name string) (Value, error) {
		assert.Equal(t, "total_m3", name)
		return Value{Number: 1.5, Dim: units.Of(units.Volume), Unit: units.M3}, nil
	}
	v, err := Eval(node, lookup)
	require.NoError(t, err)
	assert.Equal(t, float64(1500), v.Number)
}

func TestCaretRejected(t *testing.T) {
	_, err := Parse("2 ^ 3")
	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestIncompatibleDimensionAddRejected(t *testing.T) {
	node, err := Parse("a + b")
	require.NoError(t, err)
	lookup := func(name string) (Value, error) {
		if name == "a" {
			return Value{Number: 1, Dim: units.Of(units.Volume), Unit: units.M3}, nil
		}
		return Value{Number: 2, Dim: units.Of(units.Energy), Unit: units.KWh}, nil
	}
	_, err = Eval(node, lookup)
	assert.Error(t, err)
}

func TestStringInterpolator(t *testing.T) {
	got := StringInterpolator("total_{storage_counter}_m3", 7, 0, 0)
	assert.Equal(t, "total_7_m3", got)
}
