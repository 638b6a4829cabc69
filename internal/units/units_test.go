package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertSameQuantity(t *testing.T) {
	v, err := Convert(1, KWh, W)
	require.Error(t, err) // W is Power, KWh is Energy: incompatible

	v, err = Convert(1, KW, W)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, v, 1e-9)

	v, err = Convert(1, Hour, Second)
	require.NoError(t, err)
	assert.InDelta(t, 3600.0, v, 1e-9)
}

func TestConvertTemperatureIsAffine(t *testing.T) {
	v, err := Convert(0, C, K)
	require.NoError(t, err)
	assert.InDelta(t, 273.15, v, 1e-9)
}

func TestConvertIncompatibleUnits(t *testing.T) {
	_, err := Convert(1, M3, KWh)
	require.Error(t, err)
	var target *ErrIncompatibleUnits
	assert.ErrorAs(t, err, &target)
}

func TestDimensionArithmetic(t *testing.T) {
	energy := Of(Energy)
	flow := Of(Flow)
	combined := energy.Mul(flow)
	assert.False(t, combined.Dimensionless())
	assert.True(t, combined.Equal(combined))
	assert.False(t, combined.Equal(energy))

	back := combined.Div(flow)
	assert.True(t, back.Equal(energy))
}

func TestDefaultUnitForQuantity(t *testing.T) {
	assert.Equal(t, KWh, DefaultUnitForQuantity(Energy))
	assert.Equal(t, M3, DefaultUnitForQuantity(Volume))
}
