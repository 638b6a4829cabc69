package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidMatchExpression(t *testing.T) {
	assert.True(t, IsValidMatchExpression("12345678"))
	assert.True(t, IsValidMatchExpression("22*"))
	assert.True(t, IsValidMatchExpression("*"))
	assert.True(t, IsValidMatchExpression("42")) // mbus primary
	assert.False(t, IsValidMatchExpression("123456789"))
	assert.False(t, IsValidMatchExpression("999")) // > 250, not 8 digits either
}

func TestDoesIdMatchExpressions(t *testing.T) {
	addr := Address{ID: "22222223"}
	exprs, err := ParseExpressions("22*,!22222222")
	require.NoError(t, err)
	matched, uw := DoesIdMatchExpressions(addr, exprs)
	assert.True(t, matched)
	assert.True(t, uw)

	exprs, err = ParseExpressions("22*,!22*")
	require.NoError(t, err)
	matched, _ = DoesIdMatchExpressions(addr, exprs)
	assert.False(t, matched)

	addr2 := Address{ID: "78563413"}
	exprs, err = ParseExpressions("*,!00156327,!00048713")
	require.NoError(t, err)
	matched, uw = DoesIdMatchExpressions(addr2, exprs)
	assert.True(t, matched)
	assert.True(t, uw)
}

func TestQualifiers(t *testing.T) {
	exprs, err := ParseExpressions("12345678.M=ABC.T=16")
	require.NoError(t, err)
	mfct, err := ManufacturerCode("ABC")
	require.NoError(t, err)
	addr := Address{ID: "12345678", Mfct: mfct, Type: 0x16}
	matched, uw := DoesIdMatchExpressions(addr, exprs)
	assert.True(t, matched)
	assert.False(t, uw)

	addr.Type = 0x17
	matched, _ = DoesIdMatchExpressions(addr, exprs)
	assert.False(t, matched)
}

func TestManufacturerCodeRoundTrip(t *testing.T) {
	code, err := ManufacturerCode("KAM")
	require.NoError(t, err)
	assert.Equal(t, "KAM", ManufacturerName(code))
}
