package dvparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"
)

func TestParseDVEntriesSpecVector(t *testing.T) {
	data, err := bytesx.HexDecodeLenient("2F 2F 0B 13 56 34 12 8B 82 00 93 3E 67 45 23 0D FD 10 0A 30 31 32 33 34 35 36 37 38 39 0F")
	require.NoError(t, err)

	res, err := ParseDVEntries(data, 0)
	require.NoError(t, err)

	e1, ok := res.Entries.ByKey["0B13"]
	require.True(t, ok)
	v1, _, err := NumericValue(*e1, false, ScaleAuto, 0)
	require.NoError(t, err)
	assert.InDelta(t, 123.456, v1, 1e-9)

	e2, ok := res.Entries.ByKey["8B8200933E"]
	require.True(t, ok)
	v2, _, err := NumericValue(*e2, false, ScaleAuto, 0)
	require.NoError(t, err)
	assert.InDelta(t, 234.567, v2, 1e-9)

	e3, ok := res.Entries.ByKey["0DFD10"]
	require.True(t, ok)
	assert.Equal(t, "30313233343536373839", e3.HexValue())
}

func TestExtractDate(t *testing.T) {
	data, err := bytesx.HexDecodeLenient("5F1C")
	require.NoError(t, err)
	d, err := ExtractDate(DVEntry{Value: data})
	require.NoError(t, err)
	assert.Equal(t, "2010-12-31", d.Format("2006-01-02"))

	data, err = bytesx.HexDecodeLenient("FE04")
	require.NoError(t, err)
	d, err = ExtractDate(DVEntry{Value: data})
	require.NoError(t, err)
	assert.Equal(t, "2007-04-30", d.Format("2006-01-02"))
}

func TestDuplicateKeySuffix(t *testing.T) {
	// Two identical "0B13" format records back to back must disambiguate.
	data, err := bytesx.HexDecodeLenient("0B 13 00 00 01  0B 13 00 00 02")
	require.NoError(t, err)
	res, err := ParseDVEntries(data, 0)
	require.NoError(t, err)
	_, ok := res.Entries.ByKey["0B13"]
	assert.True(t, ok)
	_, ok = res.Entries.ByKey["0B13_2"]
	assert.True(t, ok)
}
