package fieldmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/dvparser"
)

func TestMatcherVIFRange(t *testing.T) {
	m := Matcher{Name: "total", VIFRange: [2]int{0x10, 0x17}, MeasurementOf: dvparser.Any}
	e := dvparser.DVEntry{VIF: 0x13, MeasurementType: dvparser.Instantaneous}
	assert.True(t, m.Matches(e))

	e2 := dvparser.DVEntry{VIF: 0x28, MeasurementType: dvparser.Instantaneous}
	assert.False(t, m.Matches(e2))
}

func TestFindFirst(t *testing.T) {
	entries := &dvparser.Entries{Order: []*dvparser.DVEntry{
		{VIF: 0x28}, {VIF: 0x13},
	}}
	m := Matcher{Name: "volume", VIFRange: [2]int{0x10, 0x17}, MeasurementOf: dvparser.Any}
	e, ok := FindFirst(entries, m)
	require.True(t, ok)
	assert.Equal(t, 0x13, e.VIF)
}

func TestTranslateKnownAndUnknownBits(t *testing.T) {
	l := Lookup{
		Name: "ERROR_FLAGS",
		Rules: []BitRule{
			{Name: "LEAKAGE", Mask: 0x01, Values: map[uint64]string{1: "LEAKAGE"}},
			{Name: "BURST", Mask: 0x02, Values: map[uint64]string{1: "BURST"}},
		},
	}
	tokens, err := Translate(l, 0x01|0x02|0x10)
	require.NoError(t, err)
	assert.Contains(t, tokens, "LEAKAGE")
	assert.Contains(t, tokens, "BURST")
	assert.Contains(t, tokens, "UNKNOWN_10")
}

func TestTranslateBadRule(t *testing.T) {
	l := Lookup{Rules: []BitRule{{Name: "X", Mask: 0x03, Values: map[uint64]string{1: "ONE"}}}}
	_, err := Translate(l, 0x02)
	assert.Error(t, err)
}
