package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/address"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/dvparser"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/fieldmatch"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/telegram"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/units"
)

func TestDriverMatches(t *testing.T) {
	d := &DriverInfo{Name: "kamheat", MatchType: []byte{0x04}}
	hdr := telegram.DLLHeader{Address: address.Address{Type: 0x04}}
	assert.True(t, d.Matches(hdr))

	hdr2 := telegram.DLLHeader{Address: address.Address{Type: 0x07}}
	assert.False(t, d.Matches(hdr2))
}

func TestRegistryFindByAddress(t *testing.T) {
	r := NewRegistry()
	r.Register(&DriverInfo{Name: "a", MatchType: []byte{0x04}})
	r.Register(&DriverInfo{Name: "b", MatchType: []byte{0x07}})
	hdr := telegram.DLLHeader{Address: address.Address{Type: 0x04}}
	found := r.FindByAddress(hdr)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].Name)
}

func TestMeterProcessExtractAndCalculate(t *testing.T) {
	driver := &DriverInfo{
		Name: "test",
		Extractors: []FieldExtractor{
			{FieldName: "total_m3", Matcher: fieldmatch.Matcher{VIFRange: [2]int{0x10, 0x17}, MeasurementOf: dvparser.Any}},
		},
		Calculators: []FieldCalculator{
			{FieldName: "total_liters", Formula: "total_m3 * 1000"},
		},
	}
	info := &MeterInfo{Name: "kitchen", Driver: driver, ID: "12345678"}
	m := NewMeter(info)

	entries := &dvparser.Entries{ByKey: map[string]*dvparser.DVEntry{}}
	e := &dvparser.DVEntry{VIF: 0x13, Value: []byte{0x56, 0x34, 0x12}, IsBCD: true}
	entries.ByKey["0B13"] = e
	entries.Order = append(entries.Order, e)

	tg := &telegram.Telegram{Entries: entries}

	readings, warnings, err := m.Process(tg)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	byName := map[string]Reading{}
	for _, r := range readings {
		byName[r.FieldName] = r
	}
	require.Contains(t, byName, "total_m3")
	require.Contains(t, byName, "total_liters")
	assert.InDelta(t, 123.456, byName["total_m3"].Number, 1e-9)
	assert.InDelta(t, 123456, byName["total_liters"].Number, 1e-6)
	_ = units.M3
}

func TestMeterProcessMissingFieldWarns(t *testing.T) {
	driver := &DriverInfo{
		Name: "test",
		Extractors: []FieldExtractor{
			{FieldName: "total_m3", Matcher: fieldmatch.Matcher{VIFRange: [2]int{0x10, 0x17}, MeasurementOf: dvparser.Any}},
		},
	}
	info := &MeterInfo{Name: "kitchen", Driver: driver, ID: "12345678"}
	m := NewMeter(info)
	tg := &telegram.Telegram{Entries: &dvparser.Entries{ByKey: map[string]*dvparser.DVEntry{}}}

	_, warnings, err := m.Process(tg)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}
