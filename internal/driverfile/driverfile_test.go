package driverfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/address"
)

const sampleYAML = `
name: kamheat
match_mfct: ["KAM"]
match_type: [0x04]
fields:
  - name: total_m3
    vif_low: "0x10"
    vif_high: "0x17"
    unit: m3
  - name: status
    status_of: ERROR_FLAGS
status_lookups:
  ERROR_FLAGS:
    - name: LEAKAGE
      mask: 1
      values:
        "1": LEAKAGE
calculated_fields:
  - name: total_liters
    formula: total_m3 * 1000
`

func TestLoadCompilesDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kamheat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kamheat", d.Name)

	wantCode, err := address.ManufacturerCode("KAM")
	require.NoError(t, err)
	require.Len(t, d.MatchMfct, 1)
	assert.Equal(t, wantCode, d.MatchMfct[0])

	require.Len(t, d.Extractors, 2)
	require.Len(t, d.Calculators, 1)
	assert.Equal(t, "total_liters", d.Calculators[0].FieldName)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kamheat.yaml"), []byte(sampleYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notadriver.txt"), []byte("ignored"), 0o644))

	reg, err := LoadDir(dir)
	require.NoError(t, err)
	_, ok := reg.Lookup("kamheat")
	assert.True(t, ok)
}
