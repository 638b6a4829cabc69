package address

import "fmt"

// ManufacturerCode packs three uppercase ASCII letters into the
// 15-bit M-Bus manufacturer code: each letter maps to a 5-bit value
// (A=1 .. Z=26) and the three values are packed as
// (c1<<10)|(c2<<5)|c3.
func ManufacturerCode(name string) (uint16, error) {
	if len(name) != 3 {
		return 0, fmt.Errorf("address: manufacturer code %q must be exactly 3 letters", name)
	}
	var v uint16
	for _, c := range name {
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("address: manufacturer code %q must be uppercase A-Z", name)
		}
		v = v<<5 | uint16(c-'A'+1)
	}
	return v, nil
}

// ManufacturerName unpacks a 15-bit manufacturer code back into its
// three-letter name. The conversion is total: every uint16 up to
// 0x7FFF decodes to three characters, though codes never actually
// assigned to a manufacturer will look like garbage letters.
func ManufacturerName(code uint16) string {
	c1 := byte((code>>10)&0x1F) + 'A' - 1
	c2 := byte((code>>5)&0x1F) + 'A' - 1
	c3 := byte(code&0x1F) + 'A' - 1
	return string([]byte{c1, c2, c3})
}
