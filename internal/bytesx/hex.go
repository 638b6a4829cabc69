// Package bytesx holds the low level byte-twiddling primitives shared
// by every layer of the telegram decoder: hex/BCD conversion, the two
// CRC-16 variants used on the wire, SLIP framing, and the AES modes
// wmbusmeters needs for telegram decryption and MAC verification.
package bytesx

import "fmt"

const hexDigits = "0123456789ABCDEF"

func char2int(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}

// isIgnorable reports whether c is one of the separator characters the
// lenient hex decoder skips over: '#', '|', '_' and plain spaces.
func isIgnorable(c byte) bool {
	return c == '#' || c == '|' || c == '_' || c == ' '
}

// HexEncode renders b as an upper-case hex string with no separators.
func HexEncode(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, hexDigits[c>>4], hexDigits[c&0xF])
	}
	return string(out)
}

// HexEncodeN renders at most n bytes of b, truncating the rest. Used
// for bounding diagnostic dumps of long telegram payloads.
func HexEncodeN(b []byte, n int) string {
	if n < len(b) {
		b = b[:n]
	}
	return HexEncode(b)
}

// HexDecodeStrict decodes a pure hex string with no separators
// tolerated. An odd-length or non-hex input is rejected.
func HexDecodeStrict(s string) ([]byte, error) {
	return hexDecode(s, true)
}

// HexDecodeLenient decodes a hex string while ignoring '#', '|', '_'
// and space characters anywhere in the input.
func HexDecodeLenient(s string) ([]byte, error) {
	return hexDecode(s, false)
}

func hexDecode(s string, strict bool) ([]byte, error) {
	out := make([]byte, 0, len(s)/2)
	var hi int = -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !strict && isIgnorable(c) {
			continue
		}
		v := char2int(c)
		if v < 0 {
			return nil, fmt.Errorf("bytesx: invalid hex character %q", c)
		}
		if hi < 0 {
			hi = v
		} else {
			out = append(out, byte(hi<<4|v))
			hi = -1
		}
	}
	if hi >= 0 {
		return nil, fmt.Errorf("bytesx: odd number of hex digits in %q", s)
	}
	if len(out) == 0 && len(s) > 0 {
		// A non-empty input made only of ignorable separators decodes
		// to empty without error, the same as "".
	}
	return out, nil
}

// IsHexStringStrict reports whether txt is a valid hex string with no
// stray separator characters tolerated.
func IsHexStringStrict(txt string) bool {
	_, err := HexDecodeStrict(txt)
	return err == nil
}

// IsHexStringFlex reports whether txt is a valid hex string once the
// lenient separator characters are stripped.
func IsHexStringFlex(txt string) bool {
	_, err := HexDecodeLenient(txt)
	return err == nil
}
