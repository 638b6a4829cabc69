package bytesx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	for _, tc := range [][]byte{
		{},
		{0x00},
		{0x12, 0x34, 0xAB, 0xCD, 0xEF},
		{0xFF, 0x00, 0x7F},
	} {
		enc := HexEncode(tc)
		dec, err := HexDecodeStrict(enc)
		require.NoError(t, err)
		assert.Equal(t, tc, dec)
	}
}

func TestHexDecodeStrictRejectsBad(t *testing.T) {
	_, err := HexDecodeStrict("ABC")
	assert.Error(t, err)
	_, err = HexDecodeStrict("ZZ")
	assert.Error(t, err)
}

func TestHexDecodeLenientIgnoresSeparators(t *testing.T) {
	dec, err := HexDecodeLenient("12#34|56_78 90")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78, 0x90}, dec)
}

func TestCRC16EN13757(t *testing.T) {
	assert.Equal(t, uint16(0xC2B7), CRC16EN13757([]byte("123456789")))
	assert.Equal(t, uint16(0xF147), CRC16EN13757([]byte{0x01, 0xFD, 0x1F, 0x00}))
	assert.Equal(t, uint16(0xCC22), CRC16EN13757([]byte{0x01, 0xFD, 0x1F, 0x01}))
}

func TestSLIPRoundTrip(t *testing.T) {
	payload := []byte{1, 0xC0, 3, 4, 5, 0xDB}
	encoded := SLIPEncode(payload)
	assert.Equal(t, []byte{0xC0, 1, 0xDB, 0xDC, 3, 4, 5, 0xDB, 0xDD, 0xC0}, encoded)

	decoded, n, err := SLIPDecode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
	assert.Equal(t, 10, n)
}

func TestSLIPDecodeTwoFrames(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5}
	buf := append(SLIPEncode(a), SLIPEncode(b)...)

	d1, n1, err := SLIPDecode(buf)
	require.NoError(t, err)
	assert.Equal(t, a, d1)

	d2, n2, err := SLIPDecode(buf[n1:])
	require.NoError(t, err)
	assert.Equal(t, b, d2)
	assert.Equal(t, len(buf), n1+n2)
}

func TestAESCMACRFC4493Vectors(t *testing.T) {
	key, err := HexDecodeStrict("2b7e151628aed2a6abf7158809cf4f3c")
	require.NoError(t, err)

	mac, err := AESCMAC(key, nil)
	require.NoError(t, err)
	assert.Equal(t, "BB1D6929E95937287FA37D129B756746", HexEncode(mac))

	msg, err := HexDecodeStrict("6bc1bee22e409f96e93d7e117393172a")
	require.NoError(t, err)
	mac, err = AESCMAC(key, msg)
	require.NoError(t, err)
	assert.Equal(t, "070A16B46B4D4144F79BDD9DD04A287C", HexEncode(mac))
}

func TestBCD2Int(t *testing.T) {
	v, err := BCD2Int([]byte{0x99, 0x00}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(99), v)

	v, err = BCD2Int([]byte{0x34, 0x12}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), v)
}

func TestReverseBCD(t *testing.T) {
	assert.Equal(t, []byte{0x21, 0x43}, ReverseBCD([]byte{0x34, 0x12}))
}
