package telegram

import (
	"encoding/binary"
	"fmt"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/address"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"
)

// plaintextSentinel is the byte pair (DIF 0x2F "filler" repeated
// twice) that a correctly decrypted APL payload's DIF/VIF run must
// begin with under the CBC modes 5 and 7. It doubles as a cheap decryption
// sanity check independent of any MAC: a wrong key almost never
// happens to produce it.
var plaintextSentinel = [2]byte{0x2F, 0x2F}

// decryptIV builds the initialisation vector used by security mode 5
// (and as the CTR counter block for mode 8): the DLL address fields
// once (mfct LE, id BCD, version, type) followed by the access number
// repeated in each of the remaining eight bytes.
func decryptIV(addr address.Address, accessNr byte) ([]byte, error) {
	iv := make([]byte, 16)
	binary.LittleEndian.PutUint16(iv[0:2], addr.Mfct)
	idBytes, err := idToBCD(addr.ID)
	if err != nil {
		return nil, err
	}
	copy(iv[2:6], idBytes)
	iv[6] = addr.Version
	iv[7] = addr.Type
	for i := 8; i < 16; i++ {
		iv[i] = accessNr
	}
	return iv, nil
}

// idToBCD packs an 8-digit decimal id string back into the 4-byte
// little-endian packed-BCD wire form (the inverse of bcdIDString):
// byte 0 holds the least significant two digits.
func idToBCD(id string) ([]byte, error) {
	if len(id) != 8 {
		return nil, fmt.Errorf("telegram: address id %q must be 8 digits for IV construction", id)
	}
	packed := make([]byte, 4)
	for i := 0; i < 4; i++ {
		digitPos := 3 - i
		hi := id[2*digitPos] - '0'
		lo := id[2*digitPos+1] - '0'
		packed[i] = hi<<4 | lo
	}
	return packed, nil
}

// decryptPayload decrypts an APL payload under the TPL/AFL's declared
// security mode and returns the plaintext DIF/VIF run. accessNr is
// the effective access number (TPL's ACC field), addr the effective
// meter address the IV is derived from.
func decryptPayload(mode SecurityMode, key []byte, addr address.Address, accessNr byte, ciphertext []byte) ([]byte, error) {
	switch mode {
	case SecurityNone:
		return ciphertext, nil

	case SecurityAESCBCIV:
		iv, err := decryptIV(addr, accessNr)
		if err != nil {
			return nil, err
		}
		return bytesx.AESCBCDecrypt(key, iv, ciphertext)

	case SecurityAESCBCNoIV:
		return bytesx.AESCBCDecrypt(key, nil, ciphertext)

	case SecurityAESCTRCMAC:
		iv, err := decryptIV(addr, accessNr)
		if err != nil {
			return nil, err
		}
		return bytesx.AESCTRCrypt(key, iv, ciphertext)

	default:
		return nil, fmt.Errorf("telegram: unsupported security mode %d", mode)
	}
}

// verifySentinel reports whether plaintext's first two bytes are the
// expected filler sentinel, the cheap decryption-success check used
// for the two CBC modes.
func verifySentinel(plaintext []byte) bool {
	return len(plaintext) >= 2 && plaintext[0] == plaintextSentinel[0] && plaintext[1] == plaintextSentinel[1]
}

// verifyMAC recomputes the AES-CMAC over the AFL-protected byte range
// and compares it (truncated to len(mac)) against mac.
func verifyMAC(key, message, mac []byte) (bool, error) {
	computed, err := bytesx.AESCMAC(key, message)
	if err != nil {
		return false, err
	}
	if len(mac) > len(computed) {
		return false, nil
	}
	for i := range mac {
		if mac[i] != computed[i] {
			return false, nil
		}
	}
	return true, nil
}
