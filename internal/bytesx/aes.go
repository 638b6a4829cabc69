package bytesx

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// AESECBEncryptBlock encrypts a single 16-byte block with AES-128 in
// ECB mode. Used only as the CMAC subkey-generation primitive; never
// for telegram payload confidentiality.
func AESECBEncryptBlock(key, block []byte) ([]byte, error) {
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("bytesx: AES block must be %d bytes", aes.BlockSize)
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aes.BlockSize)
	c.Encrypt(out, block)
	return out, nil
}

// AESCBCDecrypt decrypts ciphertext (a multiple of 16 bytes) with
// AES-128-CBC using iv (16 zero bytes if iv is nil, matching the
// "no-IV" security mode of §4.E).
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("bytesx: CBC ciphertext length %d not a multiple of %d", len(ciphertext), aes.BlockSize)
	}
	if len(ciphertext) == 0 {
		return nil, nil
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if iv == nil {
		iv = make([]byte, aes.BlockSize)
	}
	mode := cipher.NewCBCDecrypter(c, iv)
	out := make([]byte, len(ciphertext))
	mode.CryptBlocks(out, ciphertext)
	return out, nil
}

// AESCTRCrypt runs AES-128-CTR over data with the given 16-byte nonce
// (the IV doubles as the counter seed). Encryption and decryption are
// the same operation under CTR.
func AESCTRCrypt(key, nonce, data []byte) ([]byte, error) {
	if len(nonce) != aes.BlockSize {
		return nil, fmt.Errorf("bytesx: CTR nonce must be %d bytes", aes.BlockSize)
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(c, nonce)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// shiftLeft1 left-shifts a 16-byte block by one bit, returning the
// carry-out bit (0 or 1).
func shiftLeft1(b []byte) ([]byte, byte) {
	out := make([]byte, len(b))
	var carry byte
	for i := len(b) - 1; i >= 0; i-- {
		cur := b[i]
		out[i] = cur<<1 | carry
		carry = cur >> 7
	}
	return out, carry
}

const cmacRB = 0x87

// cmacSubkeys derives K1/K2 from the master key per RFC 4493 §2.3.
func cmacSubkeys(key []byte) ([]byte, []byte, error) {
	zero := make([]byte, aes.BlockSize)
	l, err := AESECBEncryptBlock(key, zero)
	if err != nil {
		return nil, nil, err
	}
	k1, carry := shiftLeft1(l)
	if carry == 1 {
		k1[len(k1)-1] ^= cmacRB
	}
	k2, carry := shiftLeft1(k1)
	if carry == 1 {
		k2[len(k2)-1] ^= cmacRB
	}
	return k1, k2, nil
}

func xorBlock(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// AESCMAC computes the AES-128-CMAC (RFC 4493) of message under key.
func AESCMAC(key, message []byte) ([]byte, error) {
	k1, k2, err := cmacSubkeys(key)
	if err != nil {
		return nil, err
	}

	n := (len(message) + aes.BlockSize - 1) / aes.BlockSize
	var lastBlockComplete bool
	if n == 0 {
		n = 1
		lastBlockComplete = false
	} else {
		lastBlockComplete = len(message)%aes.BlockSize == 0
	}

	var lastBlock []byte
	if lastBlockComplete {
		lastBlock = xorBlock(message[(n-1)*aes.BlockSize:n*aes.BlockSize], k1)
	} else {
		tail := message[(n-1)*aes.BlockSize:]
		padded := make([]byte, aes.BlockSize)
		copy(padded, tail)
		padded[len(tail)] = 0x80
		lastBlock = xorBlock(padded, k2)
	}

	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	x := make([]byte, aes.BlockSize)
	for i := 0; i < n-1; i++ {
		block := xorBlock(x, message[i*aes.BlockSize:(i+1)*aes.BlockSize])
		y := make([]byte, aes.BlockSize)
		c.Encrypt(y, block)
		x = y
	}
	block := xorBlock(x, lastBlock)
	mac := make([]byte, aes.BlockSize)
	c.Encrypt(mac, block)
	return mac, nil
}
