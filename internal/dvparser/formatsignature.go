package dvparser

import (
	"sync"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/bytesx"
)

// FormatSignatureCache maps a CRC-16-EN13757 signature over a DIF/VIF
// format byte run to the format bytes themselves, letting a later
// compact frame (CI 0x79, §4.E) that only carries the 2-byte
// signature be decoded once a full frame with the same signature has
// been seen. Per §5 it is written only from the event-loop thread
// during parsing; the mutex here exists so the zero value is safe to
// share across tests and so a dongle-per-goroutine caller doesn't
// need its own external synchronisation.
type FormatSignatureCache struct {
	mu    sync.Mutex
	byCRC map[uint16][]byte
}

// NewFormatSignatureCache returns an empty cache.
func NewFormatSignatureCache() *FormatSignatureCache {
	return &FormatSignatureCache{byCRC: map[uint16][]byte{}}
}

// Signature computes the CRC-16-EN13757 over a format byte run.
func Signature(formatBytes []byte) uint16 {
	return bytesx.CRC16EN13757(formatBytes)
}

// Remember records formatBytes under its own signature, write-once:
// a signature already present keeps its original bytes.
func (c *FormatSignatureCache) Remember(formatBytes []byte) uint16 {
	sig := Signature(formatBytes)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byCRC[sig]; !exists {
		stored := make([]byte, len(formatBytes))
		copy(stored, formatBytes)
		c.byCRC[sig] = stored
	}
	return sig
}

// Lookup returns the format bytes previously remembered under sig,
// and whether the signature is known.
func (c *FormatSignatureCache) Lookup(sig uint16) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.byCRC[sig]
	return b, ok
}
