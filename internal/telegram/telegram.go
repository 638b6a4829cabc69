// Package telegram implements the layered M-Bus/wM-Bus frame parser
// (§4.E): DLL -> ELL -> AFL -> TPL -> decryption -> DIF/VIF payload,
// generalising the teacher's KISS/AX.25 layered frame decode
// (src/kiss_frame.go, src/hdlc_rec2.go) to the wM-Bus CI-dispatched
// layer stack.
package telegram

import (
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/address"
	"github.com/wmbusmeters/wmbusmeters-sub001/internal/dvparser"
)

// SecurityMode is the TPL configuration word's 5-bit security mode
// field, valued per EN 13757-7 table 5 (not sequential: the standard
// leaves gaps for reserved/vendor modes).
type SecurityMode int

const (
	SecurityNone        SecurityMode = 0
	SecurityAESCBCIV    SecurityMode = 5  // AES-128-CBC, IV derived from access number + address
	SecurityAESCBCNoIV  SecurityMode = 7  // AES-128-CBC, zero IV
	SecurityAESCTRCMAC  SecurityMode = 8  // AES-128-CTR payload + AES-CMAC over AFL (used with ELL)
	SecurityVendor       SecurityMode = 13 // vendor-specific, carries a config-extension word
)

// DLLHeader is the Data Link Layer header: length, C-field, and the
// 8-byte A-field (mfct/id/version/type).
type DLLHeader struct {
	Length  byte
	CField  byte
	Address address.Address
}

// ELLHeader is the Extended Link Layer header, present for CI values
// 0x8A and 0x8C-0x8F.
type ELLHeader struct {
	Present     bool
	Long        bool
	AccessNr    byte
	CC          byte // communication control byte, carries the 3-bit security mode in SN
	SessionNr   uint32
	CRC         uint16
	SecurityMode SecurityMode
}

// AFLHeader is the Authentication & Fragmentation Layer, present for
// CI 0x90/0x91.
type AFLHeader struct {
	Present        bool
	FragmentCtrl   byte
	MessageCtrl    byte
	KeyInfo        uint16
	MessageCounter uint32
	MAC            []byte
	MustCheckMAC   bool
}

// TPLHeader is the Transport Layer header (short or long form, or
// absent for CI 0x78).
type TPLHeader struct {
	Present      bool
	Long         bool
	Address      *address.Address // only set for the long form
	AccessNr     byte
	Status       byte
	ConfigWord   uint16
	SecurityMode SecurityMode
	NumEncrBlocks int
	CfgExt       uint16
	HasCfgExt    bool
}

// Explanation is one annotated byte-range of the telegram, used for
// the diagnostic `analyze` breakdown (§4.E).
type Explanation struct {
	Offset int
	Length int
	Label  string
}

// Telegram is the fully decoded state of one frame, per §3.
type Telegram struct {
	Frame             []byte // full original frame bytes
	DLL               DLLHeader
	ELL               ELLHeader
	AFL               AFLHeader
	TPL               TPLHeader
	Entries           *dvparser.Entries
	Explanations      []Explanation
	Addresses         []address.Address // DLL address, and TPL long address if present
	DecryptionFailed  bool
	TriggeredWarning  bool
	FormatUnknown     bool // compact frame whose signature wasn't cached yet
	errorCategory     ErrorCategory
}

// EffectiveAddress is the last address seen (TPL long address if
// present, else the DLL address) — the effective meter id per §3.
func (t *Telegram) EffectiveAddress() address.Address {
	if len(t.Addresses) == 0 {
		return address.Address{}
	}
	return t.Addresses[len(t.Addresses)-1]
}

func (t *Telegram) explain(offset, length int, label string) {
	t.Explanations = append(t.Explanations, Explanation{Offset: offset, Length: length, Label: label})
}

// ErrorCategory is the categorised failure token §4.E/§7 requires
// every layer to report on failure.
type ErrorCategory int

const (
	ErrNone ErrorCategory = iota
	ErrIncompleteFrame
	ErrBadCRC
	ErrUnknownCI
	ErrDecryptionFailed
	ErrBadFormat
	ErrMACFailed
	ErrFormatSignatureMiss
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrIncompleteFrame:
		return "IncompleteFrame"
	case ErrBadCRC:
		return "BadCRC"
	case ErrUnknownCI:
		return "UnknownCI"
	case ErrDecryptionFailed:
		return "DecryptionFailed"
	case ErrBadFormat:
		return "BadFormat"
	case ErrMACFailed:
		return "MACFailed"
	case ErrFormatSignatureMiss:
		return "FormatSignatureMiss"
	default:
		return "None"
	}
}

// ParseError wraps the categorised error token alongside the partial
// Telegram so a caller can still inspect addresses/RSSI/CI chain for
// logging even when decoding failed partway through (§4.E, §7).
type ParseError struct {
	Category ErrorCategory
	Telegram *Telegram
	Message  string
}

func (e *ParseError) Error() string {
	return e.Category.String() + ": " + e.Message
}
