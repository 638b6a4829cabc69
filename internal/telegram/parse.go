package telegram

import (
	"fmt"

	"github.com/wmbusmeters/wmbusmeters-sub001/internal/dvparser"
)

// KeyLookup resolves the AES key for a given meter address, returning
// ok=false when no key is configured (e.g. an unencrypted meter, or
// one the caller hasn't been given a key for yet).
type KeyLookup func(addr string) (key []byte, ok bool)

// Parser holds the shared, cross-telegram state the layered decode
// needs: the compact-frame format-signature cache (§5) and the
// caller's key lookup.
type Parser struct {
	Signatures *dvparser.FormatSignatureCache
	Keys       KeyLookup
}

// NewParser returns a Parser with a fresh signature cache.
func NewParser(keys KeyLookup) *Parser {
	return &Parser{Signatures: dvparser.NewFormatSignatureCache(), Keys: keys}
}

// Parse decodes one complete wM-Bus frame: DLL, optional ELL, optional
// AFL, TPL, decryption, and the DIF/VIF application payload, in that
// layer order (§4.E).
func (p *Parser) Parse(frame []byte) (*Telegram, error) {
	t := &Telegram{Frame: frame}

	dll, pos, err := parseDLL(frame)
	if err != nil {
		return t, &ParseError{Category: ErrIncompleteFrame, Telegram: t, Message: err.Error()}
	}
	t.DLL = dll
	t.Addresses = append(t.Addresses, dll.Address)
	t.explain(0, pos, "DLL")

	ell, newPos, err := parseELL(frame, pos)
	if err != nil {
		return t, &ParseError{Category: ErrBadFormat, Telegram: t, Message: err.Error()}
	}
	if ell.Present {
		t.explain(pos, newPos-pos, "ELL")
	}
	t.ELL = ell
	pos = newPos

	afl, newPos, err := parseAFL(frame, pos)
	if err != nil {
		return t, &ParseError{Category: ErrBadFormat, Telegram: t, Message: err.Error()}
	}
	if afl.Present {
		t.explain(pos, newPos-pos, "AFL")
	}
	t.AFL = afl
	pos = newPos

	tplStart := pos
	tpl, newPos, err := parseTPL(frame, pos)
	if err != nil {
		return t, &ParseError{Category: ErrUnknownCI, Telegram: t, Message: err.Error()}
	}
	t.explain(tplStart, newPos-tplStart, "TPL")
	t.TPL = tpl
	pos = newPos
	if tpl.Long && tpl.Address != nil {
		t.Addresses = append(t.Addresses, *tpl.Address)
	}

	wasCompact := frame[tplStart] == ciCompact

	payload := frame[pos:]

	effMode := tpl.SecurityMode
	if ell.Present {
		effMode = ell.SecurityMode
	}

	plaintext := payload
	if effMode != SecurityNone {
		key, ok := p.Keys(t.EffectiveAddress().ID)
		if !ok {
			return t, &ParseError{Category: ErrDecryptionFailed, Telegram: t, Message: "no key configured for meter"}
		}
		accessNr := tpl.AccessNr
		if ell.Present {
			accessNr = ell.AccessNr
		}
		decrypted, err := decryptPayload(effMode, key, t.EffectiveAddress(), accessNr, payload)
		if err != nil {
			t.DecryptionFailed = true
			return t, &ParseError{Category: ErrDecryptionFailed, Telegram: t, Message: err.Error()}
		}
		if effMode == SecurityAESCBCIV || effMode == SecurityAESCBCNoIV {
			if !verifySentinel(decrypted) {
				t.DecryptionFailed = true
				return t, &ParseError{Category: ErrDecryptionFailed, Telegram: t, Message: "decrypted payload missing 0x2F2F sentinel, wrong key"}
			}
			decrypted = decrypted[2:]
		}
		if afl.MustCheckMAC {
			ok, err := verifyMAC(key, payload, afl.MAC)
			if err != nil {
				return t, &ParseError{Category: ErrMACFailed, Telegram: t, Message: err.Error()}
			}
			if !ok {
				return t, &ParseError{Category: ErrMACFailed, Telegram: t, Message: "AFL MAC verification failed"}
			}
		}
		plaintext = decrypted
		t.explain(pos, len(payload), "encrypted payload")
	} else {
		t.explain(pos, len(payload), "payload")
	}

	if wasCompact {
		formatBytes, data, sig, err := resolveCompactFrame(p.Signatures, plaintext)
		if err != nil {
			t.FormatUnknown = true
			return t, &ParseError{Category: ErrFormatSignatureMiss, Telegram: t, Message: fmt.Sprintf("%v (signature 0x%04X)", err, sig)}
		}
		plaintext = assembleCompactPayload(formatBytes, data)
	}

	result, err := dvparser.ParseDVEntries(plaintext, pos)
	if err != nil {
		return t, &ParseError{Category: ErrBadFormat, Telegram: t, Message: err.Error()}
	}
	t.Entries = result.Entries

	if !wasCompact && len(result.FormatBytes) > 0 {
		p.Signatures.Remember(result.FormatBytes)
	}

	return t, nil
}
