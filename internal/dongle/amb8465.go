package dongle

import (
	"context"
	"fmt"
	"time"
)

// Amber AMB8465 HCI framing (§4.J): outbound command frames are
// SOF=0xFF | cmd | len | payload | xor-checksum. Inbound command
// responses share the same 0xFF prefix; radio-received telegrams
// instead arrive as bare length-prefixed frames (no SOF, no command
// byte) optionally followed by one RSSI byte.
const (
	amb8465SOF = 0xFF

	amb8465CmdPing      = 0x68
	amb8465CmdPingRsp   = 0x69
	amb8465CmdGetSerial = 0x32
	amb8465CmdSetConfig = 0x09
	amb8465CmdSend      = 0x76
)

// AMB8465 is a BusDevice for the Amber Wireless AMB8465 module.
type AMB8465 struct {
	*common
	txLinkMode LinkMode
}

// NewAMB8465 wraps an already-opened port as an AMB8465 BusDevice.
func NewAMB8465(p port) *AMB8465 {
	return &AMB8465{common: newCommon(p)}
}

func amb8465Checksum(cmd, length byte, payload []byte) byte {
	c := byte(amb8465SOF) ^ cmd ^ length
	for _, b := range payload {
		c ^= b
	}
	return c
}

func (d *AMB8465) sendCommand(cmd byte, payload []byte) error {
	length := byte(len(payload))
	frame := append([]byte{amb8465SOF, cmd, length}, payload...)
	frame = append(frame, amb8465Checksum(cmd, length, payload))
	_, err := d.port.Write(frame)
	return err
}

// isValidCField reports whether b looks like a plausible wM-Bus
// C-field, used by the resync scanner to confirm a candidate
// length-prefixed telegram frame rather than noise (§4.J: "Parser
// resyncs by scanning for a valid length | valid-C-field pair").
func isValidCField(b byte) bool {
	switch b {
	case 0x44, 0x46, 0x53, 0x5B, 0x7B, 0x69, 0x6B:
		return true
	}
	return b >= 0x10 && b <= 0x5F || b >= 0x68 && b <= 0x7F
}

// ParseAMB8465Frame decodes one frame from the start of buf. A
// leading 0xFF is a command response: cmd, len, payload, checksum
// (validated). Otherwise it is a radio telegram: a length byte, that
// many bytes whose first byte must be a valid C-field, and an
// optional trailing RSSI byte (taken whenever at least one more byte
// than the declared length is available; that byte is not checked).
func ParseAMB8465Frame(buf []byte) (isCommand bool, cmd byte, payload []byte, rssi *byte, consumed int, err error) {
	if len(buf) == 0 {
		return false, 0, nil, nil, 0, nil
	}
	if buf[0] == amb8465SOF {
		if len(buf) < 3 {
			return false, 0, nil, nil, 0, nil
		}
		cmd = buf[1]
		length := int(buf[2])
		total := 3 + length + 1
		if len(buf) < total {
			return false, 0, nil, nil, 0, nil
		}
		payload = buf[3 : 3+length]
		want := buf[3+length]
		got := amb8465Checksum(cmd, byte(length), payload)
		if got != want {
			return false, 0, nil, nil, total, fmt.Errorf("dongle: AMB8465 checksum mismatch")
		}
		return true, cmd, payload, nil, total, nil
	}

	// Resync: scan forward for a length byte followed by a valid
	// C-field, dropping anything before it.
	for start := 0; start < len(buf); start++ {
		length := int(buf[start])
		if length == 0 || start+1+length > len(buf) {
			continue
		}
		if !isValidCField(buf[start+1]) {
			continue
		}
		frame := buf[start+1 : start+1+length]
		consumed = start + 1 + length
		if len(buf) > consumed {
			r := buf[consumed]
			rssi = &r
			consumed++
		}
		return false, 0, frame, rssi, consumed, nil
	}
	return false, 0, nil, nil, len(buf), nil // nothing usable found; drop it all
}

// Ping sends PING and waits for PING_RSP.
func (d *AMB8465) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sendCommand(amb8465CmdPing, nil); err != nil {
		return err
	}
	_, err := d.waitResponse(ctx, 2*time.Second)
	return err
}

func (d *AMB8465) GetDeviceID(ctx context.Context) (string, error) {
	return d.GetDeviceUniqueID(ctx)
}

func (d *AMB8465) GetDeviceUniqueID(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sendCommand(amb8465CmdGetSerial, nil); err != nil {
		return "", err
	}
	resp, err := d.waitResponse(ctx, 2*time.Second)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%X", resp), nil
}

func (d *AMB8465) GetLinkModes() LinkModeSet { return d.linkModes }

// SupportedLinkModes: the AMB8465 is an S-mode/T-mode radio; it does
// not speak the compact-installation C-modes.
func (d *AMB8465) SupportedLinkModes() LinkModeSet {
	var s LinkModeSet
	return s.Set(S1).Set(S1m).Set(S2).Set(T1).Set(T2)
}

func (d *AMB8465) CanSetLinkModes(want LinkModeSet) bool {
	return want&^d.SupportedLinkModes() == 0
}

func (d *AMB8465) SetLinkModes(ctx context.Context, want LinkModeSet) error {
	if !d.CanSetLinkModes(want) {
		return fmt.Errorf("dongle: AMB8465 cannot set link modes %s", want)
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		d.mu.Lock()
		err := d.sendCommand(amb8465CmdSetConfig, []byte{byte(want), byte(want >> 8)})
		var resp []byte
		if err == nil {
			resp, err = d.waitResponse(ctx, 2*time.Second)
		}
		d.mu.Unlock()
		if err == nil && len(resp) > 0 && resp[0] == 0 {
			d.linkModes = want
			d.lastSetMode = want
			d.state = LinkModesSet
			return nil
		}
		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("dongle: AMB8465 SET_CONFIG rejected")
		}
	}
	return fmt.Errorf("%w: %v", ErrSpecifiedDeviceNotFound, lastErr)
}

// SendTelegram sends one telegram with the SEND command while the
// device state reads TransmittingTemp, then restores the previous
// state and link-mode set. It issues no link-mode command to the
// module: no transmit mode is selected before sending and no receive
// mode is re-sent afterwards.
func (d *AMB8465) SendTelegram(ctx context.Context, format byte, data []byte) error {
	d.mu.Lock()
	receiveMode := d.linkModes
	prevState := d.state
	d.state = TransmittingTemp

	err := d.sendCommand(amb8465CmdSend, append([]byte{format}, data...))
	if err == nil {
		_, err = d.waitResponse(ctx, 100*time.Second)
	}

	d.linkModes = receiveMode
	d.state = prevState
	d.mu.Unlock()
	return err
}

// HandleBytes feeds newly read bytes into the accumulator and
// dispatches complete frames, command responses to the waiting
// caller and radio telegrams to the listener.
func (d *AMB8465) HandleBytes(b []byte) {
	d.appendAccumulator(b)
	for {
		buf := d.drainAccumulator(d.accumulatorLen())
		isCommand, _, payload, rssi, consumed, err := ParseAMB8465Frame(buf)
		if consumed == 0 && err == nil {
			d.appendAccumulator(buf)
			return
		}
		if consumed < len(buf) {
			d.appendAccumulator(buf[consumed:])
		}
		if err != nil || consumed == 0 || payload == nil {
			continue
		}
		if isCommand {
			d.deliverResponse(payload)
			continue
		}
		rssiDBm := 0.0
		if rssi != nil {
			rssiDBm = rssiToDBm(*rssi)
		}
		if d.listener != nil {
			d.listener(payload, rssiDBm)
		}
	}
}
