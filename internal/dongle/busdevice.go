package dongle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is a BusDevice's position in the per-device state machine
// described in §4.J: Closed -> Opened -> LinkModesSet -> Running,
// with a transient TransmittingTemp excursion for polled sends.
type State int

const (
	Closed State = iota
	Opened
	LinkModesSet
	Running
	TransmittingTemp
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Opened:
		return "Opened"
	case LinkModesSet:
		return "LinkModesSet"
	case Running:
		return "Running"
	case TransmittingTemp:
		return "TransmittingTemp"
	default:
		return "unknown"
	}
}

// TelegramListener receives one fully decoded wM-Bus frame as it
// arrives off a BusDevice, along with the RSSI in dBm if the device
// reported one (0 if not).
type TelegramListener func(frame []byte, rssiDBm float64)

// BusDevice is the contract §4.J asks both dongles to share: ping,
// identify, negotiate link modes, transmit, and push received frames
// to a registered listener.
type BusDevice interface {
	Ping(ctx context.Context) error
	GetDeviceID(ctx context.Context) (string, error)
	GetDeviceUniqueID(ctx context.Context) (string, error)
	GetLinkModes() LinkModeSet
	SupportedLinkModes() LinkModeSet
	CanSetLinkModes(want LinkModeSet) bool
	SetLinkModes(ctx context.Context, want LinkModeSet) error
	SendTelegram(ctx context.Context, format byte, data []byte) error
	OnTelegram(fn TelegramListener)
	State() State
	Close() error

	// HandleBytes feeds newly read raw bytes into the device's frame
	// decoder. The caller (normally internal/serialmgr's Manager) owns
	// reading the underlying port; HandleBytes owns everything past
	// that point: resync, command/telegram dispatch, and driving
	// OnTelegram's listener.
	HandleBytes(b []byte)

	// RawPort exposes the underlying connection so a Manager can read
	// from it directly and hand the bytes back via HandleBytes.
	RawPort() port
}

// port is the subset of *term.Term a BusDevice needs, factored out so
// tests can substitute an in-memory fake instead of a real tty.
type port interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// ErrSpecifiedDeviceNotFound is the alarm surfaced (per §4.J) when
// setting link modes fails three times in a row.
var ErrSpecifiedDeviceNotFound = fmt.Errorf("dongle: device did not respond to SET_CONFIG after 3 attempts")

// common bundles the per-device fields §4.J lists for both dongles:
// negotiated link modes, the last mode actually requested, whether
// the firmware is expected to tag frames with RSSI, a command mutex
// serialising request/response pairs, a response channel standing in
// for the teacher's response semaphore, and the receive accumulator.
type common struct {
	mu sync.Mutex // LOCK_WMBUS_EXECUTING_COMMAND: serialises one in-flight command at a time

	port port

	state        State
	linkModes    LinkModeSet
	lastSetMode  LinkModeSet
	rssiExpected bool

	accMu sync.Mutex // LOCK_WMBUS_RECEIVING_BUFFER
	acc   []byte

	resp chan []byte

	listener TelegramListener
}

func newCommon(p port) *common {
	return &common{port: p, state: Opened, resp: make(chan []byte, 1)}
}

func (c *common) State() State { return c.state }

// RawPort returns the underlying connection for a Manager to read
// from directly.
func (c *common) RawPort() port { return c.port }

func (c *common) OnTelegram(fn TelegramListener) { c.listener = fn }

func (c *common) Close() error {
	c.state = Closed
	return c.port.Close()
}

// appendAccumulator feeds newly read bytes into the per-device buffer
// under its mutex (a plain, non-recursive sync.Mutex), per §4.J's
// "buffered accumulator".
func (c *common) appendAccumulator(b []byte) {
	c.accMu.Lock()
	defer c.accMu.Unlock()
	c.acc = append(c.acc, b...)
}

// drainAccumulator removes and returns the first n bytes of the
// accumulator.
func (c *common) drainAccumulator(n int) []byte {
	c.accMu.Lock()
	defer c.accMu.Unlock()
	if n > len(c.acc) {
		n = len(c.acc)
	}
	out := append([]byte(nil), c.acc[:n]...)
	c.acc = c.acc[n:]
	return out
}

func (c *common) accumulatorLen() int {
	c.accMu.Lock()
	defer c.accMu.Unlock()
	return len(c.acc)
}

// waitResponse blocks for a command response frame or ctx/timeout,
// mirroring the teacher's bounded pthread_cond_timedwait discipline
// (§5): no wait is unbounded.
func (c *common) waitResponse(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case b := <-c.resp:
		return b, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("dongle: timed out waiting for response")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *common) deliverResponse(b []byte) {
	select {
	case c.resp <- b:
	default:
		// a stale response nobody is waiting for anymore; drop it.
	}
}
