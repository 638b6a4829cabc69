package dongle

import (
	"fmt"
	"time"

	"github.com/pkg/term"
)

// Kind selects which dongle protocol a device path speaks.
type Kind int

const (
	KindIM871A Kind = iota
	KindAMB8465
)

// Open opens devicename in raw mode at bps (§4.J Open transition:
// "acquire tty ... configure baud 9600/57600, flush rx"), following
// the teacher's serial_port_open: github.com/pkg/term in raw mode,
// with an explicit switch over the handful of bps values a dongle
// actually uses.
func Open(devicename string, kind Kind, bps int) (BusDevice, error) {
	t, err := term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("dongle: could not open %s: %w", devicename, err)
	}
	switch bps {
	case 0:
		// leave it alone
	case 9600, 57600:
		if err := t.SetSpeed(bps); err != nil {
			t.Close()
			return nil, fmt.Errorf("dongle: could not set speed %d on %s: %w", bps, devicename, err)
		}
	default:
		t.Close()
		return nil, fmt.Errorf("dongle: unsupported speed %d for %s", bps, devicename)
	}
	t.Flush()

	switch kind {
	case KindIM871A:
		return NewIM871A(t), nil
	case KindAMB8465:
		return NewAMB8465(t), nil
	default:
		t.Close()
		return nil, fmt.Errorf("dongle: unknown dongle kind %d", kind)
	}
}

// Watchdog triggers reset when no telegram has arrived within window
// of the last one, the "dead-man timer" described in §4.J's Reset
// transition and §5's per-bus-device watchdog.
type Watchdog struct {
	window     time.Duration
	lastActive time.Time
	reset      func()
}

// NewWatchdog returns a Watchdog that calls reset if Touch isn't
// called again within window.
func NewWatchdog(window time.Duration, reset func()) *Watchdog {
	return &Watchdog{window: window, lastActive: time.Now(), reset: reset}
}

// Touch records activity (a telegram arrived), resetting the window.
func (w *Watchdog) Touch() { w.lastActive = time.Now() }

// Check fires reset if the window has elapsed since the last Touch.
// Intended to be called from the 1-second coarse timer the serial
// manager already runs (§4.K).
func (w *Watchdog) Check() {
	if time.Since(w.lastActive) >= w.window {
		w.lastActive = time.Now()
		w.reset()
	}
}
