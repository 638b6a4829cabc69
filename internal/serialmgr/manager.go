package serialmgr

import (
	"fmt"
	"sync"
)

// event is one batch of bytes read off a device, or its departure.
type event struct {
	device string
	data   []byte
	err    error
}

// Manager owns a set of SerialDevices and drives per-device read
// callbacks from a single goroutine (§4.K/§5: "One event-loop thread
// owns the serial-device set and all reads... the only thread that
// invokes telegram listeners"). Each device gets its own reader
// goroutine feeding a shared event channel; Run drains that channel
// alone, so callback invocation is always single-threaded even though
// reads themselves happen concurrently.
type Manager struct {
	mu      sync.Mutex
	devices map[string]SerialDevice
	onBytes map[string]func([]byte)

	events chan event
	stop   chan struct{}
	done   chan struct{}

	// expectDevicesToWork mirrors §4.K: once every device has closed,
	// request shutdown only if the manager was told devices were
	// supposed to keep working (vs. a deliberate "run dry" replay).
	expectDevicesToWork bool
	shutdownRequested   chan struct{}

	timers *timerSet
}

// NewManager returns an empty Manager. expectDevicesToWork controls
// whether losing every device triggers a shutdown request.
func NewManager(expectDevicesToWork bool) *Manager {
	return &Manager{
		devices:             map[string]SerialDevice{},
		onBytes:             map[string]func([]byte){},
		events:              make(chan event, 16),
		stop:                make(chan struct{}),
		done:                make(chan struct{}),
		expectDevicesToWork: expectDevicesToWork,
		shutdownRequested:   make(chan struct{}, 1),
		timers:              newTimerSet(),
	}
}

// AddDevice registers d and starts its reader goroutine. onBytes is
// invoked (from Run's single goroutine) for every chunk read from d
// until it is removed or closes.
func (m *Manager) AddDevice(d SerialDevice, onBytes func([]byte)) {
	m.mu.Lock()
	m.devices[d.Name()] = d
	m.onBytes[d.Name()] = onBytes
	m.mu.Unlock()

	go m.readLoop(d)
}

func (m *Manager) readLoop(d SerialDevice) {
	buf := make([]byte, 4096)
	for {
		n, err := d.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case m.events <- event{device: d.Name(), data: chunk}:
			case <-m.stop:
				return
			}
		}
		if err != nil {
			select {
			case m.events <- event{device: d.Name(), err: err}:
			case <-m.stop:
			}
			return
		}
	}
}

// RemoveDevice closes and forgets d, the notification path §4.K
// describes ("Device close notifies manager").
func (m *Manager) RemoveDevice(name string) error {
	m.mu.Lock()
	d, ok := m.devices[name]
	if ok {
		delete(m.devices, name)
		delete(m.onBytes, name)
	}
	remaining := len(m.devices)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("serialmgr: no such device %q", name)
	}
	err := d.Close()
	if remaining == 0 && m.expectDevicesToWork {
		select {
		case m.shutdownRequested <- struct{}{}:
		default:
		}
	}
	return err
}

// RegisterTimer adds a named periodic callback, delegating to the
// shared timerSet (timer.go). Run's goroutine drives the timer tick;
// each due callback then runs on a goroutine of its own, and a
// callback still running from an earlier tick is skipped, not overlapped.
func (m *Manager) RegisterTimer(name string, periodTicks int, cb func()) {
	m.timers.register(name, periodTicks, cb)
}

// ShutdownRequested reports whether losing every expected device has
// asked the caller to stop.
func (m *Manager) ShutdownRequested() <-chan struct{} { return m.shutdownRequested }

// Run drains events and drives the coarse timer tick (§4.K: "a
// select over their fds plus a coarse (1-second) timeout") until
// Stop is called. It returns when the loop has fully exited, so a
// caller can safely free shared state right after (§5: "destructors
// wait for the loop to actually exit").
func (m *Manager) Run(tick <-chan struct{}) {
	defer close(m.done)
	for {
		select {
		case ev := <-m.events:
			m.dispatch(ev)
		case <-tick:
			m.timers.tick()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) dispatch(ev event) {
	m.mu.Lock()
	cb := m.onBytes[ev.device]
	m.mu.Unlock()
	if ev.err != nil {
		_ = m.RemoveDevice(ev.device)
		return
	}
	if cb != nil {
		cb(ev.data)
	}
}

// Stop breaks Run's loop. Idempotent: calling it twice is safe.
func (m *Manager) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}
