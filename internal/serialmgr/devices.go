// Package serialmgr owns the set of active SerialDevices (§4.K): one
// per-device reader goroutine feeds bytes into the Manager's event
// loop instead of the teacher's C `select()` over raw fds (aclients.go,
// appserver.go) — Go's analogue of a multiplexed read loop is a
// goroutine-per-source fan-in over channels, which is what this
// package builds, keeping the teacher's single-owner-thread semantics
// (§5: one event-loop thread invokes every listener) by draining the
// fan-in channel from a single goroutine in Manager.Run.
package serialmgr

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// SerialDevice is one byte source/sink the Manager multiplexes: a
// real tty, a subprocess pipe, a replay file, stdin, or a simulator.
type SerialDevice interface {
	Name() string
	io.ReadWriteCloser
}

// TTYDevice wraps an already-opened tty or dongle connection (an
// io.ReadWriteCloser, typically a *term.Term via internal/dongle) as
// a named SerialDevice.
type TTYDevice struct {
	name string
	rwc  io.ReadWriteCloser
}

// NewTTYDevice names an existing open connection for the manager.
func NewTTYDevice(name string, rwc io.ReadWriteCloser) *TTYDevice {
	return &TTYDevice{name: name, rwc: rwc}
}

func (d *TTYDevice) Name() string                { return d.name }
func (d *TTYDevice) Read(p []byte) (int, error)  { return d.rwc.Read(p) }
func (d *TTYDevice) Write(p []byte) (int, error) { return d.rwc.Write(p) }
func (d *TTYDevice) Close() error                { return d.rwc.Close() }

// CommandDevice runs an external command and treats its pty-backed
// stdio as the device, the "command subprocess" SerialDevice kind
// (§4.K): a pty is used (rather than plain os/exec pipes) so the
// child sees a real terminal, matching how CMD(...) bus-device
// specifications in §6 are meant to behave.
type CommandDevice struct {
	name string
	cmd  *exec.Cmd
	pty  *os.File
}

// NewCommandDevice starts command (already built via exec.Command)
// attached to a pty, returning the device once the process is
// running.
func NewCommandDevice(name string, cmd *exec.Cmd) (*CommandDevice, error) {
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("serialmgr: could not start command device %s: %w", name, err)
	}
	return &CommandDevice{name: name, cmd: cmd, pty: f}, nil
}

func (d *CommandDevice) Name() string                { return d.name }
func (d *CommandDevice) Read(p []byte) (int, error)  { return d.pty.Read(p) }
func (d *CommandDevice) Write(p []byte) (int, error) { return d.pty.Write(p) }
func (d *CommandDevice) Close() error {
	err := d.pty.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	return err
}

// SimulatorDevice is a pty-backed device whose other end is driven
// entirely in-process by a feed function instead of a real command,
// used by `analyze`-style replay/testing (§6's "analyze mode (driver
// and key override for replaying frames)") without needing an actual
// subprocess.
type SimulatorDevice struct {
	name   string
	master *os.File
	slave  *os.File
}

// NewSimulatorDevice opens a pty pair; Feed writes synthetic bytes in
// on the slave side so Manager's reads on the master side see them
// exactly as it would a real tty.
func NewSimulatorDevice(name string) (*SimulatorDevice, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("serialmgr: could not open simulator pty for %s: %w", name, err)
	}
	return &SimulatorDevice{name: name, master: master, slave: slave}, nil
}

func (d *SimulatorDevice) Name() string                { return d.name }
func (d *SimulatorDevice) Read(p []byte) (int, error)  { return d.master.Read(p) }
func (d *SimulatorDevice) Write(p []byte) (int, error) { return d.master.Write(p) }
func (d *SimulatorDevice) Close() error {
	err := d.master.Close()
	if slaveErr := d.slave.Close(); err == nil {
		err = slaveErr
	}
	return err
}

// Feed injects bytes as if they had arrived over the simulated link.
func (d *SimulatorDevice) Feed(b []byte) error {
	_, err := d.slave.Write(b)
	return err
}

// FileDevice replays a file's bytes once, then reports io.EOF, the
// "replay a captured telegram log" device kind.
type FileDevice struct {
	name string
	f    *os.File
}

// NewFileDevice opens path for replay.
func NewFileDevice(name, path string) (*FileDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("serialmgr: could not open replay file %s: %w", path, err)
	}
	return &FileDevice{name: name, f: f}, nil
}

func (d *FileDevice) Name() string               { return d.name }
func (d *FileDevice) Read(p []byte) (int, error) { return d.f.Read(p) }
func (d *FileDevice) Write([]byte) (int, error)  { return 0, fmt.Errorf("serialmgr: file device %s is read-only", d.name) }
func (d *FileDevice) Close() error                { return d.f.Close() }

// StdinDevice treats the process's stdin as a device, e.g. for piping
// a capture into the core for analysis.
type StdinDevice struct{ name string }

// NewStdinDevice names stdin as a device.
func NewStdinDevice(name string) *StdinDevice { return &StdinDevice{name: name} }

func (d *StdinDevice) Name() string               { return d.name }
func (d *StdinDevice) Read(p []byte) (int, error) { return os.Stdin.Read(p) }
func (d *StdinDevice) Write([]byte) (int, error) {
	return 0, fmt.Errorf("serialmgr: stdin device %s is read-only", d.name)
}
func (d *StdinDevice) Close() error { return nil }
