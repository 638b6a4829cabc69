package serialmgr

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeDevice is an in-memory SerialDevice backed by an io.Pipe, used
// to drive Manager tests without a real tty or pty.
type pipeDevice struct {
	name string
	r    *io.PipeReader
	w    *io.PipeWriter
}

func newPipeDevice(name string) (*pipeDevice, *io.PipeWriter) {
	r, w := io.Pipe()
	return &pipeDevice{name: name, r: r, w: w}, w
}

func (d *pipeDevice) Name() string                { return d.name }
func (d *pipeDevice) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *pipeDevice) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }
func (d *pipeDevice) Close() error                { return d.r.Close() }

func TestManagerDispatchesBytes(t *testing.T) {
	m := NewManager(false)
	dev, feed := newPipeDevice("dev1")

	var mu sync.Mutex
	var got []byte
	m.AddDevice(dev, func(b []byte) {
		mu.Lock()
		got = append(got, b...)
		mu.Unlock()
	})

	go m.Run(Ticker(50 * time.Millisecond))

	_, err := feed.Write([]byte("hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got) == "hello"
	}, time.Second, 5*time.Millisecond)

	m.Stop()
}

func TestManagerRemoveDeviceRequestsShutdown(t *testing.T) {
	m := NewManager(true)
	dev, feed := newPipeDevice("only")
	m.AddDevice(dev, func([]byte) {})

	go m.Run(Ticker(50 * time.Millisecond))

	require.NoError(t, feed.Close()) // device EOFs, Manager should remove it

	select {
	case <-m.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("expected shutdown request after last device closed")
	}

	m.Stop()
}

func TestTimerFiresAndSkipsOverlap(t *testing.T) {
	s := newTimerSet()
	var mu sync.Mutex
	fires := 0
	release := make(chan struct{})
	s.register("slow", 1, func() {
		mu.Lock()
		fires++
		mu.Unlock()
		<-release
	})

	s.tick() // first fire, callback blocks on release
	time.Sleep(20 * time.Millisecond)
	s.tick() // callback still running; TryLock should skip this tick
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, fires)
	mu.Unlock()

	close(release)
}
