package serialmgr

import "sync"

// timerEntry is one named periodic callback: it fires every
// periodTicks calls to tick (ticks are driven by Manager's caller,
// normally once a second, matching §4.K's coarse 1-second timeout).
type timerEntry struct {
	mu          sync.Mutex // try-locked: a still-running callback is skipped rather than overlapped (§4.K/§5)
	periodTicks int
	sinceLast   int
	cb          func()
}

// timerSet holds every registered timer for one Manager.
type timerSet struct {
	mu    sync.Mutex
	byName map[string]*timerEntry
}

func newTimerSet() *timerSet {
	return &timerSet{byName: map[string]*timerEntry{}}
}

// register adds or replaces a named timer firing cb every
// periodTicks ticks.
func (s *timerSet) register(name string, periodTicks int, cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[name] = &timerEntry{periodTicks: periodTicks, cb: cb}
}

// unregister removes a named timer.
func (s *timerSet) unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byName, name)
}

// tick advances every registered timer by one tick, firing any that
// are due. A timer whose callback is still running from a previous
// tick (TryLock fails) is skipped for this tick rather than queued,
// the "tried-locked so a long callback cannot overlap itself"
// discipline from §5.
func (s *timerSet) tick() {
	s.mu.Lock()
	entries := make([]*timerEntry, 0, len(s.byName))
	for _, e := range s.byName {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.sinceLast++
		if e.sinceLast < e.periodTicks {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		e.sinceLast = 0
		cb := e.cb
		go func() {
			defer e.mu.Unlock()
			cb()
		}()
	}
}
