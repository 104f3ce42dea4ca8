package managers

import (
	"sync"
	"time"
)

// saver debounces a disk write: every Schedule (re)starts the delay
// timer, so only the last call within any window actually runs fn.
// Re-arming atomically replaces the pending run; two saves never race.
type saver struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fn    func()
}

func newSaver(delay time.Duration, fn func()) *saver {
	return &saver{delay: delay, fn: fn}
}

func (s *saver) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.fn()
	})
}

// Flush cancels any pending run and writes immediately. Used on
// shutdown so a debounced save is not lost.
func (s *saver) Flush() {
	s.mu.Lock()
	pending := s.timer != nil
	if pending {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	if pending {
		s.fn()
	}
}

// Stop cancels any pending run without writing.
func (s *saver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
