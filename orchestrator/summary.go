package orchestrator

import (
	"sync"
	"time"
)

// SummaryScheduler arms a per-conversation inactivity timer. Each Touch
// re-arms the timer; when a conversation stays quiet for the whole window
// the fire callback runs from the timer goroutine and rolls the history
// into a summary. A conversation that never speaks again still gets
// summarized.
type SummaryScheduler struct {
	window time.Duration
	fire   func(key string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewSummaryScheduler creates a scheduler calling fire after each quiet window
func NewSummaryScheduler(window time.Duration, fire func(key string)) *SummaryScheduler {
	return &SummaryScheduler{
		window: window,
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// Touch records activity: the conversation's timer restarts from zero
func (s *SummaryScheduler) Touch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.window, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		s.fire(key)
	})
}

// Stop cancels all pending timers
func (s *SummaryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
