package orchestrator

import (
	"sync"
	"time"
)

// Debouncer collects rapid-fire messages per conversation and releases them
// as one batch after a quiet period. A batch whose timer fires while the
// previous flush is still running stays queued and is re-armed when the
// flush completes, so flushes for one conversation never overlap.
type Debouncer struct {
	window time.Duration
	flush  func(key string, items []Message)

	mu      sync.Mutex
	batches map[string]*batch
}

type batch struct {
	mu    sync.Mutex
	items []Message
	timer *time.Timer
	busy  bool
}

// NewDebouncer creates a debouncer that calls flush with each released batch
func NewDebouncer(window time.Duration, flush func(key string, items []Message)) *Debouncer {
	return &Debouncer{
		window:  window,
		flush:   flush,
		batches: make(map[string]*batch),
	}
}

// Add queues a message and restarts the quiet-period timer for its
// conversation.
func (d *Debouncer) Add(key string, msg Message) {
	b := d.batchFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, msg)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(d.window, func() { d.fire(key) })
}

// Pending reports how many messages are queued for a conversation
func (d *Debouncer) Pending(key string) int {
	b := d.batchFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stop cancels all pending timers. Queued messages are dropped.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.batches {
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
		}
		b.items = nil
		b.mu.Unlock()
	}
}

func (d *Debouncer) batchFor(key string) *batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.batches[key]
	if !ok {
		b = &batch{}
		d.batches[key] = b
	}
	return b
}

func (d *Debouncer) fire(key string) {
	b := d.batchFor(key)

	b.mu.Lock()
	if b.busy || len(b.items) == 0 {
		// a flush is in progress; whatever is queued rides the next batch
		b.mu.Unlock()
		return
	}
	items := b.items
	b.items = nil
	b.busy = true
	b.mu.Unlock()

	d.flush(key, items)

	b.mu.Lock()
	b.busy = false
	if len(b.items) > 0 {
		if b.timer != nil {
			b.timer.Stop()
		}
		b.timer = time.AfterFunc(d.window, func() { d.fire(key) })
	}
	b.mu.Unlock()
}
