package planner

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wiralab/wira/pkg/config"
	"github.com/wiralab/wira/storage"
)

// Reminder watches the local agenda and notifies the owner shortly before
// an event starts. Each event fires at most once; the dedup map drops an
// entry once its event's start time has passed.
type Reminder struct {
	store    *storage.Storage
	cfg      config.PlannerConfig
	loc      *time.Location
	notify   func(text string)
	mu       sync.Mutex
	notified map[int64]time.Time // event ID -> start time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewReminder creates the reminder loop. notify delivers the message to
// the owner channel.
func NewReminder(store *storage.Storage, cfg config.PlannerConfig, loc *time.Location, notify func(string)) *Reminder {
	if loc == nil {
		loc = time.Local
	}
	return &Reminder{
		store:    store,
		cfg:      cfg,
		loc:      loc,
		notify:   notify,
		notified: make(map[int64]time.Time),
		stop:     make(chan struct{}),
	}
}

// Start runs the ticker loop until Stop is called
func (r *Reminder) Start() {
	interval := r.cfg.ReminderInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Printf("[OK] Reminder: checking agenda every %s", interval)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.checkOnce(time.Now())
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop terminates the loop; safe to call more than once
func (r *Reminder) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// checkOnce fires notifications for events starting inside the window.
// Returns the number of notifications sent.
func (r *Reminder) checkOnce(now time.Time) int {
	window := r.cfg.ReminderWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	events, err := r.store.EventsBetween(now, now.Add(window), 50)
	if err != nil {
		log.Printf("[WARN] Reminder: list events: %v", err)
		return 0
	}

	sent := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, start := range r.notified {
		if start.Before(now) {
			delete(r.notified, id)
		}
	}
	for _, ev := range events {
		if _, seen := r.notified[ev.ID]; seen {
			continue
		}
		r.notified[ev.ID] = ev.StartTime
		minutes := int(ev.StartTime.Sub(now).Minutes())
		if minutes < 0 {
			minutes = 0
		}
		text := fmt.Sprintf("Reminder: %q starts in %d minutes (%s).",
			ev.Summary, minutes, ev.StartTime.In(r.loc).Format("15:04"))
		if r.notify != nil {
			r.notify(text)
		}
		sent++
	}
	return sent
}
