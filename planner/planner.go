// Package planner executes agenda, task, note and whitelist actions against
// local storage, and renders the schedule context for prompt assembly.
package planner

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wiralab/wira/pkg/config"
	"github.com/wiralab/wira/storage"
	"github.com/wiralab/wira/toolcall"
)

// Executor implements toolcall.Executor on top of local storage
type Executor struct {
	store *storage.Storage
	cfg   config.PlannerConfig
	loc   *time.Location

	availOnce sync.Once
	available bool
}

// NewExecutor creates the agenda executor. loc drives all date parsing
// and rendering.
func NewExecutor(store *storage.Storage, cfg config.PlannerConfig, loc *time.Location) *Executor {
	if loc == nil {
		loc = time.Local
	}
	return &Executor{store: store, cfg: cfg, loc: loc}
}

// ensureAvailable probes storage exactly once. Executors with a dead
// backend decline every action for the lifetime of the process rather
// than retrying.
func (e *Executor) ensureAvailable() bool {
	e.availOnce.Do(func() {
		if e.store == nil {
			log.Print("[WARN] Planner: no storage backend, actions disabled")
			return
		}
		if _, err := e.store.PendingTasks(1); err != nil {
			log.Printf("[WARN] Planner: storage probe failed, actions disabled: %v", err)
			return
		}
		e.available = true
	})
	return e.available
}

// Execute dispatches one validated action. An empty result with nil error
// means the action was declined; the caller keeps the span visible.
func (e *Executor) Execute(action *toolcall.Action) (string, error) {
	if !e.ensureAvailable() {
		return "", nil
	}
	switch action.Kind {
	case toolcall.ActionCreateEvent:
		return e.createEvent(action)
	case toolcall.ActionEditEvent:
		return e.editEvent(action)
	case toolcall.ActionDeleteEvent:
		return e.deleteEvent(action)
	case toolcall.ActionCreateTask:
		return e.createTask(action)
	case toolcall.ActionEditTask:
		return e.editTask(action)
	case toolcall.ActionDeleteTask:
		return e.deleteTask(action)
	case toolcall.ActionAddNote:
		return e.addNote(action)
	case toolcall.ActionEditNote:
		return e.editNote(action)
	case toolcall.ActionDeleteNote:
		return e.deleteNote()
	case toolcall.ActionAddAllowedNumber, toolcall.ActionEditAllowedNumber:
		return e.upsertAllowedNumber(action)
	case toolcall.ActionRemoveAllowedNumber:
		return e.removeAllowedNumber(action)
	case toolcall.ActionAddAllowedGroup, toolcall.ActionEditAllowedGroup:
		return e.upsertAllowedGroup(action)
	case toolcall.ActionRemoveAllowedGroup:
		return e.removeAllowedGroup(action)
	}
	return "", nil
}

func (e *Executor) createEvent(a *toolcall.Action) (string, error) {
	summary := strings.TrimSpace(a.Param("summary"))
	if summary == "" {
		summary = strings.TrimSpace(a.Param("title"))
	}
	if summary == "" {
		return "", fmt.Errorf("create_event: missing summary")
	}
	start := e.parseWhen(a.Param("start"), e.defaultStart())
	end := e.parseWhen(a.Param("end"), start.Add(time.Hour))
	if !end.After(start) {
		end = start.Add(time.Hour)
	}
	id, err := e.store.CreateEvent(summary, start, end)
	if err != nil {
		return "", fmt.Errorf("create_event: %w", err)
	}
	return fmt.Sprintf("Event created: %q on %s (ID %d)", summary, e.formatTime(start), id), nil
}

func (e *Executor) editEvent(a *toolcall.Action) (string, error) {
	id, ok := actionID(a)
	if !ok {
		return "", fmt.Errorf("edit_event: missing id")
	}
	summary := strings.TrimSpace(a.Param("summary"))
	var start, end *time.Time
	if raw := a.Param("start"); raw != "" {
		t := e.parseWhen(raw, time.Time{})
		if !t.IsZero() {
			start = &t
		}
	}
	if raw := a.Param("end"); raw != "" {
		t := e.parseWhen(raw, time.Time{})
		if !t.IsZero() {
			end = &t
		}
	}
	updated, err := e.store.UpdateEvent(id, summary, start, end)
	if err != nil {
		return "", fmt.Errorf("edit_event: %w", err)
	}
	if !updated {
		return fmt.Sprintf("Event %d not found.", id), nil
	}
	return fmt.Sprintf("Event %d updated.", id), nil
}

func (e *Executor) deleteEvent(a *toolcall.Action) (string, error) {
	id, ok := actionID(a)
	if !ok {
		return "", fmt.Errorf("delete_event: missing id")
	}
	deleted, err := e.store.DeleteEvent(id)
	if err != nil {
		return "", fmt.Errorf("delete_event: %w", err)
	}
	if !deleted {
		return fmt.Sprintf("Event %d not found.", id), nil
	}
	return fmt.Sprintf("Event %d deleted.", id), nil
}

func (e *Executor) createTask(a *toolcall.Action) (string, error) {
	title := strings.TrimSpace(a.Param("title"))
	if title == "" {
		return "", fmt.Errorf("create_task: missing title")
	}
	var due *time.Time
	if raw := a.Param("due"); raw != "" {
		t := e.parseWhen(raw, time.Time{})
		if !t.IsZero() {
			due = &t
		}
	}
	id, err := e.store.CreateTask(title, due)
	if err != nil {
		return "", fmt.Errorf("create_task: %w", err)
	}
	return fmt.Sprintf("Task created: %q (ID %d)", title, id), nil
}

func (e *Executor) editTask(a *toolcall.Action) (string, error) {
	id, ok := actionID(a)
	if !ok {
		return "", fmt.Errorf("edit_task: missing id")
	}
	title := strings.TrimSpace(a.Param("title"))
	var due *time.Time
	if raw := a.Param("due"); raw != "" {
		t := e.parseWhen(raw, time.Time{})
		if !t.IsZero() {
			due = &t
		}
	}
	updated, err := e.store.UpdateTask(id, title, due)
	if err != nil {
		return "", fmt.Errorf("edit_task: %w", err)
	}
	if !updated {
		return fmt.Sprintf("Task %d not found.", id), nil
	}
	return fmt.Sprintf("Task %d updated.", id), nil
}

func (e *Executor) deleteTask(a *toolcall.Action) (string, error) {
	id, ok := actionID(a)
	if !ok {
		return "", fmt.Errorf("delete_task: missing id")
	}
	deleted, err := e.store.DeleteTask(id)
	if err != nil {
		return "", fmt.Errorf("delete_task: %w", err)
	}
	if !deleted {
		return fmt.Sprintf("Task %d not found.", id), nil
	}
	return fmt.Sprintf("Task %d deleted.", id), nil
}

func (e *Executor) addNote(a *toolcall.Action) (string, error) {
	content := strings.TrimSpace(a.Param("content"))
	if content == "" {
		return "", fmt.Errorf("add_note: missing content")
	}
	// add appends to the existing note; edit overwrites
	if existing := e.store.Note(); existing != "" {
		content = existing + "\n" + content
	}
	if err := e.store.SetNote(content); err != nil {
		return "", fmt.Errorf("add_note: %w", err)
	}
	return "Note saved.", nil
}

func (e *Executor) editNote(a *toolcall.Action) (string, error) {
	content := strings.TrimSpace(a.Param("content"))
	if content == "" {
		return "", fmt.Errorf("edit_note: missing content")
	}
	if err := e.store.SetNote(content); err != nil {
		return "", fmt.Errorf("edit_note: %w", err)
	}
	return "Note updated.", nil
}

func (e *Executor) deleteNote() (string, error) {
	if err := e.store.DeleteNote(); err != nil {
		return "", fmt.Errorf("delete_note: %w", err)
	}
	return "Note deleted.", nil
}

func (e *Executor) upsertAllowedNumber(a *toolcall.Action) (string, error) {
	number := strings.TrimSpace(a.Param("number"))
	if number == "" {
		return "", fmt.Errorf("%s: missing number", a.Kind)
	}
	label := strings.TrimSpace(a.Param("name"))
	if err := e.store.UpsertAllowedNumber(number, label); err != nil {
		return "", fmt.Errorf("%s: %w", a.Kind, err)
	}
	return fmt.Sprintf("Number %s whitelisted.", number), nil
}

func (e *Executor) removeAllowedNumber(a *toolcall.Action) (string, error) {
	number := strings.TrimSpace(a.Param("number"))
	if number == "" {
		return "", fmt.Errorf("remove_allowed_number: missing number")
	}
	removed, err := e.store.RemoveAllowedNumber(number)
	if err != nil {
		return "", fmt.Errorf("remove_allowed_number: %w", err)
	}
	if !removed {
		return fmt.Sprintf("Number %s was not whitelisted.", number), nil
	}
	return fmt.Sprintf("Number %s removed from whitelist.", number), nil
}

func (e *Executor) upsertAllowedGroup(a *toolcall.Action) (string, error) {
	groupID := strings.TrimSpace(a.Param("group_id"))
	if groupID == "" {
		groupID = strings.TrimSpace(a.Param("id"))
	}
	if groupID == "" {
		return "", fmt.Errorf("%s: missing group id", a.Kind)
	}
	label := strings.TrimSpace(a.Param("name"))
	if err := e.store.UpsertAllowedGroup(groupID, label); err != nil {
		return "", fmt.Errorf("%s: %w", a.Kind, err)
	}
	return fmt.Sprintf("Group %s whitelisted.", groupID), nil
}

func (e *Executor) removeAllowedGroup(a *toolcall.Action) (string, error) {
	groupID := strings.TrimSpace(a.Param("group_id"))
	if groupID == "" {
		groupID = strings.TrimSpace(a.Param("id"))
	}
	if groupID == "" {
		return "", fmt.Errorf("remove_allowed_group: missing group id")
	}
	removed, err := e.store.RemoveAllowedGroup(groupID)
	if err != nil {
		return "", fmt.Errorf("remove_allowed_group: %w", err)
	}
	if !removed {
		return fmt.Sprintf("Group %s was not whitelisted.", groupID), nil
	}
	return fmt.Sprintf("Group %s removed from whitelist.", groupID), nil
}

// AgendaText renders upcoming events for prompt assembly, "" when empty
func (e *Executor) AgendaText(now time.Time) string {
	if !e.ensureAvailable() {
		return ""
	}
	days := e.cfg.AgendaDays
	if days <= 0 {
		days = 7
	}
	limit := e.cfg.AgendaLimit
	if limit <= 0 {
		limit = 15
	}
	events, err := e.store.EventsBetween(now, now.AddDate(0, 0, days), limit)
	if err != nil {
		log.Printf("[WARN] Planner: list events: %v", err)
		return ""
	}
	if len(events) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&sb, "- [ID %d] %s: %s - %s\n",
			ev.ID, ev.Summary, e.formatTime(ev.StartTime), e.formatClock(ev.EndTime))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// TasksText renders pending tasks for prompt assembly, "" when empty
func (e *Executor) TasksText() string {
	if !e.ensureAvailable() {
		return ""
	}
	limit := e.cfg.TaskLimit
	if limit <= 0 {
		limit = 10
	}
	tasks, err := e.store.PendingTasks(limit)
	if err != nil {
		log.Printf("[WARN] Planner: list tasks: %v", err)
		return ""
	}
	if len(tasks) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, task := range tasks {
		if task.DueDate != nil {
			fmt.Fprintf(&sb, "- [ID %d] %s (due %s)\n", task.ID, task.Title, e.formatTime(*task.DueDate))
		} else {
			fmt.Fprintf(&sb, "- [ID %d] %s\n", task.ID, task.Title)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// defaultStart is the top of the next hour in the planner timezone
func (e *Executor) defaultStart() time.Time {
	now := time.Now().In(e.loc)
	return now.Truncate(time.Hour).Add(time.Hour)
}

// parseWhen accepts RFC3339, a local date-time, a bare date, or a bare
// clock time (today). Unparseable input yields the fallback.
func (e *Executor) parseWhen(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if strings.Contains(raw, "T") {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.In(e.loc)
		}
		if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, e.loc); err == nil {
			return t
		}
		if t, err := time.ParseInLocation("2006-01-02T15:04", raw, e.loc); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, e.loc); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, e.loc); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("15:04", raw, e.loc); err == nil {
		now := time.Now().In(e.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, e.loc)
	}
	log.Printf("[WARN] Planner: unparseable time %q", raw)
	return fallback
}

func (e *Executor) formatTime(t time.Time) string {
	return t.In(e.loc).Format("Mon, 02 Jan 2006 15:04")
}

func (e *Executor) formatClock(t time.Time) string {
	return t.In(e.loc).Format("15:04")
}

// actionID reads the id parameter, tolerating both JSON numbers and strings
func actionID(a *toolcall.Action) (int64, bool) {
	switch v := a.Params["id"].(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}
