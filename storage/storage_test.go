package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/wiralab/wira/pkg/config"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	cfg := config.Default().Storage
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	s, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryAppendAndQuery(t *testing.T) {
	s := openTestStorage(t)

	entries := []string{"[Andi]: Hi", "[Wira]: Hello", "[Andi]: How are you?"}
	for _, e := range entries {
		if err := s.AppendHistory("chat-1", e); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}
	if err := s.AppendHistory("chat-2", "[Budi]: unrelated"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	got, err := s.HistoryByConversation("chat-1")
	if err != nil {
		t.Fatalf("HistoryByConversation: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	for i, e := range got {
		if e.Text != entries[i] {
			t.Errorf("Entry %d: expected %q, got %q", i, entries[i], e.Text)
		}
	}
}

func TestHistoryClear(t *testing.T) {
	s := openTestStorage(t)

	s.AppendHistory("chat-1", "[A]: one")
	s.AppendHistory("chat-2", "[B]: two")
	if err := s.ClearConversation("chat-1"); err != nil {
		t.Fatalf("ClearConversation: %v", err)
	}

	got, _ := s.HistoryByConversation("chat-1")
	if len(got) != 0 {
		t.Errorf("Expected chat-1 cleared, got %d entries", len(got))
	}
	other, _ := s.HistoryByConversation("chat-2")
	if len(other) != 1 {
		t.Errorf("Expected chat-2 untouched, got %d entries", len(other))
	}
}

func TestHistoryBoundedTrim(t *testing.T) {
	cfg := config.Default().Storage
	cfg.DBPath = filepath.Join(t.TempDir(), "trim.db")
	cfg.MaxMessages = 5
	s, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer s.Close()

	for i := 0; i < 10; i++ {
		if err := s.AppendHistory("chat-1", "entry"); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}
	got, _ := s.HistoryByConversation("chat-1")
	if len(got) != 5 {
		t.Errorf("Expected trim to 5 entries, got %d", len(got))
	}
}

func TestRecentHistory(t *testing.T) {
	s := openTestStorage(t)

	s.AppendHistory("chat-1", "one")
	s.AppendHistory("chat-1", "two")
	s.AppendHistory("chat-1", "three")

	got, err := s.RecentHistory("chat-1", 2)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(got) != 2 || got[0].Text != "two" || got[1].Text != "three" {
		t.Errorf("Expected last two entries in order, got %+v", got)
	}
}

func TestSummaries(t *testing.T) {
	s := openTestStorage(t)

	if err := s.AddSummary("chat-1", "Andi", "Talked about lunch."); err != nil {
		t.Fatalf("AddSummary: %v", err)
	}
	got, err := s.SummariesByConversation("chat-1")
	if err != nil {
		t.Fatalf("SummariesByConversation: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(got))
	}
	if got[0].ContactName != "Andi" || got[0].Summary != "Talked about lunch." {
		t.Errorf("Unexpected summary record: %+v", got[0])
	}
}

func TestNoteLifecycle(t *testing.T) {
	s := openTestStorage(t)

	if note := s.Note(); note != "" {
		t.Errorf("Expected empty note initially, got %q", note)
	}
	if err := s.SetNote("In a meeting until 3pm"); err != nil {
		t.Fatalf("SetNote: %v", err)
	}
	if note := s.Note(); note != "In a meeting until 3pm" {
		t.Errorf("Expected stored note, got %q", note)
	}
	// overwrite
	if err := s.SetNote("Back at desk"); err != nil {
		t.Fatalf("SetNote overwrite: %v", err)
	}
	if note := s.Note(); note != "Back at desk" {
		t.Errorf("Expected overwritten note, got %q", note)
	}
	if err := s.DeleteNote(); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if note := s.Note(); note != "" {
		t.Errorf("Expected note deleted, got %q", note)
	}
}

func TestAllowlists(t *testing.T) {
	s := openTestStorage(t)

	if err := s.UpsertAllowedNumber("628123", "Andi"); err != nil {
		t.Fatalf("UpsertAllowedNumber: %v", err)
	}
	nums, _ := s.AllowedNumbers()
	if len(nums) != 1 || nums[0].Key != "628123" || nums[0].Label != "Andi" {
		t.Errorf("Unexpected allowed numbers: %+v", nums)
	}

	removed, err := s.RemoveAllowedNumber("628123")
	if err != nil || !removed {
		t.Errorf("Expected removal to succeed, removed=%v err=%v", removed, err)
	}
	removed, _ = s.RemoveAllowedNumber("628123")
	if removed {
		t.Error("Expected second removal to report false")
	}

	if err := s.UpsertAllowedGroup("g-1@broadcast", "Family"); err != nil {
		t.Fatalf("UpsertAllowedGroup: %v", err)
	}
	groups, _ := s.AllowedGroups()
	if len(groups) != 1 || groups[0].Key != "g-1@broadcast" {
		t.Errorf("Unexpected allowed groups: %+v", groups)
	}
}

func TestEventsCRUD(t *testing.T) {
	s := openTestStorage(t)

	start := time.Now().Add(time.Hour).Truncate(time.Second)
	end := start.Add(time.Hour)
	id, err := s.CreateEvent("Standup", start, end)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	evs, err := s.EventsBetween(time.Now(), time.Now().Add(48*time.Hour), 10)
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(evs) != 1 || evs[0].Summary != "Standup" {
		t.Fatalf("Unexpected events: %+v", evs)
	}

	newStart := start.Add(30 * time.Minute)
	ok, err := s.UpdateEvent(id, "Standup (moved)", &newStart, nil)
	if err != nil || !ok {
		t.Fatalf("UpdateEvent: ok=%v err=%v", ok, err)
	}
	ev, _ := s.EventByID(id)
	if ev.Summary != "Standup (moved)" {
		t.Errorf("Expected patched summary, got %q", ev.Summary)
	}
	if !ev.StartTime.UTC().Equal(newStart.UTC()) {
		t.Errorf("Expected patched start %v, got %v", newStart.UTC(), ev.StartTime.UTC())
	}

	ok, _ = s.DeleteEvent(id)
	if !ok {
		t.Error("Expected delete to succeed")
	}
	ok, _ = s.UpdateEvent(id, "gone", nil, nil)
	if ok {
		t.Error("Expected update of deleted event to report false")
	}
}

func TestTasksCRUD(t *testing.T) {
	s := openTestStorage(t)

	due := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	id, err := s.CreateTask("Buy milk", &due)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := s.CreateTask("No due date", nil); err != nil {
		t.Fatalf("CreateTask without due: %v", err)
	}

	tasks, err := s.PendingTasks(10)
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 pending tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "Buy milk" || tasks[0].DueDate == nil {
		t.Errorf("Unexpected first task: %+v", tasks[0])
	}
	if tasks[1].DueDate != nil {
		t.Errorf("Expected nil due date, got %v", tasks[1].DueDate)
	}

	ok, err := s.UpdateTask(id, "Buy oat milk", nil)
	if err != nil || !ok {
		t.Fatalf("UpdateTask: ok=%v err=%v", ok, err)
	}
	task, _ := s.TaskByID(id)
	if task.Title != "Buy oat milk" {
		t.Errorf("Expected patched title, got %q", task.Title)
	}

	ok, _ = s.DeleteTask(id)
	if !ok {
		t.Error("Expected task delete to succeed")
	}
}
