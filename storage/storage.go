// Storage module - SQLite data storage

package storage

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wiralab/wira/pkg/config"
)

type Storage struct {
	db  *sql.DB
	cfg config.StorageConfig

	// Prepared statements for the hot conversation path
	stmtAddMessage    *sql.Stmt
	stmtGetMessages   *sql.Stmt
	stmtClearMessages *sql.Stmt
	stmtAddSummary    *sql.Stmt
}

// HistoryEntry is one line of unsummarized conversation history
type HistoryEntry struct {
	ID              int64     `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"created_at"`
}

// Summary is an append-only conversation rollover record
type Summary struct {
	ID              int64     `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	ContactName     string    `json:"contact_name"`
	Summary         string    `json:"summary"`
	CreatedAt       time.Time `json:"created_at"`
}

// AllowedEntry is one whitelist row (number or group)
type AllowedEntry struct {
	Key   string `json:"key"` // phone number or group id
	Label string `json:"label"`
}

// Event is a locally stored calendar event
type Event struct {
	ID        int64     `json:"id"`
	Summary   string    `json:"summary"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a locally stored task
type Task struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Done      bool       `json:"done"`
	CreatedAt time.Time  `json:"created_at"`
}

func New(dbPath string) (*Storage, error) {
	cfg := config.Default().Storage
	cfg.DBPath = dbPath
	return NewWithConfig(cfg)
}

// NewWithConfig creates storage with injected configuration
func NewWithConfig(cfg config.StorageConfig) (*Storage, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path required")
	}
	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection failed: %v", err)
	}

	s := &Storage{db: db, cfg: cfg}

	if cfg.WalMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return nil, fmt.Errorf("failed to set WAL: %v", err)
		}
	}
	syncMode := cfg.SyncMode
	if syncMode == "" {
		syncMode = "NORMAL"
	}
	if _, err := db.Exec("PRAGMA synchronous=" + syncMode + ";"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous: %v", err)
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}
	if err := s.initPreparedStmts(); err != nil {
		log.Printf("[WARN] Failed to prepare statements: %v (continuing without prepared statements)", err)
	}

	log.Printf("[OK] Storage: database %s", cfg.DBPath)
	return s, nil
}

func (s *Storage) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_key TEXT NOT NULL,
			text TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	if _, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_conv ON history(conversation_key)`); err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_key TEXT NOT NULL,
			contact_name TEXT,
			summary TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Single-row urgent note
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS note (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			content TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS allowed_numbers (
			number TEXT PRIMARY KEY,
			label TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS allowed_groups (
			group_id TEXT PRIMARY KEY,
			label TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			summary TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			due_date DATETIME,
			done INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (s *Storage) initPreparedStmts() error {
	var err error

	if s.stmtAddMessage, err = s.db.Prepare("INSERT INTO history (conversation_key, text) VALUES (?, ?)"); err != nil {
		return fmt.Errorf("AppendHistory: %v", err)
	}
	if s.stmtGetMessages, err = s.db.Prepare("SELECT id, conversation_key, text, created_at FROM history WHERE conversation_key = ? ORDER BY id ASC"); err != nil {
		return fmt.Errorf("HistoryByConversation: %v", err)
	}
	if s.stmtClearMessages, err = s.db.Prepare("DELETE FROM history WHERE conversation_key = ?"); err != nil {
		return fmt.Errorf("ClearConversation: %v", err)
	}
	if s.stmtAddSummary, err = s.db.Prepare("INSERT INTO summaries (conversation_key, contact_name, summary) VALUES (?, ?, ?)"); err != nil {
		return fmt.Errorf("AddSummary: %v", err)
	}
	return nil
}

func (s *Storage) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtAddMessage, s.stmtGetMessages, s.stmtClearMessages, s.stmtAddSummary} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// ===== Conversation history =====

// AppendHistory appends one labeled line to a conversation, then trims the
// table to the configured bound (most recent rows win).
func (s *Storage) AppendHistory(conversationKey, text string) error {
	var err error
	if s.stmtAddMessage != nil {
		_, err = s.stmtAddMessage.Exec(conversationKey, text)
	} else {
		_, err = s.db.Exec("INSERT INTO history (conversation_key, text) VALUES (?, ?)", conversationKey, text)
	}
	if err != nil {
		return fmt.Errorf("append history: %v", err)
	}
	return s.trimHistory()
}

func (s *Storage) trimHistory() error {
	if s.cfg.MaxMessages <= 0 {
		return nil
	}
	_, err := s.db.Exec(
		"DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)",
		s.cfg.MaxMessages,
	)
	return err
}

// HistoryByConversation returns all unsummarized entries for a key, oldest first
func (s *Storage) HistoryByConversation(conversationKey string) ([]HistoryEntry, error) {
	var rows *sql.Rows
	var err error
	if s.stmtGetMessages != nil {
		rows, err = s.stmtGetMessages.Query(conversationKey)
	} else {
		rows, err = s.db.Query("SELECT id, conversation_key, text, created_at FROM history WHERE conversation_key = ? ORDER BY id ASC", conversationKey)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.ConversationKey, &e.Text, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentHistory returns the last n entries for a key, oldest first
func (s *Storage) RecentHistory(conversationKey string, n int) ([]HistoryEntry, error) {
	entries, err := s.HistoryByConversation(conversationKey)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// ClearConversation removes all unsummarized entries for a key
func (s *Storage) ClearConversation(conversationKey string) error {
	var err error
	if s.stmtClearMessages != nil {
		_, err = s.stmtClearMessages.Exec(conversationKey)
	} else {
		_, err = s.db.Exec("DELETE FROM history WHERE conversation_key = ?", conversationKey)
	}
	return err
}

// ===== Summaries =====

func (s *Storage) AddSummary(conversationKey, contactName, summary string) error {
	var err error
	if s.stmtAddSummary != nil {
		_, err = s.stmtAddSummary.Exec(conversationKey, contactName, summary)
	} else {
		_, err = s.db.Exec("INSERT INTO summaries (conversation_key, contact_name, summary) VALUES (?, ?, ?)", conversationKey, contactName, summary)
	}
	if err != nil {
		return fmt.Errorf("add summary: %v", err)
	}
	if s.cfg.MaxSummaries > 0 {
		_, err = s.db.Exec(
			"DELETE FROM summaries WHERE id NOT IN (SELECT id FROM summaries ORDER BY id DESC LIMIT ?)",
			s.cfg.MaxSummaries,
		)
	}
	return err
}

func (s *Storage) SummariesByConversation(conversationKey string) ([]Summary, error) {
	rows, err := s.db.Query("SELECT id, conversation_key, contact_name, summary, created_at FROM summaries WHERE conversation_key = ? ORDER BY id ASC", conversationKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.ConversationKey, &sum.ContactName, &sum.Summary, &sum.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// ===== Urgent note =====

// SetNote stores the single urgent note (overwrites any existing one)
func (s *Storage) SetNote(content string) error {
	_, err := s.db.Exec(
		"INSERT INTO note (id, content) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET content=excluded.content, updated_at=CURRENT_TIMESTAMP",
		content,
	)
	return err
}

// Note returns the urgent note, or "" when none is set
func (s *Storage) Note() string {
	var content string
	err := s.db.QueryRow("SELECT content FROM note WHERE id = 1").Scan(&content)
	if err != nil {
		return ""
	}
	return content
}

func (s *Storage) DeleteNote() error {
	_, err := s.db.Exec("DELETE FROM note WHERE id = 1")
	return err
}

// ===== Whitelists =====

func (s *Storage) UpsertAllowedNumber(number, label string) error {
	_, err := s.db.Exec(
		"INSERT INTO allowed_numbers (number, label) VALUES (?, ?) ON CONFLICT(number) DO UPDATE SET label=excluded.label",
		number, label,
	)
	return err
}

// RemoveAllowedNumber returns true when a row was actually removed
func (s *Storage) RemoveAllowedNumber(number string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM allowed_numbers WHERE number = ?", number)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) AllowedNumbers() ([]AllowedEntry, error) {
	return s.allowedEntries("SELECT number, label FROM allowed_numbers ORDER BY created_at ASC")
}

func (s *Storage) UpsertAllowedGroup(groupID, label string) error {
	_, err := s.db.Exec(
		"INSERT INTO allowed_groups (group_id, label) VALUES (?, ?) ON CONFLICT(group_id) DO UPDATE SET label=excluded.label",
		groupID, label,
	)
	return err
}

func (s *Storage) RemoveAllowedGroup(groupID string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM allowed_groups WHERE group_id = ?", groupID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) AllowedGroups() ([]AllowedEntry, error) {
	return s.allowedEntries("SELECT group_id, label FROM allowed_groups ORDER BY created_at ASC")
}

func (s *Storage) allowedEntries(query string) ([]AllowedEntry, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AllowedEntry
	for rows.Next() {
		var e AllowedEntry
		var label sql.NullString
		if err := rows.Scan(&e.Key, &label); err != nil {
			return nil, err
		}
		e.Label = label.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ===== Events =====

func (s *Storage) CreateEvent(summary string, start, end time.Time) (int64, error) {
	res, err := s.db.Exec("INSERT INTO events (summary, start_time, end_time) VALUES (?, ?, ?)", summary, start.UTC(), end.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateEvent patches non-zero fields of an event. Returns false when the
// event does not exist.
func (s *Storage) UpdateEvent(id int64, summary string, start, end *time.Time) (bool, error) {
	ev, err := s.EventByID(id)
	if err != nil {
		return false, err
	}
	if ev == nil {
		return false, nil
	}
	if summary != "" {
		ev.Summary = summary
	}
	if start != nil {
		ev.StartTime = *start
	}
	if end != nil {
		ev.EndTime = *end
	}
	_, err = s.db.Exec("UPDATE events SET summary = ?, start_time = ?, end_time = ? WHERE id = ?",
		ev.Summary, ev.StartTime.UTC(), ev.EndTime.UTC(), id)
	return err == nil, err
}

func (s *Storage) DeleteEvent(id int64) (bool, error) {
	res, err := s.db.Exec("DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) EventByID(id int64) (*Event, error) {
	var ev Event
	err := s.db.QueryRow("SELECT id, summary, start_time, end_time, created_at FROM events WHERE id = ?", id).
		Scan(&ev.ID, &ev.Summary, &ev.StartTime, &ev.EndTime, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// EventsBetween returns events starting in [from, to), ordered by start time
func (s *Storage) EventsBetween(from, to time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, summary, start_time, end_time, created_at FROM events WHERE start_time >= ? AND start_time < ? ORDER BY start_time ASC LIMIT ?",
		from.UTC(), to.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Summary, &ev.StartTime, &ev.EndTime, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ===== Tasks =====

func (s *Storage) CreateTask(title string, due *time.Time) (int64, error) {
	var dueVal interface{}
	if due != nil {
		dueVal = due.UTC()
	}
	res, err := s.db.Exec("INSERT INTO tasks (title, due_date) VALUES (?, ?)", title, dueVal)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Storage) UpdateTask(id int64, title string, due *time.Time) (bool, error) {
	task, err := s.TaskByID(id)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	if title != "" {
		task.Title = title
	}
	if due != nil {
		task.DueDate = due
	}
	var dueVal interface{}
	if task.DueDate != nil {
		dueVal = task.DueDate.UTC()
	}
	_, err = s.db.Exec("UPDATE tasks SET title = ?, due_date = ? WHERE id = ?", task.Title, dueVal, id)
	return err == nil, err
}

func (s *Storage) DeleteTask(id int64) (bool, error) {
	res, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) TaskByID(id int64) (*Task, error) {
	var task Task
	var due sql.NullTime
	err := s.db.QueryRow("SELECT id, title, due_date, done, created_at FROM tasks WHERE id = ?", id).
		Scan(&task.ID, &task.Title, &due, &task.Done, &task.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if due.Valid {
		task.DueDate = &due.Time
	}
	return &task, nil
}

// PendingTasks returns undone tasks, oldest first
func (s *Storage) PendingTasks(limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query("SELECT id, title, due_date, done, created_at FROM tasks WHERE done = 0 ORDER BY id ASC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var task Task
		var due sql.NullTime
		if err := rows.Scan(&task.ID, &task.Title, &due, &task.Done, &task.CreatedAt); err != nil {
			return nil, err
		}
		if due.Valid {
			task.DueDate = &due.Time
		}
		out = append(out, task)
	}
	return out, rows.Err()
}
