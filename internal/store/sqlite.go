package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteStore struct {
	db      *sql.DB
	path    string
	session string

	mu        sync.Mutex
	shortTerm []Turn
	capacity  int

	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath. shortTermCap
// bounds the in-memory view of recent turns.
func NewSQLiteStore(dbPath string, shortTermCap int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if shortTermCap <= 0 {
		shortTermCap = 10
	}

	s := &SQLiteStore{
		db:       db,
		path:     dbPath,
		session:  uuid.NewString(),
		capacity: shortTermCap,
		now:      time.Now,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);`,
		`CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS facts (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS credentials (
			name TEXT PRIMARY KEY,
			sealed TEXT NOT NULL,
			updated_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'general',
			metadata TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

// Session returns the identifier stamped on turns recorded by this store.
func (s *SQLiteStore) Session() string {
	return s.session
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) stamp() (time.Time, string) {
	t := s.now().UTC()
	return t, t.Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Conversation log

func (s *SQLiteStore) RecordTurn(ctx context.Context, role, content string) (*Turn, error) {
	created, ts := s.stamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		s.session, role, content, ts)
	if err != nil {
		return nil, wrap("record turn", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrap("record turn", err)
	}

	turn := Turn{ID: id, Session: s.session, Role: role, Content: content, CreatedAt: created}

	s.mu.Lock()
	s.shortTerm = append(s.shortTerm, turn)
	if over := len(s.shortTerm) - s.capacity; over > 0 {
		s.shortTerm = append([]Turn(nil), s.shortTerm[over:]...)
	}
	s.mu.Unlock()

	return &turn, nil
}

// RecentTurns returns up to limit of the most recent turns, oldest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM turns ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, wrap("recent turns", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var session sql.NullString
		var created string
		if err := rows.Scan(&t.ID, &session, &t.Role, &t.Content, &created); err != nil {
			return nil, wrap("recent turns", err)
		}
		t.Session = session.String
		t.CreatedAt = parseTime(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("recent turns", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ShortTerm returns a copy of the bounded in-memory view.
func (s *SQLiteStore) ShortTerm() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.shortTerm...)
}

// PurgeOlderThan deletes durable turns created before now-age.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-age).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, wrap("purge turns", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("purge turns", err)
	}
	return n, nil
}

// Preferences and facts

func (s *SQLiteStore) SetPreference(ctx context.Context, key, value string) error {
	return s.upsert(ctx, "preferences", key, value)
}

// GetPreference returns def when the key has never been set.
func (s *SQLiteStore) GetPreference(ctx context.Context, key, def string) (string, error) {
	v, ok, err := s.lookup(ctx, "preferences", key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

func (s *SQLiteStore) SetFact(ctx context.Context, key, value string) error {
	return s.upsert(ctx, "facts", key, value)
}

func (s *SQLiteStore) GetFact(ctx context.Context, key string) (string, bool, error) {
	return s.lookup(ctx, "facts", key)
}

func (s *SQLiteStore) upsert(ctx context.Context, table, key, value string) error {
	_, ts := s.stamp()
	query := `INSERT INTO ` + table + ` (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, normalizeKey(key), value, ts); err != nil {
		return wrap("set "+table, err)
	}
	return nil
}

func (s *SQLiteStore) lookup(ctx context.Context, table, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM `+table+` WHERE key = ?`, normalizeKey(key))
	var value sql.NullString
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, wrap("get "+table, err)
	}
	return value.String, true, nil
}

// Credentials hold sealed provider secrets. Values are stored as given;
// sealing is the caller's job.

func (s *SQLiteStore) SetCredential(ctx context.Context, name, sealed string) error {
	_, ts := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (name, sealed, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`,
		normalizeKey(name), sealed, ts)
	if err != nil {
		return wrap("set credential", err)
	}
	return nil
}

func (s *SQLiteStore) GetCredential(ctx context.Context, name string) (string, bool, error) {
	var sealed string
	err := s.db.QueryRowContext(ctx, `SELECT sealed FROM credentials WHERE name = ?`, normalizeKey(name)).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get credential", err)
	}
	return sealed, true, nil
}

func (s *SQLiteStore) DeleteCredential(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, normalizeKey(name)); err != nil {
		return wrap("delete credential", err)
	}
	return nil
}

// Memories

// AddMemory inserts a memory record and returns its id. Duplicates are allowed.
func (s *SQLiteStore) AddMemory(ctx context.Context, content, category string, meta map[string]string) (int64, error) {
	if category == "" {
		category = DefaultCategory
	}

	var metaJSON sql.NullString
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, ts := s.stamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (content, category, metadata, created_at) VALUES (?, ?, ?, ?)`,
		content, category, metaJSON, ts)
	if err != nil {
		return 0, wrap("add memory", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("add memory", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetMemory(ctx context.Context, id int64) (*MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, category, metadata, created_at FROM memories WHERE id = ?`, id)
	rec, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("memory not found: %d", id)
		}
		return nil, wrap("get memory", err)
	}
	return rec, nil
}

// SearchText does a case-insensitive substring match, most recent first.
func (s *SQLiteStore) SearchText(ctx context.Context, query string, limit int) ([]MemoryRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, category, metadata, created_at FROM memories
		 WHERE instr(lower(content), lower(?)) > 0
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, wrap("search text", err)
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, wrap("search text", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("search text", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(sc scanner) (*MemoryRecord, error) {
	var rec MemoryRecord
	var metaJSON sql.NullString
	var created string
	if err := sc.Scan(&rec.ID, &rec.Content, &rec.Category, &metaJSON, &created); err != nil {
		return nil, err
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	rec.CreatedAt = parseTime(created)
	return &rec, nil
}
