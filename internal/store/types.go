package store

import (
	"context"
	"fmt"
	"time"
)

// Turn is a single utterance in the conversation log.
type Turn struct {
	ID        int64
	Session   string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// MemoryRecord is a durable piece of remembered text.
type MemoryRecord struct {
	ID        int64
	Content   string
	Category  string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Stats summarizes the contents of the store.
type Stats struct {
	Memories    int   `json:"memories"`
	Turns       int   `json:"turns"`
	Preferences int   `json:"preferences"`
	Facts       int   `json:"facts"`
	DBSize      int64 `json:"db_size_bytes"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultCategory = "general"
)

// Storage defines the interface for structured persistence
type Storage interface {
	// Conversation log
	RecordTurn(ctx context.Context, role, content string) (*Turn, error)
	RecentTurns(ctx context.Context, limit int) ([]Turn, error)
	ShortTerm() []Turn
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// Key/value
	SetPreference(ctx context.Context, key, value string) error
	GetPreference(ctx context.Context, key, def string) (string, error)
	SetFact(ctx context.Context, key, value string) error
	GetFact(ctx context.Context, key string) (string, bool, error)

	// Memories
	AddMemory(ctx context.Context, content, category string, meta map[string]string) (int64, error)
	GetMemory(ctx context.Context, id int64) (*MemoryRecord, error)
	SearchText(ctx context.Context, query string, limit int) ([]MemoryRecord, error)

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// StorageError reports a failed structured-store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
