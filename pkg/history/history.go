// Package history records every change the memory layer makes to a record.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lexlapax/recall/pkg/model"
)

// Entry is one change to one memory.
type Entry struct {
	ID        string          `json:"id" db:"id"`
	MemoryID  string          `json:"memory_id" db:"memory_id"`
	OldMemory string          `json:"old_memory,omitempty" db:"old_memory"`
	NewMemory string          `json:"new_memory,omitempty" db:"new_memory"`
	Event     model.EventType `json:"event" db:"event"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	IsDeleted bool            `json:"is_deleted" db:"is_deleted"`
}

// NewEntry creates an entry with a fresh id and timestamp.
func NewEntry(memoryID string, event model.EventType, oldMemory, newMemory string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		MemoryID:  memoryID,
		OldMemory: oldMemory,
		NewMemory: newMemory,
		Event:     event,
		CreatedAt: time.Now().UTC(),
		IsDeleted: event == model.EventDelete,
	}
}

// Store is the interface that history backends must implement.
type Store interface {
	// Add appends an entry.
	Add(ctx context.Context, entry Entry) error

	// List returns the entries for memoryID, oldest first.
	List(ctx context.Context, memoryID string) ([]Entry, error)

	// Reset removes every entry.
	Reset(ctx context.Context) error

	// Close releases the resources held by the store.
	Close() error
}
