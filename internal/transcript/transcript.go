// Package transcript persists per-mode conversation history and the global
// rolling internal log that mirrors every append.
package transcript

import (
	"fmt"
	"path"
	"time"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/mode"
)

const (
	MaxEntries     = 1000
	MaxInternalLog = 50

	contextDocument = "context.json"
	internalLogName = "internal_log.json"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

type Type string

const (
	TypeMessage     Type = "message"
	TypeToolCall    Type = "tool_call"
	TypeToolResult  Type = "tool_result"
	TypeSystemEvent Type = "system_event"
)

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	ModeID    string    `json:"mode_id"`
	Silent    bool      `json:"silent,omitempty"`
}

type Entry struct {
	Role    Role   `json:"role"`
	Type    Type   `json:"type"`
	Content string `json:"content"`
	Meta    Meta   `json:"meta"`
}

func NewEntry(role Role, typ Type, content string) Entry {
	return Entry{Role: role, Type: typ, Content: content}
}

// Book resolves mode ids to their transcript documents.
type Book struct {
	store    *filestore.Store
	registry *mode.Registry
	now      func() time.Time
}

func NewBook(store *filestore.Store, registry *mode.Registry) *Book {
	return &Book{store: store, registry: registry, now: time.Now}
}

func (b *Book) Store() *filestore.Store {
	return b.store
}

// Document returns the store-relative path of a per-mode document.
func (b *Book) Document(modeID, name string) string {
	dir := "modes/" + modeID
	if d, ok := b.registry.Get(modeID); ok {
		dir = d.Path
	}
	return path.Join(dir, name)
}

// Append adds entry to the mode transcript, trimming the oldest entries past
// MaxEntries, and mirrors it into the internal log.
func (b *Book) Append(modeID string, entry Entry) error {
	if entry.Meta.Timestamp.IsZero() {
		entry.Meta.Timestamp = b.now().UTC()
	}
	entry.Meta.ModeID = modeID

	if err := filestore.AppendCapped(b.store, b.Document(modeID, contextDocument), MaxEntries, entry); err != nil {
		return fmt.Errorf("append transcript %s: %w", modeID, err)
	}
	if err := filestore.AppendCapped(b.store, internalLogName, MaxInternalLog, entry); err != nil {
		return fmt.Errorf("append internal log: %w", err)
	}
	return nil
}

func (b *Book) AddSystemEvent(modeID, content string) error {
	return b.Append(modeID, NewEntry(RoleSystem, TypeSystemEvent, content))
}

func (b *Book) Load(modeID string) ([]Entry, error) {
	return filestore.LoadList[Entry](b.store, b.Document(modeID, contextDocument))
}

// Tail returns at most n of the newest entries.
func (b *Book) Tail(modeID string, n int) ([]Entry, error) {
	entries, err := b.Load(modeID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func (b *Book) ModTime(modeID string) time.Time {
	return b.store.ModTime(b.Document(modeID, contextDocument))
}

func (b *Book) InternalLog() ([]Entry, error) {
	return filestore.LoadList[Entry](b.store, internalLogName)
}

func (b *Book) InternalLogModTime() time.Time {
	return b.store.ModTime(internalLogName)
}
