package loop

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/logging"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

const (
	MonologueDoc = "monologue.json"
	MemosDoc     = "memos.json"

	defaultMemoStrength = 0.5
)

type MonologueEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Reflection string    `json:"reflection"`
	Message    string    `json:"message"`
}

// Memo is a long-lived hunch kept by the monologue.
type Memo struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Strength  float64   `json:"strength"`
}

// Monologue reflects on the internal log whenever it changes and leaves a
// short hint for the worker.
type Monologue struct {
	book     *transcript.Book
	files    *filestore.Store
	gen      Generator
	provider string
	keep     int
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	seen time.Time
}

func NewMonologue(book *transcript.Book, gen Generator, provider string, keep int, logger *zap.Logger) *Monologue {
	if keep <= 0 {
		keep = 1
	}
	return &Monologue{
		book:     book,
		files:    book.Store(),
		gen:      gen,
		provider: provider,
		keep:     keep,
		logger:   logging.OrNop(logger).Named("monologue"),
		now:      time.Now,
	}
}

// Tick runs one reflection if the internal log changed since the last one.
// It reports whether a reflection happened.
func (m *Monologue) Tick(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mtime := m.book.InternalLogModTime()
	if mtime.IsZero() || mtime.Equal(m.seen) {
		return false, nil
	}
	m.seen = mtime

	log, err := m.book.InternalLog()
	if err != nil {
		return false, err
	}
	if len(log) == 0 {
		return false, nil
	}
	memos, err := filestore.LoadList[Memo](m.files, MemosDoc)
	if err != nil {
		return false, err
	}
	identity, err := LoadIdentity(m.files)
	if err != nil {
		m.logger.Warn("identity unavailable", zap.Error(err))
	}

	reply := m.gen.Generate(ctx, MonologuePrompt(log, memos, identity), m.provider, true)
	if reply.Failed {
		m.logger.Warn("reflection failed", zap.String("reply", reply.Text))
		return false, nil
	}

	var out struct {
		Reflection string `json:"reflection"`
		Message    string `json:"message_to_worker"`
		NewMemo    *struct {
			Content  string   `json:"content"`
			Strength *float64 `json:"strength"`
		} `json:"new_memo"`
	}
	if err := reply.Decode(&out); err != nil {
		m.logger.Warn("reflection unreadable", zap.Error(err))
		return false, nil
	}

	now := m.now().UTC()
	entry := MonologueEntry{Timestamp: now, Reflection: out.Reflection, Message: out.Message}
	if err := filestore.AppendCapped(m.files, MonologueDoc, m.keep, entry); err != nil {
		return false, err
	}
	if out.Message != "" {
		m.logger.Info("hint for worker", zap.String("message", out.Message))
	}

	if out.NewMemo != nil && strings.TrimSpace(out.NewMemo.Content) != "" {
		strength := defaultMemoStrength
		if out.NewMemo.Strength != nil {
			strength = *out.NewMemo.Strength
		}
		memo := Memo{Timestamp: now, Content: strings.TrimSpace(out.NewMemo.Content), Strength: strength}
		if err := filestore.AppendCapped(m.files, MemosDoc, 0, memo); err != nil {
			return true, err
		}
		m.logger.Info("memo recorded", zap.Float64("strength", strength), zap.String("memo", memo.Content))
	}
	return true, nil
}

// MonologueHints formats the stored hints as "[HH:MM] message" lines.
func MonologueHints(files *filestore.Store) string {
	entries, err := filestore.LoadList[MonologueEntry](files, MonologueDoc)
	if err != nil {
		return ""
	}
	var lines []string
	for _, e := range entries {
		if e.Message == "" {
			continue
		}
		lines = append(lines, "["+e.Timestamp.UTC().Format("15:04")+"] "+e.Message)
	}
	return strings.Join(lines, "\n")
}
