package loop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/logging"
	"github.com/stellarlinkco/mindloop/internal/memory"
	"github.com/stellarlinkco/mindloop/internal/mode"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

type Extractor interface {
	Extract(ctx context.Context, snippet string) (*memory.Extraction, error)
}

type MemoryStore interface {
	Store(ctx context.Context, modeID string, ext memory.Extraction, modelVersion string) (memory.StoreStatus, error)
	Retrieve(ctx context.Context, q memory.Query) []memory.RankedMemory
}

type MemoryWatchConfig struct {
	SnippetSize    int
	MinStoreWeight float64
	ModelVersion   string
}

// MemoryWatch turns fresh transcript activity of the active mode into
// long-term memories and refreshes that mode's relevant-memory side channel.
type MemoryWatch struct {
	state     *mode.StateStore
	book      *transcript.Book
	extractor Extractor
	memory    MemoryStore
	cfg       MemoryWatchConfig
	logger    *zap.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryWatch(state *mode.StateStore, book *transcript.Book, extractor Extractor, mem MemoryStore, cfg MemoryWatchConfig, logger *zap.Logger) *MemoryWatch {
	if cfg.SnippetSize <= 0 {
		cfg.SnippetSize = 6
	}
	return &MemoryWatch{
		state:     state,
		book:      book,
		extractor: extractor,
		memory:    mem,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("memloop"),
		seen:      make(map[string]time.Time),
	}
}

// Tick processes the active mode once if its transcript changed since the
// last observed modification time. It reports whether work was done.
func (w *MemoryWatch) Tick(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.state.Load()
	if err != nil {
		return false, err
	}
	modeID := st.CurrentMode

	mtime := w.book.ModTime(modeID)
	if mtime.IsZero() || !mtime.After(w.seen[modeID]) {
		return false, nil
	}
	w.seen[modeID] = mtime

	entries, err := w.book.Tail(modeID, w.cfg.SnippetSize)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	ext, err := w.extractor.Extract(ctx, snippet(entries))
	if err != nil {
		w.logger.Warn("extraction failed", zap.String("mode", modeID), zap.Error(err))
		return false, nil
	}

	if ext.Weight > w.cfg.MinStoreWeight {
		status, err := w.memory.Store(ctx, modeID, *ext, w.cfg.ModelVersion)
		if err != nil {
			w.logger.Warn("store failed", zap.String("mode", modeID), zap.Error(err))
		} else {
			w.logger.Info("memory recorded",
				zap.String("mode", modeID),
				zap.String("status", string(status)),
				zap.Float64("weight", ext.Weight))
		}
	} else {
		w.logger.Debug("weight too low to store", zap.Float64("weight", ext.Weight))
	}

	related := w.memory.Retrieve(ctx, memory.Query{
		Mode:     modeID,
		Text:     ext.Essence,
		Emotions: ext.Emotions,
	})
	if err := w.book.PublishRelevant(modeID, toRelevant(related)); err != nil {
		return true, err
	}
	if len(related) > 0 {
		w.logger.Info("relevant memories updated", zap.String("mode", modeID), zap.String("top_lesson", clip(related[0].Lesson, 50)))
	}
	return true, nil
}

func snippet(entries []transcript.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
	}
	return b.String()
}

func toRelevant(mems []memory.RankedMemory) []transcript.Relevant {
	out := make([]transcript.Relevant, 0, len(mems))
	for _, m := range mems {
		out = append(out, transcript.Relevant{
			ID:          m.ID,
			Essence:     m.Essence,
			Lesson:      m.Lesson,
			Emotions:    m.Emotions,
			Score:       m.Score,
			ModeID:      m.ModeID,
			CreatedAt:   m.CreatedAt,
			AccessCount: m.AccessCount,
		})
	}
	return out
}
