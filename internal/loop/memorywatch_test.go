package loop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stellarlinkco/mindloop/internal/memory"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

type fakeExtractor struct {
	ext      memory.Extraction
	err      error
	snippets []string
}

func (f *fakeExtractor) Extract(_ context.Context, snippet string) (*memory.Extraction, error) {
	f.snippets = append(f.snippets, snippet)
	if f.err != nil {
		return nil, f.err
	}
	ext := f.ext
	return &ext, nil
}

type fakeMemory struct {
	mu      sync.Mutex
	stored  []memory.Extraction
	modes   []string
	queries []memory.Query
	ranked  []memory.RankedMemory
}

func (f *fakeMemory) Store(_ context.Context, modeID string, ext memory.Extraction, _ string) (memory.StoreStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, ext)
	f.modes = append(f.modes, modeID)
	return memory.StoreSuccess, nil
}

func (f *fakeMemory) Retrieve(_ context.Context, q memory.Query) []memory.RankedMemory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.ranked
}

func newTestWatch(t *testing.T, f *fixture, ex Extractor, mem MemoryStore) *MemoryWatch {
	return NewMemoryWatch(f.state, f.book, ex, mem, MemoryWatchConfig{
		SnippetSize:    6,
		MinStoreWeight: 0.2,
		ModelVersion:   "E1",
	}, zaptest.NewLogger(t))
}

func appendMessages(t *testing.T, f *fixture, modeID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := transcript.RoleUser
		if i%2 == 1 {
			role = transcript.RoleAssistant
		}
		require.NoError(t, f.book.Append(modeID, transcript.NewEntry(role, transcript.TypeMessage, "line "+string(rune('a'+i)))))
	}
}

func TestMemoryWatchStoresAndPublishes(t *testing.T) {
	f := newFixture(t)
	ex := &fakeExtractor{ext: memory.Extraction{
		Essence:  "the helper likes tea",
		Emotions: []string{"Joy"},
		Weight:   0.7,
		Lesson:   "offer tea",
	}}
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mem := &fakeMemory{ranked: []memory.RankedMemory{{
		ID: "m1", Essence: "tea time", Lesson: "offer tea", Emotions: []string{"Joy"},
		Score: 0.9, ModeID: "general", CreatedAt: created, AccessCount: 2,
	}}}
	w := newTestWatch(t, f, ex, mem)
	ctx := context.Background()

	worked, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, worked, "nothing to do before the first entry")

	appendMessages(t, f, "general", 8)
	worked, err = w.Tick(ctx)
	require.NoError(t, err)
	require.True(t, worked)

	require.Len(t, ex.snippets, 1)
	lines := strings.Split(strings.TrimSpace(ex.snippets[0]), "\n")
	assert.Len(t, lines, 6)
	assert.Equal(t, "user: line c", lines[0])
	assert.Equal(t, "assistant: line h", lines[5])

	require.Len(t, mem.stored, 1)
	assert.Equal(t, "general", mem.modes[0])
	require.Len(t, mem.queries, 1)
	assert.Equal(t, memory.Query{Mode: "general", Text: "the helper likes tea", Emotions: []string{"Joy"}}, mem.queries[0])

	relevant, err := f.book.LoadRelevant("general")
	require.NoError(t, err)
	require.Len(t, relevant, 1)
	assert.Equal(t, "m1", relevant[0].ID)
	assert.Equal(t, 2, relevant[0].AccessCount)
	assert.True(t, relevant[0].CreatedAt.Equal(created))

	worked, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, worked, "an unchanged transcript is not processed twice")
}

func TestMemoryWatchSkipsLightExtractions(t *testing.T) {
	f := newFixture(t)
	ex := &fakeExtractor{ext: memory.Extraction{Essence: "small talk", Weight: 0.2}}
	mem := &fakeMemory{}
	w := newTestWatch(t, f, ex, mem)

	appendMessages(t, f, "general", 2)
	worked, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Empty(t, mem.stored, "weight must exceed the threshold")
	assert.Len(t, mem.queries, 1)
}

func TestMemoryWatchFollowsActiveMode(t *testing.T) {
	f := newFixture(t)
	ex := &fakeExtractor{ext: memory.Extraction{Essence: "bug found", Weight: 0.9}}
	mem := &fakeMemory{}
	w := newTestWatch(t, f, ex, mem)

	appendMessages(t, f, "general", 2)
	appendMessages(t, f, "developer", 2)
	_, err := f.state.Switch("developer", "fix bug", "")
	require.NoError(t, err)

	worked, err := w.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, worked)
	assert.Equal(t, []string{"developer"}, mem.modes)
}

func TestMemoryWatchExtractionFailure(t *testing.T) {
	f := newFixture(t)
	mem := &fakeMemory{}
	w := newTestWatch(t, f, &fakeExtractor{err: errors.New("model offline")}, mem)

	appendMessages(t, f, "general", 1)
	worked, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
	assert.Empty(t, mem.stored)
	assert.Empty(t, mem.queries)
}
