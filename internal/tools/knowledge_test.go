package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/memory"
)

type fakeMemory struct {
	stored   []memory.Extraction
	modes    []string
	queries  []memory.Query
	results  []memory.RankedMemory
	storeErr error
}

func (f *fakeMemory) Store(_ context.Context, modeID string, ext memory.Extraction, _ string) (memory.StoreStatus, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.stored = append(f.stored, ext)
	f.modes = append(f.modes, modeID)
	return memory.StoreSuccess, nil
}

func (f *fakeMemory) Retrieve(_ context.Context, q memory.Query) []memory.RankedMemory {
	f.queries = append(f.queries, q)
	return f.results
}

func (f *fakeMemory) RecentConscious(context.Context, int) ([]memory.RankedMemory, error) {
	return f.results, nil
}

type fakeChatter struct {
	personas []string
}

func (f *fakeChatter) Chat(_ context.Context, persona, message string, _ bool) (string, error) {
	f.personas = append(f.personas, persona)
	return persona + " says hi to " + message, nil
}

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func newKnowledgeDispatcher(t *testing.T) (*Dispatcher, *fakeMemory, *fakeChatter, *filestore.Store) {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	mem := &fakeMemory{}
	chat := &fakeChatter{}
	d := NewDispatcher(builtinRegistry(t), nil)
	d.Register(KnowledgeTools(KnowledgeDeps{
		Memory:     mem,
		Relay:      chat,
		Files:      store,
		GlobalMode: "general",
		Generation: "E1",
		Now:        func() time.Time { return fixedNow },
	})...)
	d.Register(GameTools(chat)...)
	return d, mem, chat, store
}

func dispatchOne(t *testing.T, d *Dispatcher, modeID, name string, args map[string]any) Result {
	t.Helper()
	results := d.Dispatch(context.Background(), []Invocation{{Name: name, Args: args}}, modeID)
	require.Len(t, results, 1)
	return results[0]
}

func TestMemorize(t *testing.T) {
	d, mem, _, _ := newKnowledgeDispatcher(t)

	res := dispatchOne(t, d, "developer", "knowledge.memorize", map[string]any{
		"essence": "Helper prefers tabs", "lesson": "Use tabs", "emotions": "Trust",
	})
	assert.True(t, res.Silent)
	assert.Equal(t, "MEMORY SAVED: Success", res.Output)
	require.Len(t, mem.stored, 1)
	assert.Equal(t, []string{"Trust", "conscious"}, mem.stored[0].Emotions)
	assert.Equal(t, 0.8, mem.stored[0].Weight)
	assert.Equal(t, "developer", mem.modes[0])

	res = dispatchOne(t, d, "developer", "knowledge.memorize", map[string]any{"essence": "x"})
	assert.False(t, res.Silent)

	mem.storeErr = memory.ErrEmbedding
	res = dispatchOne(t, d, "developer", "knowledge.memorize", map[string]any{"essence": "x", "lesson": "y"})
	assert.False(t, res.Silent)
	assert.Contains(t, res.Output, "embedding failed")
}

func TestRecallContextFormatting(t *testing.T) {
	d, mem, _, _ := newKnowledgeDispatcher(t)
	mem.results = []memory.RankedMemory{{Essence: "we shipped", Lesson: "celebrate", CreatedAt: fixedNow}}

	res := dispatchOne(t, d, "analyst", "knowledge.recall_context", map[string]any{"query": "release"})
	assert.False(t, res.Silent)
	assert.Contains(t, res.Output, "[SYSTEM: PAST MEMORIES (READ-ONLY)]")
	assert.Contains(t, res.Output, "Search Query: 'release'")
	assert.Contains(t, res.Output, "1. [Date: 2026-04-02 09:30]")
	assert.Contains(t, res.Output, "   EVENT: we shipped")
	assert.Contains(t, res.Output, "   PAST LESSON: celebrate")
	assert.Contains(t, res.Output, "[END OF MEMORIES]")
	assert.Equal(t, "general", mem.queries[0].Mode)

	mem.results = nil
	res = dispatchOne(t, d, "analyst", "knowledge.recall_context", map[string]any{"query": "void"})
	assert.Equal(t, "No relevant memories found.", res.Output)
}

func TestRecallEmotionExpandsLegacyTags(t *testing.T) {
	d, mem, _, _ := newKnowledgeDispatcher(t)

	res := dispatchOne(t, d, "game", "knowledge.recall_emotion", map[string]any{"emotions": []any{"Trust"}})
	assert.Contains(t, res.Output, "Target Emotions (Expanded): [Trust, bizalom]")
	require.Len(t, mem.queries, 1)
	assert.True(t, mem.queries[0].ExactEmotionsOnly)
	assert.Equal(t, []string{"Trust", "bizalom"}, mem.queries[0].Emotions)

	res = dispatchOne(t, d, "game", "knowledge.recall_emotion", nil)
	assert.Equal(t, "No emotions provided.", res.Output)
}

func TestInsightAndLawLedgers(t *testing.T) {
	d, _, _, store := newKnowledgeDispatcher(t)

	res := dispatchOne(t, d, "general", "knowledge.add_tool_insight", map[string]any{"target_tool": "system.read_file", "insight": "paths are root-relative"})
	assert.True(t, res.Silent)
	insights, err := LoadInsights(store)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "system.read_file", insights[0].Tool)
	assert.True(t, insights[0].AddedAt.Equal(fixedNow))

	res = dispatchOne(t, d, "general", "knowledge.propose_law", map[string]any{"name": "Honesty", "text": "Never invent results."})
	assert.True(t, res.Silent)
	laws, err := filestore.LoadList[LawProposal](store, PendingLawsDoc)
	require.NoError(t, err)
	require.Len(t, laws, 1)
	assert.Equal(t, "pending", laws[0].Status)

	res = dispatchOne(t, d, "general", "knowledge.thinking", map[string]any{"context": "hmm"})
	assert.True(t, res.Silent)
}

func TestPersonaTools(t *testing.T) {
	d, _, chat, _ := newKnowledgeDispatcher(t)

	res := dispatchOne(t, d, "general", "knowledge.ask", map[string]any{"question": "why?"})
	assert.Equal(t, "knowledge says hi to why?", res.Output)
	assert.False(t, res.Silent)

	res = dispatchOne(t, d, "general", "knowledge.ask", map[string]any{})
	assert.Equal(t, "Empty question.", res.Output)

	dispatchOne(t, d, "game", "game.llama", map[string]any{"message": "a dragon"})
	dispatchOne(t, d, "game", "game.oss", map[string]any{"message": "a license"})
	assert.Equal(t, []string{"knowledge", "llama", "oss"}, chat.personas)
}

func TestRecallConsciousErrorsAreVisible(t *testing.T) {
	d := NewDispatcher(builtinRegistry(t), nil)
	d.Register(KnowledgeTools(KnowledgeDeps{Memory: failingMemory{&fakeMemory{}}, GlobalMode: "general"})...)

	res := dispatchOne(t, d, "general", "knowledge.recall_conscious", nil)
	assert.False(t, res.Silent)
	assert.Contains(t, res.Output, "store offline")
}

type failingMemory struct{ *fakeMemory }

func (failingMemory) RecentConscious(context.Context, int) ([]memory.RankedMemory, error) {
	return nil, errors.New("store offline")
}
