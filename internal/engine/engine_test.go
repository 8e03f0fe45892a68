package engine

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/stellarlinkco/mindloop/internal/channel"
	"github.com/stellarlinkco/mindloop/internal/config"
	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/llm"
	"github.com/stellarlinkco/mindloop/internal/memory"
	"github.com/stellarlinkco/mindloop/internal/mode"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type stubGen struct {
	mu    sync.Mutex
	calls int
}

func (g *stubGen) Generate(_ context.Context, prompt, _ string, _ bool) llm.Reply {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	switch {
	case strings.Contains(prompt, "[MOD: MIND"):
		return llm.ParseReply(`{"essence": "greeting", "plan": "answer"}`)
	case strings.Contains(prompt, "[INCOMING INTERACTION]"):
		return llm.ParseReply(`{"reply": "Hello from the engine."}`)
	}
	return llm.ParseReply(`{"reply": ""}`)
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	return []float32{1, float32(len(text) % 7)}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Agent.DataDir = filepath.Join(dir, "data")
	cfg.Memory.DBPath = filepath.Join(dir, "data", "memory.db")
	cfg.Project.Root = filepath.Join(dir, "project")
	cfg.Agent.ProactiveInterval = "1h"
	cfg.Memory.PollInterval = "1h"
	cfg.Monologue.Interval = "1h"
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, console channel.ConsoleIO, sig chan os.Signal) *Engine {
	t.Helper()
	e, err := New(cfg, Options{
		Generator:  &stubGen{},
		Embedder:   stubEmbedder{},
		Console:    console,
		SignalChan: sig,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return e
}

func TestEngineRunsUntilConsoleExit(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	e := newTestEngine(t, cfg, channel.ConsoleIO{In: strings.NewReader("hello\n/exit\n"), Out: &out}, make(chan os.Signal, 1))

	errc := make(chan error, 1)
	go func() { errc <- e.Run(context.Background()) }()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop after /exit")
	}

	files, err := filestore.New(cfg.Agent.DataDir)
	require.NoError(t, err)
	reg, err := mode.NewRegistry(mode.Builtin(), "general")
	require.NoError(t, err)
	entries, err := transcript.NewBook(files, reg).Load("general")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, transcript.RoleUser, entries[0].Role)
	assert.Equal(t, "hello", entries[0].Content)

	_, err = os.Stat(filepath.Join(cfg.Agent.DataDir, "identity.json"))
	assert.NoError(t, err, "identity is written on first boot")
}

func TestEngineStopsOnSignal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Channels.Console.Enabled = false
	sig := make(chan os.Signal, 1)
	e := newTestEngine(t, cfg, channel.ConsoleIO{}, sig)

	errc := make(chan error, 1)
	go func() { errc <- e.Run(context.Background()) }()
	sig <- syscall.SIGTERM

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop on signal")
	}
}

func TestEngineStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Channels.Console.Enabled = false
	e := newTestEngine(t, cfg, channel.ConsoleIO{}, make(chan os.Signal, 1))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop on cancel")
	}
}

func TestEngineStatusAndRecall(t *testing.T) {
	cfg := testConfig(t)
	cfg.Channels.Console.Enabled = false
	e := newTestEngine(t, cfg, channel.ConsoleIO{}, nil)
	defer e.Close()
	ctx := context.Background()

	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "general", st.Mode)
	assert.Equal(t, 0, st.Memories)
	assert.Equal(t, []string{"memory", "monologue"}, st.Jobs)
	assert.Empty(t, st.Providers)
	assert.Len(t, e.Modes(), 4)

	status, err := e.memory.Store(ctx, "general", memory.Extraction{
		Essence:  "the helper prefers tea",
		Emotions: []string{"Joy"},
		Weight:   0.8,
		Lesson:   "offer tea",
	}, "E1")
	require.NoError(t, err)
	assert.Equal(t, memory.StoreSuccess, status)

	got, err := e.Recall(ctx, "", "", []string{"joy"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "offer tea", got[0].Lesson)

	st, err = e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Memories)
}

func TestEngineMonologueCanBeDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Channels.Console.Enabled = false
	cfg.Monologue.Enabled = false
	e := newTestEngine(t, cfg, channel.ConsoleIO{}, nil)
	defer e.Close()
	assert.Equal(t, []string{"memory"}, e.scheduler.Jobs())
}

func TestNewFailsOnForeignMemorySchema(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Memory.DBPath), 0755))
	db, err := sql.Open("sqlite", cfg.Memory.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE memories (id INTEGER PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = New(cfg, Options{
		Generator: &stubGen{},
		Embedder:  stubEmbedder{},
		Logger:    zaptest.NewLogger(t),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, memory.ErrSchemaMismatch))
}

func TestNewRejectsUnknownDefaultMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.DefaultMode = "kitchen"
	_, err := New(cfg, Options{Generator: &stubGen{}, Embedder: stubEmbedder{}, Logger: zaptest.NewLogger(t)})
	require.Error(t, err)
}
