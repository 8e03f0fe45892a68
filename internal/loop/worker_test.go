package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stellarlinkco/mindloop/internal/tools"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

type fakeToolbox struct {
	mu    sync.Mutex
	modes []string
	panic bool
}

func (f *fakeToolbox) Dispatch(_ context.Context, calls []tools.Invocation, modeID string) []tools.Result {
	f.mu.Lock()
	f.modes = append(f.modes, modeID)
	f.mu.Unlock()
	if f.panic {
		panic("handler exploded")
	}
	out := make([]tools.Result, 0, len(calls))
	for _, c := range calls {
		out = append(out, tools.Result{Name: c.Name, Args: c.Args, Output: "ok in " + modeID})
	}
	return out
}

func (f *fakeToolbox) Describe(modeID string) string {
	return "TOOLS FOR " + modeID
}

func (f *fakeToolbox) RelevantTips(string, []tools.Insight) string {
	return ""
}

func newTestWorker(t *testing.T, f *fixture, box Toolbox, gen Generator) *Worker {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewWorker(WorkerDeps{
		Queues:  f.queues,
		State:   f.state,
		Book:    f.book,
		Tools:   box,
		Gen:     gen,
		Mind:    NewMind(gen, "main", "creative", logger),
		Persona: Persona{Generation: "E1", RoleName: "Consciousness"},
		Logger:  logger,
	})
}

func runWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
}

func nextResult(t *testing.T, q *Queues) Result {
	t.Helper()
	select {
	case r := <-q.Results:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("no result from worker")
		return Result{}
	}
}

func TestWorkerReadsModeAtDequeue(t *testing.T) {
	f := newFixture(t)
	box := &fakeToolbox{}
	w := newTestWorker(t, f, box, &scriptedGen{})

	task := NewToolBatch([]tools.Invocation{{Name: "system.list_files", Args: map[string]any{}}})
	f.queues.PushTask(task)
	_, err := f.state.Switch("developer", "build", "")
	require.NoError(t, err)

	runWorker(t, w)
	r := nextResult(t, f.queues)

	assert.Equal(t, ResultTools, r.Kind)
	assert.Equal(t, task.ID, r.TaskID)
	assert.Equal(t, "developer", r.ModeID)
	require.Len(t, r.Batch, 1)
	assert.Equal(t, "ok in developer", r.Batch[0].Output)
}

func TestWorkerRecoversPanic(t *testing.T) {
	f := newFixture(t)
	w := newTestWorker(t, f, &fakeToolbox{panic: true}, &scriptedGen{})
	runWorker(t, w)

	f.queues.PushTask(NewToolBatch(nil))
	r := nextResult(t, f.queues)
	assert.Equal(t, ResultError, r.Kind)
	assert.Equal(t, "general", r.ModeID)
	assert.Contains(t, r.Message, "handler exploded")

	// The loop keeps serving after a failed task.
	f.queues.PushTask(NewToolBatch(nil))
	assert.Equal(t, ResultError, nextResult(t, f.queues).Kind)
}

func TestWorkerUserMessage(t *testing.T) {
	f := newFixture(t)
	gen := &scriptedGen{answers: map[string]string{
		"[TASK: RADIAL CREATIVITY]": `{"ideas": ["1. surprising idea: ask a question back"]}`,
		"[MOD: MIND":                `{"essence": "greeting", "plan": "greet warmly"}`,
		"[INCOMING INTERACTION]":    `{"reply": "Hello, Helper.", "tools": [{"name": "knowledge.save", "args": {"content": "met"}}]}`,
	}}
	require.NoError(t, f.book.Append("general", transcript.NewEntry(transcript.RoleUser, transcript.TypeMessage, "good morning")))
	w := newTestWorker(t, f, &fakeToolbox{}, gen)
	runWorker(t, w)

	f.queues.PushTask(NewTask(TaskUserMessage, "good morning"))
	r := nextResult(t, f.queues)

	require.Equal(t, ResultLLM, r.Kind)
	assert.Equal(t, "general", r.ModeID)
	assert.Equal(t, "Hello, Helper.", r.Reply)
	require.Len(t, r.Tools, 1)
	assert.Equal(t, "knowledge.save", r.Tools[0].Name)

	mind := gen.seen("[MOD: MIND")
	require.Len(t, mind, 1)
	assert.Contains(t, mind[0], "ask a question back")

	reactive := gen.seen("[INCOMING INTERACTION]")
	require.Len(t, reactive, 1)
	assert.Contains(t, reactive[0], "good morning")
	assert.Contains(t, reactive[0], "greet warmly")
	assert.Contains(t, reactive[0], "TOOLS FOR general")
}

func TestWorkerAfterToolAndProactive(t *testing.T) {
	f := newFixture(t)
	_, err := f.state.Switch("analyst", "map the logs", "")
	require.NoError(t, err)
	gen := &scriptedGen{answers: map[string]string{
		"[MOD: MIND":            `{"essence": "e", "plan": "keep mapping"}`,
		"[INCOMING INTERACTION": `{"reply": "done"}`,
		"[PROACTIVE OPERATION]": `{"reply": "", "tools": [{"name": "flow.continue"}]}`,
	}}
	w := newTestWorker(t, f, &fakeToolbox{}, gen)
	runWorker(t, w)

	f.queues.PushTask(NewTask(TaskAfterTool, ""))
	r := nextResult(t, f.queues)
	assert.Equal(t, "done", r.Reply)
	mind := gen.seen("[MOD: MIND")
	require.NotEmpty(t, mind)
	assert.Contains(t, mind[0], afterToolImpulse)

	f.queues.PushTask(NewTask(TaskProactive, ""))
	r = nextResult(t, f.queues)
	assert.Equal(t, ResultLLM, r.Kind)
	assert.Equal(t, "analyst", r.ModeID)
	require.Len(t, r.Tools, 1)
	assert.Equal(t, "flow.continue", r.Tools[0].Name)

	mind = gen.seen("My current intent: map the logs.")
	assert.NotEmpty(t, mind)
}

func TestWorkerStopsOnSentinel(t *testing.T) {
	f := newFixture(t)
	w := newTestWorker(t, f, &fakeToolbox{}, &scriptedGen{})

	errc := make(chan error, 1)
	go func() { errc <- w.Run(context.Background()) }()
	f.queues.PushTask(nil)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
	select {
	case <-w.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestWorkerTagsUnknownTaskWithMode(t *testing.T) {
	f := newFixture(t)
	_, err := f.state.Switch("developer", "build", "")
	require.NoError(t, err)
	w := newTestWorker(t, f, &fakeToolbox{}, &scriptedGen{})
	runWorker(t, w)

	f.queues.PushTask(NewTask(TaskKind("dream"), ""))
	r := nextResult(t, f.queues)
	assert.Equal(t, ResultError, r.Kind)
	assert.Equal(t, "developer", r.ModeID)
	assert.Contains(t, r.Message, "unknown task kind: dream")
}
