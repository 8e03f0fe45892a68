package loop

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/logging"
	"github.com/stellarlinkco/mindloop/internal/mode"
	"github.com/stellarlinkco/mindloop/internal/tools"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

const afterToolImpulse = "Reflection after tool execution."

// Toolbox is the dispatcher surface the worker needs.
type Toolbox interface {
	Dispatch(ctx context.Context, calls []tools.Invocation, modeID string) []tools.Result
	Describe(modeID string) string
	RelevantTips(modeID string, insights []tools.Insight) string
}

type WorkerDeps struct {
	Queues   *Queues
	State    *mode.StateStore
	Book     *transcript.Book
	Tools    Toolbox
	Gen      Generator
	Mind     *Mind
	Persona  Persona
	Provider string
	Logger   *zap.Logger
}

// Worker executes tasks one at a time. It resolves the active mode per task,
// so a switch applied by a previous batch is seen by the next task.
type Worker struct {
	WorkerDeps
	files *filestore.Store
	done  chan struct{}
}

func NewWorker(deps WorkerDeps) *Worker {
	deps.Logger = logging.OrNop(deps.Logger).Named("worker")
	return &Worker{
		WorkerDeps: deps,
		files:      deps.Book.Store(),
		done:       make(chan struct{}),
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run consumes tasks until the nil sentinel arrives or ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	w.Logger.Info("worker started")
	for {
		task, err := w.Queues.Tasks.Pop(ctx)
		if err != nil {
			return nil
		}
		if task == nil {
			w.Logger.Info("worker stopping")
			return nil
		}
		res := w.handle(ctx, task)
		res.TaskID = task.ID
		if err := w.Queues.PushResult(ctx, res); err != nil {
			return nil
		}
	}
}

func (w *Worker) handle(ctx context.Context, task *Task) (res Result) {
	var modeID string
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("task panicked",
				zap.String("kind", string(task.Kind)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = Result{Kind: ResultError, ModeID: modeID, Message: fmt.Sprintf("worker panic: %v", r)}
		}
	}()

	desc, st, err := w.State.Current()
	if err != nil {
		return Result{Kind: ResultError, Message: err.Error()}
	}
	modeID = desc.ID
	w.Logger.Debug("task", zap.String("kind", string(task.Kind)), zap.String("mode", desc.ID))

	switch task.Kind {
	case TaskToolBatch:
		batch := w.Tools.Dispatch(ctx, task.Calls, desc.ID)
		return Result{Kind: ResultTools, ModeID: desc.ID, Batch: batch}

	case TaskUserMessage, TaskAfterTool:
		snap, err := w.snapshot(desc, st)
		if err != nil {
			return Result{Kind: ResultError, ModeID: desc.ID, Message: err.Error()}
		}
		impulse := task.Content
		if task.Kind == TaskAfterTool {
			impulse = afterToolImpulse
		}
		thought := w.Mind.Think(ctx, snap.Identity, snap.Relevant, snap.Local, impulse)
		return w.respond(ctx, desc.ID, ReactivePrompt(w.Persona, snap, task.Content, thought))

	case TaskProactive:
		snap, err := w.snapshot(desc, st)
		if err != nil {
			return Result{Kind: ResultError, ModeID: desc.ID, Message: err.Error()}
		}
		impulse := fmt.Sprintf("Internal reflection needed. My current intent: %s. Evaluate the situation and create a plan.", st.CurrentIntent)
		thought := w.Mind.Think(ctx, snap.Identity, snap.Relevant, snap.Local, impulse)
		return w.respond(ctx, desc.ID, ProactivePrompt(w.Persona, snap, thought))
	}
	return Result{Kind: ResultError, ModeID: desc.ID, Message: "unknown task kind: " + string(task.Kind)}
}

func (w *Worker) respond(ctx context.Context, modeID, prompt string) Result {
	reply := w.Gen.Generate(ctx, prompt, w.Provider, true)
	if reply.Failed {
		w.Logger.Warn("generation failed", zap.String("mode", modeID), zap.String("reply", reply.Text))
	}
	calls := make([]tools.Invocation, 0, len(reply.Tools))
	for _, c := range reply.Tools {
		calls = append(calls, tools.Invocation{Name: c.Name, Args: c.Args})
	}
	return Result{Kind: ResultLLM, ModeID: modeID, Reply: reply.Text, Tools: calls}
}

func (w *Worker) snapshot(desc mode.Descriptor, st mode.State) (Snapshot, error) {
	identity, err := LoadIdentity(w.files)
	if err != nil {
		w.Logger.Warn("identity unavailable", zap.Error(err))
	}
	relevant, err := w.Book.LoadRelevant(desc.ID)
	if err != nil {
		w.Logger.Warn("relevant memories unavailable", zap.Error(err))
	}
	insights, err := tools.LoadInsights(w.files)
	if err != nil {
		w.Logger.Warn("insights unavailable", zap.Error(err))
	}

	var globalTail []transcript.Entry
	if !desc.IsGlobal() {
		globalTail, err = w.Book.Tail(w.State.Registry().Global().ID, globalTailLimit)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load global tail: %w", err)
		}
	}
	local, err := w.Book.Load(desc.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load transcript: %w", err)
	}

	return Snapshot{
		Mode:       desc,
		Modes:      w.State.Registry().All(),
		Intent:     st.CurrentIntent,
		Identity:   identity,
		Relevant:   relevant,
		Tips:       w.Tools.RelevantTips(desc.ID, insights),
		GlobalTail: globalTail,
		Local:      local,
		Tools:      w.Tools.Describe(desc.ID),
		Monologue:  MonologueHints(w.files),
	}, nil
}
