// Package loop runs the conductor, the worker and the background monitors
// that make up one agent.
package loop

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stellarlinkco/mindloop/internal/tools"
)

type TaskKind string

const (
	TaskUserMessage TaskKind = "user_message"
	TaskAfterTool   TaskKind = "after_tool"
	TaskToolBatch   TaskKind = "tool_batch"
	TaskProactive   TaskKind = "proactive"
)

// Task is one unit of worker input. It never carries a mode id: the worker
// reads the active mode when it dequeues the task. A nil *Task stops the worker.
type Task struct {
	ID      string
	Kind    TaskKind
	Content string
	Calls   []tools.Invocation
}

func NewTask(kind TaskKind, content string) *Task {
	return &Task{ID: uuid.NewString(), Kind: kind, Content: content}
}

func NewToolBatch(calls []tools.Invocation) *Task {
	t := NewTask(TaskToolBatch, "")
	t.Calls = calls
	return t
}

type ResultKind string

const (
	ResultUserInput ResultKind = "user_input"
	ResultLLM       ResultKind = "llm_result"
	ResultTools     ResultKind = "tool_result"
	ResultError     ResultKind = "error"
	ResultExit      ResultKind = "exit"
)

// Result flows from the worker and the input bridge back to the conductor.
type Result struct {
	Kind    ResultKind
	TaskID  string
	ModeID  string
	Reply   string
	Tools   []tools.Invocation
	Batch   []tools.Result
	Content string
	Message string
}

// TaskQueue is an unbounded FIFO of tasks. Push never blocks, so the
// conductor keeps draining results while the worker is busy.
type TaskQueue struct {
	mu    sync.Mutex
	items []*Task
	ready chan struct{}
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{ready: make(chan struct{}, 1)}
}

// Push appends t. A nil t is the stop sentinel.
func (q *TaskQueue) Push(t *Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop removes the oldest task without waiting.
func (q *TaskQueue) TryPop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

// Pop waits for the oldest task. It returns ctx.Err() if ctx ends first.
func (q *TaskQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		if t, ok := q.TryPop(); ok {
			return t, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Queues are the two FIFOs shared by the loops. Tasks is unbounded; Results
// is bounded so a flood of inbound messages pushes back on the input bridge.
type Queues struct {
	Tasks   *TaskQueue
	Results chan Result
}

func NewQueues(size int) *Queues {
	if size <= 0 {
		size = 1
	}
	return &Queues{
		Tasks:   NewTaskQueue(),
		Results: make(chan Result, size),
	}
}

func (q *Queues) PushTask(t *Task) {
	q.Tasks.Push(t)
}

func (q *Queues) PushResult(ctx context.Context, r Result) error {
	select {
	case q.Results <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
