package loop

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/bus"
	"github.com/stellarlinkco/mindloop/internal/logging"
	"github.com/stellarlinkco/mindloop/internal/mode"
	"github.com/stellarlinkco/mindloop/internal/tools"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

const (
	defaultResultWait  = 100 * time.Millisecond
	workerStopDeadline = 2 * time.Second
)

// Publisher delivers visible replies to the channels.
type Publisher interface {
	PublishOutbound(ctx context.Context, msg bus.OutboundMessage) error
}

type ConductorDeps struct {
	Queues   *Queues
	State    *mode.StateStore
	Book     *transcript.Book
	Outbound Publisher
	// WorkerDone is waited on after the stop sentinel is queued.
	WorkerDone <-chan struct{}
	Idle       time.Duration
	Logger     *zap.Logger
}

// Conductor owns the main loop: it narrates mode transitions, records
// results and decides which follow-up task, if any, a result deserves.
type Conductor struct {
	ConductorDeps
	wait         time.Duration
	now          func() time.Time
	lastMode     string
	lastActivity time.Time
}

func NewConductor(deps ConductorDeps) *Conductor {
	deps.Logger = logging.OrNop(deps.Logger).Named("conductor")
	return &Conductor{
		ConductorDeps: deps,
		wait:          defaultResultWait,
		now:           time.Now,
		lastActivity:  time.Now(),
	}
}

// Run steps until an exit result arrives or ctx ends.
func (c *Conductor) Run(ctx context.Context) error {
	c.Logger.Info("conductor started", zap.Duration("idle", c.Idle))
	for ctx.Err() == nil {
		stop, err := c.Step(ctx)
		if err != nil {
			c.Logger.Error("step failed", zap.Error(err))
		}
		if stop {
			return nil
		}
	}
	return nil
}

// Step runs one iteration. It reports true once the agent should stop.
func (c *Conductor) Step(ctx context.Context) (bool, error) {
	if err := c.observeTransition(); err != nil {
		c.Logger.Warn("transition check failed", zap.Error(err))
	}

	timer := time.NewTimer(c.wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true, nil
	case r := <-c.Queues.Results:
		return c.handle(ctx, r)
	case <-timer.C:
		if c.Idle > 0 && c.now().Sub(c.lastActivity) > c.Idle {
			c.Logger.Info("idle, scheduling proactive thought")
			c.lastActivity = c.now()
			c.Queues.PushTask(NewTask(TaskProactive, ""))
			return false, nil
		}
		return false, nil
	}
}

func (c *Conductor) observeTransition() error {
	st, err := c.State.Load()
	if err != nil {
		return err
	}
	if c.lastMode == "" {
		c.lastMode = st.CurrentMode
		return nil
	}
	if st.CurrentMode == c.lastMode {
		return nil
	}

	reg := c.State.Registry()
	prev, ok := reg.Get(c.lastMode)
	if !ok {
		prev = reg.Global()
	}
	next, _ := reg.Get(st.CurrentMode)
	exit, entry := mode.Narrate(prev, next, st.CurrentIntent, st.IncomingSummary)

	c.Logger.Info("mode transition",
		zap.String("from", prev.ID),
		zap.String("to", next.ID),
		zap.String("intent", st.CurrentIntent))
	c.lastMode = st.CurrentMode

	if err := c.Book.AddSystemEvent(prev.ID, exit); err != nil {
		return err
	}
	if err := c.Book.AddSystemEvent(next.ID, entry); err != nil {
		return err
	}
	if err := c.State.ClearSummary(); err != nil {
		return err
	}
	c.lastActivity = c.now()
	c.Queues.PushTask(NewTask(TaskProactive, ""))
	return nil
}

func (c *Conductor) handle(ctx context.Context, r Result) (bool, error) {
	modeID := r.ModeID
	if modeID == "" {
		modeID = c.lastMode
	}

	switch r.Kind {
	case ResultUserInput:
		c.lastActivity = c.now()
		if err := c.State.Touch(); err != nil {
			c.Logger.Warn("touch state failed", zap.Error(err))
		}
		if err := c.Book.Append(modeID, transcript.NewEntry(transcript.RoleUser, transcript.TypeMessage, r.Content)); err != nil {
			return false, err
		}
		c.Queues.PushTask(NewTask(TaskUserMessage, r.Content))
		return false, nil

	case ResultLLM:
		c.lastActivity = c.now()
		if reply := strings.TrimSpace(r.Reply); reply != "" {
			if err := c.Book.Append(modeID, transcript.NewEntry(transcript.RoleAssistant, transcript.TypeMessage, reply)); err != nil {
				return false, err
			}
			if c.Outbound != nil {
				if err := c.Outbound.PublishOutbound(ctx, bus.OutboundMessage{ModeID: modeID, Content: reply}); err != nil {
					c.Logger.Warn("publish reply failed", zap.Error(err))
				}
			}
		}
		if len(r.Tools) > 0 {
			c.Queues.PushTask(NewToolBatch(r.Tools))
		}
		return false, nil

	case ResultTools:
		return false, c.recordBatch(modeID, r.Batch)

	case ResultError:
		c.Logger.Error("task failed", zap.String("task", r.TaskID), zap.String("error", r.Message))
		return false, nil

	case ResultExit:
		c.Logger.Info("exit requested")
		c.stopWorker(ctx)
		return true, nil
	}
	c.Logger.Warn("unknown result kind", zap.String("kind", string(r.Kind)))
	return false, nil
}

// recordBatch applies the dynamic silence rule to one tool batch.
func (c *Conductor) recordBatch(modeID string, batch []tools.Result) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	entry := transcript.NewEntry(transcript.RoleTool, transcript.TypeToolResult, string(payload))

	if tools.AllSilent(batch) {
		entry.Meta.Silent = true
		return c.Book.Append(modeID, entry)
	}
	c.lastActivity = c.now()
	if err := c.Book.Append(modeID, entry); err != nil {
		return err
	}
	if tools.HasModeSwitch(batch) {
		c.Logger.Debug("follow-up left to the transition")
		return nil
	}
	c.Queues.PushTask(NewTask(TaskAfterTool, ""))
	return nil
}

func (c *Conductor) stopWorker(ctx context.Context) {
	c.Queues.PushTask(nil)
	if c.WorkerDone == nil {
		return
	}
	deadline := time.NewTimer(workerStopDeadline)
	defer deadline.Stop()
	for {
		select {
		case <-c.WorkerDone:
			return
		case r := <-c.Queues.Results:
			// The worker may be blocked on a full result queue.
			c.Logger.Debug("result dropped during shutdown", zap.String("kind", string(r.Kind)))
		case <-ctx.Done():
			return
		case <-deadline.C:
			c.Logger.Warn("worker did not stop in time")
			return
		}
	}
}
