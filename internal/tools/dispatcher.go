// Package tools turns model-requested invocations into side effects, checking
// each against the active mode's allow-list first.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/logging"
)

var ErrUnknownTool = errors.New("unknown tool")

type Invocation struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Output is what every handler returns. Silent results are recorded without
// prompting a follow-up turn.
type Output struct {
	Content string
	Silent  bool
	// ModeSwitched is set only by a switch that changed the active mode.
	ModeSwitched bool
}

func Visible(format string, a ...any) Output {
	return Output{Content: fmt.Sprintf(format, a...)}
}

func Silent(format string, a ...any) Output {
	return Output{Content: fmt.Sprintf(format, a...), Silent: true}
}

type Result struct {
	Name         string         `json:"name"`
	Args         map[string]any `json:"args"`
	Output       string         `json:"output"`
	Silent       bool           `json:"silent"`
	ModeSwitched bool           `json:"mode_switched,omitempty"`
}

// Call is the handler view of one invocation.
type Call struct {
	Mode string
	Args Args
}

type Handler func(ctx context.Context, call Call) (Output, error)

// Spec registers a handler under an exact name with its catalog text.
type Spec struct {
	Name    string
	Summary string
	Manual  string
	Handler Handler
}

// Policy decides whether a mode may run a tool.
type Policy interface {
	Allowed(modeID, tool string) bool
}

type Dispatcher struct {
	mu     sync.RWMutex
	specs  map[string]Spec
	policy Policy
	logger *zap.Logger
}

func NewDispatcher(policy Policy, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		specs:  make(map[string]Spec),
		policy: policy,
		logger: logging.OrNop(logger).Named("dispatcher"),
	}
}

func (d *Dispatcher) Register(specs ...Spec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range specs {
		d.specs[s.Name] = s
	}
}

func (d *Dispatcher) lookup(name string) (Spec, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.specs[name]
	return s, ok
}

// Specs returns all registered tools sorted by name.
func (d *Dispatcher) Specs() []Spec {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Spec, 0, len(d.specs))
	for _, s := range d.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Permitted returns the registered tools modeID may run.
func (d *Dispatcher) Permitted(modeID string) []Spec {
	var out []Spec
	for _, s := range d.Specs() {
		if d.policy.Allowed(modeID, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// Dispatch runs calls sequentially in order. It never fails: denied calls,
// unknown names, handler errors and panics all become visible results.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []Invocation, modeID string) []Result {
	results := make([]Result, 0, len(calls))
	for _, inv := range calls {
		args := inv.Args
		if args == nil {
			args = map[string]any{}
		}
		res := Result{Name: inv.Name, Args: args}

		if !d.policy.Allowed(modeID, inv.Name) {
			d.logger.Warn("unauthorized tool", zap.String("tool", inv.Name), zap.String("mode", modeID))
			res.Output = fmt.Sprintf("UNAUTHORIZED: %s forbidden in %s", inv.Name, modeID)
			results = append(results, res)
			continue
		}

		out := d.run(ctx, inv.Name, Call{Mode: modeID, Args: Args(args)})
		res.Output = out.Content
		res.Silent = out.Silent
		res.ModeSwitched = out.ModeSwitched
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, name string, call Call) (out Output) {
	spec, ok := d.lookup(name)
	if !ok {
		return Visible("%v: %s", ErrUnknownTool, name)
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", r))
			out = Visible("Critical error during tool execution: %v", r)
		}
	}()
	out, err := spec.Handler(ctx, call)
	if err != nil {
		d.logger.Error("tool failed", zap.String("tool", name), zap.Error(err))
		return Output{Content: err.Error()}
	}
	return out
}

// AllSilent reports whether every result in the batch is silent. An empty
// batch is not silent.
func AllSilent(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Silent {
			return false
		}
	}
	return true
}

// HasModeSwitch reports whether the batch contains an applied mode switch.
func HasModeSwitch(results []Result) bool {
	for _, r := range results {
		if r.ModeSwitched {
			return true
		}
	}
	return false
}
