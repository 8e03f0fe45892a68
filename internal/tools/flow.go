package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellarlinkco/mindloop/internal/mode"
)

const (
	SwitchModeTool = "flow.switch_mode"
	ContinueTool   = "flow.continue"
)

// Switcher is the state operation behind flow.switch_mode.
type Switcher interface {
	Switch(target, intent, summary string) (mode.SwitchOutcome, error)
}

func FlowTools(state Switcher) []Spec {
	return []Spec{
		{
			Name:    SwitchModeTool,
			Summary: "flow.switch_mode(target_mode, intent, summary) - Switch to another operating mode.",
			Manual: `Moves attention to another mode. The transition is narrated into both modes.
Params:
  target_mode (str): id of the mode to enter.
  intent (str): what you want to achieve there.
  summary (str, optional): what happened here, carried into the next mode.
Switching to the mode you are already in does nothing.`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				target := c.Args.String("target_mode", "")
				intent := c.Args.String("intent", "No intent")
				summary := c.Args.String("summary", "")

				outcome, err := state.Switch(target, intent, summary)
				switch {
				case errors.Is(err, mode.ErrInvalidMode):
					return Visible("Error: Invalid mode '%s'", target), nil
				case err != nil:
					return Output{}, fmt.Errorf("switch mode: %w", err)
				case outcome == mode.SwitchNoop:
					return Silent("Already in this mode."), nil
				}
				out := Visible("Switched to %s. Intent: %s", target, intent)
				out.ModeSwitched = true
				return out, nil
			},
		},
		{
			Name:    ContinueTool,
			Summary: "flow.continue(next_step) - Continue the workflow immediately with the next step.",
			Manual: `Requests another turn without waiting for the Helper.
Params:
  next_step (str): short description of the step you take next.`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				return Visible("Continuing: %s", c.Args.String("next_step", "Continuing...")), nil
			},
		},
	}
}
