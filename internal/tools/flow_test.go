package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/mode"
)

func newFlowDispatcher(t *testing.T) (*Dispatcher, *mode.StateStore) {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	reg := builtinRegistry(t)
	state := mode.NewStateStore(store, reg)
	d := NewDispatcher(reg, nil)
	d.Register(FlowTools(state)...)
	return d, state
}

func TestSwitchModeFromAnalyst(t *testing.T) {
	d, state := newFlowDispatcher(t)
	_, err := state.Switch("analyst", "study", "")
	require.NoError(t, err)

	results := d.Dispatch(context.Background(), []Invocation{{
		Name: SwitchModeTool,
		Args: map[string]any{"target_mode": "developer", "intent": "fix bug", "summary": "finished analysis"},
	}}, "analyst")

	require.Len(t, results, 1)
	assert.Equal(t, "Switched to developer. Intent: fix bug", results[0].Output)
	assert.False(t, results[0].Silent)
	assert.True(t, results[0].ModeSwitched)
	assert.True(t, HasModeSwitch(results))

	st, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, "developer", st.CurrentMode)
	assert.Equal(t, "fix bug", st.CurrentIntent)
	assert.Equal(t, "finished analysis", st.IncomingSummary)
}

func TestSwitchModeNoopAndInvalid(t *testing.T) {
	d, state := newFlowDispatcher(t)
	before, err := state.Load()
	require.NoError(t, err)

	results := d.Dispatch(context.Background(), []Invocation{
		{Name: SwitchModeTool, Args: map[string]any{"target_mode": before.CurrentMode, "intent": "again"}},
		{Name: SwitchModeTool, Args: map[string]any{"target_mode": "kitchen"}},
	}, before.CurrentMode)

	assert.Equal(t, "Already in this mode.", results[0].Output)
	assert.True(t, results[0].Silent)
	assert.Equal(t, "Error: Invalid mode 'kitchen'", results[1].Output)
	assert.False(t, results[1].Silent)
	assert.False(t, results[0].ModeSwitched)
	assert.False(t, results[1].ModeSwitched)
	assert.False(t, HasModeSwitch(results))

	after, _ := state.Load()
	assert.Equal(t, before.CurrentMode, after.CurrentMode)
	assert.Equal(t, before.CurrentIntent, after.CurrentIntent)
	assert.True(t, before.LastActive.Equal(after.LastActive))
}

func TestContinue(t *testing.T) {
	d, _ := newFlowDispatcher(t)
	results := d.Dispatch(context.Background(), []Invocation{{Name: ContinueTool, Args: map[string]any{"next_step": "run tests"}}}, "general")
	assert.Equal(t, "Continuing: run tests", results[0].Output)
	assert.False(t, results[0].Silent)
}
