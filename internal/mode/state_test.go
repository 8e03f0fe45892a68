package mode

import (
	"errors"
	"strings"
	"testing"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStateStore(t *testing.T) (*StateStore, *filestore.Store) {
	t.Helper()
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	return NewStateStore(fs, builtinRegistry(t)), fs
}

func TestLoadRepairsInvalidMode(t *testing.T) {
	s, fs := newStateStore(t)

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "general", st.CurrentMode)

	require.NoError(t, fs.Save(stateDocument, State{CurrentMode: "attic", CurrentIntent: "x"}))
	st, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "general", st.CurrentMode)
	assert.Equal(t, "x", st.CurrentIntent)

	var persisted State
	_, err = fs.Load(stateDocument, &persisted)
	require.NoError(t, err)
	assert.Equal(t, "general", persisted.CurrentMode)
}

func TestSwitch(t *testing.T) {
	s, _ := newStateStore(t)

	outcome, err := s.Switch("analyst", "dig", "context so far")
	require.NoError(t, err)
	assert.Equal(t, SwitchApplied, outcome)

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, State{
		CurrentMode:     "analyst",
		CurrentIntent:   "dig",
		IncomingSummary: "context so far",
		LastActive:      st.LastActive,
	}, st)
	assert.False(t, st.LastActive.IsZero())
}

func TestSwitchToSameModeIsNoop(t *testing.T) {
	s, fs := newStateStore(t)
	_, err := s.Switch("analyst", "dig", "sum")
	require.NoError(t, err)
	before := fs.ModTime(stateDocument)
	st0, _ := s.Load()

	outcome, err := s.Switch("analyst", "other", "other")
	require.NoError(t, err)
	assert.Equal(t, SwitchNoop, outcome)

	st1, _ := s.Load()
	assert.Equal(t, st0, st1)
	assert.Equal(t, before, fs.ModTime(stateDocument))
}

func TestSwitchUnknownMode(t *testing.T) {
	s, _ := newStateStore(t)
	_, err := s.Switch("attic", "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMode))
}

func TestClearSummary(t *testing.T) {
	s, _ := newStateStore(t)
	_, err := s.Switch("developer", "fix bug", "finished analysis")
	require.NoError(t, err)
	require.NoError(t, s.ClearSummary())
	st, _ := s.Load()
	assert.Empty(t, st.IncomingSummary)
	assert.Equal(t, "fix bug", st.CurrentIntent)
}

func TestNarrate(t *testing.T) {
	r := builtinRegistry(t)
	general, _ := r.Get("general")
	analyst, _ := r.Get("analyst")
	developer, _ := r.Get("developer")

	exit, entry := Narrate(analyst, developer, "fix bug", "finished analysis")
	assert.Contains(t, exit, "fix bug")
	assert.Contains(t, entry, "fix bug")
	assert.Contains(t, entry, "finished analysis")

	exit, entry = Narrate(general, analyst, "", "")
	assert.Contains(t, exit, "Global attention SUSPENDED")
	assert.Contains(t, entry, "Not specified")
	assert.Contains(t, entry, "No summary")

	_, entry = Narrate(developer, general, "wrap up", "patched it")
	assert.True(t, strings.Contains(entry, "Global Context RESUMED"))
	assert.Contains(t, entry, "patched it")
}
