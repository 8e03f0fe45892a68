package mode

import (
	"errors"
	"fmt"
	"time"

	"github.com/stellarlinkco/mindloop/internal/filestore"
)

const stateDocument = "state.json"

var ErrInvalidMode = errors.New("invalid mode")

// State is the single persisted agent state.
type State struct {
	CurrentMode     string    `json:"current_mode"`
	CurrentIntent   string    `json:"current_intent"`
	IncomingSummary string    `json:"incoming_summary"`
	LastActive      time.Time `json:"last_active"`
}

type SwitchOutcome int

const (
	SwitchApplied SwitchOutcome = iota
	SwitchNoop
)

// StateStore mediates every read and write of the agent state document.
type StateStore struct {
	store    *filestore.Store
	registry *Registry
	now      func() time.Time
}

func NewStateStore(store *filestore.Store, registry *Registry) *StateStore {
	return &StateStore{store: store, registry: registry, now: time.Now}
}

func (s *StateStore) Registry() *Registry {
	return s.registry
}

// Load returns the current state, repairing an unknown or missing mode to the
// registry default.
func (s *StateStore) Load() (State, error) {
	var st State
	if _, err := s.store.Load(stateDocument, &st); err != nil {
		return State{}, fmt.Errorf("load agent state: %w", err)
	}
	if s.registry.Has(st.CurrentMode) {
		return st, nil
	}
	err := s.store.Update(stateDocument, &st, func() error {
		s.repair(&st)
		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("repair agent state: %w", err)
	}
	return st, nil
}

func (s *StateStore) repair(st *State) {
	if !s.registry.Has(st.CurrentMode) {
		st.CurrentMode = s.registry.Default().ID
	}
}

// Current returns the descriptor of the active mode together with the state.
func (s *StateStore) Current() (Descriptor, State, error) {
	st, err := s.Load()
	if err != nil {
		return Descriptor{}, State{}, err
	}
	d, _ := s.registry.Get(st.CurrentMode)
	return d, st, nil
}

// Switch requests a move to target. Narration of the transition happens
// elsewhere once the change is observed.
func (s *StateStore) Switch(target, intent, summary string) (SwitchOutcome, error) {
	if !s.registry.Has(target) {
		return SwitchNoop, fmt.Errorf("%w: %q", ErrInvalidMode, target)
	}
	outcome := SwitchApplied
	var st State
	err := s.store.Update(stateDocument, &st, func() error {
		s.repair(&st)
		if st.CurrentMode == target {
			outcome = SwitchNoop
			return errNoWrite
		}
		st.CurrentMode = target
		st.CurrentIntent = intent
		st.IncomingSummary = summary
		st.LastActive = s.now().UTC()
		return nil
	})
	if errors.Is(err, errNoWrite) {
		return SwitchNoop, nil
	}
	if err != nil {
		return SwitchNoop, fmt.Errorf("switch mode: %w", err)
	}
	return outcome, nil
}

// errNoWrite aborts an update without persisting.
var errNoWrite = errors.New("no write")

func (s *StateStore) ClearSummary() error {
	var st State
	err := s.store.Update(stateDocument, &st, func() error {
		s.repair(&st)
		st.IncomingSummary = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear summary: %w", err)
	}
	return nil
}

func (s *StateStore) Touch() error {
	var st State
	err := s.store.Update(stateDocument, &st, func() error {
		s.repair(&st)
		st.LastActive = s.now().UTC()
		return nil
	})
	if err != nil {
		return fmt.Errorf("touch state: %w", err)
	}
	return nil
}
