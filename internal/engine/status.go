package engine

import (
	"context"
	"time"

	"github.com/stellarlinkco/mindloop/internal/memory"
	"github.com/stellarlinkco/mindloop/internal/mode"
)

type Status struct {
	Mode       string
	Intent     string
	Summary    string
	LastActive time.Time
	Memories   int
	Providers  []string
	Channels   []string
	Jobs       []string
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	st, err := e.state.Load()
	if err != nil {
		return Status{}, err
	}
	n, err := e.memEng.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	s := Status{
		Mode:       st.CurrentMode,
		Intent:     st.CurrentIntent,
		Summary:    st.IncomingSummary,
		LastActive: st.LastActive,
		Memories:   n,
		Channels:   e.channels.EnabledChannels(),
		Jobs:       e.scheduler.Jobs(),
	}
	if e.gateway != nil {
		s.Providers = e.gateway.Providers()
	}
	return s, nil
}

func (e *Engine) Modes() []mode.Descriptor {
	return e.registry.All()
}

// Recall runs a retrieval as the memory loop would. An empty modeID means the
// active mode. Matching records are reinforced.
func (e *Engine) Recall(ctx context.Context, modeID, text string, emotions []string) ([]memory.RankedMemory, error) {
	if modeID == "" {
		st, err := e.state.Load()
		if err != nil {
			return nil, err
		}
		modeID = st.CurrentMode
	}
	return e.memory.Retrieve(ctx, memory.Query{
		Mode:              modeID,
		Text:              text,
		Emotions:          emotions,
		ExactEmotionsOnly: text == "" && len(emotions) > 0,
	}), nil
}
