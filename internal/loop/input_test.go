package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stellarlinkco/mindloop/internal/bus"
)

func TestInputForwardsMessagesAndShutdown(t *testing.T) {
	q := NewQueues(8)
	inbound := make(chan bus.InboundMessage, 4)
	in := NewInput(inbound, q, zaptest.NewLogger(t))

	inbound <- bus.InboundMessage{Channel: "console", ChatID: "local", Content: "  hello  "}
	inbound <- bus.InboundMessage{Channel: "console", Content: "   "}
	inbound <- bus.InboundMessage{Channel: "console", Shutdown: true}

	errc := make(chan error, 1)
	go func() { errc <- in.Run(context.Background()) }()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("input did not stop on shutdown")
	}

	require.Len(t, q.Results, 2)
	first := <-q.Results
	assert.Equal(t, ResultUserInput, first.Kind)
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, ResultExit, (<-q.Results).Kind)
}

func TestInputStopsWithContext(t *testing.T) {
	q := NewQueues(1)
	in := NewInput(make(chan bus.InboundMessage), q, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, in.Run(ctx))
	assert.Empty(t, q.Results)
}
