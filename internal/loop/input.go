package loop

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/bus"
	"github.com/stellarlinkco/mindloop/internal/logging"
)

// Input forwards inbound channel messages to the conductor as results.
type Input struct {
	inbound <-chan bus.InboundMessage
	queues  *Queues
	logger  *zap.Logger
}

func NewInput(inbound <-chan bus.InboundMessage, queues *Queues, logger *zap.Logger) *Input {
	return &Input{inbound: inbound, queues: queues, logger: logging.OrNop(logger).Named("input")}
}

// Run returns after forwarding a shutdown request or when ctx ends.
func (in *Input) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in.inbound:
			if !ok || msg.Shutdown {
				in.logger.Info("shutdown requested", zap.String("channel", msg.Channel))
				_ = in.queues.PushResult(ctx, Result{Kind: ResultExit})
				return nil
			}
			content := strings.TrimSpace(msg.Content)
			if content == "" {
				continue
			}
			in.logger.Debug("message received", zap.String("session", msg.SessionKey()))
			if err := in.queues.PushResult(ctx, Result{Kind: ResultUserInput, Content: content}); err != nil {
				return nil
			}
		}
	}
}
