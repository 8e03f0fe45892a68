package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/bus"
	"github.com/stellarlinkco/mindloop/internal/logging"
)

const (
	consoleChannelName = "console"
	consoleSender      = "helper"
)

// ConsoleChannel reads helper lines from in and prints replies to out.
type ConsoleChannel struct {
	BaseChannel
	in     io.Reader
	out    io.Writer
	outMu  sync.Mutex
	logger *zap.Logger
	done   chan struct{}
}

func NewConsoleChannel(in io.Reader, out io.Writer, b *bus.MessageBus, logger *zap.Logger) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel(consoleChannelName, b, nil),
		in:          in,
		out:         out,
		logger:      logging.OrNop(logger).Named("console"),
		done:        make(chan struct{}),
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	go c.readLoop(ctx)
	c.logger.Debug("reading input")
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context) {
	defer close(c.done)
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit := isQuit(line)
		if err := c.publish(ctx, line, quit); err != nil || quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("input closed", zap.Error(err))
		return
	}
	// End of input stops the agent.
	_ = c.publish(ctx, "", true)
}

func (c *ConsoleChannel) publish(ctx context.Context, line string, shutdown bool) error {
	return c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:   consoleChannelName,
		SenderID:  consoleSender,
		ChatID:    consoleSender,
		Content:   line,
		Timestamp: time.Now(),
		Shutdown:  shutdown,
	})
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "/exit", "/quit", "exit", "quit":
		return true
	}
	return false
}

// Done is closed once the input reader has returned.
func (c *ConsoleChannel) Done() <-chan struct{} {
	return c.done
}

func (c *ConsoleChannel) Stop() error {
	if closer, ok := c.in.(io.Closer); ok {
		_ = closer.Close()
	}
	return nil
}

func (c *ConsoleChannel) Send(msg bus.OutboundMessage) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	prefix := ""
	if msg.ModeID != "" {
		prefix = "[" + msg.ModeID + "] "
	}
	_, err := fmt.Fprintf(c.out, "%s%s\n", prefix, msg.Content)
	return err
}
