// Package bus carries messages between channels and the conductor.
package bus

import (
	"context"
	"sort"
	"sync"
)

type OutboundHandler func(msg OutboundMessage)

type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu   sync.RWMutex
	subs map[string]OutboundHandler
}

func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &MessageBus{
		Inbound:  make(chan InboundMessage, bufSize),
		Outbound: make(chan OutboundMessage, bufSize),
		subs:     make(map[string]OutboundHandler),
	}
}

// PublishInbound blocks until the message is queued or ctx is done.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case b.Inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.Outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeOutbound registers fn for messages addressed to channel name.
func (b *MessageBus) SubscribeOutbound(name string, fn OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = fn
}

func (b *MessageBus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs))
	for name := range b.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DispatchOutbound delivers outbound messages until ctx is done.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.deliver(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *MessageBus) deliver(msg OutboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if msg.Broadcast() {
		for _, fn := range b.subs {
			fn(msg)
		}
		return
	}
	if fn, ok := b.subs[msg.Channel]; ok {
		fn(msg)
	}
}
