package bus

import "time"

type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
	// Shutdown asks the agent to stop. Only local channels set it.
	Shutdown bool
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a reply leaving the agent. An empty Channel reaches every
// subscriber; each channel decides which chat it lands in.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	ModeID   string
	Content  string
	Metadata map[string]any
}

func (m OutboundMessage) Broadcast() bool {
	return m.Channel == ""
}
