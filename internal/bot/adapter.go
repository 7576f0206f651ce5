// Package bot connects the assistant pipeline to chat platforms (Telegram,
// Discord, Slack).
package bot

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. Each adapter handles connection management and message
// sending/receiving for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "telegram", "discord", "slack"
	ChatID    string    // platform-specific conversation identifier
	UserID    string    // platform-specific user identifier
	UserName  string    // handle, when the platform has one
	FirstName string    // display name parts, when available
	LastName  string
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChatID string // target conversation
	Text   string // message text (platform-native formatting)
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}
