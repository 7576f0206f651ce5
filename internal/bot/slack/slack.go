// Package slack implements the bot Adapter for Slack using Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/openvalet/valet/internal/bot"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration between retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff between retries.
	maxBackoff = 2 * time.Minute
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements bot.Adapter for Slack Socket Mode.
type Adapter struct {
	client    slackClient
	socket    socketClient
	botUserID string
	appToken  string
	botToken  string
	channelID string // restrict listening to one channel when set
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan bot.InboundMessage
	cancel    context.CancelFunc
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken  string // xapp-... Slack app-level token for Socket Mode
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // optional; when set, only this channel is read
	// For testing: inject mock clients instead of real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	a := &Adapter{
		appToken:  opts.AppToken,
		botToken:  opts.BotToken,
		channelID: opts.ChannelID,
		inbound:   make(chan bot.InboundMessage, 100),
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	if opts.Socket != nil {
		a.socket = opts.Socket
	}
	return a, nil
}

// Connect establishes the Socket Mode WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real clients if not injected (production path).
	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID

	a.connected = true
	return nil
}

// Listen returns a channel of inbound messages. Starts the Socket Mode
// event pump in a background goroutine. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan bot.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("slack: not connected")
	}

	listenCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		if err := a.socket.Run(); err != nil && listenCtx.Err() == nil {
			log.Printf("slack: socket mode stopped: %v", err)
		}
	}()
	go a.pumpEvents(listenCtx)

	return a.inbound, nil
}

// Send delivers a text message to a Slack channel.
func (a *Adapter) Send(ctx context.Context, msg bot.OutboundMessage) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("slack: not connected")
	}

	channelID := msg.ChatID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(channelID, slackapi.MsgOptionText(msg.Text, false))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancel != nil {
		a.cancel()
	}
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// pumpEvents reads Socket Mode events and forwards message events to the
// inbound channel until the context is cancelled.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(ctx, evt)
		}
	}
}

// handleEvent acks and converts one Socket Mode event.
func (a *Adapter) handleEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		a.socket.Ack(*evt.Request)
	}

	inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Skip bot messages, edits, joins and other subtyped noise.
	if inner.BotID != "" || inner.SubType != "" || inner.User == "" || inner.Text == "" {
		return
	}

	a.mu.Lock()
	botID := a.botUserID
	channelID := a.channelID
	closed := a.closed
	a.mu.Unlock()

	if closed || inner.User == botID {
		return
	}
	if channelID != "" && inner.Channel != channelID {
		return
	}

	msg := bot.InboundMessage{
		Platform:  "slack",
		ChatID:    inner.Channel,
		UserID:    inner.User,
		UserName:  a.resolveUserName(inner.User),
		Text:      inner.Text,
		Timestamp: parseSlackTimestamp(inner.TimeStamp),
	}
	select {
	case <-ctx.Done():
	case a.inbound <- msg:
	}
}

// resolveUserName looks up a display name for a user id, falling back to
// the id itself.
func (a *Adapter) resolveUserName(userID string) string {
	user, err := a.client.GetUserInfo(userID)
	if err != nil || user == nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	if user.RealName != "" {
		return user.RealName
	}
	return user.Name
}

// parseSlackTimestamp converts a Slack "1712345678.000200" timestamp.
func parseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// retryOnRateLimit calls fn and retries with exponential backoff on Slack
// rate limit errors. It respects context cancellation.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rateErr *slackapi.RateLimitedError
		if !errors.As(err, &rateErr) {
			return err // not a rate limit error
		}
		if attempt == maxRetries {
			return err
		}

		wait := rateErr.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		}
		if wait > maxBackoff {
			wait = maxBackoff
		}
		log.Printf("slack: rate limited (attempt %d/%d) — retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
