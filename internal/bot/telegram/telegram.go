// Package telegram implements the bot Adapter for Telegram using long
// polling against the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/openvalet/valet/internal/bot"
)

const (
	defaultAPIRoot      = "https://api.telegram.org"
	defaultPollInterval = 2 * time.Second
	// longPollSec is the server-side hold time for getUpdates.
	longPollSec = 25
)

// Adapter implements bot.Adapter for Telegram.
type Adapter struct {
	apiRoot      string
	botToken     string
	pollInterval time.Duration
	httpClient   *http.Client

	mu        sync.Mutex
	connected bool
	closed    bool
	botUserID string
	offset    int64
	inbound   chan bot.InboundMessage
	cancel    context.CancelFunc
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	BotToken     string
	PollInterval time.Duration // pause between empty polls, defaults to 2s
	APIRoot      string        // defaults to the public Bot API
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	root := opts.APIRoot
	if root == "" {
		root = defaultAPIRoot
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Adapter{
		apiRoot:      root,
		botToken:     opts.BotToken,
		pollInterval: interval,
		// The client timeout must outlast the server-side long-poll hold.
		httpClient: &http.Client{Timeout: (longPollSec + 10) * time.Second},
		inbound:    make(chan bot.InboundMessage, 100),
	}, nil
}

// Connect verifies the bot token with getMe and records the bot's own
// user id for self-message filtering.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}

	var me struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
	}
	if err := a.call(ctx, "getMe", nil, &me); err != nil {
		return fmt.Errorf("telegram: getMe: %w", err)
	}
	a.botUserID = strconv.FormatInt(me.ID, 10)
	a.connected = true
	return nil
}

// Listen starts the long-poll loop and returns the inbound channel. Must be
// called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan bot.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.poll(pollCtx)
	return a.inbound, nil
}

// Send delivers a text message to a chat.
func (a *Adapter) Send(ctx context.Context, msg bot.OutboundMessage) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("telegram: not connected")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("telegram: no chat specified")
	}

	params := map[string]interface{}{
		"chat_id": msg.ChatID,
		"text":    msg.Text,
	}
	if err := a.call(ctx, "sendMessage", params, nil); err != nil {
		return fmt.Errorf("telegram: sendMessage: %w", err)
	}
	return nil
}

// Close shuts down the adapter and closes the inbound channel.
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

// BotUserID returns the bot's Telegram user id (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// update mirrors the slice of the Bot API update object the adapter reads.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Date int64  `json:"date"`
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From *struct {
			ID        int64  `json:"id"`
			IsBot     bool   `json:"is_bot"`
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
	} `json:"message"`
}

// poll runs the getUpdates loop until the context is cancelled. The offset
// acknowledges every update exactly once; failed polls back off by the
// poll interval.
func (a *Adapter) poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		a.mu.Lock()
		offset := a.offset
		a.mu.Unlock()

		params := map[string]interface{}{
			"timeout":         longPollSec,
			"offset":          offset,
			"allowed_updates": []string{"message"},
		}
		var updates []update
		if err := a.call(ctx, "getUpdates", params, &updates); err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.pollInterval):
			}
			continue
		}

		for _, u := range updates {
			a.mu.Lock()
			if u.UpdateID >= a.offset {
				a.offset = u.UpdateID + 1
			}
			closed := a.closed
			a.mu.Unlock()
			if closed {
				return
			}
			if msg, ok := a.toInbound(u); ok {
				select {
				case <-ctx.Done():
					return
				case a.inbound <- msg:
				}
			}
		}

		if len(updates) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.pollInterval):
			}
		}
	}
}

// toInbound converts an update to an InboundMessage, dropping non-message
// updates and messages from bots.
func (a *Adapter) toInbound(u update) (bot.InboundMessage, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot || m.Text == "" {
		return bot.InboundMessage{}, false
	}
	return bot.InboundMessage{
		Platform:  "telegram",
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		UserName:  m.From.Username,
		FirstName: m.From.FirstName,
		LastName:  m.From.LastName,
		Text:      m.Text,
		Timestamp: time.Unix(m.Date, 0),
	}, true
}

// call performs one Bot API method call. The Bot API wraps every response
// in an {ok, result, description} envelope.
func (a *Adapter) call(ctx context.Context, method string, params map[string]interface{}, out interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", a.apiRoot, a.botToken, method)

	var body io.Reader
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s: %s", method, envelope.Description)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
