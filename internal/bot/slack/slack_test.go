package slack

import (
	"context"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/openvalet/valet/internal/bot"
)

// mockClient implements slackClient for tests.
type mockClient struct {
	mu     sync.Mutex
	posted []struct {
		channelID string
	}
	postErr error
}

func (m *mockClient) AuthTest() (*slackapi.AuthTestResponse, error) {
	return &slackapi.AuthTestResponse{UserID: "UBOT"}, nil
}

func (m *mockClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.posted = append(m.posted, struct{ channelID string }{channelID})
	return channelID, "1712345678.000100", nil
}

func (m *mockClient) GetUserInfo(userID string) (*slackapi.User, error) {
	return &slackapi.User{Name: "ada", RealName: "Ada Lovelace"}, nil
}

// mockSocket implements socketClient for tests.
type mockSocket struct {
	events chan socketmode.Event
	acked  int
	mu     sync.Mutex
}

func newMockSocket() *mockSocket {
	return &mockSocket{events: make(chan socketmode.Event, 10)}
}

func (m *mockSocket) Run() error                        { return nil }
func (m *mockSocket) EventsChan() chan socketmode.Event { return m.events }
func (m *mockSocket) Ack(req socketmode.Request, payload ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
}

func messageEvent(channel, user, text string) socketmode.Event {
	return socketmode.Event{
		Type: socketmode.EventTypeEventsAPI,
		Data: slackevents.EventsAPIEvent{
			InnerEvent: slackevents.EventsAPIInnerEvent{
				Data: &slackevents.MessageEvent{
					Channel:   channel,
					User:      user,
					Text:      text,
					TimeStamp: "1712345678.000200",
				},
			},
		},
		Request: &socketmode.Request{},
	}
}

func newConnectedAdapter(t *testing.T, client *mockClient, socket *mockSocket, channelID string) *Adapter {
	t.Helper()
	a, err := New(AdapterOpts{Client: client, Socket: socket, ChannelID: channelID})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a
}

func TestNewValidation(t *testing.T) {
	if _, err := New(AdapterOpts{AppToken: "xapp-1"}); err == nil {
		t.Fatal("expected error without bot token")
	}
	if _, err := New(AdapterOpts{BotToken: "xoxb-1"}); err == nil {
		t.Fatal("expected error without app token")
	}
}

func TestConnectCapturesBotUserID(t *testing.T) {
	a := newConnectedAdapter(t, &mockClient{}, newMockSocket(), "")
	defer a.Close()
	if got := a.BotUserID(); got != "UBOT" {
		t.Fatalf("BotUserID = %q, want UBOT", got)
	}
}

func TestListenDeliversMessages(t *testing.T) {
	client := &mockClient{}
	socket := newMockSocket()
	a := newConnectedAdapter(t, client, socket, "")
	defer a.Close()

	inbound, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	socket.events <- messageEvent("C123", "U456", "lock the car")

	select {
	case msg := <-inbound:
		if msg.Platform != "slack" || msg.ChatID != "C123" || msg.UserID != "U456" {
			t.Fatalf("msg = %+v", msg)
		}
		if msg.Text != "lock the car" {
			t.Fatalf("Text = %q", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
	}
}

func TestListenFiltersSelfAndSubtypes(t *testing.T) {
	client := &mockClient{}
	socket := newMockSocket()
	a := newConnectedAdapter(t, client, socket, "")
	defer a.Close()

	inbound, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	socket.events <- messageEvent("C123", "UBOT", "self message")
	edited := messageEvent("C123", "U456", "edited")
	edited.Data.(slackevents.EventsAPIEvent).InnerEvent.Data.(*slackevents.MessageEvent).SubType = "message_changed"
	socket.events <- edited
	socket.events <- messageEvent("C123", "U456", "real")

	select {
	case msg := <-inbound:
		if msg.Text != "real" {
			t.Fatalf("Text = %q, filtering failed", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
	}
}

func TestSendFallsBackToDefaultChannel(t *testing.T) {
	client := &mockClient{}
	a := newConnectedAdapter(t, client, newMockSocket(), "C-home")
	defer a.Close()

	if err := a.Send(context.Background(), bot.OutboundMessage{Text: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.posted) != 1 || client.posted[0].channelID != "C-home" {
		t.Fatalf("posted = %+v", client.posted)
	}
}

func TestParseSlackTimestamp(t *testing.T) {
	ts := parseSlackTimestamp("1712345678.000200")
	if ts.Unix() != 1712345678 {
		t.Fatalf("Unix = %d", ts.Unix())
	}
	if !parseSlackTimestamp("garbage").IsZero() {
		t.Fatal("garbage timestamp should parse to zero time")
	}
}
