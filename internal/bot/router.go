package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/openvalet/valet/internal/assist"
	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/store"
)

// MessageHandler processes one natural-language turn and returns the reply.
// *assist.Pipeline satisfies it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, identity store.Identity, text string) (string, error)
}

// ContextProvider builds a telemetry summary for a user. *assist.ContextBuilder
// satisfies it.
type ContextProvider interface {
	Build(ctx context.Context, user *models.User) (*assist.ContextSummary, error)
}

// AuthURLer produces the hosted consent URL for connecting a vehicle.
// *smartcar.Auth satisfies it.
type AuthURLer interface {
	AuthURL(state string) string
}

// UserStore is the slice of the persistence layer the router needs.
type UserStore interface {
	GetOrCreateUser(id store.Identity) (*models.User, error)
	ListVehicles(userID uint) ([]models.Vehicle, error)
}

// Router classifies inbound chat messages and routes them: slash commands
// are answered directly, everything else goes through the assistant
// pipeline.
type Router struct {
	store     UserStore
	handler   MessageHandler
	contexts  ContextProvider
	auth      AuthURLer
	adapter   Adapter
	botUserID string // the bot's own user ID (to filter self-messages)
	out       io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Store     UserStore
	Handler   MessageHandler
	Contexts  ContextProvider
	Auth      AuthURLer
	Adapter   Adapter
	BotUserID string    // bot's user ID for self-message filtering
	Out       io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: router: store is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("bot: router: message handler is required")
	}
	if opts.Contexts == nil {
		return nil, fmt.Errorf("bot: router: context provider is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("bot: router: auth is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: router: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		store:     opts.Store,
		handler:   opts.Handler,
		contexts:  opts.Contexts,
		auth:      opts.Auth,
		adapter:   opts.Adapter,
		botUserID: opts.BotUserID,
		out:       out,
	}, nil
}

// Handle classifies and routes a single inbound message. Routing paths:
//  1. Bot self-message or empty text → ignore
//  2. Slash command → command handler
//  3. Everything else → assistant pipeline
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	fmt.Fprintf(r.out, "bot: router: recv [chat=%s user=%s] %q\n",
		msg.ChatID, msg.UserName, truncate(text, 80))

	if strings.HasPrefix(text, "/") {
		fmt.Fprintf(r.out, "bot: router: → command %s\n", commandWord(text))
		r.reply(ctx, msg, r.handleCommand(ctx, msg, text))
		return
	}

	fmt.Fprintf(r.out, "bot: router: → pipeline\n")
	reply, err := r.handler.HandleMessage(ctx, identityOf(msg), text)
	if err != nil {
		log.Printf("bot: router: pipeline: %v", err)
	}
	r.reply(ctx, msg, reply)
}

// identityOf derives the store identity from an inbound message. The chat
// user id is platform-scoped so the same numeric id on two platforms never
// collides.
func identityOf(msg InboundMessage) store.Identity {
	return store.Identity{
		ChatUserID: msg.Platform + ":" + msg.UserID,
		UserName:   msg.UserName,
		FirstName:  msg.FirstName,
		LastName:   msg.LastName,
	}
}

// handleCommand answers a slash command. Command replies are built locally,
// without the language model.
func (r *Router) handleCommand(ctx context.Context, msg InboundMessage, text string) string {
	switch commandWord(text) {
	case "/start":
		return startText
	case "/help":
		return helpText
	case "/connect":
		return r.connectReply(msg)
	case "/vehicles":
		return r.vehiclesReply(msg)
	case "/status":
		return r.statusReply(ctx, msg)
	default:
		return "I don't know that command. Try /help."
	}
}

// commandWord extracts the leading command, dropping arguments and a
// Telegram-style @botname suffix.
func commandWord(text string) string {
	word := strings.Fields(text)[0]
	if i := strings.Index(word, "@"); i > 0 {
		word = word[:i]
	}
	return strings.ToLower(word)
}

const startText = `Hi! I'm Valet. I can check on your car and lock or unlock it for you.

Start by linking your car with /connect, then just talk to me: "is my car locked?", "how much battery is left?", "lock the doors".`

const helpText = `Here's what I can do:

/connect — link your car
/vehicles — list your connected vehicles
/status — current readings for your vehicles
/help — this message

Or just tell me what you want in plain words. I can read your car's status and lock or unlock the doors.`

func (r *Router) connectReply(msg InboundMessage) string {
	identity := identityOf(msg)
	if _, err := r.store.GetOrCreateUser(identity); err != nil {
		log.Printf("bot: router: connect: %v", err)
		return "Something went wrong on my side. Please try again in a moment."
	}
	url := r.auth.AuthURL(identity.ChatUserID)
	return "Let's link your car. Open this link, sign in with your car account and approve access:\n\n" + url
}

func (r *Router) vehiclesReply(msg InboundMessage) string {
	user, err := r.store.GetOrCreateUser(identityOf(msg))
	if err != nil {
		log.Printf("bot: router: vehicles: %v", err)
		return "Something went wrong on my side. Please try again in a moment."
	}
	vehicles, err := r.store.ListVehicles(user.ID)
	if err != nil {
		log.Printf("bot: router: vehicles: %v", err)
		return "Something went wrong on my side. Please try again in a moment."
	}
	if len(vehicles) == 0 {
		return "No vehicles connected yet. Use /connect to link one."
	}
	var sb strings.Builder
	sb.WriteString("Your vehicles:\n")
	for i, v := range vehicles {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, v.DisplayName(), v.Status)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Router) statusReply(ctx context.Context, msg InboundMessage) string {
	user, err := r.store.GetOrCreateUser(identityOf(msg))
	if err != nil {
		log.Printf("bot: router: status: %v", err)
		return "Something went wrong on my side. Please try again in a moment."
	}
	summary, err := r.contexts.Build(ctx, user)
	if err != nil {
		log.Printf("bot: router: status: %v", err)
		return "Something went wrong on my side. Please try again in a moment."
	}
	return summary.Render()
}

func (r *Router) reply(ctx context.Context, msg InboundMessage, text string) {
	if text == "" {
		return
	}
	if err := r.adapter.Send(ctx, OutboundMessage{ChatID: msg.ChatID, Text: text}); err != nil {
		log.Printf("bot: router: send reply: %v", err)
	}
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// SetBotUserID records the bot's own user id for self-message filtering.
// Called once after the adapter connects, before messages are pumped.
func (r *Router) SetBotUserID(id string) {
	r.botUserID = id
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
