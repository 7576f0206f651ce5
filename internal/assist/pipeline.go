// Package assist is the conversational core: it turns chat messages into
// vehicle actions through a fixed pipeline of credential management,
// telemetry context building, model interpretation, execution and reply
// composition.
package assist

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/openvalet/valet/internal/llm"
	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/store"
)

// storeApology is the only reply the user sees when the database is down.
const storeApology = "Something went wrong on my side. Please try again in a moment."

// Pipeline runs one conversational turn end to end: persist the user's
// message, snapshot their vehicles, interpret, execute, compose, persist
// the reply. Turns from the same user are serialized; different users
// proceed independently.
type Pipeline struct {
	store        Store
	builder      *ContextBuilder
	interpreter  *Interpreter
	executor     *Executor
	historyTurns int

	// userLocks holds one mutex per chat user seen, kept for the process
	// lifetime. Entries are a few dozen bytes each; eviction would only
	// matter at user counts far beyond a chat bot's reach.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// PipelineOpts holds parameters for creating a Pipeline.
type PipelineOpts struct {
	Store        Store
	Builder      *ContextBuilder
	Interpreter  *Interpreter
	Executor     *Executor
	HistoryTurns int // conversation turns fed back to the model, defaults to 10
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts PipelineOpts) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("assist: pipeline requires a store")
	}
	if opts.Builder == nil {
		return nil, errors.New("assist: pipeline requires a context builder")
	}
	if opts.Interpreter == nil {
		return nil, errors.New("assist: pipeline requires an interpreter")
	}
	if opts.Executor == nil {
		return nil, errors.New("assist: pipeline requires an executor")
	}
	historyTurns := opts.HistoryTurns
	if historyTurns <= 0 {
		historyTurns = 10
	}
	return &Pipeline{
		store:        opts.Store,
		builder:      opts.Builder,
		interpreter:  opts.Interpreter,
		executor:     opts.Executor,
		historyTurns: historyTurns,
		userLocks:    make(map[string]*sync.Mutex),
	}, nil
}

func (p *Pipeline) userLock(chatUserID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.userLocks[chatUserID]
	if !ok {
		l = &sync.Mutex{}
		p.userLocks[chatUserID] = l
	}
	return l
}

// HandleMessage processes one user message and returns the reply to send.
// The reply is always usable chat text, even on error; the error is for
// the caller's logs.
func (p *Pipeline) HandleMessage(ctx context.Context, identity store.Identity, text string) (string, error) {
	l := p.userLock(identity.ChatUserID)
	l.Lock()
	defer l.Unlock()

	user, err := p.store.GetOrCreateUser(identity)
	if err != nil {
		return storeApology, failf(FailStoreUnavailable, err)
	}

	// History is read before the current message is appended, so the model
	// sees the message exactly once.
	history, err := p.store.RecentTurns(user.ID, p.historyTurns)
	if err != nil {
		log.Printf("assist: failed to load history for user %d: %v", user.ID, err)
		history = nil
	}
	if err := p.store.AppendTurn(user.ID, "user", text); err != nil {
		log.Printf("assist: failed to persist user turn for user %d: %v", user.ID, err)
	}

	summary, err := p.builder.Build(ctx, user)
	if err != nil {
		return storeApology, err
	}

	intent := p.interpreter.Interpret(ctx, text, summary, toLLMHistory(history))
	result := p.executor.Execute(ctx, user, intent, summary)
	reply := Compose(intent, result)

	if err := p.store.AppendTurn(user.ID, "assistant", reply); err != nil {
		log.Printf("assist: failed to persist assistant turn for user %d: %v", user.ID, err)
	}
	p.recordAction(user, intent, result)

	return reply, nil
}

// recordAction writes the audit row for a turn. Auditing is best-effort;
// a failed write never affects the reply.
func (p *Pipeline) recordAction(user *models.User, intent Intent, result ExecutionResult) {
	rec := &models.ActionRecord{
		UserID:     user.ID,
		Action:     string(intent.RequestedAction),
		Outcome:    string(result.Outcome),
		Confidence: intent.Confidence,
	}
	if result.Vehicle != nil {
		rec.VehicleID = result.Vehicle.ID
	}
	if result.Outcome == OutcomeFailed {
		rec.FailureKind = string(result.FailureKind)
	} else if intent.Malformed {
		rec.FailureKind = string(FailMalformedModelOutput)
	}
	if err := p.store.RecordAction(rec); err != nil {
		log.Printf("assist: failed to record action for user %d: %v", user.ID, err)
	}
}

func toLLMHistory(turns []models.ConversationTurn) []llm.Message {
	if len(turns) == 0 {
		return nil
	}
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}
