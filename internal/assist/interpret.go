package assist

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/openvalet/valet/internal/llm"
)

// Action is a vehicle operation the assistant may perform on the user's
// behalf.
type Action string

const (
	ActionReadStatus Action = "read_status"
	ActionLock       Action = "lock"
	ActionUnlock     Action = "unlock"
	ActionNone       Action = "none"
)

// knownActions is the parser's allow-list. Anything else coming back from
// the model is treated as no action.
var knownActions = map[Action]bool{
	ActionReadStatus: true,
	ActionLock:       true,
	ActionUnlock:     true,
	ActionNone:       true,
}

// fallbackMessage is shown when the model's reply could not be parsed
// at all.
const fallbackMessage = "Sorry, I had trouble understanding that. Could you try rephrasing?"

// Intent is the interpreter's verdict on one user message.
type Intent struct {
	Action     Action
	Parameters map[string]string
	Confidence float64
	Message    string

	// RequestedAction keeps the model's original choice when the intent
	// was downgraded, for the audit trail.
	RequestedAction Action
	// Downgraded is set when confidence fell below the threshold or the
	// payload failed validation, forcing Action to none.
	Downgraded bool
	// Malformed is set when the model's reply could not be parsed at all,
	// for the audit trail.
	Malformed bool
}

// Interpreter turns a free-form user message into an Intent. It fails
// closed: any reply that does not validate becomes action none with zero
// confidence, and a confident-looking action below the threshold is
// downgraded to none while keeping the model's message.
type Interpreter struct {
	client      llm.Client
	threshold   float64
	callTimeout time.Duration
}

// InterpreterOpts holds parameters for creating an Interpreter.
type InterpreterOpts struct {
	Client      llm.Client
	Threshold   float64       // minimum confidence to act, defaults to 0.7
	CallTimeout time.Duration // bound on one model call, defaults to 15s
}

// NewInterpreter creates an Interpreter.
func NewInterpreter(opts InterpreterOpts) (*Interpreter, error) {
	if opts.Client == nil {
		return nil, errors.New("assist: interpreter requires an llm client")
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Interpreter{client: opts.Client, threshold: threshold, callTimeout: timeout}, nil
}

// Interpret asks the model what the user wants. It never returns an error:
// a failed call or an unparseable reply yields a safe no-action Intent.
func (i *Interpreter) Interpret(ctx context.Context, text string, summary *ContextSummary, history []llm.Message) Intent {
	req := llm.Request{
		System:  systemPrompt,
		History: history,
		User:    "Context:\n" + summary.Render() + "\n\nUser message: " + text,
	}

	callCtx, cancel := context.WithTimeout(ctx, i.callTimeout)
	defer cancel()
	raw, err := i.client.Complete(callCtx, req)
	if err != nil {
		log.Printf("assist: model call failed: %v", err)
		return Intent{
			Action:          ActionNone,
			RequestedAction: ActionNone,
			Confidence:      0,
			Message:         fallbackMessage,
			Downgraded:      true,
		}
	}

	intent := parseIntent(raw)
	if intent.Action != ActionNone && intent.Confidence < i.threshold {
		log.Printf("assist: downgrading %s (confidence %.2f below %.2f)",
			intent.Action, intent.Confidence, i.threshold)
		intent.Action = ActionNone
		intent.Downgraded = true
	}
	return intent
}

// parseIntent validates the model's raw reply. Violations of the contract
// never propagate an action: unparseable JSON or a missing message falls
// back to a canned reply, while an unknown action or out-of-range
// confidence keeps the model's message but clears the action.
func parseIntent(raw string) Intent {
	var payload struct {
		Message    string            `json:"message"`
		Action     string            `json:"action"`
		Parameters map[string]string `json:"parameters"`
		Confidence *float64          `json:"confidence"`
	}

	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		log.Printf("assist: unparseable model reply: %v", err)
		return Intent{
			Action:          ActionNone,
			RequestedAction: ActionNone,
			Confidence:      0,
			Message:         fallbackMessage,
			Downgraded:      true,
			Malformed:       true,
		}
	}
	if strings.TrimSpace(payload.Message) == "" {
		return Intent{
			Action:          ActionNone,
			RequestedAction: ActionNone,
			Confidence:      0,
			Message:         fallbackMessage,
			Downgraded:      true,
			Malformed:       true,
		}
	}

	intent := Intent{
		Action:          Action(payload.Action),
		RequestedAction: Action(payload.Action),
		Parameters:      payload.Parameters,
		Message:         payload.Message,
	}

	if !knownActions[intent.Action] {
		log.Printf("assist: model proposed unknown action %q", payload.Action)
		intent.Action = ActionNone
		intent.Confidence = 0
		intent.Downgraded = true
		return intent
	}
	if payload.Confidence == nil || *payload.Confidence < 0 || *payload.Confidence > 1 {
		intent.Action = ActionNone
		intent.Confidence = 0
		intent.Downgraded = true
		return intent
	}
	intent.Confidence = *payload.Confidence
	return intent
}
