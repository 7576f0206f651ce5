package assist

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/smartcar"
)

// Outcome is what became of an intent's action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ExecutionResult is the executor's report on one intent.
type ExecutionResult struct {
	Outcome Outcome
	Action  Action

	// Vehicle is the vehicle acted on, when one was resolved.
	Vehicle *models.Vehicle
	// Summary carries the telemetry snapshot for status reads.
	Summary *ContextSummary
	// FailureKind is set when Outcome is OutcomeFailed.
	FailureKind FailureKind
}

// Executor carries out the action an Intent asks for. Status reads reuse
// the summary already built for the turn; lock and unlock resolve a target
// vehicle, revalidate its credential, and dispatch the command with one
// retry on transient failure.
type Executor struct {
	api   VehicleAPI
	creds *CredentialManager
}

// ExecutorOpts holds parameters for creating an Executor.
type ExecutorOpts struct {
	API         VehicleAPI
	Credentials *CredentialManager
}

// NewExecutor creates an Executor.
func NewExecutor(opts ExecutorOpts) (*Executor, error) {
	if opts.API == nil {
		return nil, errors.New("assist: executor requires a vehicle API")
	}
	if opts.Credentials == nil {
		return nil, errors.New("assist: executor requires a credential manager")
	}
	return &Executor{api: opts.API, creds: opts.Credentials}, nil
}

// Execute performs intent's action for user. Intents carrying no action
// are reported skipped; the caller composes the reply either way.
func (e *Executor) Execute(ctx context.Context, user *models.User, intent Intent, summary *ContextSummary) ExecutionResult {
	switch intent.Action {
	case ActionNone:
		return ExecutionResult{Outcome: OutcomeSkipped, Action: intent.Action}
	case ActionReadStatus:
		return ExecutionResult{Outcome: OutcomeSkipped, Action: intent.Action, Summary: summary}
	case ActionLock, ActionUnlock:
		return e.executeLock(ctx, intent, summary)
	default:
		// The interpreter's allow-list makes this unreachable.
		return ExecutionResult{Outcome: OutcomeSkipped, Action: ActionNone}
	}
}

func (e *Executor) executeLock(ctx context.Context, intent Intent, summary *ContextSummary) ExecutionResult {
	result := ExecutionResult{Action: intent.Action}

	vehicle, ferr := resolveTarget(intent, summary)
	if ferr != nil {
		result.Outcome = OutcomeFailed
		result.FailureKind = ferr.Kind
		return result
	}
	result.Vehicle = vehicle

	// Last point of no return: a cancelled turn must not dispatch.
	if err := ctx.Err(); err != nil {
		result.Outcome = OutcomeFailed
		result.FailureKind = FailTransient
		return result
	}

	cred, err := e.creds.EnsureValid(ctx, vehicle)
	if err != nil && KindOf(err) == FailTransient {
		log.Printf("assist: retrying credential refresh for vehicle %d after transient error: %v",
			vehicle.ID, err)
		cred, err = e.creds.EnsureValid(ctx, vehicle)
	}
	if err != nil {
		result.Outcome = OutcomeFailed
		result.FailureKind = KindOf(err)
		return result
	}

	// Once dispatched the command runs to completion on the client's own
	// timeout; cancelling the turn mid-flight would leave the door state
	// unknown.
	sendCtx := context.WithoutCancel(ctx)
	lock := intent.Action == ActionLock
	err = e.api.SendLockCommand(sendCtx, cred.AccessToken, vehicle.ExternalID, lock)
	if err != nil && smartcar.KindOf(err) == smartcar.KindTransient {
		log.Printf("assist: retrying %s for vehicle %d after transient error: %v",
			intent.Action, vehicle.ID, err)
		err = e.api.SendLockCommand(sendCtx, cred.AccessToken, vehicle.ExternalID, lock)
	}
	if err != nil {
		result.Outcome = OutcomeFailed
		result.FailureKind = KindOf(fromAPIError(err))
		return result
	}

	result.Outcome = OutcomeSuccess
	return result
}

// resolveTarget picks the vehicle a lock command applies to. With one
// vehicle the choice is obvious; with several, a name from the intent's
// parameters must single one out, otherwise the command fails rather
// than guess.
func resolveTarget(intent Intent, summary *ContextSummary) (*models.Vehicle, *Failure) {
	if len(summary.Vehicles) == 0 {
		return nil, failf(FailNotConnected, errors.New("no vehicles connected"))
	}
	if len(summary.Vehicles) == 1 {
		return &summary.Vehicles[0].Vehicle, nil
	}

	name := strings.TrimSpace(intent.Parameters["vehicle"])
	if name != "" {
		needle := strings.ToLower(name)
		var matches []*models.Vehicle
		for i := range summary.Vehicles {
			v := &summary.Vehicles[i].Vehicle
			if strings.Contains(strings.ToLower(v.DisplayName()), needle) ||
				strings.EqualFold(v.ExternalID, name) {
				matches = append(matches, v)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
	}
	return nil, failf(FailNeedDisambiguation, errors.New("multiple vehicles match"))
}
