package assist

import "fmt"

// Compose renders the final chat reply from an intent and its execution
// result. It is a pure function of its inputs: the same intent and result
// always produce the same text, and no upstream error detail ever leaks
// into it.
func Compose(intent Intent, result ExecutionResult) string {
	switch result.Outcome {
	case OutcomeSuccess:
		return intent.Message + "\n\n" + confirmation(result)
	case OutcomeFailed:
		return failureReply(result)
	default:
		if result.Action == ActionReadStatus && result.Summary != nil {
			return intent.Message + "\n\n" + result.Summary.Render()
		}
		return intent.Message
	}
}

func confirmation(result ExecutionResult) string {
	name := "Your vehicle"
	if result.Vehicle != nil {
		name = result.Vehicle.DisplayName()
	}
	switch result.Action {
	case ActionLock:
		return fmt.Sprintf("🔒 %s has been locked.", name)
	case ActionUnlock:
		return fmt.Sprintf("🔓 %s has been unlocked.", name)
	default:
		return fmt.Sprintf("✅ Done with %s.", name)
	}
}

func failureReply(result ExecutionResult) string {
	switch result.FailureKind {
	case FailNotConnected:
		return "You don't have a vehicle connected yet. Use /connect to link one."
	case FailRefreshDenied, FailUnauthorized:
		return "I've lost access to your vehicle. Please reconnect it with /connect."
	case FailUnsupported:
		return "Unfortunately your vehicle doesn't support that action."
	case FailNeedDisambiguation:
		return "You have more than one vehicle connected. Tell me which one you mean, for example by its model name."
	case FailStoreUnavailable:
		return "Something went wrong on my side. Please try again in a moment."
	default:
		return "I couldn't reach your vehicle just now. Please try again in a moment."
	}
}
