package assist

import (
	"errors"
	"fmt"

	"github.com/openvalet/valet/internal/smartcar"
)

// FailureKind classifies why a turn (or part of one) could not complete.
// Every user-visible failure maps to exactly one kind; raw upstream errors
// never reach the chat transport.
type FailureKind string

const (
	// FailNotConnected means the vehicle has no stored credential.
	FailNotConnected FailureKind = "not_connected"
	// FailRefreshDenied means the authorization server rejected a token
	// refresh; the user has to re-run the connect flow.
	FailRefreshDenied FailureKind = "refresh_denied"
	// FailTransient covers network errors, timeouts and 5xx responses.
	FailTransient FailureKind = "transient"
	// FailMalformedModelOutput means the language model returned something
	// that could not be parsed into an intent.
	FailMalformedModelOutput FailureKind = "malformed_model_output"
	// FailUnauthorized means the vehicle API rejected an access token that
	// was believed valid.
	FailUnauthorized FailureKind = "unauthorized"
	// FailUnsupported means the vehicle cannot perform the requested action.
	FailUnsupported FailureKind = "unsupported"
	// FailStoreUnavailable means a database read or write failed.
	FailStoreUnavailable FailureKind = "store_unavailable"
	// FailNeedDisambiguation means the user has several vehicles and the
	// message did not say which one to act on.
	FailNeedDisambiguation FailureKind = "need_disambiguation"
)

// Failure is the error type the assistant pipeline passes between stages.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("assist: %s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("assist: %s", f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// failf wraps err with a failure kind.
func failf(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error. Errors that did not come
// out of the pipeline are treated as transient, matching how the vehicle
// API client classifies the unknown.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailTransient
}

// fromAPIError maps a vehicle API error kind onto a pipeline failure.
func fromAPIError(err error) *Failure {
	switch smartcar.KindOf(err) {
	case smartcar.KindUnauthorized:
		return failf(FailUnauthorized, err)
	case smartcar.KindUnsupported:
		return failf(FailUnsupported, err)
	default:
		return failf(FailTransient, err)
	}
}
