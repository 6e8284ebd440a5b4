package evaluator

import (
	"errors"
	"fmt"

	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// Sentinel kinds. Every error returned by the Engine matches exactly one of
// these with errors.Is.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrMissingContext    = errors.New("missing context")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrModelUnavailable  = errors.New("model unavailable")
)

// InvalidRequestError reports an empty question or answer, or an unknown rubric.
type InvalidRequestError struct {
	Field string
	// Reason defaults to "must not be empty".
	Reason string
}

func (e *InvalidRequestError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "must not be empty"
	}
	return fmt.Sprintf("invalid request: %s %s", e.Field, reason)
}

func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

// MissingContextError reports a rubric that needs reference context but got none.
type MissingContextError struct {
	Rubric model.Rubric
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("missing context: rubric %q requires reference context", e.Rubric)
}

func (e *MissingContextError) Is(target error) bool { return target == ErrMissingContext }

// MalformedResponseError reports model output that does not follow the
// expected grammar. Raw holds the unparsed response.
type MalformedResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %s", e.Reason)
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// ModelUnavailableError wraps a transport, auth or quota failure of the Model Client.
type ModelUnavailableError struct {
	Provider string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model unavailable (%s): %v", e.Provider, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

// Kind returns a short, stable name for the error's kind: "invalid_request",
// "missing_context", "malformed_response", "model_unavailable", "error" for
// anything else, or "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrMissingContext):
		return "missing_context"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	default:
		return "error"
	}
}
