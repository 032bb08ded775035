package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for the gateway. Callers branch on these with errors.As /
// errors.Is; HTTP handlers map them to status codes in server/.

// BadRequestError reports a request that failed validation before any
// provider call was made.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s", e.Reason)
}

// UnknownToolError reports a model-requested tool that is not present in the
// active registry snapshot.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %q", e.Tool)
}

// ValidationError reports tool arguments that failed schema validation.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("tool %q: invalid argument %q: %s", e.Tool, e.Field, e.Reason)
	}
	return fmt.Sprintf("tool %q: invalid arguments: %s", e.Tool, e.Reason)
}

// TransientToolError marks a tool failure that is worth retrying once
// (network hiccups, 5xx from a search backend).
type TransientToolError struct {
	Tool string
	Err  error
}

func (e *TransientToolError) Error() string {
	return fmt.Sprintf("tool %q: transient failure: %v", e.Tool, e.Err)
}

func (e *TransientToolError) Unwrap() error { return e.Err }

// UpstreamError reports a failure talking to an LLM provider. Status is the
// HTTP status when one was received, 0 otherwise.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether the upstream failure is safe to retry once.
func (e *UpstreamError) Retryable() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

// PriceUnresolvedError reports a model with no pricing record. Completion
// still succeeds; metering records the usage with a zero cost and this error
// is logged, not returned to the caller.
type PriceUnresolvedError struct {
	Model string
}

func (e *PriceUnresolvedError) Error() string {
	return fmt.Sprintf("no pricing for model %q", e.Model)
}

// ErrMeteringConflict is returned by stores when a usage record with the
// same request ID already exists. The meter treats it as a successful no-op.
var ErrMeteringConflict = errors.New("usage record already exists for request")

// FetchError reports a crawler fetch that failed or returned a non-2xx
// status.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
