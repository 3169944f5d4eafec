package bridge

import (
	"nova_bridge/pkg/processor"
)

// Failure describes why a request produced no text.
type Failure struct {
	Kind   processor.Kind `json:"kind"`
	Reason string         `json:"reason"`
}

// Response is the single outcome of one request: either Text or a Failure.
type Response struct {
	Text    string
	Failure *Failure
}

// Success wraps a processor reply.
func Success(text string) Response {
	return Response{Text: text}
}

// Fail builds a failed response.
func Fail(kind processor.Kind, reason string) Response {
	return Response{Failure: &Failure{Kind: kind, Reason: reason}}
}

// OK reports whether the response carries text.
func (r Response) OK() bool {
	return r.Failure == nil
}

// Err converts a failed response to an error. It returns nil on success.
func (r Response) Err() error {
	if r.Failure == nil {
		return nil
	}
	return &FailureError{Failure: *r.Failure}
}

// FailureError carries a Failure across error-returning APIs.
type FailureError struct {
	Failure Failure
}

func (e *FailureError) Error() string {
	return e.Failure.Reason
}

// Is matches the processor sentinel for the failure kind.
func (e *FailureError) Is(target error) bool {
	switch e.Failure.Kind {
	case processor.KindUnavailable:
		return target == processor.ErrUnavailable
	case processor.KindTimeout:
		return target == processor.ErrTimeout
	case processor.KindInvalidInput:
		return target == processor.ErrInvalidInput
	}
	return false
}
