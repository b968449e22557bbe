package message

import "fmt"

// Reply is a dispatched outcome on its way back to the caller: the encoded
// envelope plus, for failures, the error that produced it.
type Reply struct {
	Body []byte
	Err  error
}

// Succeed encodes v as a result envelope. A value that cannot be encoded
// becomes a failure.
func Succeed(v any) *Reply {
	body, err := Result(v)
	if err != nil {
		return Fail(&OutputError{Err: err})
	}
	return &Reply{Body: body}
}

// Fail encodes err's text as an error envelope.
func Fail(err error) *Reply {
	return &Reply{Body: Failure(err.Error()), Err: err}
}

// UnknownServiceError is the outcome of a call whose ServiceID has no handler.
type UnknownServiceError struct {
	ServiceID string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("Unknown service: %s", e.ServiceID)
}

// InputError reports an argument body that is not a JSON array.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return "Failed to deserialize input" }
func (e *InputError) Unwrap() error { return e.Err }

// OutputError reports a handler result that cannot be encoded.
type OutputError struct {
	Err error
}

func (e *OutputError) Error() string { return "Failed to serialize output" }
func (e *OutputError) Unwrap() error { return e.Err }
