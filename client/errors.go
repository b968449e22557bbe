package client

import "fmt"

// ArityError rejects a stub call with more arguments than the service
// declares. No transport call is made.
type ArityError struct {
	ServiceID string
	Got       int
	Want      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s takes %d arguments, got %d", e.ServiceID, e.Want, e.Got)
}

// TransportFault reports a call the transport could not complete. The
// envelope, if any, was never seen; Err is the transport's error.
type TransportFault struct {
	ServiceID string
	Err       error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("call %s: %v", e.ServiceID, e.Err)
}

func (e *TransportFault) Unwrap() error { return e.Err }
