package schema

import "fmt"

// DuplicateServiceError reports two services registered at the same
// (namespace, name). It is fatal to client and dispatcher construction.
type DuplicateServiceError struct {
	ServiceID string
}

func (e *DuplicateServiceError) Error() string {
	return fmt.Sprintf("duplicate service: %s", e.ServiceID)
}

// InvalidServiceError reports a descriptor that cannot be addressed on the wire.
type InvalidServiceError struct {
	ServiceID string
	Reason    string
}

func (e *InvalidServiceError) Error() string {
	return fmt.Sprintf("invalid service %q: %s", e.ServiceID, e.Reason)
}
