package namespace

import (
	"fmt"
	"strings"
)

// StructuralConflictError reports a path that is a leaf on one side of a merge
// and a namespace on the other. It means two schema entries collide by name.
type StructuralConflictError struct {
	Path     []string
	Existing string
	Incoming string
}

func (e *StructuralConflictError) Error() string {
	return fmt.Sprintf("namespace conflict at %s: existing %s, incoming %s",
		strings.Join(e.Path, "."), e.Existing, e.Incoming)
}
