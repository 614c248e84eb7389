package revision

import (
	"errors"
	"fmt"
)

// ErrUnknownRevision is returned when a revision identity or tree is not part of the graph.
var ErrUnknownRevision = errors.New("unknown revision")

// StructuralError reports a malformed revision graph, identity or target.
// It is always raised before anything is written to a database.
type StructuralError struct {
	Revision string
	Reason   string
}

func (e *StructuralError) Error() string {
	if e.Revision == "" {
		return fmt.Sprintf("invalid revision structure: %s", e.Reason)
	}
	return fmt.Sprintf("invalid revision %q: %s", e.Revision, e.Reason)
}

func structural(rev, format string, args ...any) error {
	return &StructuralError{Revision: rev, Reason: fmt.Sprintf(format, args...)}
}

func unknown(id string) error {
	return fmt.Errorf("%w: %s", ErrUnknownRevision, id)
}
