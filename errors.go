package collabdoc

import (
	"fmt"
	"strings"
)

// ApplyError aggregates one or more failures from a single multi-step
// operation, the same shape patch.go uses for partial-apply failures:
// LoadDocument, which rebuilds a CollaborativeDocument from a snapshot plus
// the operations logged after it, is the only path that returns one. Every
// other failure mode the core defines is a plain error, a bool, or an int
// count.
type ApplyError struct {
	Errors []error
}

func (e *ApplyError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors while restoring document state:\n", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("- " + err.Error() + "\n")
	}
	return b.String()
}

// Unwrap exposes the underlying errors to errors.Is/errors.As via the
// multi-error convention (errors.Join-compatible shape).
func (e *ApplyError) Unwrap() []error {
	return e.Errors
}
