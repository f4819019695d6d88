package knowledge

import (
	"context"
	"fmt"
)

// Unavailable is a Store stand-in wired at startup when the vector index
// cannot be opened. Every call reports ErrUnavailable carrying the startup
// cause, so the process keeps serving in degraded mode instead of exiting.
type Unavailable struct {
	cause error
}

// NewUnavailable records why the index could not be opened.
func NewUnavailable(cause error) *Unavailable {
	return &Unavailable{cause: cause}
}

// Search always fails with ErrUnavailable.
func (u *Unavailable) Search(context.Context, string, ...SearchOption) ([]Result, error) {
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, u.cause)
}

// Count always fails with ErrUnavailable.
func (u *Unavailable) Count(context.Context, map[string]string) (int, error) {
	return 0, fmt.Errorf("%w: %v", ErrUnavailable, u.cause)
}
