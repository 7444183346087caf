package tracker

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid sync attempt transition")

// PersistenceError reports a failed write of a SyncAttempt record.
// Op is one of "create", "start" or "finish".
type PersistenceError struct {
	Op        string
	AttemptID uuid.UUID
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.AttemptID == uuid.Nil {
		return fmt.Sprintf("persist sync attempt (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persist sync attempt %s (%s): %v", e.AttemptID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
