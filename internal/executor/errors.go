package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/altuslabsxyz/txexec/internal/types"
)

// Sentinel errors delivered through transaction futures.
var (
	// ErrReverted is returned when a mined receipt reports failure.
	ErrReverted = errors.New("transaction reverted")

	// ErrCancelled is returned for a transaction dequeued before it started.
	ErrCancelled = errors.New("transaction cancelled")

	// ErrClosed is returned once the executor has been closed.
	ErrClosed = errors.New("executor closed")
)

// SubmitTimeoutError is returned when the network did not accept a
// transaction within the submission timeout.
type SubmitTimeoutError struct {
	ID      types.TransactionID
	Timeout time.Duration
}

func (e *SubmitTimeoutError) Error() string {
	return fmt.Sprintf("tx request %d failed to submit: timed out after %s", e.ID, e.Timeout)
}

// IsSubmitTimeout returns true if err is a SubmitTimeoutError.
func IsSubmitTimeout(err error) bool {
	var target *SubmitTimeoutError
	return errors.As(err, &target)
}
