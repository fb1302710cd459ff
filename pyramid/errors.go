package pyramid

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrFormat marks malformed or unsupported structure: missing offset tables,
	// an unrecognized dimension order, or an unsupported sample encoding.
	ErrFormat = errors.New("format error")

	// ErrIndex marks a selection that references an undeclared dimension or an
	// index outside the declared size, and duplicate dimension labels.
	ErrIndex = errors.New("index error")

	// ErrBounds marks a tile or slice request that lies entirely outside the image.
	ErrBounds = errors.New("bounds error")

	// ErrNotFound marks a selection with no registered source.  See NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrOperationAborted is returned when a read's context was cancelled.  It is not a
	// failure and should be dropped by callers rather than reported.
	ErrOperationAborted = errors.New("operation aborted")
)

// NotFoundError names the coordinate that has no registered source.
type NotFoundError struct {
	Selection Selection
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no image available for selection %s", e.Selection)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsAborted returns true if the error resulted from a cancelled read.
func IsAborted(err error) bool {
	return errors.Is(err, ErrOperationAborted)
}

// FilterAborted drops cancellation at the boundary with a caller-visible error channel.
func FilterAborted(err error) error {
	if IsAborted(err) {
		return nil
	}
	return err
}

// Aborted returns ErrOperationAborted if the context has been cancelled or has hit
// its deadline, else nil.
func Aborted(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrOperationAborted
	}
	return nil
}

// CheckAborted converts an error from a blocking call into ErrOperationAborted when the
// call failed because its context was cancelled.  Other errors are returned unchanged.
func CheckAborted(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ErrOperationAborted
	}
	return err
}
