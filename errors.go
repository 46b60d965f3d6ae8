package pagecache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPageToken matches every InvalidPageTokenError.
	ErrInvalidPageToken = errors.New("pagecache: invalid page token")
	// ErrNotFound is returned by list wrappers when the collection owner
	// (a parent, an ordering) does not exist.
	ErrNotFound = errors.New("pagecache: not found")
	// ErrSourceUnavailable matches every SourceUnavailableError.
	ErrSourceUnavailable = errors.New("pagecache: source unavailable")
)

// InvalidPageTokenError reports a window token past the window, or a cursor
// the source refused to decode.
type InvalidPageTokenError struct {
	Token  string
	Reason string
	Err    error // optional cause
}

func (e *InvalidPageTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid page token %q: %s: %v", e.Token, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid page token %q: %s", e.Token, e.Reason)
}

func (e *InvalidPageTokenError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidPageToken, e.Err}
	}
	return []error{ErrInvalidPageToken}
}

// SourceUnavailableError wraps a source failure. It is retryable by the caller.
type SourceUnavailableError struct {
	Prefix string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable for %q: %v", e.Prefix, e.Err)
}

func (e *SourceUnavailableError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// InvalidateError is returned when neither rebuilding nor dropping the window
// of a prefix succeeded, so readers may keep seeing the old slots.
type InvalidateError struct {
	Prefix     string
	RecacheErr error
	DropErr    error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.RecacheErr != nil && e.DropErr != nil:
		return fmt.Sprintf("invalidate %q failed: recache and drop failed: recache=%v; drop=%v",
			e.Prefix, e.RecacheErr, e.DropErr)
	case e.RecacheErr != nil:
		return fmt.Sprintf("invalidate %q: recache failed: %v", e.Prefix, e.RecacheErr)
	case e.DropErr != nil:
		return fmt.Sprintf("invalidate %q: drop failed: %v", e.Prefix, e.DropErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Prefix)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.RecacheErr != nil {
		errs = append(errs, e.RecacheErr)
	}
	if e.DropErr != nil {
		errs = append(errs, e.DropErr)
	}
	return errs
}
