package store

import "fmt"

// DeleteError is returned when a Delete could neither bump the generation
// nor remove the bytes, so the old slot may still be served.
type DeleteError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("store: delete %q: bump: %v; del: %v", e.Key, e.BumpErr, e.DelErr)
}

func (e *DeleteError) Unwrap() []error { return []error{e.BumpErr, e.DelErr} }
