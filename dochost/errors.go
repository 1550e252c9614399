package dochost

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when save and export are invoked concurrently on one
// session. Advisory guarding, not a queue: the caller retries when the
// in-flight operation ends.
var ErrBusy = errors.New("dochost: another operation is in flight")

// ErrNotReady is returned when the editing surface cannot serialize itself
// yet. Surfaced immediately, never retried.
var ErrNotReady = errors.New("dochost: editing surface is not ready")

// AssetError reports a template or logo asset that is missing or unreadable
// at load time. The session is abandoned.
type AssetError struct {
	Name string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("dochost: asset %s: %v", e.Name, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }
