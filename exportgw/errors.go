package exportgw

import "fmt"

// RemoteExportError is returned when the conversion endpoint answers with a
// non-2xx status or the response cannot be read. Callers treat it as
// recoverable: the local print fallback runs instead of surfacing it.
type RemoteExportError struct {
	Status int
	Body   string
}

func (e *RemoteExportError) Error() string {
	return fmt.Sprintf("exportgw: remote conversion failed: status %d: %s", e.Status, e.Body)
}
