package upstream

import "fmt"

// Error is returned by Client.Open when the upstream answers with a non-2xx status.
type Error struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d error: %s", e.StatusCode, e.Body)
}
