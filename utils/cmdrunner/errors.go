package cmdrunner

import "fmt"

// ValidationError indicates a malformed request.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid command request: %s", e.Reason)
}
