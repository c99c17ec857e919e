package contract

import (
	"errors"
	"fmt"
)

var (
	ErrModelInvoke           = errors.New("model invoke failed")
	ErrTemplate              = errors.New("template misconfigured")
	ErrValidation            = errors.New("validation failed")
	ErrDirectoryUnavailable  = errors.New("customer directory unavailable")
	ErrExtractionUnavailable = errors.New("extraction backend unavailable")
	ErrExtractionDegraded    = errors.New("extraction output could not be parsed")
	ErrActionFailed          = errors.New("follow-up action failed")
)

// DirectoryUnavailableError reports a transport or decoding failure of the
// customer directory. A lookup miss is not an error.
type DirectoryUnavailableError struct {
	Phone string
	Err   error
}

func (e *DirectoryUnavailableError) Error() string {
	return fmt.Sprintf("directory lookup for %q: %v", e.Phone, e.Err)
}

func (e *DirectoryUnavailableError) Unwrap() []error {
	return []error{ErrDirectoryUnavailable, e.Err}
}
