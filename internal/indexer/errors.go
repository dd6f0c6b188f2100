package indexer

import "fmt"

// TransientError marks an upstream failure worth retrying later: network
// errors, HTTP 5xx and rate limiting. Any other HTTP status is permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
