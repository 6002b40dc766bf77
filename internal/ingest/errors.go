package ingest

import "fmt"

// ConnectError reports a failed connect or subscribe against the broker.
// The session logs it and retries after the poll interval.
type ConnectError struct {
	Broker string
	Topic  string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ingest: connect to %s (topic %q): %v", e.Broker, e.Topic, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
