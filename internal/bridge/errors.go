package bridge

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when a command is dispatched while no
	// browser is attached. No frame is sent and no pending entry is created.
	ErrNotConnected = errors.New("browser not connected")

	// ErrConnectionLost rejects every command that was still pending when the
	// browser connection went away.
	ErrConnectionLost = errors.New("browser connection lost")

	// ErrClosed is returned when the bridge has been shut down for good.
	ErrClosed = errors.New("bridge closed")
)

// TimeoutError reports that no response arrived within the dispatch budget.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response from browser after %s", e.After)
}

// RemoteError carries a failure the browser itself reported for a command.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
