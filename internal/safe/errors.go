package safe

import (
	"errors"
	"fmt"
)

// TransportError is a network or HTTP level failure reaching SAFE.
// Fatal to the current operation, not to the process.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("safe request failed: %v", e.Err)
	}
	return fmt.Sprintf("safe request not successful, code %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) (*TransportError, bool) {
	var terr *TransportError
	ok := errors.As(err, &terr)
	return terr, ok
}

// DecodeError is a malformed payload from SAFE. Raw keeps the response
// body for diagnosis.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("received invalid json from safe: %v, contents: %s", e.Err, e.Raw)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) (*DecodeError, bool) {
	var derr *DecodeError
	ok := errors.As(err, &derr)
	return derr, ok
}

// RemoteRejectedError means the close/reject POST got an HTTP success
// but the body did not contain the servlet's success marker. The ticket
// is NOT closed and the local commit must not run.
type RemoteRejectedError struct {
	TicketID string
	Body     string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("safe did not confirm close of ticket %s", e.TicketID)
}

// IsRemoteRejected reports whether err is a RemoteRejectedError.
func IsRemoteRejected(err error) (*RemoteRejectedError, bool) {
	var rerr *RemoteRejectedError
	ok := errors.As(err, &rerr)
	return rerr, ok
}
