package probe

import (
	"errors"
	"fmt"
)

// Errors returned from this package may be tested with errors.Is /
// errors.As.
var (
	// ErrDeviceNotFound means no HID device satisfied the requested
	// identity. Fatal to a campaign.
	ErrDeviceNotFound = errors.New("no matching HID device found")

	// ErrSessionClosed means an operation was attempted on a closed
	// session. A lifecycle bug in the caller, never swallowed.
	ErrSessionClosed = errors.New("session is closed")

	// ErrShortRead means the transport returned fewer than two bytes,
	// i.e. nothing beyond (or not even) the report-ID echo.
	ErrShortRead = errors.New("short read")
)

// IOError wraps a platform transport failure for a specific request.
// Most report IDs are simply unsupported by a given device, so an
// IOError during probing is the expected steady state, not a crash
// condition; campaigns skip it and move on.
type IOError struct {
	Op       string
	ReportID byte
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s report 0x%02X: %v", e.Op, e.ReportID, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an expected per-report miss
// (IOError or short read) that a campaign should skip rather than
// abort on.
func IsTransient(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr) || errors.Is(err, ErrShortRead)
}
