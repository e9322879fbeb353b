// Package report handles raw HID feature-report buffers: framing the
// report ID onto a payload, splitting it back off, and computing
// byte-level deltas between two observations of the same report.
package report

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when a wire buffer is too short to carry a
// report ID. Under correct usage this never happens; it is surfaced
// rather than swallowed so framing bugs don't hide behind empty reads.
var ErrMalformed = errors.New("malformed feature report")

// Encode frames a feature report for the wire: the report ID followed
// by the payload bytes. The result is a fresh buffer.
func Encode(reportID byte, payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = reportID
	copy(buf[1:], payload)
	return buf
}

// Decode splits a wire buffer into report ID and payload. The payload
// is copied, never aliased into buf. A single-byte buffer is a valid
// report with an empty payload.
func Decode(buf []byte) (byte, []byte, error) {
	if len(buf) == 0 {
		return 0, nil, fmt.Errorf("%w: empty buffer", ErrMalformed)
	}
	payload := make([]byte, len(buf)-1)
	copy(payload, buf[1:])
	return buf[0], payload, nil
}

// FormatBytes renders a buffer as space-separated uppercase hex,
// e.g. "00 F7 2A".
func FormatBytes(buf []byte) string {
	var b strings.Builder
	for i, v := range buf {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
