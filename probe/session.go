// Package probe implements the feature-report probing engine: device
// sessions over HID, the latest-observation store, battery heuristics,
// and the campaign runner that drives poll-and-diff, snapshot, and
// command-injection strategies against a device.
package probe

import (
	"fmt"

	"github.com/sstallion/go-hid"

	"hidprobe/report"
)

// Identity names one physical HID interface, either by opaque platform
// path (preferred, never parsed) or by VID/PID pair. When a VID/PID
// pair matches several interfaces the one whose interface number
// equals Interface is preferred; this defaults to 2 by convention for
// the protocol family this toolkit was built against, but it is a
// configurable guess, not a HID rule.
type Identity struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Interface int
}

func (id Identity) String() string {
	if id.Path != "" {
		return id.Path
	}
	return fmt.Sprintf("%04x:%04x", id.VendorID, id.ProductID)
}

// Session is the request/response surface a campaign needs from a
// device. Every operation performs exactly one attempt; retries are
// the caller's decision. Implementations are not safe for concurrent
// use; a campaign owns its session exclusively.
type Session interface {
	// SendFeatureReport writes a framed wire buffer (report ID first)
	// and returns the number of bytes written.
	SendFeatureReport(buf []byte) (int, error)

	// GetFeatureReport requests reportID with payloadLen payload bytes
	// and returns a freshly-owned payload (report ID stripped).
	GetFeatureReport(reportID byte, payloadLen int) ([]byte, error)

	// Close releases the handle. Idempotent; operations after Close
	// fail with ErrSessionClosed.
	Close() error
}

// Opener produces a Session; campaigns take one so tests can supply
// fakes without hardware.
type Opener func() (Session, error)

// DeviceSession is a Session over a real HID handle.
type DeviceSession struct {
	dev    *hid.Device
	path   string
	closed bool
}

// Open resolves an Identity and opens the device.
func Open(id Identity) (*DeviceSession, error) {
	path := id.Path
	if path == "" {
		p, err := resolvePath(id)
		if err != nil {
			return nil, err
		}
		path = p
	}

	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DeviceSession{dev: dev, path: path}, nil
}

// resolvePath enumerates VID/PID matches and picks the interface the
// Identity prefers, else the first match in enumeration order.
func resolvePath(id Identity) (string, error) {
	var paths []string
	var preferred string
	hid.Enumerate(id.VendorID, id.ProductID, func(info *hid.DeviceInfo) error {
		if info.Path == "" {
			return nil
		}
		paths = append(paths, info.Path)
		if preferred == "" && info.InterfaceNbr == id.Interface {
			preferred = info.Path
		}
		return nil
	})

	if preferred != "" {
		return preferred, nil
	}
	if len(paths) > 0 {
		return paths[0], nil
	}
	return "", fmt.Errorf("%04x:%04x: %w", id.VendorID, id.ProductID, ErrDeviceNotFound)
}

// Path returns the platform path the session was opened on.
func (s *DeviceSession) Path() string {
	return s.path
}

func (s *DeviceSession) SendFeatureReport(buf []byte) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	n, err := s.dev.SendFeatureReport(buf)
	if err != nil {
		var rid byte
		if len(buf) > 0 {
			rid = buf[0]
		}
		return 0, &IOError{Op: "send", ReportID: rid, Err: err}
	}
	return n, nil
}

func (s *DeviceSession) GetFeatureReport(reportID byte, payloadLen int) ([]byte, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	buf := report.Encode(reportID, make([]byte, payloadLen))
	n, err := s.dev.GetFeatureReport(buf)
	if err != nil {
		return nil, &IOError{Op: "get", ReportID: reportID, Err: err}
	}
	if n < 2 {
		return nil, fmt.Errorf("report 0x%02X: %d byte(s): %w", reportID, n, ErrShortRead)
	}

	_, payload, err := report.Decode(buf[:n])
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *DeviceSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dev == nil {
		return nil
	}
	err := s.dev.Close()
	s.dev = nil
	return err
}
