package serialmux

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
)

var (
	// ErrDeviceUnavailable is returned when a device cannot be opened:
	// missing, busy, or not permitted.
	ErrDeviceUnavailable = errors.New("serial device unavailable")
	// ErrConnectionLost is returned by Monitor when the device fails mid-session.
	ErrConnectionLost = errors.New("serial connection lost")
	// ErrWriteFailed is returned when a frame could not be written in full.
	ErrWriteFailed = errors.New("failed to write to serial port")
)

var _ TimeoutSerialPorter = serial.Port(nil)

// serialOpen is swapped in tests.
var serialOpen = serial.Open

// Open opens the serial device at path and wraps it in a Session. The port's
// read timeout is set from opts so the read loop observes Close promptly.
func Open(path string, opts PortOptions, sessionOpts ...SessionOption) (*Session[serial.Port], error) {
	norm, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := norm.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serialOpen(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v (%s)", ErrDeviceUnavailable, path, err, suggestionForError(err))
	}

	if err := port.SetReadTimeout(norm.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: set read timeout on %s: %v", ErrDeviceUnavailable, path, err)
	}

	sessionOpts = append([]SessionOption{WithName(path)}, sessionOpts...)
	return NewSession[serial.Port](port, sessionOpts...), nil
}

// NewOpener returns an Opener for real devices. Every session it opens is
// created with sessionOpts, typically WithHub and WithLogger.
func NewOpener(sessionOpts ...SessionOption) Opener {
	return func(path string, opts PortOptions) (SessionInterface, error) {
		s, err := Open(path, opts, sessionOpts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// suggestionForError provides a hint for the operator based on error type.
func suggestionForError(err error) string {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortNotFound:
			return "check that the device is connected and appears in /dev/"
		case serial.PermissionDenied:
			return "add the user to the dialout group: sudo usermod -a -G dialout $USER"
		case serial.PortBusy:
			return "another process is using the port"
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "no such file") || strings.Contains(errStr, "not found"):
		return "check that the device is connected and appears in /dev/"
	case strings.Contains(errStr, "permission denied"):
		return "add the user to the dialout group: sudo usermod -a -G dialout $USER"
	case strings.Contains(errStr, "resource busy") || strings.Contains(errStr, "device busy"):
		return "another process is using the port"
	}
	return "check device connection and permissions"
}
