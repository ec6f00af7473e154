package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement. Ports that
// honour it return (0, nil) from Read when the timeout elapses, which lets the
// read loop notice Close without waiting for the next byte.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens a line session on the named device. The pipeline is given an
// Opener so tests can hand it a session over a MockSerialPort.
type Opener func(path string, opts PortOptions) (SessionInterface, error)
