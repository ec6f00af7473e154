package serialmux

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrMockClosed is returned by MockSerialPort once it has been closed.
var ErrMockClosed = errors.New("mock serial port closed")

var _ TimeoutSerialPorter = (*MockSerialPort)(nil)

// MockSerialPort implements TimeoutSerialPorter in memory. Reads block until
// data is fed, an error is injected, the port is closed or the read timeout
// elapses. It backs the tests and the -replay mode of the binary.
type MockSerialPort struct {
	mu sync.Mutex

	readBuf     bytes.Buffer
	readErr     error
	readTimeout time.Duration

	written    bytes.Buffer
	writes     int
	writeErr   error
	shortWrite bool

	closed   bool
	closeErr error

	notify chan struct{}
}

// NewMockSerialPort returns an open, empty mock port.
func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{notify: make(chan struct{}, 1)}
}

func (m *MockSerialPort) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Feed queues data to be returned by Read.
func (m *MockSerialPort) Feed(data []byte) {
	m.mu.Lock()
	m.readBuf.Write(data)
	m.mu.Unlock()
	m.signal()
}

// FeedString is Feed for text.
func (m *MockSerialPort) FeedString(s string) { m.Feed([]byte(s)) }

// FailReads makes Read return err once the queued data has been consumed.
func (m *MockSerialPort) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
	m.signal()
}

// FailWrites makes every Write return err. Pass nil to clear it.
func (m *MockSerialPort) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// ShortWrites makes Write accept only half of each buffer.
func (m *MockSerialPort) ShortWrites(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortWrite = on
}

// SetCloseError sets the error returned by Close.
func (m *MockSerialPort) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// Read returns queued data, then any injected error.
func (m *MockSerialPort) Read(p []byte) (int, error) {
	for {
		m.mu.Lock()
		if m.readBuf.Len() > 0 {
			n, _ := m.readBuf.Read(p)
			m.mu.Unlock()
			return n, nil
		}
		if m.readErr != nil {
			err := m.readErr
			m.mu.Unlock()
			return 0, err
		}
		if m.closed {
			m.mu.Unlock()
			return 0, ErrMockClosed
		}
		timeout := m.readTimeout
		m.mu.Unlock()

		if timeout <= 0 {
			<-m.notify
			continue
		}
		t := time.NewTimer(timeout)
		select {
		case <-m.notify:
			t.Stop()
		case <-t.C:
			return 0, nil
		}
	}
}

// Write records p unless a failure has been injected.
func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrMockClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	n := len(p)
	if m.shortWrite {
		n /= 2
	}
	m.written.Write(p[:n])
	m.writes++
	return n, nil
}

// Close marks the port closed and wakes a blocked reader.
func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.closed = true
	err := m.closeErr
	m.mu.Unlock()
	m.signal()
	return err
}

// SetReadTimeout implements TimeoutSerialPorter.
func (m *MockSerialPort) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = timeout
	return nil
}

// Written returns a copy of everything written so far.
func (m *MockSerialPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.written.Bytes())
}

// Writes returns the number of successful Write calls.
func (m *MockSerialPort) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Closed reports whether Close has been called.
func (m *MockSerialPort) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
