// Package serialmux owns the serial link to the flight computer: opening and
// enumerating devices, turning the byte stream into lines, and writing judge
// frames back on the same handle. Lines are also fanned out to best-effort
// subscribers for the debug tail.
package serialmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/humbaba/groundstation/internal/monitoring"
)

const (
	readBufferSize = 1024
	// MaxLineLength bounds a line that never sees a newline. Anything longer
	// is discarded rather than buffered without limit.
	MaxLineLength = 64 * 1024
	linesBuffer   = 64
)

// SessionInterface is what the pipeline needs from an open link.
type SessionInterface interface {
	// Name identifies the link, usually the device path.
	Name() string
	// Monitor reads from the port and delivers lines on Lines until the
	// context is cancelled, the session is closed or the device fails.
	Monitor(context.Context) error
	// Lines delivers non-blank lines in arrival order. It is closed when
	// Monitor returns.
	Lines() <-chan string
	// Write sends a whole frame to the device.
	Write([]byte) error
	// Subscribe creates a best-effort tap on the line stream.
	Subscribe() (string, chan string)
	// Unsubscribe removes a tap.
	Unsubscribe(string)
	// Close stops Monitor and closes the port. It is safe to call repeatedly.
	Close() error
}

// Session is one open serial link. It is generic over the port so tests can
// use a MockSerialPort in place of hardware.
type Session[T SerialPorter] struct {
	port T
	name string
	hub  *Hub
	log  monitoring.Logger

	lines   chan string
	started atomic.Bool

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	name string
	hub  *Hub
	log  monitoring.Logger
}

// WithName sets the name reported by Name and used in log lines.
func WithName(name string) SessionOption {
	return func(c *sessionConfig) { c.name = name }
}

// WithHub publishes every line to hub in addition to Lines.
func WithHub(hub *Hub) SessionOption {
	return func(c *sessionConfig) { c.hub = hub }
}

// WithLogger sets the session logger.
func WithLogger(l monitoring.Logger) SessionOption {
	return func(c *sessionConfig) { c.log = l }
}

// NewSession wraps an already open port.
func NewSession[T SerialPorter](port T, opts ...SessionOption) *Session[T] {
	cfg := sessionConfig{name: "serial"}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.hub == nil {
		cfg.hub = NewHub()
	}
	if cfg.log == nil {
		cfg.log = monitoring.NewLogger("serial", monitoring.LevelInfo)
	}
	return &Session[T]{
		port:  port,
		name:  cfg.name,
		hub:   cfg.hub,
		log:   cfg.log,
		lines: make(chan string, linesBuffer),
		done:  make(chan struct{}),
	}
}

// Name returns the session name.
func (s *Session[T]) Name() string { return s.name }

// Lines returns the ordered line stream.
func (s *Session[T]) Lines() <-chan string { return s.lines }

// Subscribe adds a best-effort tap on the line stream.
func (s *Session[T]) Subscribe() (string, chan string) { return s.hub.Subscribe() }

// Unsubscribe removes a tap added by Subscribe.
func (s *Session[T]) Unsubscribe(id string) { s.hub.Unsubscribe(id) }

func (s *Session[T]) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Monitor monitors the serial port for lines and delivers them on Lines.
// It returns nil after Close, ctx.Err() on cancellation and a wrapped
// ErrConnectionLost when the device read fails.
func (s *Session[T]) Monitor(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("monitor already running on %s", s.name)
	}
	defer close(s.lines)

	chunks := make(chan []byte)
	readErrChan := make(chan error, 1)

	// The blocking Read lives in its own goroutine so the loop below can
	// still observe cancellation. A read timeout yields (0, nil), which gives
	// the reader a chance to see Close too.
	go func() {
		buf := make([]byte, readBufferSize)
		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-s.done:
					return
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErrChan <- err
				return
			}
			if s.closed() || ctx.Err() != nil {
				return
			}
		}
	}()

	var pending []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.done:
			return nil

		case err := <-readErrChan:
			if s.closed() {
				return nil
			}
			return fmt.Errorf("%w: %s: %v", ErrConnectionLost, s.name, err)

		case chunk := <-chunks:
			pending = append(pending, chunk...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				raw := string(pending[:i])
				pending = pending[i+1:]
				if err := s.deliver(ctx, raw); err != nil {
					if errors.Is(err, errSessionClosed) {
						return nil
					}
					return err
				}
			}
			if len(pending) > MaxLineLength {
				s.log.Warnf("discarding %d bytes without newline from %s", len(pending), s.name)
				pending = nil
			}
			// let the backing array go once it is drained
			if len(pending) == 0 {
				pending = nil
			}
		}
	}
}

var errSessionClosed = errors.New("session closed")

func (s *Session[T]) deliver(ctx context.Context, raw string) error {
	if len(raw) > MaxLineLength {
		s.log.Warnf("discarding %d byte line from %s", len(raw), s.name)
		return nil
	}
	line := strings.TrimSpace(strings.ToValidUTF8(raw, ""))
	if line == "" {
		return nil
	}
	s.hub.Publish(line)
	select {
	case s.lines <- line:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errSessionClosed
	}
}

// Write sends p to the device in a single call. Writes are serialised so a
// frame is never interleaved with another.
func (s *Session[T]) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed() {
		return fmt.Errorf("%w: %s is closed", ErrWriteFailed, s.name)
	}
	n, err := s.port.Write(p)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, s.name, err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: %s: wrote %d of %d bytes", ErrWriteFailed, s.name, n, len(p))
	}
	return nil
}

// Close stops Monitor and closes the port. Only the first call closes the
// port; later calls return nil.
func (s *Session[T]) Close() error {
	err := errSessionClosed
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		err = s.port.Close()
		s.writeMu.Unlock()
	})
	if errors.Is(err, errSessionClosed) {
		return nil
	}
	return err
}

// AttachAdminRoutes attaches the debug tail and send-hex endpoints for this
// session's hub. See Hub.AttachAdminRoutes.
func (s *Session[T]) AttachAdminRoutes(mux *http.ServeMux, w FrameWriter) {
	s.hub.AttachAdminRoutes(mux, w)
}
