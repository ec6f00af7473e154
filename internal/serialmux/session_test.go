package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/humbaba/groundstation/internal/monitoring"
)

func newTestSession(t *testing.T) (*MockSerialPort, *Session[*MockSerialPort]) {
	t.Helper()
	port := NewMockSerialPort()
	port.SetReadTimeout(10 * time.Millisecond)
	s := NewSession(port, WithName("mock"), WithLogger(monitoring.Discard))
	t.Cleanup(func() { s.Close() })
	return port, s
}

func startMonitor(s *Session[*MockSerialPort]) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Monitor(ctx) }()
	return cancel, errc
}

func recvLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		if !ok {
			t.Fatal("lines channel closed")
		}
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}
	return ""
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return")
	}
	return nil
}

func TestSessionMonitorDeliversLinesInOrder(t *testing.T) {
	port, s := newTestSession(t)
	cancel, errc := startMonitor(s)
	defer cancel()

	// split across reads, CRLF endings, blank lines and invalid UTF-8
	port.FeedString("first\r\n\r\n   \nsec")
	port.FeedString("ond\n\xffthird\xfe\n")

	for _, want := range []string{"first", "second", "third"} {
		if got := recvLine(t, s.Lines()); got != want {
			t.Errorf("line = %q, want %q", got, want)
		}
	}

	cancel()
	if err := waitErr(t, errc); !errors.Is(err, context.Canceled) {
		t.Errorf("Monitor() = %v, want context.Canceled", err)
	}
	if _, ok := <-s.Lines(); ok {
		t.Error("Lines() should be closed after Monitor returns")
	}
}

func TestSessionMonitorPartialLineHeldUntilNewline(t *testing.T) {
	port, s := newTestSession(t)
	cancel, _ := startMonitor(s)
	defer cancel()

	port.FeedString(`{"irtifa": 1`)
	select {
	case line := <-s.Lines():
		t.Fatalf("unexpected line before newline: %q", line)
	case <-time.After(50 * time.Millisecond):
	}

	port.FeedString("0}\n")
	if got := recvLine(t, s.Lines()); got != `{"irtifa": 10}` {
		t.Errorf("line = %q", got)
	}
}

func TestSessionMonitorConnectionLost(t *testing.T) {
	port, s := newTestSession(t)
	cancel, errc := startMonitor(s)
	defer cancel()

	port.FeedString("last good line\n")
	port.FailReads(errors.New("device unplugged"))

	if got := recvLine(t, s.Lines()); got != "last good line" {
		t.Errorf("line = %q", got)
	}
	err := waitErr(t, errc)
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Monitor() = %v, want ErrConnectionLost", err)
	}
}

func TestSessionCloseStopsMonitor(t *testing.T) {
	_, s := newTestSession(t)
	_, errc := startMonitor(s)

	time.Sleep(20 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := waitErr(t, errc); err != nil {
		t.Errorf("Monitor() after Close = %v, want nil", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestSessionCloseWithoutTimeoutUnblocksRead(t *testing.T) {
	port := NewMockSerialPort()
	s := NewSession(port, WithLogger(monitoring.Discard))
	_, errc := startMonitor(s)

	time.Sleep(20 * time.Millisecond)
	s.Close()
	if err := waitErr(t, errc); err != nil {
		t.Errorf("Monitor() = %v, want nil", err)
	}
	if !port.Closed() {
		t.Error("port should be closed")
	}
}

func TestSessionCloseReturnsPortError(t *testing.T) {
	port, s := newTestSession(t)
	port.SetCloseError(errors.New("close failed"))
	if err := s.Close(); err == nil {
		t.Error("first Close() should report the port error")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestSessionMonitorOnlyOnce(t *testing.T) {
	_, s := newTestSession(t)
	cancel, _ := startMonitor(s)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	if err := s.Monitor(context.Background()); err == nil {
		t.Error("second Monitor() should fail")
	}
}

func TestSessionWrite(t *testing.T) {
	port, s := newTestSession(t)

	frame := []byte{0xFF, 0xFF, 0x54, 0x52}
	if err := s.Write(frame); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := port.Written(); string(got) != string(frame) {
		t.Errorf("written = % x", got)
	}

	port.ShortWrites(true)
	if err := s.Write(frame); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("short Write() = %v, want ErrWriteFailed", err)
	}
	port.ShortWrites(false)

	port.FailWrites(errors.New("io error"))
	if err := s.Write(frame); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("failing Write() = %v, want ErrWriteFailed", err)
	}
	port.FailWrites(nil)

	s.Close()
	if err := s.Write(frame); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Write() after Close = %v, want ErrWriteFailed", err)
	}
}

func TestSessionLongLineDiscarded(t *testing.T) {
	port, s := newTestSession(t)
	cancel, _ := startMonitor(s)
	defer cancel()

	junk := make([]byte, MaxLineLength+10)
	for i := range junk {
		junk[i] = 'x'
	}
	port.Feed(junk)
	time.Sleep(50 * time.Millisecond)
	port.FeedString("\nok\n")

	// the tail of the junk arrives as its own short line at most; the
	// next real line must still come through
	for i := 0; i < 2; i++ {
		if line := recvLine(t, s.Lines()); line == "ok" {
			return
		} else if len(line) > MaxLineLength {
			t.Fatalf("got %d byte line, want it discarded", len(line))
		}
	}
	t.Error("never received line after discarded junk")
}

func TestSessionSubscribersSeeLines(t *testing.T) {
	hub := NewHub()
	port := NewMockSerialPort()
	s := NewSession(port, WithHub(hub), WithLogger(monitoring.Discard))
	defer s.Close()

	id, ch := s.Subscribe()
	cancel, _ := startMonitor(s)
	defer cancel()

	port.FeedString("hello\n")
	recvLine(t, s.Lines())

	select {
	case got := <-ch:
		if got != "hello" {
			t.Errorf("subscriber got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive line")
	}

	s.Unsubscribe(id)
	if hub.Len() != 0 {
		t.Errorf("hub has %d subscribers after Unsubscribe", hub.Len())
	}
}

func TestMockSerialPortHonoursReadTimeout(t *testing.T) {
	var port SerialPorter = NewMockSerialPort()
	tp, ok := port.(TimeoutSerialPorter)
	if !ok {
		t.Fatal("MockSerialPort should implement TimeoutSerialPorter")
	}
	if err := tp.SetReadTimeout(5 * time.Millisecond); err != nil {
		t.Fatalf("SetReadTimeout() = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		n, err := tp.Read(make([]byte, 8))
		if n != 0 || err != nil {
			t.Errorf("Read() = %d, %v; want 0, nil after timeout", n, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Read ignored the timeout")
	}
}
