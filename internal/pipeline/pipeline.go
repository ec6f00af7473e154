// Package pipeline connects the flight computer link to the sinks: every
// decoded line is persisted, shown to the operator and re-encoded as a judge
// frame written back on the same serial handle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/humbaba/groundstation/internal/hyi"
	"github.com/humbaba/groundstation/internal/monitoring"
	"github.com/humbaba/groundstation/internal/serialmux"
	"github.com/humbaba/groundstation/internal/telemetry"
	"github.com/humbaba/groundstation/internal/timeutil"
)

var (
	// ErrBusy is returned when a connection or fake run is already active.
	ErrBusy = errors.New("pipeline busy")
	// ErrNotConnected is returned when an operation needs an open link.
	ErrNotConnected = errors.New("not connected")
)

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds the tunables for a Pipeline.
type Config struct {
	// PortOptions are used for every Connect; the baud rate may be
	// overridden per call.
	PortOptions serialmux.PortOptions
	// FakeInterval is the synthetic telemetry cadence.
	FakeInterval time.Duration
	// FakeSeed seeds the generator; zero picks a time based seed.
	FakeSeed uint64
	// QueueSize bounds pending sink work.
	QueueSize int
}

// Deps are the collaborators of a Pipeline. Nil fields get harmless defaults.
type Deps struct {
	Opener    serialmux.Opener
	ListPorts func() ([]serialmux.PortInfo, error)
	Recorder  Recorder
	Presenter Presenter
	Clock     timeutil.Clock
	Logger    monitoring.Logger
}

// Status is a snapshot of the pipeline for the API and presenters.
type Status struct {
	State       string `json:"state"`
	FakeRunning bool   `json:"fake_running"`
	Port        string `json:"port,omitempty"`
	TeamID      int    `json:"team_id"`
	Counter     int    `json:"counter"`
	FlightID    string `json:"flight_id,omitempty"`
	Records     uint64 `json:"records"`
	Malformed   uint64 `json:"malformed"`
	PacketsSent uint64 `json:"packets_sent"`
	WriteErrors uint64 `json:"write_errors"`
	Dropped     uint64 `json:"dropped"`
	LastError   string `json:"last_error,omitempty"`
	Message     string `json:"message"`
}

// Pipeline is the telemetry state machine. All exported methods are safe for
// concurrent use.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  monitoring.Logger
	sink *dispatcher

	mu       sync.Mutex
	state    State
	port     string
	teamID   byte
	session  serialmux.SessionInterface
	flightID string
	lastErr  string
	message  string
	cancel   context.CancelFunc
	done     chan struct{}

	fakeRunning  bool
	fakeFlightID string
	fakeCancel   context.CancelFunc
	fakeDone     chan struct{}

	// seqMu guards seq; it is held across the judge write so the counter
	// advances in the same order frames leave. counter mirrors seq for
	// Status, which must not wait on a stalled write.
	seqMu   sync.Mutex
	seq     *hyi.Sequencer
	counter atomic.Uint32

	records     atomic.Uint64
	malformed   atomic.Uint64
	packetsSent atomic.Uint64
	writeErrors atomic.Uint64
}

// New returns a disconnected Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if deps.Opener == nil {
		deps.Opener = serialmux.NewOpener()
	}
	if deps.ListPorts == nil {
		deps.ListPorts = serialmux.ListPorts
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}
	if deps.Presenter == nil {
		deps.Presenter = NopPresenter{}
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = monitoring.NewLogger("pipeline", monitoring.LevelInfo)
	}
	if cfg.FakeInterval <= 0 {
		cfg.FakeInterval = time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger,
		sink:    newDispatcher(cfg.QueueSize, deps.Logger),
		seq:     hyi.NewSequencer(0),
		message: "Disconnected",
	}
}

// Encode builds the judge frame for rec.
func Encode(teamID, counter byte, rec telemetry.Record) hyi.Packet {
	return hyi.EncodePacket(teamID, counter, rec.Slots(), rec.StatusByte())
}

// ListPorts lists serial devices on the host.
func (p *Pipeline) ListPorts() ([]serialmux.PortInfo, error) {
	return p.deps.ListPorts()
}

// Connect opens port and starts forwarding telemetry. The packet counter is
// reset for teamID. A baud of zero uses the configured rate.
func (p *Pipeline) Connect(ctx context.Context, port string, teamID byte, baud int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.state != Disconnected || p.fakeRunning {
		p.mu.Unlock()
		return ErrBusy
	}
	p.state = Connecting
	p.port = port
	p.teamID = teamID
	p.lastErr = ""
	p.message = fmt.Sprintf("Connecting to %s", port)
	p.mu.Unlock()
	p.notifyStatus()

	opts := p.cfg.PortOptions
	if baud > 0 {
		opts.BaudRate = baud
	}
	s, err := p.deps.Opener(port, opts)
	if err != nil {
		p.mu.Lock()
		p.state = Disconnected
		p.lastErr = err.Error()
		p.message = fmt.Sprintf("Connection error: %v", err)
		p.mu.Unlock()
		p.log.Errorf("connect %s failed: %v", port, err)
		p.notifyStatus()
		return err
	}

	flightID, err := p.deps.Recorder.StartFlight(fmt.Sprintf("%s team %d", port, teamID))
	if err != nil {
		p.log.Warnf("failed to start flight, telemetry will not be persisted: %v", err)
		flightID = ""
	}

	p.seqMu.Lock()
	p.seq.Reset(teamID)
	p.counter.Store(0)
	p.seqMu.Unlock()

	wctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.state = Connected
	p.session = s
	p.flightID = flightID
	p.cancel = cancel
	p.done = done
	p.message = fmt.Sprintf("Connected to %s", port)
	p.mu.Unlock()

	p.log.Infof("connected to %s as team %d (flight %s)", port, teamID, flightID)
	go p.runSession(wctx, s, flightID, done)
	p.notifyStatus()
	return nil
}

// Disconnect stops the fake loop and closes the link. It is a no-op when
// nothing is running and returns ErrBusy while a Connect is in flight.
func (p *Pipeline) Disconnect() error {
	fakeErr := p.StopFakeTelemetry()

	p.mu.Lock()
	if p.state == Connecting {
		p.mu.Unlock()
		return errors.Join(fakeErr, ErrBusy)
	}
	if p.state != Connected {
		p.mu.Unlock()
		return fakeErr
	}
	s, flightID, cancel, done := p.session, p.flightID, p.cancel, p.done
	p.resetLinkLocked("Disconnected")
	p.mu.Unlock()

	cancel()
	closeErr := s.Close()
	<-done
	p.endFlight(flightID)

	p.log.Infof("disconnected from %s", s.Name())
	p.notifyStatus()
	return errors.Join(fakeErr, closeErr)
}

func (p *Pipeline) resetLinkLocked(message string) {
	p.state = Disconnected
	p.session = nil
	p.flightID = ""
	p.cancel = nil
	p.done = nil
	p.message = message
}

// connectionLost tears down s after a device failure. Disconnect may have
// raced us; only the session still installed is torn down.
func (p *Pipeline) connectionLost(s serialmux.SessionInterface, flightID string, err error) {
	p.mu.Lock()
	if p.session != s {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.resetLinkLocked(fmt.Sprintf("Connection lost: %v", err))
	p.lastErr = err.Error()
	p.mu.Unlock()

	cancel()
	s.Close()
	p.endFlight(flightID)

	p.log.Errorf("connection lost on %s: %v", s.Name(), err)
	p.notifyStatus()
}

func (p *Pipeline) endFlight(flightID string) {
	if flightID == "" {
		return
	}
	if err := p.deps.Recorder.EndFlight(flightID); err != nil {
		p.log.Warnf("failed to end flight %s: %v", flightID, err)
	}
}

func (p *Pipeline) runSession(ctx context.Context, s serialmux.SessionInterface, flightID string, done chan struct{}) {
	defer close(done)

	monErr := make(chan error, 1)
	go func() { monErr <- s.Monitor(ctx) }()

	for line := range s.Lines() {
		rec, err := telemetry.ParseLine(line)
		if err != nil {
			n := p.malformed.Add(1)
			p.log.Warnf("skipping line (%d malformed): %v", n, err)
			continue
		}
		p.handleRecord(rec, flightID, s)
	}

	if err := <-monErr; errors.Is(err, serialmux.ErrConnectionLost) {
		p.connectionLost(s, flightID, err)
	} else if err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warnf("monitor on %s stopped: %v", s.Name(), err)
	}
}

// handleRecord fans rec out to the sinks and, when link is set, writes the
// judge frame. The counter advances only after a successful write.
func (p *Pipeline) handleRecord(rec telemetry.Record, flightID string, link serialmux.FrameWriter) {
	p.records.Add(1)
	p.sink.submit("telemetry", func() {
		if flightID != "" {
			if err := p.deps.Recorder.LogTelemetry(flightID, rec); err != nil {
				p.log.Warnf("failed to log telemetry: %v", err)
			}
		}
		p.deps.Presenter.ShowTelemetry(rec)
	})

	if link == nil {
		return
	}

	p.seqMu.Lock()
	defer p.seqMu.Unlock()

	teamID, counter := p.seq.Current()
	pkt := Encode(teamID, counter, rec)
	if err := link.Write(pkt.Bytes()); err != nil {
		p.writeErrors.Add(1)
		p.log.Warnf("judge frame %d not sent: %v", counter, err)
		return
	}
	p.seq.Next()
	_, next := p.seq.Current()
	p.counter.Store(uint32(next))
	p.packetsSent.Add(1)
	p.log.Debugf("sent frame %s", pkt.Hex())
	p.sink.submit("packet", func() { p.deps.Presenter.ShowPacketSent(pkt) })
}

// WriteRaw writes b to the open link without touching the counter. It backs
// the debug send-hex route.
func (p *Pipeline) WriteRaw(b []byte) error {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.Write(b)
}

// StartFakeTelemetry feeds synthetic records through the sinks at the
// configured cadence. It is refused while a link is open: without a judge
// link no frames are sent and the counter is untouched.
func (p *Pipeline) StartFakeTelemetry(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.fakeRunning || p.state != Disconnected {
		p.mu.Unlock()
		return ErrBusy
	}
	fctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.fakeRunning = true
	p.fakeCancel = cancel
	p.fakeDone = done
	p.message = "Fake telemetry running"
	p.mu.Unlock()

	seed := p.cfg.FakeSeed
	if seed == 0 {
		seed = uint64(p.deps.Clock.Now().UnixNano())
	}
	gen := telemetry.NewFakeGenerator(seed)

	p.log.Infof("fake telemetry started every %s", p.cfg.FakeInterval)
	go p.runFake(fctx, gen, done)
	p.notifyStatus()
	return nil
}

// runFake owns the fake flight: it opens it before the first tick and ends
// it before done closes.
func (p *Pipeline) runFake(ctx context.Context, gen *telemetry.FakeGenerator, done chan struct{}) {
	defer close(done)

	flightID, err := p.deps.Recorder.StartFlight("fake telemetry")
	if err != nil {
		p.log.Warnf("failed to start fake flight: %v", err)
		flightID = ""
	}
	defer p.endFlight(flightID)

	p.mu.Lock()
	if p.fakeDone == done {
		p.fakeFlightID = flightID
	}
	p.mu.Unlock()

	ticker := p.deps.Clock.NewTicker(p.cfg.FakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.handleRecord(gen.Next(), flightID, nil)
		}
	}
}

// StopFakeTelemetry stops the fake loop. It is a no-op when not running.
func (p *Pipeline) StopFakeTelemetry() error {
	p.mu.Lock()
	if !p.fakeRunning {
		p.mu.Unlock()
		return nil
	}
	cancel, done := p.fakeCancel, p.fakeDone
	p.fakeRunning = false
	p.fakeCancel = nil
	p.fakeDone = nil
	p.fakeFlightID = ""
	if p.state == Disconnected {
		p.message = "Disconnected"
	}
	p.mu.Unlock()

	cancel()
	<-done

	p.log.Infof("fake telemetry stopped")
	p.notifyStatus()
	return nil
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	counter := p.counter.Load()

	p.mu.Lock()
	defer p.mu.Unlock()

	flightID := p.flightID
	if flightID == "" {
		flightID = p.fakeFlightID
	}
	return Status{
		State:       p.state.String(),
		FakeRunning: p.fakeRunning,
		Port:        p.port,
		TeamID:      int(p.teamID),
		Counter:     int(counter),
		FlightID:    flightID,
		Records:     p.records.Load(),
		Malformed:   p.malformed.Load(),
		PacketsSent: p.packetsSent.Load(),
		WriteErrors: p.writeErrors.Load(),
		Dropped:     p.sink.dropped.Load(),
		LastError:   p.lastErr,
		Message:     p.message,
	}
}

func (p *Pipeline) notifyStatus() {
	st := p.Status()
	p.sink.submit("status", func() { p.deps.Presenter.ShowStatus(st) })
}

// Close disconnects and waits for queued sink work to drain.
func (p *Pipeline) Close() error {
	err := p.Disconnect()
	p.sink.close()
	return err
}
