package pipeline

import (
	"github.com/humbaba/groundstation/internal/hyi"
	"github.com/humbaba/groundstation/internal/telemetry"
)

// Recorder persists flights and their telemetry.
type Recorder interface {
	// StartFlight opens a flight and returns its id.
	StartFlight(name string) (string, error)
	// EndFlight closes the flight.
	EndFlight(id string) error
	// LogTelemetry stores one record against a flight.
	LogTelemetry(flightID string, rec telemetry.Record) error
}

// Presenter shows live data to an operator.
type Presenter interface {
	ShowTelemetry(rec telemetry.Record)
	ShowStatus(st Status)
	ShowPacketSent(pkt hyi.Packet)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) StartFlight(string) (string, error)          { return "", nil }
func (NopRecorder) EndFlight(string) error                      { return nil }
func (NopRecorder) LogTelemetry(string, telemetry.Record) error { return nil }

// NopPresenter discards everything.
type NopPresenter struct{}

func (NopPresenter) ShowTelemetry(telemetry.Record) {}
func (NopPresenter) ShowStatus(Status)              {}
func (NopPresenter) ShowPacketSent(hyi.Packet)      {}

// Presenters fans out to several presenters in order.
type Presenters []Presenter

func (ps Presenters) ShowTelemetry(rec telemetry.Record) {
	for _, p := range ps {
		p.ShowTelemetry(rec)
	}
}

func (ps Presenters) ShowStatus(st Status) {
	for _, p := range ps {
		p.ShowStatus(st)
	}
}

func (ps Presenters) ShowPacketSent(pkt hyi.Packet) {
	for _, p := range ps {
		p.ShowPacketSent(pkt)
	}
}
