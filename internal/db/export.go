package db

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/humbaba/groundstation/internal/security"
	"github.com/humbaba/groundstation/internal/telemetry"
)

// ExportFileName is the suggested download name for a flight's CSV.
func ExportFileName(f Flight) string {
	return security.SanitizeFilename(fmt.Sprintf("flight-%s-%s", f.StartTime.UTC().Format("20060102-150405"), f.ID)) + ".csv"
}

// CSVHeader is the column order of ExportCSV.
func CSVHeader() []string {
	header := []string{"timestamp"}
	header = append(header, telemetry.FloatFields...)
	return append(header, telemetry.FieldStatus)
}

func csvRow(l TelemetryLog) []string {
	fields := l.Record.Fields()
	row := make([]string, 0, len(telemetry.FloatFields)+2)
	row = append(row, l.Timestamp.UTC().Format(time.RFC3339Nano))
	for _, name := range telemetry.FloatFields {
		row = append(row, strconv.FormatFloat(fields[name].(float64), 'f', -1, 64))
	}
	return append(row, strconv.Itoa(l.Record.Status))
}

// ExportCSV writes every sample of a flight as CSV.
func (db *DB) ExportCSV(flightID string, w io.Writer) (Flight, error) {
	f, err := db.Flight(flightID)
	if err != nil {
		return Flight{}, err
	}
	logs, err := db.LogsForFlight(flightID, 0)
	if err != nil {
		return Flight{}, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader()); err != nil {
		return Flight{}, err
	}
	for _, l := range logs {
		if err := cw.Write(csvRow(l)); err != nil {
			return Flight{}, err
		}
	}
	cw.Flush()
	return f, cw.Error()
}

// FlightSummary condenses a flight's altitude and acceleration profile.
type FlightSummary struct {
	Flight
	Apogee         float64    `json:"apogee"`
	ApogeeAt       *time.Time `json:"apogee_at,omitempty"`
	MeanAltitude   float64    `json:"mean_altitude"`
	AltitudeStdDev float64    `json:"altitude_stddev"`
	MaxAccel       float64    `json:"max_accel"`
	DurationSec    float64    `json:"duration_sec"`
	LastStatus     int        `json:"last_status"`
}

// Summary computes a FlightSummary over every stored sample.
func (db *DB) Summary(flightID string) (FlightSummary, error) {
	f, err := db.Flight(flightID)
	if err != nil {
		return FlightSummary{}, err
	}
	logs, err := db.LogsForFlight(flightID, 0)
	if err != nil {
		return FlightSummary{}, err
	}
	return summarize(f, logs), nil
}

func summarize(f Flight, logs []TelemetryLog) FlightSummary {
	s := FlightSummary{Flight: f}
	if len(logs) == 0 {
		return s
	}

	alt := make([]float64, len(logs))
	accel := make([]float64, len(logs))
	for i, l := range logs {
		r := l.Record
		alt[i] = r.Altitude
		accel[i] = math.Sqrt(r.AccelX*r.AccelX + r.AccelY*r.AccelY + r.AccelZ*r.AccelZ)
	}

	peak := floats.MaxIdx(alt)
	apogeeAt := logs[peak].Timestamp
	s.Apogee = alt[peak]
	s.ApogeeAt = &apogeeAt
	s.MeanAltitude, s.AltitudeStdDev = stat.MeanStdDev(alt, nil)
	if len(alt) < 2 {
		s.AltitudeStdDev = 0
	}
	s.MaxAccel = floats.Max(accel)
	s.DurationSec = logs[len(logs)-1].Timestamp.Sub(logs[0].Timestamp).Seconds()
	s.LastStatus = logs[len(logs)-1].Record.Status
	return s
}
