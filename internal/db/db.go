// Package db stores flights and their telemetry in sqlite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/humbaba/groundstation/internal/telemetry"
	"github.com/humbaba/groundstation/internal/timeutil"
)

// ErrFlightNotFound is returned for an unknown flight id.
var ErrFlightNotFound = errors.New("flight not found")

// Flight status values.
const (
	FlightActive    = "active"
	FlightCompleted = "completed"
)

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// NewDB opens (creating if needed) the database at path and applies
// migrations.
func NewDB(path string) (*DB, error) {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises writes anyway
	db.SetMaxOpenConns(1)

	d := &DB{DB: db, path: path, clock: timeutil.RealClock{}}
	if err := d.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// SetClock replaces the clock used for timestamps.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func (db *DB) now() string {
	return db.clock.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Flight is one recording session.
type Flight struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Status    string     `json:"status"`
	Samples   int        `json:"samples"`
}

func (f *Flight) String() string {
	return fmt.Sprintf("Flight %s (%s) %s started %s, %d samples", f.ID, f.Name, f.Status, f.StartTime.Format(time.RFC3339), f.Samples)
}

// StartFlight records a new active flight and returns its id.
func (db *DB) StartFlight(name string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO flights (id, name, start_time, status) VALUES (?, ?, ?, ?)`,
		id, name, db.now(), FlightActive,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start flight: %w", err)
	}
	return id, nil
}

// EndFlight marks a flight completed. Ending a completed flight is a no-op.
func (db *DB) EndFlight(id string) error {
	res, err := db.Exec(
		`UPDATE flights SET end_time = ?, status = ? WHERE id = ? AND end_time IS NULL`,
		db.now(), FlightCompleted, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end flight: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.Flight(id); err != nil {
			return err
		}
	}
	return nil
}

const flightColumns = `f.id, f.name, f.start_time, f.end_time, f.status,
	(SELECT COUNT(*) FROM telemetry_logs t WHERE t.flight_id = f.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanFlight(row scanner) (Flight, error) {
	var (
		f         Flight
		startTime string
		endTime   sql.NullString
	)
	if err := row.Scan(&f.ID, &f.Name, &startTime, &endTime, &f.Status, &f.Samples); err != nil {
		return Flight{}, err
	}
	var err error
	if f.StartTime, err = parseTime(startTime); err != nil {
		return Flight{}, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if endTime.Valid {
		t, err := parseTime(endTime.String)
		if err != nil {
			return Flight{}, fmt.Errorf("failed to parse end_time: %w", err)
		}
		f.EndTime = &t
	}
	return f, nil
}

// Flight returns one flight by id.
func (db *DB) Flight(id string) (Flight, error) {
	row := db.QueryRow(`SELECT `+flightColumns+` FROM flights f WHERE f.id = ?`, id)
	f, err := scanFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Flight{}, fmt.Errorf("%w: %s", ErrFlightNotFound, id)
	}
	return f, err
}

// Flights returns flights newest first.
func (db *DB) Flights(limit int) ([]Flight, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+flightColumns+` FROM flights f ORDER BY f.start_time DESC, f.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := []Flight{}
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return flights, nil
}

// TelemetryLog is a stored telemetry record.
type TelemetryLog struct {
	ID        int64            `json:"id"`
	FlightID  string           `json:"flight_id"`
	Timestamp time.Time        `json:"timestamp"`
	Record    telemetry.Record `json:"data"`
}

// LogTelemetry stores rec as JSON under flightID.
func (db *DB) LogTelemetry(flightID string, rec telemetry.Record) error {
	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode telemetry: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO telemetry_logs (flight_id, timestamp, data) VALUES (?, ?, ?)`,
		flightID, db.now(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to log telemetry: %w", err)
	}
	return nil
}

// LogsForFlight returns the telemetry of a flight in arrival order. A limit
// of zero returns every row.
func (db *DB) LogsForFlight(flightID string, limit int) ([]TelemetryLog, error) {
	if _, err := db.Flight(flightID); err != nil {
		return nil, err
	}

	query := `SELECT id, flight_id, timestamp, data FROM telemetry_logs WHERE flight_id = ? ORDER BY id`
	args := []any{flightID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []TelemetryLog{}
	for rows.Next() {
		var (
			l         TelemetryLog
			timestamp string
			data      string
		)
		if err := rows.Scan(&l.ID, &l.FlightID, &timestamp, &data); err != nil {
			return nil, err
		}
		if l.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		if l.Record, err = telemetry.ParseLine(data); err != nil {
			return nil, fmt.Errorf("log %d: %w", l.ID, err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
