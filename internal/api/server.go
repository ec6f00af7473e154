// Package api exposes the operator controls over HTTP: port discovery,
// connect/disconnect, the fake telemetry switch, status and flight history.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/humbaba/groundstation/internal/db"
	"github.com/humbaba/groundstation/internal/httputil"
	"github.com/humbaba/groundstation/internal/pipeline"
	"github.com/humbaba/groundstation/internal/serialmux"
	"github.com/humbaba/groundstation/internal/version"
)

// Controller is the part of the pipeline the API drives.
type Controller interface {
	ListPorts() ([]serialmux.PortInfo, error)
	Connect(ctx context.Context, port string, teamID byte, baud int) error
	Disconnect() error
	StartFakeTelemetry(ctx context.Context) error
	StopFakeTelemetry() error
	Status() pipeline.Status
}

// FlightStore reads recorded flights.
type FlightStore interface {
	Flights(limit int) ([]db.Flight, error)
	LogsForFlight(flightID string, limit int) ([]db.TelemetryLog, error)
	Summary(flightID string) (db.FlightSummary, error)
	ExportCSV(flightID string, w io.Writer) (db.Flight, error)
}

// ConnectRequest is the body of POST /api/connect. Omitted fields fall back
// to the station configuration.
type ConnectRequest struct {
	Port     string `json:"port"`
	TeamID   *int   `json:"team_id,omitempty"`
	BaudRate int    `json:"baud_rate,omitempty"`
}

// VersionInfo is returned by GET /api/version.
type VersionInfo struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

type Server struct {
	ctl         Controller
	flights     FlightStore
	defaultPort string
	defaultTeam int
}

// NewServer returns a Server. flights may be nil when persistence is off.
func NewServer(ctl Controller, flights FlightStore, defaultPort string, defaultTeam int) *Server {
	return &Server{
		ctl:         ctl,
		flights:     flights,
		defaultPort: defaultPort,
		defaultTeam: defaultTeam,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Attach(mux)
	return mux
}

// Attach registers the API routes on mux.
func (s *Server) Attach(mux *http.ServeMux) {
	mux.HandleFunc("/api/ports", s.listPorts)
	mux.HandleFunc("/api/connect", s.connect)
	mux.HandleFunc("/api/disconnect", s.disconnect)
	mux.HandleFunc("/api/fake/start", s.startFake)
	mux.HandleFunc("/api/fake/stop", s.stopFake)
	mux.HandleFunc("/api/status", s.status)
	mux.HandleFunc("/api/version", s.version)
	mux.HandleFunc("GET /api/flights", s.listFlights)
	mux.HandleFunc("GET /api/flights/{id}/logs", s.flightLogs)
	mux.HandleFunc("GET /api/flights/{id}/summary", s.flightSummary)
	mux.HandleFunc("GET /api/flights/{id}/export", s.flightExport)
}

// writeControlError maps pipeline errors onto status codes.
func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, pipeline.ErrNotConnected):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, serialmux.ErrDeviceUnavailable):
		httputil.ServiceUnavailable(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusRequestTimeout, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) listPorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ports, err := s.ctl.ListPorts()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to enumerate serial ports: %v", err))
		return
	}
	httputil.WriteJSONOK(w, ports)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req ConnectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}
	if req.Port == "" {
		req.Port = s.defaultPort
	}
	if req.Port == "" {
		httputil.BadRequest(w, "port is required")
		return
	}
	teamID := s.defaultTeam
	if req.TeamID != nil {
		teamID = *req.TeamID
	}
	if teamID < 0 || teamID > 255 {
		httputil.BadRequest(w, fmt.Sprintf("team_id must be between 0 and 255, got %d", teamID))
		return
	}
	if req.BaudRate < 0 {
		httputil.BadRequest(w, fmt.Sprintf("baud_rate must be positive, got %d", req.BaudRate))
		return
	}

	if err := s.ctl.Connect(r.Context(), req.Port, byte(teamID), req.BaudRate); err != nil {
		writeControlError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Status())
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.ctl.Disconnect(); err != nil {
		writeControlError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Status())
}

func (s *Server) startFake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.ctl.StartFakeTelemetry(r.Context()); err != nil {
		writeControlError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Status())
}

func (s *Server) stopFake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.ctl.StopFakeTelemetry(); err != nil {
		writeControlError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Status())
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Status())
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, VersionInfo{
		Version:   version.Version,
		GitSHA:    version.GitSHA,
		BuildTime: version.BuildTime,
	})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

func (s *Server) listFlights(w http.ResponseWriter, r *http.Request) {
	if s.flights == nil {
		httputil.NotFound(w, "flight logging is disabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	flights, err := s.flights.Flights(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list flights: %v", err))
		return
	}
	httputil.WriteJSONOK(w, flights)
}

func (s *Server) flightLogs(w http.ResponseWriter, r *http.Request) {
	if s.flights == nil {
		httputil.NotFound(w, "flight logging is disabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	logs, err := s.flights.LogsForFlight(r.PathValue("id"), limit)
	if errors.Is(err, db.ErrFlightNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read flight logs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, logs)
}

func (s *Server) flightSummary(w http.ResponseWriter, r *http.Request) {
	if s.flights == nil {
		httputil.NotFound(w, "flight logging is disabled")
		return
	}
	summary, err := s.flights.Summary(r.PathValue("id"))
	if errors.Is(err, db.ErrFlightNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to summarise flight: %v", err))
		return
	}
	httputil.WriteJSONOK(w, summary)
}

// flightExport buffers the CSV so a failure can still be reported as JSON.
func (s *Server) flightExport(w http.ResponseWriter, r *http.Request) {
	if s.flights == nil {
		httputil.NotFound(w, "flight logging is disabled")
		return
	}
	var buf bytes.Buffer
	f, err := s.flights.ExportCSV(r.PathValue("id"), &buf)
	if errors.Is(err, db.ErrFlightNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to export flight: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", db.ExportFileName(f)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
