package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/humbaba/groundstation/internal/db"
	"github.com/humbaba/groundstation/internal/httputil"
	"github.com/humbaba/groundstation/internal/pipeline"
	"github.com/humbaba/groundstation/internal/serialmux"
)

// Error is a non-2xx answer from the station.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Client talks to a running station's control API.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the station at baseURL
// (e.g. "http://localhost:8080"). A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeError turns a failed response into an *Error, preferring the
// {"error": ...} body the server writes.
func (c *Client) decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	apiErr := &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}

func (c *Client) Status(ctx context.Context) (pipeline.Status, error) {
	var st pipeline.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

func (c *Client) Ports(ctx context.Context) ([]serialmux.PortInfo, error) {
	var ports []serialmux.PortInfo
	err := c.do(ctx, http.MethodGet, "/api/ports", nil, &ports)
	return ports, err
}

func (c *Client) Connect(ctx context.Context, req ConnectRequest) (pipeline.Status, error) {
	var st pipeline.Status
	err := c.do(ctx, http.MethodPost, "/api/connect", req, &st)
	return st, err
}

func (c *Client) Disconnect(ctx context.Context) (pipeline.Status, error) {
	var st pipeline.Status
	err := c.do(ctx, http.MethodPost, "/api/disconnect", nil, &st)
	return st, err
}

func (c *Client) StartFake(ctx context.Context) (pipeline.Status, error) {
	var st pipeline.Status
	err := c.do(ctx, http.MethodPost, "/api/fake/start", nil, &st)
	return st, err
}

func (c *Client) StopFake(ctx context.Context) (pipeline.Status, error) {
	var st pipeline.Status
	err := c.do(ctx, http.MethodPost, "/api/fake/stop", nil, &st)
	return st, err
}

func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var v VersionInfo
	err := c.do(ctx, http.MethodGet, "/api/version", nil, &v)
	return v, err
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}

func (c *Client) Flights(ctx context.Context, limit int) ([]db.Flight, error) {
	var flights []db.Flight
	err := c.do(ctx, http.MethodGet, "/api/flights"+limitQuery(limit), nil, &flights)
	return flights, err
}

func (c *Client) FlightLogs(ctx context.Context, flightID string, limit int) ([]db.TelemetryLog, error) {
	var logs []db.TelemetryLog
	path := "/api/flights/" + url.PathEscape(flightID) + "/logs" + limitQuery(limit)
	err := c.do(ctx, http.MethodGet, path, nil, &logs)
	return logs, err
}

func (c *Client) FlightSummary(ctx context.Context, flightID string) (db.FlightSummary, error) {
	var summary db.FlightSummary
	err := c.do(ctx, http.MethodGet, "/api/flights/"+url.PathEscape(flightID)+"/summary", nil, &summary)
	return summary, err
}

// ExportCSV streams a flight's CSV export into w and returns the file name
// the station suggested.
func (c *Client) ExportCSV(ctx context.Context, flightID string, w io.Writer) (string, error) {
	path := "/api/flights/" + url.PathEscape(flightID) + "/export"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", c.decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read export: %w", err)
	}
	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return name, nil
}
