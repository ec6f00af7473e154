package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest, "bad"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, "gone"},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "busy") }, http.StatusConflict, "busy"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "unplugged") }, http.StatusServiceUnavailable, "unplugged"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.msg {
				t.Errorf("error = %q, want %q", body["error"], tt.msg)
			}
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"records": 3})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"records":3}` {
		t.Errorf("body = %s", got)
	}
}

func TestMockHTTPClient(t *testing.T) {
	m := NewMockHTTPClient().
		AddResponse(http.StatusCreated, `{"ok":true}`).
		AddErrorResponse(errors.New("refused"))

	req, _ := http.NewRequest(http.MethodPost, "http://x/api/connect", strings.NewReader(`{"port":"/dev/ttyUSB0"}`))
	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://x/api/status", nil)
	if _, err := m.Do(req); err == nil {
		t.Error("expected queued error")
	}

	resp, err = m.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Errorf("default response = %v, %v", resp, err)
	}

	if m.RequestCount() != 3 {
		t.Errorf("RequestCount() = %d", m.RequestCount())
	}
	first, body := m.Request(0)
	if first.URL.Path != "/api/connect" || body != `{"port":"/dev/ttyUSB0"}` {
		t.Errorf("request 0 = %s %q", first.URL.Path, body)
	}
	if r, _ := m.Request(9); r != nil {
		t.Error("out of range request should be nil")
	}
}
