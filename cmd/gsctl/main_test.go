package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/humbaba/groundstation/internal/api"
	"github.com/humbaba/groundstation/internal/httputil"
)

func TestStatusCommand(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK,
		`{"state":"connected","port":"/dev/ttyUSB0","team_id":5,"counter":17,"records":40,"malformed":2,"packets_sent":38,"write_errors":0,"dropped":0,"message":"Connected to /dev/ttyUSB0"}`)
	var out bytes.Buffer

	if err := runCommand(context.Background(), api.NewClient("http://gs", mock), "status", nil, &out); err != nil {
		t.Fatalf("runCommand() error = %v", err)
	}
	for _, want := range []string{"connected", "/dev/ttyUSB0", "40 (2 malformed)", "38 sent"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestConnectCommandSendsFlags(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{"state":"connected"}`)
	var out bytes.Buffer

	err := runCommand(context.Background(), api.NewClient("http://gs", mock), "connect",
		[]string{"-port", "/dev/ttyACM0", "-team", "0"}, &out)
	if err != nil {
		t.Fatalf("runCommand() error = %v", err)
	}
	_, body := mock.Request(0)
	if !strings.Contains(body, `"team_id":0`) || !strings.Contains(body, `"port":"/dev/ttyACM0"`) {
		t.Errorf("unexpected connect body %s", body)
	}
	if strings.Contains(body, "baud_rate") {
		t.Errorf("zero baud should be omitted: %s", body)
	}
}

func TestFakeCommand(t *testing.T) {
	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"state":"disconnected","fake_running":true}`).
		AddResponse(http.StatusConflict, `{"error":"busy"}`)
	c := api.NewClient("http://gs", mock)
	var out bytes.Buffer

	if err := runCommand(context.Background(), c, "fake", []string{"start"}, &out); err != nil {
		t.Fatalf("fake start error = %v", err)
	}
	req, _ := mock.Request(0)
	if req.URL.Path != "/api/fake/start" {
		t.Errorf("path = %q", req.URL.Path)
	}

	err := runCommand(context.Background(), c, "fake", []string{"stop"}, &out)
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 api error, got %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	c := api.NewClient("http://gs", httputil.NewMockHTTPClient())
	for _, tc := range []struct {
		cmd  string
		args []string
	}{
		{"frobnicate", nil},
		{"fake", nil},
		{"fake", []string{"pause"}},
		{"logs", nil},
		{"connect", []string{"-nope"}},
	} {
		err := runCommand(context.Background(), c, tc.cmd, tc.args, &bytes.Buffer{})
		if !errors.Is(err, errUsage) {
			t.Errorf("%s %v: expected usage error, got %v", tc.cmd, tc.args, err)
		}
	}
}

func TestLogsCommand(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK,
		`[{"id":1,"flight_id":"f1","timestamp":"2025-04-12T09:30:00Z","data":{"irtifa":12.5,"durum":3}}]`)
	var out bytes.Buffer

	if err := runCommand(context.Background(), api.NewClient("http://gs", mock), "logs", []string{"f1"}, &out); err != nil {
		t.Fatalf("runCommand() error = %v", err)
	}
	if !strings.Contains(out.String(), `"irtifa":12.5`) {
		t.Errorf("unexpected output %s", out.String())
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, "timestamp,irtifa\n2025-04-12T09:30:00Z,12.5\n").
		AddResponse(http.StatusOK, "timestamp,irtifa\n")
	c := api.NewClient("http://gs", mock)
	var out bytes.Buffer

	target := filepath.Join(dir, "f1.csv")
	if err := runCommand(context.Background(), c, "export", []string{"-o", target, "f1"}, &out); err != nil {
		t.Fatalf("export error = %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "12.5") {
		t.Errorf("unexpected export %q", data)
	}
	req, _ := mock.Request(0)
	if req.URL.Path != "/api/flights/f1/export" {
		t.Errorf("path = %q", req.URL.Path)
	}

	out.Reset()
	if err := runCommand(context.Background(), c, "export", []string{"-o", "-", "f1"}, &out); err != nil {
		t.Fatalf("export to stdout error = %v", err)
	}
	if out.String() != "timestamp,irtifa\n" {
		t.Errorf("stdout export = %q", out.String())
	}
}

func TestExportRejectsOutsidePath(t *testing.T) {
	t.Chdir(t.TempDir())
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, "timestamp\n")

	err := runCommand(context.Background(), api.NewClient("http://gs", mock), "export", []string{"-o", "/etc/f1.csv", "f1"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected path validation error")
	}
	if _, statErr := os.Stat("/etc/f1.csv"); statErr == nil {
		t.Error("file written outside allowed directories")
	}
}

func TestSummaryCommand(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK,
		`{"id":"f1","name":"/dev/ttyUSB0","start_time":"2025-04-12T09:30:00Z","status":"completed","samples":3,"apogee":300,"apogee_at":"2025-04-12T09:30:02Z","mean_altitude":200,"altitude_stddev":100,"max_accel":9.8,"duration_sec":2,"last_status":3}`)
	var out bytes.Buffer

	if err := runCommand(context.Background(), api.NewClient("http://gs", mock), "summary", []string{"f1"}, &out); err != nil {
		t.Fatalf("summary error = %v", err)
	}
	for _, want := range []string{"300.00 m", "200.00 ± 100.00", "3 over 2.0s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
