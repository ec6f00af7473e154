package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humbaba/groundstation/internal/hyi"
	"github.com/humbaba/groundstation/internal/monitoring"
	"github.com/humbaba/groundstation/internal/pipeline"
	"github.com/humbaba/groundstation/internal/telemetry"
)

type published struct {
	channel string
	message interface{}
}

type fakeRedis struct {
	mu        sync.Mutex
	hashes    map[string]map[string]interface{}
	published []published
	err       error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: make(map[string]map[string]interface{})}
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]interface{})
		f.hashes[key] = h
	}
	for _, v := range values {
		if m, ok := v.(map[string]interface{}); ok {
			for k, val := range m {
				h[k] = val
			}
		}
	}
	cmd.SetVal(int64(len(h)))
	return cmd
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.published = append(f.published, published{channel, message})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func TestRedisPresenterTelemetry(t *testing.T) {
	fake := newFakeRedis()
	tx := NewRedisPresenter(monitoring.Discard, fake, "groundstation")
	tx.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	rec := telemetry.Record{Altitude: 1500.5, Latitude: 39.9254, Status: 2}
	require.NoError(t, tx.SendTelemetry(rec))

	h := fake.hashes["groundstation:telemetry"]
	require.NotNil(t, h)
	assert.Equal(t, 1500.5, h[telemetry.FieldAltitude])
	assert.Equal(t, 2, h[telemetry.FieldStatus])
	assert.Equal(t, "2025-06-01T12:00:00Z", h["updated_at"])

	require.Len(t, fake.published, 1)
	assert.Equal(t, "groundstation:telemetry", fake.published[0].channel)
	payload, ok := fake.published[0].message.([]byte)
	require.True(t, ok)
	decoded, err := telemetry.ParseLine(string(payload))
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestRedisPresenterStatus(t *testing.T) {
	fake := newFakeRedis()
	tx := NewRedisPresenter(monitoring.Discard, fake, "gs")

	st := pipeline.Status{State: "connected", Port: "/dev/ttyUSB0", TeamID: 7, Counter: 3, Message: "Connected to /dev/ttyUSB0"}
	require.NoError(t, tx.SendStatus(st))

	h := fake.hashes["gs:status"]
	assert.Equal(t, "connected", h["state"])
	assert.Equal(t, "off", h["fake"])
	assert.Equal(t, 7, h["team-id"])

	require.Len(t, fake.published, 1)
	assert.Equal(t, "gs:status", fake.published[0].channel)
	var got pipeline.Status
	require.NoError(t, json.Unmarshal(fake.published[0].message.([]byte), &got))
	assert.Equal(t, st, got)
}

func TestRedisPresenterPacket(t *testing.T) {
	fake := newFakeRedis()
	tx := NewRedisPresenter(monitoring.Discard, fake, "gs")

	pkt := hyi.EncodePacket(1, 2, [hyi.FloatSlots]float32{}, 0)
	tx.ShowPacketSent(pkt)

	require.Len(t, fake.published, 1)
	assert.Equal(t, "gs:packets", fake.published[0].channel)
	assert.Equal(t, pkt.Hex(), fake.published[0].message)
	assert.True(t, strings.HasPrefix(pkt.Hex(), "ffff5452"))
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) add(level, format string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, level+" "+format)
}

func (c *captureLogger) Debugf(format string, v ...interface{}) { c.add("debug", format) }
func (c *captureLogger) Infof(format string, v ...interface{})  { c.add("info", format) }
func (c *captureLogger) Warnf(format string, v ...interface{})  { c.add("warn", format) }
func (c *captureLogger) Errorf(format string, v ...interface{}) { c.add("error", format) }

func TestRedisPresenterReportsFailureOnce(t *testing.T) {
	fake := newFakeRedis()
	logger := &captureLogger{}
	tx := NewRedisPresenter(logger, fake, "gs")

	fake.setErr(errors.New("connection refused"))
	assert.Error(t, tx.SendTelemetry(telemetry.Record{}))
	for i := 0; i < 5; i++ {
		tx.ShowTelemetry(telemetry.Record{})
	}
	fake.setErr(nil)
	tx.ShowTelemetry(telemetry.Record{})
	tx.ShowTelemetry(telemetry.Record{})

	require.Len(t, logger.lines, 2)
	assert.True(t, strings.HasPrefix(logger.lines[0], "warn"))
	assert.True(t, strings.HasPrefix(logger.lines[1], "info"))
}

func TestPresentersFanOut(t *testing.T) {
	a, b := newFakeRedis(), newFakeRedis()
	ps := pipeline.Presenters{
		NewRedisPresenter(monitoring.Discard, a, "a"),
		NewRedisPresenter(monitoring.Discard, b, "b"),
		NewLogPresenter(monitoring.Discard),
	}
	ps.ShowTelemetry(telemetry.Record{Altitude: 1})
	ps.ShowStatus(pipeline.Status{State: "disconnected"})
	ps.ShowPacketSent(hyi.Packet{})

	assert.Len(t, a.published, 3)
	assert.Len(t, b.published, 3)
}

func TestLogPresenter(t *testing.T) {
	logger := &captureLogger{}
	p := NewLogPresenter(logger)
	p.ShowTelemetry(telemetry.Record{})
	p.ShowStatus(pipeline.Status{})
	p.ShowPacketSent(hyi.Packet{})

	require.Len(t, logger.lines, 3)
	assert.True(t, strings.HasPrefix(logger.lines[2], "debug"))
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// port 1 on loopback refuses connections
	_, err := Dial(ctx, "127.0.0.1:1", 0)
	assert.Error(t, err)
}
