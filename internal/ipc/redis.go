// Package ipc publishes live telemetry for operator displays: a redis hash
// holding the latest sample plus pub/sub channels, and a plain log presenter.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/humbaba/groundstation/internal/hyi"
	"github.com/humbaba/groundstation/internal/monitoring"
	"github.com/humbaba/groundstation/internal/pipeline"
	"github.com/humbaba/groundstation/internal/telemetry"
)

// Publisher is the subset of *redis.Client the presenter uses.
type Publisher interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Dial connects to redis and checks the connection.
func Dial(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// RedisPresenter writes the latest sample to "<prefix>:telemetry" and the
// current status to "<prefix>:status", and publishes every event on the
// "<prefix>:telemetry", "<prefix>:status" and "<prefix>:packets" channels.
type RedisPresenter struct {
	log    monitoring.Logger
	redis  Publisher
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	failing bool
}

// NewRedisPresenter returns a presenter writing through client.
func NewRedisPresenter(logger monitoring.Logger, client Publisher, prefix string) *RedisPresenter {
	if logger == nil {
		logger = monitoring.NewLogger("redis", monitoring.LevelInfo)
	}
	return &RedisPresenter{
		log:    logger,
		redis:  client,
		prefix: prefix,
		now:    time.Now,
		ctx:    context.Background(),
	}
}

// Key returns the redis key or channel for name.
func (tx *RedisPresenter) Key(name string) string {
	return tx.prefix + ":" + name
}

// SendTelemetry updates the telemetry hash and publishes the sample.
func (tx *RedisPresenter) SendTelemetry(rec telemetry.Record) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	values := rec.Fields()
	values["updated_at"] = tx.now().UTC().Format(time.RFC3339Nano)
	if err := tx.redis.HSet(tx.ctx, tx.Key("telemetry"), values).Err(); err != nil {
		return fmt.Errorf("failed to send telemetry: %w", err)
	}

	payload, err := rec.Marshal()
	if err != nil {
		return err
	}
	if err := tx.redis.Publish(tx.ctx, tx.Key("telemetry"), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish telemetry: %w", err)
	}
	return nil
}

// SendStatus updates the status hash and publishes the full status as JSON.
func (tx *RedisPresenter) SendStatus(st pipeline.Status) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.redis.HSet(tx.ctx, tx.Key("status"), map[string]interface{}{
		"state":        st.State,
		"fake":         map[bool]string{true: "on", false: "off"}[st.FakeRunning],
		"port":         st.Port,
		"team-id":      st.TeamID,
		"counter":      st.Counter,
		"flight-id":    st.FlightID,
		"message":      st.Message,
		"packets-sent": st.PacketsSent,
	}).Err(); err != nil {
		return fmt.Errorf("failed to send status: %w", err)
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := tx.redis.Publish(tx.ctx, tx.Key("status"), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

// SendPacket publishes a judge frame as hex.
func (tx *RedisPresenter) SendPacket(pkt hyi.Packet) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.redis.Publish(tx.ctx, tx.Key("packets"), pkt.Hex()).Err(); err != nil {
		return fmt.Errorf("failed to publish packet: %w", err)
	}
	return nil
}

// report logs the first failure and the recovery, not every sample in
// between.
func (tx *RedisPresenter) report(err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	switch {
	case err != nil && !tx.failing:
		tx.failing = true
		tx.log.Warnf("redis publishing failing: %v", err)
	case err == nil && tx.failing:
		tx.failing = false
		tx.log.Infof("redis publishing recovered")
	}
}

func (tx *RedisPresenter) ShowTelemetry(rec telemetry.Record) { tx.report(tx.SendTelemetry(rec)) }
func (tx *RedisPresenter) ShowStatus(st pipeline.Status)      { tx.report(tx.SendStatus(st)) }
func (tx *RedisPresenter) ShowPacketSent(pkt hyi.Packet)      { tx.report(tx.SendPacket(pkt)) }
