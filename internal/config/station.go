package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExampleConfigPath is the documented sample configuration in the repo.
const ExampleConfigPath = "config/groundstation.example.json"

// Defaults applied when a field is absent from the file and not set by flag.
const (
	DefaultSerialPort    = "/dev/ttyUSB0"
	DefaultBaudRate      = 9600
	DefaultReadTimeout   = time.Second
	DefaultTeamID        = 1
	DefaultDBPath        = "flight_logs.db"
	DefaultListen        = ":8080"
	DefaultRedisPrefix   = "groundstation"
	DefaultFakeInterval  = time.Second
	DefaultDispatchQueue = 256
)

// StationConfig is the ground station configuration file. Every field is
// optional; the Get* methods supply defaults so partial files are safe.
type StationConfig struct {
	// Serial link shared by the rocket telemetry and the judge station.
	SerialPort  *string `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty" yaml:"parity,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"` // duration string like "1s"

	// Competition-assigned team number embedded in every judge frame.
	TeamID *int `json:"team_id,omitempty" yaml:"team_id,omitempty"`

	DBPath *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Listen *string `json:"listen,omitempty" yaml:"listen,omitempty"`

	// Presentation publisher; empty address disables it.
	RedisAddr   *string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisDB     *int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	RedisPrefix *string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`

	FakeInterval  *string `json:"fake_interval,omitempty" yaml:"fake_interval,omitempty"`
	FakeSeed      *uint64 `json:"fake_seed,omitempty" yaml:"fake_seed,omitempty"`
	DispatchQueue *int    `json:"dispatch_queue,omitempty" yaml:"dispatch_queue,omitempty"`
	LogLevel      *string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// EmptyStationConfig returns a StationConfig with all fields set to nil.
func EmptyStationConfig() *StationConfig {
	return &StationConfig{}
}

// LoadStationConfig loads a StationConfig from a .json, .yaml or .yml file.
// The file must be under the max file size and pass Validate.
func LoadStationConfig(path string) (*StationConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyStationConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *StationConfig) Validate() error {
	if c.TeamID != nil && (*c.TeamID < 0 || *c.TeamID > 255) {
		return fmt.Errorf("team_id must be between 0 and 255, got %d", *c.TeamID)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.DataBits != nil && (*c.DataBits < 5 || *c.DataBits > 8) {
		return fmt.Errorf("data_bits must be between 5 and 8, got %d", *c.DataBits)
	}
	if c.StopBits != nil && *c.StopBits != 1 && *c.StopBits != 2 {
		return fmt.Errorf("stop_bits must be 1 or 2, got %d", *c.StopBits)
	}
	if c.Parity != nil {
		switch strings.ToUpper(strings.TrimSpace(*c.Parity)) {
		case "", "N", "NONE", "E", "EVEN", "O", "ODD":
		default:
			return fmt.Errorf("unsupported parity %q: expected N, E, or O", *c.Parity)
		}
	}
	for name, v := range map[string]*string{
		"read_timeout":  c.ReadTimeout,
		"fake_interval": c.FakeInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	if c.DispatchQueue != nil && *c.DispatchQueue <= 0 {
		return fmt.Errorf("dispatch_queue must be positive, got %d", *c.DispatchQueue)
	}
	if c.RedisDB != nil && *c.RedisDB < 0 {
		return fmt.Errorf("redis_db must be non-negative, got %d", *c.RedisDB)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetSerialPort returns the serial device path or the default.
func (c *StationConfig) GetSerialPort() string { return stringOr(c.SerialPort, DefaultSerialPort) }

// GetBaudRate returns the baud rate or the default.
func (c *StationConfig) GetBaudRate() int { return intOr(c.BaudRate, DefaultBaudRate) }

// GetDataBits returns data bits, zero meaning "serial default".
func (c *StationConfig) GetDataBits() int { return intOr(c.DataBits, 0) }

// GetStopBits returns stop bits, zero meaning "serial default".
func (c *StationConfig) GetStopBits() int { return intOr(c.StopBits, 0) }

// GetParity returns the parity letter, empty meaning "serial default".
func (c *StationConfig) GetParity() string { return stringOr(c.Parity, "") }

// GetReadTimeout parses and returns the serial read timeout.
func (c *StationConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, DefaultReadTimeout)
}

// GetTeamID returns the team id or the default.
func (c *StationConfig) GetTeamID() int { return intOr(c.TeamID, DefaultTeamID) }

// GetDBPath returns the sqlite path or the default.
func (c *StationConfig) GetDBPath() string { return stringOr(c.DBPath, DefaultDBPath) }

// GetListen returns the HTTP listen address or the default.
func (c *StationConfig) GetListen() string { return stringOr(c.Listen, DefaultListen) }

// GetRedisAddr returns the redis address; empty disables publishing.
func (c *StationConfig) GetRedisAddr() string { return stringOr(c.RedisAddr, "") }

// GetRedisDB returns the redis database index.
func (c *StationConfig) GetRedisDB() int { return intOr(c.RedisDB, 0) }

// GetRedisPrefix returns the key/channel prefix for published data.
func (c *StationConfig) GetRedisPrefix() string { return stringOr(c.RedisPrefix, DefaultRedisPrefix) }

// GetFakeInterval parses and returns the synthetic telemetry cadence.
func (c *StationConfig) GetFakeInterval() time.Duration {
	return durationOr(c.FakeInterval, DefaultFakeInterval)
}

// GetFakeSeed returns the fake generator seed; zero asks for a time seed.
func (c *StationConfig) GetFakeSeed() uint64 {
	if c.FakeSeed == nil {
		return 0
	}
	return *c.FakeSeed
}

// GetDispatchQueue returns the sink queue length or the default.
func (c *StationConfig) GetDispatchQueue() int { return intOr(c.DispatchQueue, DefaultDispatchQueue) }

// GetLogLevel returns the log level string or "info".
func (c *StationConfig) GetLogLevel() string { return stringOr(c.LogLevel, "info") }
