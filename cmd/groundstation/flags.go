package main

import (
	"flag"
	"io"
	"time"

	"github.com/humbaba/groundstation/internal/config"
)

// options are the command line flags. Flags that are set explicitly win over
// the config file; unset flags leave the file (or its defaults) alone.
type options struct {
	configPath     string
	port           string
	baud           int
	team           int
	listen         string
	dbPath         string
	noDB           bool
	redisAddr      string
	logLevel       string
	fake           bool
	connect        bool
	replay         string
	replayInterval time.Duration
	listPorts      bool
	version        bool
}

func parseFlags(args []string, output io.Writer) (*options, *flag.FlagSet, error) {
	o := &options{}
	fs := flag.NewFlagSet("groundstation", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.configPath, "config", "", "Path to a station config file (.json, .yaml)")
	fs.StringVar(&o.port, "port", config.DefaultSerialPort, "Serial port shared by telemetry and the judge link")
	fs.IntVar(&o.baud, "baud", config.DefaultBaudRate, "Serial baud rate")
	fs.IntVar(&o.team, "team", config.DefaultTeamID, "Team id embedded in judge frames (0-255)")
	fs.StringVar(&o.listen, "listen", config.DefaultListen, "HTTP listen address")
	fs.StringVar(&o.dbPath, "db", config.DefaultDBPath, "Flight log database path")
	fs.BoolVar(&o.noDB, "no-db", false, "Disable flight logging")
	fs.StringVar(&o.redisAddr, "redis", "", "Redis address for the live display (empty disables)")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVar(&o.fake, "fake", false, "Start synthetic telemetry at boot")
	fs.BoolVar(&o.connect, "connect", false, "Connect to the serial port at boot")
	fs.StringVar(&o.replay, "replay", "", "Replay a captured telemetry log instead of opening a device")
	fs.DurationVar(&o.replayInterval, "replay-interval", 100*time.Millisecond, "Delay between replayed lines")
	fs.BoolVar(&o.listPorts, "list-ports", false, "List serial ports and exit")
	fs.BoolVar(&o.version, "version", false, "Print version information and exit")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return o, fs, nil
}

// apply copies explicitly set flags into cfg.
func (o *options) apply(fs *flag.FlagSet, cfg *config.StationConfig) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.SerialPort = &o.port
		case "baud":
			cfg.BaudRate = &o.baud
		case "team":
			cfg.TeamID = &o.team
		case "listen":
			cfg.Listen = &o.listen
		case "db":
			cfg.DBPath = &o.dbPath
		case "redis":
			cfg.RedisAddr = &o.redisAddr
		case "log-level":
			cfg.LogLevel = &o.logLevel
		}
	})
}

// loadConfig reads path, or returns an empty config when path is empty, then
// applies flag overrides and validates the result.
func (o *options) loadConfig(fs *flag.FlagSet) (*config.StationConfig, error) {
	cfg := config.EmptyStationConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadStationConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	o.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
