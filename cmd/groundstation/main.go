package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/humbaba/groundstation/internal/api"
	"github.com/humbaba/groundstation/internal/config"
	"github.com/humbaba/groundstation/internal/db"
	"github.com/humbaba/groundstation/internal/ipc"
	"github.com/humbaba/groundstation/internal/monitoring"
	"github.com/humbaba/groundstation/internal/pipeline"
	"github.com/humbaba/groundstation/internal/serialmux"
	"github.com/humbaba/groundstation/internal/version"
)

func main() {
	opts, fs, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	if opts.version {
		fmt.Println(version.String())
		return
	}
	if opts.listPorts {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		return
	}

	cfg, err := opts.loadConfig(fs)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, cfg); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

func printPorts(w io.Writer) error {
	ports, err := serialmux.ListPorts()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tUSB\tVID:PID\tSERIAL")
	for _, p := range ports {
		id := ""
		if p.IsUSB {
			id = p.VID + ":" + p.PID
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", p.Path, p.FriendlyName, p.IsUSB, id, p.SerialNumber)
	}
	return tw.Flush()
}

func run(ctx context.Context, opts *options, cfg *config.StationConfig) error {
	level := monitoring.ParseLevel(cfg.GetLogLevel())
	logger := monitoring.NewLogger("station", level)
	logger.Infof("starting %s", version.String())

	var (
		recorder pipeline.Recorder = pipeline.NopRecorder{}
		store    api.FlightStore
		database *db.DB
	)
	if !opts.noDB {
		var err error
		database, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			return fmt.Errorf("failed to open flight database: %w", err)
		}
		defer database.Close()
		recorder = database
		store = database
		logger.Infof("logging flights to %s", database.Path())
	}

	presenters := pipeline.Presenters{ipc.NewLogPresenter(monitoring.NewLogger("telemetry", level))}
	if addr := cfg.GetRedisAddr(); addr != "" {
		client, err := ipc.Dial(ctx, addr, cfg.GetRedisDB())
		if err != nil {
			// the station still works without the live display
			logger.Warnf("live display disabled: %v", err)
		} else {
			defer client.Close()
			presenters = append(presenters, ipc.NewRedisPresenter(monitoring.NewLogger("redis", level), client, cfg.GetRedisPrefix()))
			logger.Infof("publishing to redis %s under %q", addr, cfg.GetRedisPrefix())
		}
	}

	hub := serialmux.NewHub()
	defer hub.CloseAll()
	serialLog := monitoring.NewLogger("serial", level)
	opener := serialmux.NewOpener(serialmux.WithHub(hub), serialmux.WithLogger(serialLog))
	if opts.replay != "" {
		var err error
		if opener, err = replayOpener(opts.replay, opts.replayInterval, hub, serialLog); err != nil {
			return err
		}
	}

	pipe := pipeline.New(pipeline.Config{
		PortOptions: serialmux.PortOptions{
			BaudRate:    cfg.GetBaudRate(),
			DataBits:    cfg.GetDataBits(),
			StopBits:    cfg.GetStopBits(),
			Parity:      cfg.GetParity(),
			ReadTimeout: cfg.GetReadTimeout(),
		},
		FakeInterval: cfg.GetFakeInterval(),
		FakeSeed:     cfg.GetFakeSeed(),
		QueueSize:    cfg.GetDispatchQueue(),
	}, pipeline.Deps{
		Opener:    opener,
		Recorder:  recorder,
		Presenter: presenters,
		Logger:    monitoring.NewLogger("pipeline", level),
	})
	defer func() {
		if err := pipe.Close(); err != nil {
			logger.Warnf("pipeline close: %v", err)
		}
	}()

	switch {
	case opts.fake:
		if err := pipe.StartFakeTelemetry(ctx); err != nil {
			logger.Errorf("failed to start fake telemetry: %v", err)
		}
	case opts.connect || opts.replay != "":
		if err := pipe.Connect(ctx, cfg.GetSerialPort(), byte(cfg.GetTeamID()), 0); err != nil {
			logger.Errorf("failed to connect to %s: %v", cfg.GetSerialPort(), err)
		}
	}

	mux := http.NewServeMux()
	api.NewServer(pipe, store, cfg.GetSerialPort(), cfg.GetTeamID()).Attach(mux)
	hub.AttachAdminRoutes(mux, serialmux.FrameWriterFunc(pipe.WriteRaw))
	if database != nil {
		database.AttachAdminRoutes(mux)
	}

	server := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Infof("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			logger.Warnf("HTTP server force close error: %v", err)
		}
	}
	wg.Wait()
	return nil
}
