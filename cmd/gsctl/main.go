package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/humbaba/groundstation/internal/api"
	"github.com/humbaba/groundstation/internal/pipeline"
	"github.com/humbaba/groundstation/internal/security"
)

var errUsage = errors.New("usage")

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Ground station address")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := api.NewClient(*addr, nil)
	err := runCommand(ctx, client, flag.Arg(0), flag.Args()[1:], os.Stdout)
	if errors.Is(err, errUsage) {
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gsctl - control a running ground station

Usage: gsctl [--addr URL] <command> [options]

Commands:
  status                 Show link state and counters
  ports                  List serial ports on the station host
  connect                Connect to the rocket link
                         --port <path> --team <id> --baud <rate>
  disconnect             Close the link
  fake start|stop        Toggle synthetic telemetry
  flights [--limit n]    List recorded flights, newest first
  logs <flight-id>       Print a flight's telemetry as JSON lines
  summary <flight-id>    Show apogee and altitude statistics
  export [-o file] <flight-id>
                         Download a flight as CSV
  version                Show the station version`)
}

func runCommand(ctx context.Context, c *api.Client, command string, args []string, out io.Writer) error {
	switch command {
	case "status":
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(out, st)
	case "ports":
		ports, err := c.Ports(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tNAME\tUSB")
		for _, p := range ports {
			fmt.Fprintf(tw, "%s\t%s\t%t\n", p.Path, p.FriendlyName, p.IsUSB)
		}
		return tw.Flush()
	case "connect":
		fs := flag.NewFlagSet("connect", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		port := fs.String("port", "", "Serial port (station default when empty)")
		team := fs.Int("team", -1, "Team id (station default when negative)")
		baud := fs.Int("baud", 0, "Baud rate (station default when zero)")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		req := api.ConnectRequest{Port: *port, BaudRate: *baud}
		if *team >= 0 {
			req.TeamID = team
		}
		st, err := c.Connect(ctx, req)
		if err != nil {
			return err
		}
		printStatus(out, st)
	case "disconnect":
		st, err := c.Disconnect(ctx)
		if err != nil {
			return err
		}
		printStatus(out, st)
	case "fake":
		if len(args) != 1 {
			return errUsage
		}
		var (
			st  pipeline.Status
			err error
		)
		switch args[0] {
		case "start":
			st, err = c.StartFake(ctx)
		case "stop":
			st, err = c.StopFake(ctx)
		default:
			return errUsage
		}
		if err != nil {
			return err
		}
		printStatus(out, st)
	case "flights":
		fs := flag.NewFlagSet("flights", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		limit := fs.Int("limit", 20, "Maximum flights to list")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		flights, err := c.Flights(ctx, *limit)
		if err != nil {
			return err
		}
		for i := range flights {
			fmt.Fprintln(out, flights[i].String())
		}
	case "logs":
		if len(args) != 1 {
			return errUsage
		}
		logs, err := c.FlightLogs(ctx, args[0], 0)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		for _, l := range logs {
			if err := enc.Encode(l); err != nil {
				return err
			}
		}
	case "summary":
		if len(args) != 1 {
			return errUsage
		}
		sum, err := c.FlightSummary(ctx, args[0])
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "flight\t%s (%s)\n", sum.ID, sum.Name)
		fmt.Fprintf(tw, "samples\t%d over %.1fs\n", sum.Samples, sum.DurationSec)
		fmt.Fprintf(tw, "apogee\t%.2f m\n", sum.Apogee)
		if sum.ApogeeAt != nil {
			fmt.Fprintf(tw, "apogee at\t%s\n", sum.ApogeeAt.Format(time.RFC3339))
		}
		fmt.Fprintf(tw, "altitude\t%.2f ± %.2f m\n", sum.MeanAltitude, sum.AltitudeStdDev)
		fmt.Fprintf(tw, "max accel\t%.2f m/s²\n", sum.MaxAccel)
		fmt.Fprintf(tw, "last status\t%d\n", sum.LastStatus)
		return tw.Flush()
	case "export":
		fs := flag.NewFlagSet("export", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		output := fs.String("o", "", "Output file (station-suggested name when empty, - for stdout)")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if fs.NArg() != 1 {
			return errUsage
		}
		return exportFlight(ctx, c, fs.Arg(0), *output, out)
	case "version":
		v, err := c.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "groundstation %s (%s, built %s)\n", v.Version, v.GitSHA, v.BuildTime)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
	return nil
}

func printStatus(out io.Writer, st pipeline.Status) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "state\t%s\n", st.State)
	fmt.Fprintf(tw, "fake\t%t\n", st.FakeRunning)
	if st.Port != "" {
		fmt.Fprintf(tw, "port\t%s\n", st.Port)
	}
	fmt.Fprintf(tw, "team\t%d\n", st.TeamID)
	fmt.Fprintf(tw, "counter\t%d\n", st.Counter)
	if st.FlightID != "" {
		fmt.Fprintf(tw, "flight\t%s\n", st.FlightID)
	}
	fmt.Fprintf(tw, "records\t%d (%d malformed)\n", st.Records, st.Malformed)
	fmt.Fprintf(tw, "packets\t%d sent, %d failed\n", st.PacketsSent, st.WriteErrors)
	if st.Dropped > 0 {
		fmt.Fprintf(tw, "dropped\t%d\n", st.Dropped)
	}
	if st.LastError != "" {
		fmt.Fprintf(tw, "error\t%s\n", st.LastError)
	}
	fmt.Fprintf(tw, "message\t%s\n", st.Message)
	tw.Flush()
}

// exportFlight downloads the CSV into memory first so a failed request never
// leaves a partial file behind.
func exportFlight(ctx context.Context, c *api.Client, flightID, output string, out io.Writer) error {
	var buf bytes.Buffer
	name, err := c.ExportCSV(ctx, flightID, &buf)
	if err != nil {
		return err
	}
	if output == "-" {
		_, err := buf.WriteTo(out)
		return err
	}
	if output == "" {
		output = security.SanitizeFilename(name)
	}
	if err := security.ValidateExportPath(output); err != nil {
		return err
	}
	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(out, "wrote %s (%d bytes)\n", output, buf.Len())
	return nil
}
