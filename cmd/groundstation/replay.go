package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/humbaba/groundstation/internal/monitoring"
	"github.com/humbaba/groundstation/internal/serialmux"
)

// replayOpener returns an Opener that ignores the device path and plays the
// lines of path into a mock port, one every interval. Frames written back are
// kept by the mock and visible on the serial debug page.
func replayOpener(path string, interval time.Duration, hub *serialmux.Hub, logger monitoring.Logger) (serialmux.Opener, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), serialmux.MaxLineLength)
	for sc.Scan() {
		lines = append(lines, append(bytes.Clone(sc.Bytes()), '\n'))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan replay file: %w", err)
	}

	return func(_ string, opts serialmux.PortOptions) (serialmux.SessionInterface, error) {
		opts, err := opts.Normalize()
		if err != nil {
			return nil, err
		}
		port := serialmux.NewMockSerialPort()
		_ = port.SetReadTimeout(opts.ReadTimeout)
		go feedLines(port, lines, interval)
		return serialmux.NewSession(port,
			serialmux.WithName("replay:"+path),
			serialmux.WithHub(hub),
			serialmux.WithLogger(logger),
		), nil
	}, nil
}

func feedLines(port *serialmux.MockSerialPort, lines [][]byte, interval time.Duration) {
	for _, line := range lines {
		if port.Closed() {
			return
		}
		port.Feed(line)
		if interval > 0 {
			time.Sleep(interval)
		}
	}
}
