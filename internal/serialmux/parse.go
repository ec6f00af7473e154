package serialmux

import (
	"strings"

	"github.com/humbaba/groundstation/internal/telemetry"
)

const (
	LineTypeTelemetry = "telemetry"
	LineTypeLog       = "log"
	LineTypeEmpty     = "empty"
)

// ClassifyLine returns a coarse type for a line read from the flight
// computer. Anything carrying a JSON object is telemetry; the firmware's
// other chatter is log output.
func ClassifyLine(line string) string {
	if strings.TrimSpace(line) == "" {
		return LineTypeEmpty
	}
	if _, ok := telemetry.ExtractJSON(line); ok {
		return LineTypeTelemetry
	}
	return LineTypeLog
}
