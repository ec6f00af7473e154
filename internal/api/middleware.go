package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/humbaba/groundstation/internal/monitoring"
)

// ANSI escape codes for status colouring
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// statusRecorder remembers the status code and body size for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(p)
	sr.bytes += n
	return n, err
}

// Flush keeps the serial-tail event stream working behind the middleware.
func (sr *statusRecorder) Flush() {
	if flusher, ok := sr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(code int) string {
	s := strconv.Itoa(code)
	switch {
	case code >= 400:
		return colorBoldRed + s + colorReset
	case code >= 300:
		return colorYellow + s + colorReset
	case code >= 200:
		return colorBoldGreen + s + colorReset
	}
	return s
}

// LoggingMiddleware logs status, method, request URI, response size and
// duration of every request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		monitoring.Logf("[%s] %s %s%s%s %dB %.2fms",
			statusCodeColor(sr.status), r.Method,
			colorCyan, r.RequestURI, colorReset,
			sr.bytes, float64(time.Since(start).Microseconds())/1000,
		)
	})
}
