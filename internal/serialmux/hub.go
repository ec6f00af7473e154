package serialmux

import (
	"bytes"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var tailTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/tail.html.tmpl"))

// subscriberBuffer is how many lines a slow tail may lag before lines are
// dropped for it.
const subscriberBuffer = 32

// Hub fans lines out to subscribers. Sends never block: a subscriber that
// is not keeping up misses lines. The hub outlives individual sessions so
// the debug routes survive reconnects.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan string
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan string)}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving lines. The ID identifies the
// channel when unsubscribing.
func (h *Hub) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish offers line to every subscriber without blocking.
func (h *Hub) Publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full skip so as not to block the read loop
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// CloseAll closes and removes every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

// FrameWriter accepts raw bytes for the device, typically the current
// session's judge link.
type FrameWriter interface {
	Write([]byte) error
}

// FrameWriterFunc adapts a function to FrameWriter.
type FrameWriterFunc func([]byte) error

func (f FrameWriterFunc) Write(p []byte) error { return f(p) }

// AttachAdminRoutes attaches serial debugging endpoints to the given HTTP mux
// under /debug/. They are reachable only over localhost or Tailscale.
// w may be nil, in which case send-hex is not registered.
func (h *Hub) AttachAdminRoutes(mux *http.ServeMux, w FrameWriter) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("serial", "live serial line tail", func(rw http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		data := struct{ TailPath, SendHexPath string }{"/debug/serial-tail", "/debug/serial-send-hex"}
		if err := tailTemplate.Execute(buf, data); err != nil {
			http.Error(rw, "Failed to render template", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.Copy(rw, buf)
	})

	// Server-Sent Events for every line read from the device.
	debug.HandleSilentFunc("serial-tail", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := rw.(http.Flusher)
		if !ok {
			http.Error(rw, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		rw.Header().Set("Content-Type", "text/event-stream")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.Header().Set("Connection", "keep-alive")
		rw.Header().Set("X-Accel-Buffering", "no")

		id, c := h.Subscribe()
		defer h.Unsubscribe(id)

		rw.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(rw, "event: %s\ndata: %s\n\n", ClassifyLine(line), line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	if w == nil {
		return
	}

	// Writes raw bytes to the device, e.g. a hand-built judge frame.
	debug.HandleSilentFunc("serial-send-hex", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw := strings.Join(strings.Fields(r.FormValue("hex")), "")
		if raw == "" {
			http.Error(rw, "Missing hex", http.StatusBadRequest)
			return
		}
		payload, err := hex.DecodeString(raw)
		if err != nil {
			http.Error(rw, fmt.Sprintf("Invalid hex: %v", err), http.StatusBadRequest)
			return
		}
		if err := w.Write(payload); err != nil {
			http.Error(rw, fmt.Sprintf("Failed to write: %v", err), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(rw, "Wrote %d bytes to serial port\n", len(payload))
	})
}
