package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forge-interview/internal/interview"
)

// EventWriter writes a turn's event stream to an SSE response. Events go
// out in exactly the order they arrive; the engine owns ordering.
type EventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEventWriter prepares the response for server-sent events.
func NewEventWriter(w http.ResponseWriter) (*EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, eris.New("api: streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &EventWriter{w: w, flusher: flusher}, nil
}

// Write sends one event and flushes it.
func (s *EventWriter) Write(ev interview.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "api: marshal event")
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return eris.Wrap(err, "api: write event")
	}
	s.flusher.Flush()
	return nil
}
