package plugin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/goatkit/serverboot/internal/logging"
)

// Event is a diagnostic streamed to status clients.
type Event struct {
	Plugin string // empty for host diagnostics
	Type   string // "log" or a lifecycle event such as "reload"
	Data   string // JSON payload
}

// EventBroker fans diagnostics out to server-sent event clients.
type EventBroker struct {
	mu      sync.RWMutex
	clients map[chan Event]string // channel -> plugin filter ("" = all)
}

// NewEventBroker creates an empty broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		clients: make(map[chan Event]string),
	}
}

// Subscribe adds a client. pluginFilter limits events to one plugin.
func (b *EventBroker) Subscribe(pluginFilter string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.clients[ch] = pluginFilter
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a client channel.
func (b *EventBroker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish sends an event to every matching client. Slow clients lose events.
func (b *EventBroker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.clients {
		if filter != "" && filter != event.Plugin {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishEntry publishes a buffered diagnostic as a "log" event. It has the
// signature logging.Buffer.OnAdd expects.
func (b *EventBroker) PublishEntry(e logging.Entry) {
	data, err := json.Marshal(struct {
		logging.Entry
		Level string `json:"level"`
	}{Entry: e, Level: logging.LevelName(e.Level)})
	if err != nil {
		return
	}
	b.Publish(Event{Plugin: e.Plugin, Type: "log", Data: string(data)})
}

// ServeHTTP streams events to one client. The optional "plugin" query
// parameter filters by plugin name.
func (b *EventBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := b.Subscribe(r.URL.Query().Get("plugin"))
	defer b.Unsubscribe(ch)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"ok\"}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *EventBroker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
