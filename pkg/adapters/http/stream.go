package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Event is one server-sent event payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StreamManager fans events out to the SSE subscribers of a topic.
type StreamManager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		logger:      logger,
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

// Subscribe registers a buffered channel for topic. The returned func unsubscribes
// and closes the channel.
func (sm *StreamManager) Subscribe(topic string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan<- string]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[topic]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, topic)
				}
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of subscribers of topic.
func (sm *StreamManager) Subscribers(topic string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[topic])
}

// Broadcast sends ev to every subscriber of topic. Slow subscribers lose the event.
func (sm *StreamManager) Broadcast(topic string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("SSE: failed to encode event", "topic", topic, "type", ev.Type, "err", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers[topic] {
		select {
		case ch <- string(payload):
		default:
			sm.logger.Warn("SSE: client buffer full, dropping event", "topic", topic, "type", ev.Type)
		}
	}
}

// serve streams the events of topic until the client goes away.
func (sm *StreamManager) serve(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel := sm.Subscribe(topic)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			sm.logger.Debug("SSE: client disconnected", "topic", topic)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
