// Package sse streams artifact lifecycle events to browsers and tools over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/starford/livetext/internal/metrics"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ArtifactEventData is the payload of artifact.* events.
type ArtifactEventData struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// EventPollCompleted is published after a background poll that adopted
// edits or failed.
const EventPollCompleted = "poll.completed"

// PollEventData is the payload of poll.completed.
type PollEventData struct {
	Changed []string `json:"changed"`
	Error   string   `json:"error,omitempty"`
}

// WorkspaceSummary is the payload of workspace.updated. Artifacts lists the
// names touched since the previous summary.
type WorkspaceSummary struct {
	Artifacts []string  `json:"artifacts"`
	At        time.Time `json:"at"`
}

type artifactEventReq struct {
	kind string
	name string
	at   time.Time
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set, the event sequence
// and the workspace.updated throttle; public methods talk to it through
// channels.
type Broker struct {
	summaryMin time.Duration
	heartbeat  time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	artifactCh    chan artifactEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithHeartbeat makes ServeHTTP write a comment line every d so proxies
// keep idle streams open. Zero disables it.
func WithHeartbeat(d time.Duration) BrokerOption {
	return func(b *Broker) { b.heartbeat = d }
}

// NewBroker creates a broker. summaryThrottle is the minimum gap between two
// workspace.updated events.
func NewBroker(summaryThrottle time.Duration, opts ...BrokerOption) *Broker {
	if summaryThrottle <= 0 {
		summaryThrottle = 2 * time.Second
	}

	b := &Broker{
		summaryMin:    summaryThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		artifactCh:    make(chan artifactEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSummary time.Time
	var seq uint64
	touched := make(map[string]struct{})

	// flushC fires when names touched inside the throttle window are due.
	var flush *time.Timer
	var flushC <-chan time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))
		metrics.RecordSSEEvent(event.Type)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	summarize := func(at time.Time) {
		lastSummary = at
		names := make([]string, 0, len(touched))
		for n := range touched {
			names = append(names, n)
		}
		sort.Strings(names)
		clear(touched)
		broadcast(Event{Type: "workspace.updated", Data: WorkspaceSummary{Artifacts: names, At: at}})
	}

	for {
		select {
		case <-b.stopCh:
			if flush != nil {
				flush.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			metrics.SetSSEClientsActive(0)
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			metrics.SetSSEClientsActive(len(clients))

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
				metrics.SetSSEClientsActive(len(clients))
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.artifactCh:
			broadcast(Event{Type: req.kind, Data: ArtifactEventData{Name: req.name, At: req.at}})

			touched[req.name] = struct{}{}
			elapsed := req.at.Sub(lastSummary)
			switch {
			case elapsed >= b.summaryMin:
				if flush != nil {
					flush.Stop()
					flushC = nil
				}
				summarize(req.at)
			case flushC == nil:
				flush = time.NewTimer(b.summaryMin - elapsed)
				flushC = flush.C
			}

		case <-flushC:
			flushC = nil
			if len(touched) > 0 {
				summarize(time.Now().UTC())
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishArtifactEvent publishes an artifact event of the given kind
// (artifact.exposed, artifact.changed, artifact.removed) followed by a
// throttled workspace.updated event.
func (b *Broker) PublishArtifactEvent(kind, name string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.artifactCh <- artifactEventReq{kind: kind, name: name, at: time.Now().UTC()}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var beat <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		beat = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-beat:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
