// Package hub pushes engine events to renderers over websockets and feeds
// their control messages back to the engine.
package hub

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"MarketMirror/internal/app"
)

const (
	clientBuffer = 256
	pingEvery    = 45 * time.Second
	readTimeout  = 90 * time.Second
)

// Message is the envelope of everything sent to a renderer.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// controlMsg is what a renderer sends, e.g.
// {"type":"control","action":"select","value":"AAPL"}.
type controlMsg struct {
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// replayed event types are cached and sent to clients when they connect.
var replayed = []string{"tabs", "watchlist", "quotes", "chart", "refresh", "countdown"}

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

type client struct {
	conn   *websocket.Conn
	out    chan Message
	done   chan struct{}
	paused atomic.Bool
}

// Hub fans events out to connected clients. Notify never blocks: a client
// whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string]Message
	dropped atomic.Int64

	onControl func(app.Command)
	log       logrus.FieldLogger
}

// New creates a hub. onControl receives renderer commands on the connection's
// reader goroutine; it must hand them to the event loop itself.
func New(onControl func(app.Command), log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:   make(map[*client]struct{}),
		latest:    make(map[string]Message),
		onControl: onControl,
		log:       log.WithField("component", "hub"),
	}
}

// Notify implements app.Observer.
func (h *Hub) Notify(ev app.Event) {
	h.Broadcast(Message{Type: ev.Type(), Data: ev})
}

// Broadcast sends m to every connected client. Recording it for replay and
// fanning it out happen under one lock, so a connecting client gets it either
// in its replay or live, never both and never neither.
func (h *Hub) Broadcast(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if slices.Contains(replayed, m.Type) {
		h.latest[m.Type] = m
	}
	for c := range h.clients {
		select {
		case c.out <- m:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were lost to full client buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() []Message {
	out := make([]Message, 0, len(replayed))
	for _, t := range replayed {
		if m, ok := h.latest[t]; ok {
			out = append(out, m)
		}
	}
	return out
}

// register queues the replay and adds cl under the same lock as Broadcast.
func (h *Hub) register(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.snapshotLocked() {
		cl.out <- m
	}
	h.clients[cl] = struct{}{}
}

// ServeHTTP upgrades the request and serves one renderer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	cl := &client{conn: conn, out: make(chan Message, clientBuffer), done: make(chan struct{})}
	h.register(cl)
	log := h.log.WithField("remote", r.RemoteAddr)
	log.Info("renderer connected")

	go h.write(cl)
	h.read(cl)

	close(cl.done)
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	log.Info("renderer disconnected")
}

func (h *Hub) write(cl *client) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case m := <-cl.out:
			if cl.paused.Load() && m.Type != "notice" {
				continue
			}
			if err := cl.conn.WriteJSON(m); err != nil {
				h.log.WithError(err).Debug("websocket write failed")
			}
		case <-ping.C:
			_ = cl.conn.WriteMessage(websocket.PingMessage, nil)
		case <-cl.done:
			return
		}
	}
}

func (h *Hub) read(cl *client) {
	_ = cl.conn.SetReadDeadline(time.Now().Add(readTimeout))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		mt, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var ctrl controlMsg
		if err := json.Unmarshal(data, &ctrl); err != nil || ctrl.Type != "control" {
			h.log.WithField("payload", string(data)).Debug("ignoring non-control message")
			continue
		}
		switch action := strings.ToLower(ctrl.Action); action {
		case "pause":
			cl.paused.Store(true)
		case "resume":
			cl.paused.Store(false)
			for _, m := range h.snapshot() {
				select {
				case cl.out <- m:
				default:
				}
			}
		default:
			if h.onControl != nil {
				h.onControl(app.Command{Action: action, Value: ctrl.Value})
			}
		}
	}
}
