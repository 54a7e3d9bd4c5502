package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/noisewatch/internal/alert"
	"github.com/MrWong99/noisewatch/internal/monitor"
)

// Message types sent to WebSocket clients.
const (
	TypeLevel = "level"
	TypeAlert = "alert"
)

// Envelope wraps every WebSocket message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	defaultMinInterval  = 100 * time.Millisecond
	defaultWriteTimeout = 5 * time.Second
	clientBuffer        = 32
)

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithMinInterval sets the minimum spacing between level messages sent to
// one client. Default: 100ms.
func WithMinInterval(d time.Duration) HubOption {
	return func(h *Hub) { h.minInterval = d }
}

// WithOriginPatterns sets the origins allowed to connect, in the
// websocket.AcceptOptions format. Empty allows same-origin only.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// Hub streams live levels and alerts to WebSocket clients. It is an
// [http.Handler] and a [Notifier].
type Hub struct {
	live        *monitor.LiveState
	minInterval time.Duration
	origins     []string

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewHub returns a Hub reading levels from live.
func NewHub(live *monitor.LiveState, opts ...HubOption) *Hub {
	h := &Hub{
		live:        live,
		minInterval: defaultMinInterval,
		clients:     make(map[chan []byte]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Notify implements [Notifier] by broadcasting the alert to every client.
// Clients whose buffer is full miss the message.
func (h *Hub) Notify(_ context.Context, d alert.Decision) error {
	msg, err := json.Marshal(Envelope{Type: TypeAlert, Data: NewAlertMessage(d)})
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams messages until the client
// disconnects or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Debug("notify: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	alerts := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[alerts] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, alerts)
		h.mu.Unlock()
	}()

	levels, cancel := h.live.Subscribe()
	defer cancel()

	if err := h.writeLevel(ctx, conn, h.live.Snapshot()); err != nil {
		return
	}
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-alerts:
			if err := write(ctx, conn, msg); err != nil {
				return
			}
		case snap, ok := <-levels:
			if !ok {
				return
			}
			if snap.At.Sub(last) < h.minInterval && snap.Monitoring {
				continue
			}
			last = snap.At
			if err := h.writeLevel(ctx, conn, snap); err != nil {
				return
			}
		}
	}
}

func (h *Hub) writeLevel(ctx context.Context, conn *websocket.Conn, snap monitor.Snapshot) error {
	msg, err := json.Marshal(Envelope{Type: TypeLevel, Data: snap})
	if err != nil {
		return err
	}
	return write(ctx, conn, msg)
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		slog.Debug("notify: websocket write failed", "err", err)
		return err
	}
	return nil
}
