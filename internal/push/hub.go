// Package push fans unit changes out to picker devices over websockets.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
)

// Message kinds sent to devices
const (
	MessageQueueUpdated   = "queue_updated"
	MessageVersionChanged = "version_changed"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sendBuffer   = 32
)

// Message is one push frame
type Message struct {
	Type      string `json:"type"`
	Version   string `json:"version,omitempty"`
	UnitID    string `json:"unitId,omitempty"`
	EventType string `json:"eventType,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub tracks connected devices and broadcasts to all of them. A device that
// cannot keep up is dropped; it refetches on reconnect.
type Hub struct {
	version  string
	upgrader websocket.Upgrader
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub announcing version to every new connection
func NewHub(version string, logger *logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		version: version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.WithComponent("push-hub"),
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and registers the connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if hello, err := json.Marshal(Message{Type: MessageVersionChanged, Version: h.version}); err == nil {
		c.send <- hello
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.PushConnections.Inc()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	if h.metrics != nil {
		h.metrics.PushConnections.Dec()
	}
}

// readPump drains the connection so control frames are processed. Devices
// send nothing meaningful.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// Broadcast sends msg to every connected device
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode push message")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow push client")
		h.unregister(c)
	}
	if h.metrics != nil {
		h.metrics.RecordPushBroadcast(msg.Type)
	}
}

// QueueUpdated tells devices to refetch and merge
func (h *Hub) QueueUpdated(unitID, eventType string) {
	h.Broadcast(Message{Type: MessageQueueUpdated, UnitID: unitID, EventType: eventType})
}

// HandleEvent is the Kafka handler for the picking events topic
func (h *Hub) HandleEvent(ctx context.Context, event *cloudevents.WMSCloudEvent) error {
	h.QueueUpdated(event.UnitID, event.Type)
	return nil
}

// OnUnitEvents broadcasts for units saved in process, for deployments that
// run without Kafka
func (h *Hub) OnUnitEvents(unitID string, events []domain.DomainEvent) {
	if len(events) == 0 {
		return
	}
	h.QueueUpdated(unitID, events[len(events)-1].EventType())
}

// Connections returns the number of connected devices
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every device
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
