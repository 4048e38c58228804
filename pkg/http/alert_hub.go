package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"commetrics-server/pkg/access"
	"commetrics-server/pkg/correlation"
	"commetrics-server/pkg/messaging"
	"commetrics-server/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// AlertsPath is where WebSocket clients subscribe to digest alerts
const AlertsPath = "/ws/alerts"

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

var errHubStopped = errors.New("alert hub is not running")

// WebSocketUpgrader configures the WebSocket connection
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// alertClient is one connected subscriber
type alertClient struct {
	hub        *AlertHub
	conn       *websocket.Conn
	send       chan []byte
	scope      access.Scope
	department string
}

func (c *alertClient) wants(alert *messaging.Alert) bool {
	if !c.scope.Allows(alert.Department) {
		return false
	}
	return c.department == "" || c.department == alert.Department
}

// AlertHub fans digest alerts out to WebSocket subscribers
type AlertHub struct {
	logger     *logrus.Logger
	clients    map[*alertClient]bool
	broadcast  chan *messaging.Alert
	register   chan *alertClient
	unregister chan *alertClient
	done       chan struct{}
	running    bool
	mutex      sync.RWMutex
}

// NewAlertHub creates a new alert hub. Call Run before serving clients.
func NewAlertHub(logger *logrus.Logger) *AlertHub {
	return &AlertHub{
		logger:     logger,
		clients:    make(map[*alertClient]bool),
		broadcast:  make(chan *messaging.Alert, 16),
		register:   make(chan *alertClient),
		unregister: make(chan *alertClient),
		done:       make(chan struct{}),
	}
}

// Name identifies the hub as an alert sink
func (h *AlertHub) Name() string {
	return "websocket"
}

// Run processes registrations and broadcasts until ctx is done
func (h *AlertHub) Run(ctx context.Context) {
	h.mutex.Lock()
	h.running = true
	h.mutex.Unlock()
	h.logger.Info("Starting WebSocket alert hub")

	defer func() {
		h.mutex.Lock()
		h.running = false
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mutex.Unlock()
		metrics.SetAlertSubscribers(0)
		close(h.done)
		h.logger.Info("Shutting down WebSocket alert hub")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetAlertSubscribers(count)
			h.logger.WithField("department", client.department).Info("Alert subscriber connected")

		case client := <-h.unregister:
			h.remove(client)

		case alert := <-h.broadcast:
			data, err := json.Marshal(alert)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal alert")
				continue
			}

			var slow []*alertClient
			h.mutex.RLock()
			for client := range h.clients {
				if !client.wants(alert) {
					continue
				}
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			h.mutex.RUnlock()

			for _, client := range slow {
				h.logger.Warn("Dropping slow alert subscriber")
				h.remove(client)
			}
		}
	}
}

func (h *AlertHub) remove(client *alertClient) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mutex.Unlock()

	metrics.SetAlertSubscribers(count)
	h.logger.Info("Alert subscriber disconnected")
}

// Publish queues an alert for every subscriber allowed to see it
func (h *AlertHub) Publish(ctx context.Context, alert messaging.Alert) error {
	select {
	case <-h.done:
		return errHubStopped
	default:
	}

	select {
	case h.broadcast <- &alert:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of connected subscribers
func (h *AlertHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// IsRunning returns true while Run is active
func (h *AlertHub) IsRunning() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.running
}

// RegisterHandlers registers the subscription endpoint behind the access middleware
func (h *AlertHub) RegisterHandlers(server *Server) {
	server.RegisterProtectedHandler(AlertsPath, h.ServeWs)
}

// ServeWs upgrades the request and subscribes the client. An optional
// department query parameter narrows the stream further than the caller's scope.
func (h *AlertHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	log := correlation.LoggerFromContext(r.Context(), h.logger)
	scope := access.ScopeFromContext(r.Context())

	department := strings.TrimSpace(r.URL.Query().Get("department"))
	if department != "" && !scope.Allows(department) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}

	client := &alertClient{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, clientSendBuffer),
		scope:      scope,
		department: department,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards client messages and detects disconnects
func (c *alertClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps alerts from the hub to the WebSocket connection
func (c *alertClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
