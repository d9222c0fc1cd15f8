package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/plantbox/plantbox-api/internal/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event types sent to websocket clients
const (
	EventTelemetry    = "telemetry"
	EventNotification = "notification"
)

const broadcastBuffer = 256

// Event is the envelope written to every client
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts pipeline events
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates an idle hub; Start runs the loop
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Start runs the hub loop in the background
func (h *Hub) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(ctx)
}

// Stop ends the loop and disconnects every client
func (h *Hub) Stop(ctx context.Context) error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// RegisterLifecycle starts and stops the hub with the app
func (h *Hub) RegisterLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			h.Start()
			return nil
		},
		OnStop: h.Stop,
	})
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Live client registered", zap.String("remote", client.remote))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("Dropping slow live client", zap.String("remote", client.remote))
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishTelemetry broadcasts a stored telemetry record
func (h *Hub) PublishTelemetry(rec models.TelemetryRecord) {
	h.publish(Event{Type: EventTelemetry, Payload: rec})
}

// PublishNotification broadcasts a raised notification
func (h *Hub) PublishNotification(n models.Notification) {
	h.publish(Event{Type: EventNotification, Payload: n})
}

// publish never blocks; events are dropped when the buffer is full
func (h *Hub) publish(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("Failed to marshal live event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- body:
	default:
		h.logger.Warn("Live broadcast buffer full, dropping event", zap.String("type", ev.Type))
	}
}

// ServeWS upgrades the request and attaches the client to the hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, broadcastBuffer),
		remote: conn.RemoteAddr().String(),
	}

	select {
	case h.register <- client:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
