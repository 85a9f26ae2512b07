package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Message is the envelope written to websocket clients.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// ProgressHub fans training events out to websocket clients. A client that
// connects mid-run first receives the latest event.
type ProgressHub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	mu   sync.RWMutex
	last []byte
	done chan struct{}
}

// NewProgressHub returns a hub. Run must be started before clients connect.
func NewProgressHub(logger *zap.Logger) *ProgressHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run owns the client set until ctx is done.
func (h *ProgressHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.mu.RLock()
			last := h.last
			h.mu.RUnlock()
			if last != nil {
				c.send <- last
			}
			h.logger.Debug("progress client connected", zap.String("client", c.id), zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Debug("progress client disconnected", zap.String("client", c.id), zap.Int("clients", len(h.clients)))

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		}
	}
}

// Publish queues an event for every client. It never blocks; when the queue
// is full the event is dropped.
func (h *ProgressHub) Publish(event TrainingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal training event: %w", err)
	}
	msg, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      string(event.Type),
		Timestamp: event.Timestamp,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	h.mu.Lock()
	h.last = msg
	h.mu.Unlock()

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("progress broadcast queue full, dropping event", zap.String("type", string(event.Type)))
	}
	return nil
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 256), id: uuid.NewString()}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

func (h *ProgressHub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
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

// readPump only drains control frames; clients do not send commands.
func (h *ProgressHub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
	}
}
