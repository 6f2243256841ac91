package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/recognizer"
)

const (
	clientBuffer = 32
	writeTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message types pushed to websocket clients.
const (
	MessageGesture   = "gesture"
	MessageLandmarks = "landmarks"
)

// Message is one websocket push.
type Message struct {
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"`
	Gesture   *GestureMessage   `json:"gesture,omitempty"`
	Hands     []recognizer.Hand `json:"hands,omitempty"`
}

// GestureMessage describes a change of the current gesture.
type GestureMessage struct {
	From       gesture.Label `json:"from"`
	To         gesture.Label `json:"to"`
	Confidence float64       `json:"confidence"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts gesture changes and landmarks to websocket clients.
// Slow clients miss messages rather than stall the frame loop.
type Hub struct {
	log     *logrus.Logger
	clients map[*client]struct{}
	closed  bool
	mu      sync.RWMutex
}

// NewHub creates an empty Hub.
func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	go h.write(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) write(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debugf("websocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every client.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("encode websocket message: %v", err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// PublishChange pushes a gesture change. It has the signature of a bridge
// change listener.
func (h *Hub) PublishChange(c gesture.Change) {
	h.Broadcast(Message{
		Type:      MessageGesture,
		Timestamp: c.At.UnixMilli(),
		Gesture:   &GestureMessage{From: c.From, To: c.To, Confidence: c.Confidence},
	})
}

// PublishResult pushes a frame's landmarks. It has the signature of a
// bridge result listener.
func (h *Hub) PublishResult(r *recognizer.Result) {
	if r == nil {
		return
	}
	h.Broadcast(Message{
		Type:      MessageLandmarks,
		Timestamp: time.Now().UnixMilli(),
		Hands:     r.Hands,
	})
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
