package websocket

import (
	"context"
	"encoding/json"
	"time"

	"tasksync/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	EventFriendRequest  = "friend_request"
	EventFriendAccepted = "friend_accepted"
	EventTaskAssigned   = "task_assigned"
	EventTaskCompleted  = "task_completed"
)

const (
	sendBuffer   = 16
	notifyBuffer = 256
	writeTimeout = 10 * time.Second
)

// Event adalah pesan JSON yang dikirim ke klien.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client merepresentasikan satu koneksi WebSocket milik seorang user.
type Client struct {
	UserID int64
	conn   Conn
	send   chan []byte
}

func NewClient(userID int64, conn Conn) *Client {
	return &Client{UserID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
}

// WritePump forwards queued events to the connection until the hub drops
// the client.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if d, ok := c.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
			_ = d.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.ErrorLogger.Error("Websocket write failed", zap.Int64("user_id", c.UserID), zap.Error(err))
			return
		}
	}
}

type delivery struct {
	userID  int64
	payload []byte
}

// Hub mengelola koneksi WebSocket per user. The client map is only touched
// by the Run goroutine.
type Hub struct {
	clients    map[int64]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	notify     chan delivery
	count      chan countRequest
	// done is closed when Run returns
	done chan struct{}
}

type countRequest struct {
	userID int64
	reply  chan int
}

// NewHub membuat instance Hub baru.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		notify:     make(chan delivery, notifyBuffer),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
	}
}

// Run menjalankan loop Hub sampai ctx selesai.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = map[int64]map[*Client]bool{}
			return
		case c := <-h.register:
			if h.clients[c.UserID] == nil {
				h.clients[c.UserID] = make(map[*Client]bool)
			}
			h.clients[c.UserID][c] = true
		case c := <-h.unregister:
			h.drop(c)
		case d := <-h.notify:
			for c := range h.clients[d.userID] {
				select {
				case c.send <- d.payload:
				default:
					// klien lambat, putuskan
					h.drop(c)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.userID])
		}
	}
}

func (h *Hub) drop(c *Client) {
	set, ok := h.clients[c.UserID]
	if !ok || !set[c] {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	close(c.send)
}

// Register adds c to the hub. Once the hub has stopped the client is
// closed right away, so its write pump exits.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister is a no-op after the hub has stopped; Run already closed
// every client on its way out.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Connected returns how many live connections userID has.
func (h *Hub) Connected(userID int64) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{userID: userID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Notify queues an event for every connection of userID. It never blocks:
// when the queue is full the event is dropped.
func (h *Hub) Notify(userID int64, ev Event) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.ErrorLogger.Error("Error encoding websocket event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	select {
	case h.notify <- delivery{userID: userID, payload: payload}:
	default:
		logger.SystemLogger.Warn("Websocket notify queue full, event dropped",
			zap.Int64("user_id", userID),
			zap.String("type", ev.Type),
		)
	}
}

// Serve registers conn for userID and blocks reading from it until the
// peer goes away. Incoming messages are ignored.
func (h *Hub) Serve(userID int64, conn *websocket.Conn) {
	client := NewClient(userID, conn)
	h.Register(client)
	go client.WritePump()
	defer h.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
