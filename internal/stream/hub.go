package stream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shinyyama/auction-backend/internal/event"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

type client struct {
	id        string
	auctionID uint64
	conn      *websocket.Conn
	send      chan []byte
}

type message struct {
	auctionID uint64
	payload   []byte
}

// Hub fans auction events out to the websocket clients watching each auction.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan message
	done       chan struct{}

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uint64]map[*client]struct{}
}

// NewHub builds a hub whose upgrades are limited to origins accepted by allowOrigin.
// Requests without an Origin header come from non-browser clients and are accepted.
// A nil allowOrigin accepts every origin.
func NewHub(allowOrigin func(origin string) (bool, error)) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message, sendBuffer),
		done:       make(chan struct{}),
		clients:    map[uint64]map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowOrigin),
		},
	}
}

func checkOrigin(allowOrigin func(origin string) (bool, error)) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowOrigin == nil {
			return true
		}
		ok, err := allowOrigin(origin)
		return err == nil && ok
	}
}

// Run owns the client registry until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.auctionID]
			if !ok {
				set = map[*client]struct{}{}
				h.clients[c.auctionID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.remove(c)
		case m := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients[m.auctionID] {
				select {
				case c.send <- m.payload:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				log.Printf("stream: dropping slow client %s auction=%d", c.id, c.auctionID)
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.auctionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.auctionID)
	}
	close(c.send)
}

// Broadcast queues payload for every client of the auction. It never blocks once the hub has stopped.
func (h *Hub) Broadcast(auctionID uint64, payload []byte) {
	select {
	case h.broadcast <- message{auctionID: auctionID, payload: payload}:
	case <-h.done:
	}
}

// Count returns the number of clients watching an auction.
func (h *Hub) Count(auctionID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[auctionID])
}

// Publish lets the hub act as an event.Publisher when events are not relayed through Redis.
func (h *Hub) Publish(_ context.Context, ev *event.AuctionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Broadcast(ev.AuctionID, payload)
	return nil
}

func (h *Hub) Close() error { return nil }

// ServeWS upgrades the request and subscribes the connection to one auction.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, auctionID uint64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{
		id:        uuid.NewString(),
		auctionID: auctionID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	welcome, _ := json.Marshal(map[string]interface{}{
		"type":      "connected",
		"auctionId": auctionID,
		"clientId":  c.id,
	})
	c.send <- welcome

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil
	}
	go c.writePump()
	go c.readPump(h)
	return nil
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for disconnects and pongs; clients do not send commands.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("stream: client %s: %v", c.id, err)
			}
			return
		}
	}
}
