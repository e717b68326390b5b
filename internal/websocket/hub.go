package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"schoolhub-backend/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// TokenParser verifies the token passed in the ?token= query parameter.
type TokenParser interface {
	ParseToken(token string) (uuid.UUID, string, error)
}

// conn is one browser socket. Only writePump writes to ws.
type conn struct {
	ws     *websocket.Conn
	userID uuid.UUID
	send   chan []byte
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub relays each user's Redis update channel to all of that user's
// sockets. A user's subscription lives while they have a socket open.
type Hub struct {
	mu          sync.Mutex
	connections map[uuid.UUID]map[*conn]bool
	cancelFuncs map[uuid.UUID]context.CancelFunc

	redis    *redis.Client
	auth     TokenParser
	upgrader websocket.Upgrader
}

func NewHub(redisClient *redis.Client, auth TokenParser, allowedOrigin string) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]map[*conn]bool),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		redis:       redisClient,
		auth:        auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "" || origin == allowedOrigin
			},
		},
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, _, err := h.auth.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &conn{ws: ws, userID: userID, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client frames and notices disconnects.
func (h *Hub) readPump(c *conn) {
	defer h.unregister(c)

	c.ws.SetReadLimit(4096)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[c.userID] == nil {
		h.connections[c.userID] = make(map[*conn]bool)
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[c.userID] = cancel
		go h.subscribe(ctx, c.userID)
	}
	h.connections[c.userID][c] = true

	log.Printf("WebSocket connected: user %s (total: %d)", c.userID, len(h.connections[c.userID]))
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.connections[c.userID]
	if !conns[c] {
		return
	}
	delete(conns, c)
	c.close()

	if len(conns) == 0 {
		delete(h.connections, c.userID)
		if cancel, ok := h.cancelFuncs[c.userID]; ok {
			cancel()
			delete(h.cancelFuncs, c.userID)
		}
	}

	log.Printf("WebSocket disconnected: user %s", c.userID)
}

func (h *Hub) subscribe(ctx context.Context, userID uuid.UUID) {
	pubsub := h.redis.Subscribe(ctx, services.UserChannel(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

// broadcast queues data on every socket of userID. A socket whose buffer is
// full is dropped.
func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.connections[userID] {
		select {
		case c.send <- data:
		default:
			log.Printf("WARN: websocket for user %s is not keeping up, closing", userID)
			delete(h.connections[userID], c)
			c.close()
		}
	}
}

// ConnectionCount reports open sockets for userID.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections[userID])
}
