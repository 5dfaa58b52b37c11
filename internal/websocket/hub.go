package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/frankbria/auto-author-sub003/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub keeps one connection list per book. Every open view of a book (tabs in
// the same browser, different browsers, different users) shares the book's
// update stream: structural TOC changes and generation job progress.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
	redisClient *redis.Client
	jwtSecret   []byte
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

func NewHub(redisClient *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*websocket.Conn),
		redisClient: redisClient,
		jwtSecret:   []byte(jwtSecret),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

// HandleWebSocket upgrades GET /ws?token=...&book_id=... into a live
// subscription to one book's updates. Browsers cannot set headers on
// WebSocket requests, so the JWT rides in the query string.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userIDStr, _ := claims["user_id"].(string)
	if _, err := uuid.Parse(userIDStr); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bookID, err := uuid.Parse(r.URL.Query().Get("book_id"))
	if err != nil {
		http.Error(w, "Missing or invalid book_id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(bookID, conn)

	// Keep connection alive and handle disconnect. Clients send nothing
	// meaningful; the read loop exists to notice the close.
	go func() {
		defer h.unregisterConnection(bookID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(bookID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[bookID] = append(h.connections[bookID], conn)

	// First connection for this book starts its pub/sub subscription.
	if len(h.connections[bookID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[bookID] = cancel
		go h.subscribeToPubSub(ctx, bookID)
	}

	log.Printf("WebSocket connected: book %s (total: %d)", bookID, len(h.connections[bookID]))
}

func (h *Hub) unregisterConnection(bookID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[bookID]
	for i, c := range conns {
		if c == conn {
			h.connections[bookID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// Last view of the book gone: cancel its subscription.
	if len(h.connections[bookID]) == 0 {
		delete(h.connections, bookID)
		if cancel, ok := h.cancelFuncs[bookID]; ok {
			cancel()
			delete(h.cancelFuncs, bookID)
		}
	}

	log.Printf("WebSocket disconnected: book %s", bookID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, bookID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, services.BookChannel(bookID))
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
			h.broadcast(bookID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(bookID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[bookID] {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}

// SendToBook delivers a message to this process's connections directly,
// bypassing Redis. Used by tests and for process-local events.
func (h *Hub) SendToBook(bookID uuid.UUID, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(bookID, data)
}
