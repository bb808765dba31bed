package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chatsuite/backend/internal/auth"
	"github.com/chatsuite/backend/internal/config"
	"github.com/chatsuite/backend/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WSHub fans campaign events out to connected tenants. Each connection is
// bound to one tenant at upgrade time and only ever sees that tenant's stream.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID][]*websocket.Conn),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	_ = h.subscriber.Subscribe(ctx, "events:tenant:*", func(event events.Event) {
		h.route(event)
	})
}

// route delivers an event to the tenant named in its payload.
func (h *WSHub) route(event events.Event) {
	raw, ok := event.Payload["tenant_id"].(string)
	if !ok {
		return
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return
	}
	h.SendToTenant(tenantID, event)
}

func (h *WSHub) SendToTenant(tenantID uuid.UUID, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[tenantID] {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	tenantID := claims.TenantID

	h.mu.Lock()
	h.connections[tenantID] = append(h.connections[tenantID], conn)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		conns := h.connections[tenantID]
		for i, c := range conns {
			if c == conn {
				h.connections[tenantID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.connections[tenantID]) == 0 {
			delete(h.connections, tenantID)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
