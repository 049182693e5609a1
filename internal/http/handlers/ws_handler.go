package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/auth"
	"github.com/skins-market/backend/internal/config"
	"github.com/skins-market/backend/internal/events"
)

// wsConn is one authenticated websocket. With an empty subscription set the
// client receives every event for its trades; after a subscribe message only
// the named trades are forwarded. Unsubscribing the last trade returns the
// connection to the receive-everything default.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	subs map[uuid.UUID]bool
}

func (w *wsConn) wants(tradeID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.subs) == 0 {
		return true
	}
	return w.subs[tradeID]
}

func (w *wsConn) subscribe(tradeID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs[tradeID] = true
}

func (w *wsConn) unsubscribe(tradeID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.subs, tradeID)
}

func (w *wsConn) write(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub fans trade events out to connected participants. The Redis subscriber
// runs one goroutine per stream, so a single trade's events reach each socket
// in publish order.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID][]*wsConn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID][]*wsConn),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	_ = h.subscriber.Subscribe(ctx, events.StreamTrade, func(event events.Event) {
		h.dispatch(event)
	})
}

// dispatch delivers a trade event to the buyer's and seller's sockets only.
func (h *WSHub) dispatch(event events.Event) {
	tradeID := payloadUUID(event.Payload, "trade_id")
	if tradeID == uuid.Nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	recipients := []uuid.UUID{
		payloadUUID(event.Payload, "buyer_user_id"),
		payloadUUID(event.Payload, "seller_user_id"),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range recipients {
		if userID == uuid.Nil {
			continue
		}
		for _, conn := range h.connections[userID] {
			if conn.wants(tradeID) {
				conn.write(data)
			}
		}
	}
}

func payloadUUID(payload map[string]any, key string) uuid.UUID {
	s, _ := payload[key].(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
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

type wsClientMessage struct {
	Action  string `json:"action"`
	TradeID string `json:"trade_id"`
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

	userID := claims.UserID
	wc := &wsConn{conn: conn, subs: make(map[uuid.UUID]bool)}

	h.mu.Lock()
	h.connections[userID] = append(h.connections[userID], wc)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		conns := h.connections[userID]
		for i, c := range conns {
			if c == wc {
				h.connections[userID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.connections[userID]) == 0 {
			delete(h.connections, userID)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		tradeID, err := uuid.Parse(msg.TradeID)
		if err != nil {
			continue
		}
		switch msg.Action {
		case "subscribe":
			wc.subscribe(tradeID)
		case "unsubscribe":
			wc.unsubscribe(tradeID)
		}
	}
}
