package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/npquoc/mallcore/configs"
	"github.com/npquoc/mallcore/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// same-origin policy is enforced at the gateway
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	// pongWait is how long a connection may stay silent before the server
	// drops it; pingPeriod must be comfortably shorter so an idle but
	// healthy client always gets a ping to answer in time.
	pongWait   = 90 * time.Second
	pingPeriod = 60 * time.Second
)

type Handler struct {
	hub *Hub
	cfg configs.Config

	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewHandler(hub *Hub, cfg configs.Config) *Handler {
	return &Handler{hub: hub, cfg: cfg, pongWait: pongWait, pingPeriod: pingPeriod}
}

// Serve upgrades GET /ws. Identity must be established from the JWT before
// the hub sees the connection; an anonymous handshake is rejected.
func (h *Handler) Serve(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.From(c).Error("ws upgrade", "user", userID, "err", err)
		return
	}

	h.hub.Connect(userID, conn)
	go h.readLoop(userID, conn)
}

// readLoop drains inbound frames. Client text carries no semantics beyond
// keep-alive; the loop exists to notice the close. The server pings on its
// own schedule, so a client waiting silently for a push stays connected as
// long as it answers pings, while a dead peer times out after pongWait.
func (h *Handler) readLoop(userID string, conn *websocket.Conn) {
	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.Disconnect(userID, conn)
		_ = conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	go h.pingLoop(conn, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

// pingLoop keeps the connection alive until the read loop winds it down.
// WriteControl is safe alongside the hub's serialized data writes.
func (h *Handler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(h.pingPeriod)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C:
			deadline := time.Now().Add(h.pingPeriod / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// authenticate pulls the user id from a bearer token or, for browser
// clients that cannot set headers on the handshake, a token query param.
func (h *Handler) authenticate(c *gin.Context) (string, bool) {
	raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if raw == "" || raw == c.GetHeader("Authorization") {
		raw = c.Query("token")
	}
	if raw == "" {
		return "", false
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.cfg.Security.JWTSecret), nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	return sub, sub != ""
}
