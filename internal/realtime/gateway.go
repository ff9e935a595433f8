package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/velsoria/argus/internal/events"
)

const writeWait = 10 * time.Second

// Gateway is the websocket boundary: it authenticates upgrade requests,
// registers connections with the registry and bridges subscribe frames and
// fan-out payloads to socket I/O.
type Gateway struct {
	registry     *events.Registry
	log          *slog.Logger
	secret       []byte
	sendBuffer   int
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

func New(log *slog.Logger, registry *events.Registry, secret string, sendBuffer int, pingInterval time.Duration, allowedOrigins []string) *Gateway {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Gateway{
		registry:     registry,
		log:          log,
		secret:       []byte(secret),
		sendBuffer:   sendBuffer,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Handle upgrades an authenticated request to a websocket session. The bearer
// token comes as the `token` query parameter because browsers cannot set
// headers on websocket upgrades.
func (g *Gateway) Handle(c *gin.Context) {
	if err := g.verifyToken(c.Query("token")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", slog.String("err", err.Error()))
		return
	}

	send := make(chan []byte, g.sendBuffer)
	cn := &connection{
		id:       g.registry.Register(send),
		ws:       ws,
		send:     send,
		done:     make(chan struct{}),
		registry: g.registry,
	}
	g.log.Debug("realtime client connected", slog.Uint64("conn", cn.id))

	go cn.writePump(g.pingInterval)
	cn.readPump(g)
}

func (g *Gateway) verifyToken(raw string) error {
	if raw == "" {
		return fmt.Errorf("missing token")
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

type connection struct {
	id       uint64
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	registry *events.Registry
	once     sync.Once
}

// close unregisters the connection and shuts down the socket. Safe to call
// from both pumps.
func (cn *connection) close() {
	cn.once.Do(func() {
		cn.registry.Unregister(cn.id)
		close(cn.done)
		cn.ws.Close()
	})
}

type clientCommand struct {
	Type     string `json:"type"`
	CameraID string `json:"cameraId"`
}

type ackFrame struct {
	Type     string `json:"type"`
	CameraID string `json:"cameraId"`
}

// readPump consumes inbound frames until the transport closes. Recognized
// subscribe commands update the registry and are acked; everything else is
// silently ignored so newer clients do not break the connection.
func (cn *connection) readPump(g *Gateway) {
	defer cn.close()

	pongWait := g.pingInterval + writeWait
	cn.ws.SetReadLimit(4096)
	_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := cn.ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		if cmd.Type != "subscribe" || cmd.CameraID == "" {
			continue
		}
		cn.registry.Subscribe(cn.id, cmd.CameraID)
		ack, err := json.Marshal(ackFrame{Type: "subscribed", CameraID: cmd.CameraID})
		if err != nil {
			continue
		}
		select {
		case cn.send <- ack:
		case <-cn.done:
			return
		}
	}
}

// writePump serializes all socket writes: fan-out payloads from the registry
// channel plus keepalive pings.
func (cn *connection) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		cn.close()
	}()

	for {
		select {
		case msg := <-cn.send:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cn.done:
			return
		}
	}
}
