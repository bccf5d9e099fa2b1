// Package session implements the process-wide coordinator for the Xiangqi
// server: the connection registry, the display-name registry, the room
// registry, command dispatch, and event fan-out.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xqlive/xiangqi-server/internal/v1/auth"
	"github.com/xqlive/xiangqi-server/internal/v1/bus"
	"github.com/xqlive/xiangqi-server/internal/v1/config"
	"github.com/xqlive/xiangqi-server/internal/v1/logging"
	"github.com/xqlive/xiangqi-server/internal/v1/metrics"
	"github.com/xqlive/xiangqi-server/internal/v1/ratelimit"
	"github.com/xqlive/xiangqi-server/internal/v1/room"
)

// Hub owns all mutable server state. A single mutex serializes every command
// end to end: validation, room mutation, and event enqueueing happen in one
// critical section, so no command ever observes a half-applied change.
// Socket I/O stays outside the lock (enqueueing to a client never blocks).
type Hub struct {
	mu sync.Mutex

	conns    map[room.ConnectionID]*Client
	sessions map[room.ConnectionID]string // connection -> display name
	rooms    map[string]*room.Room

	bus            *bus.Service // optional event mirror, nil in single-instance mode
	rateLimiter    *ratelimit.RateLimiter
	allowedOrigins []string

	msgRate        rate.Limit
	msgBurst       int
	maxChatHistory int
}

// NewHub creates a Hub wired to its dependencies. bus and rateLimiter may be
// nil; the hub then runs without the Redis mirror or upgrade rate limiting.
func NewHub(cfg *config.Config, b *bus.Service, rl *ratelimit.RateLimiter, allowedOrigins []string) *Hub {
	return &Hub{
		conns:          make(map[room.ConnectionID]*Client),
		sessions:       make(map[room.ConnectionID]string),
		rooms:          make(map[string]*room.Room),
		bus:            b,
		rateLimiter:    rl,
		allowedOrigins: allowedOrigins,
		msgRate:        rate.Limit(cfg.MsgRatePerSec),
		msgBurst:       cfg.MsgBurst,
		maxChatHistory: cfg.MaxChatHistory,
	}
}

// ServeWs validates the HTTP request and upgrades it to a WebSocket
// connection. Clients may connect at any path.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return // Response already written by CheckWebSocket
	}

	if err := auth.ValidateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := h.upgradeWebSocket(c)
	if err != nil {
		return
	}

	h.HandleConnection(conn)
}

// HandleConnection registers an established WebSocket connection and starts
// its message pumps.
func (h *Hub) HandleConnection(conn wsConnection) *Client {
	client := &Client{
		id:      room.ConnectionID(uuid.New().String()),
		conn:    conn,
		hub:     h,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(h.msgRate, h.msgBurst),
	}

	h.mu.Lock()
	h.conns[client.id] = client
	h.mu.Unlock()

	metrics.IncConnection()
	logging.Info(context.Background(), "Client connected", zap.String("connectionId", string(client.id)))

	go client.writePump()
	go client.readPump()
	return client
}

// upgradeWebSocket handles the WebSocket upgrade process.
func (h *Hub) upgradeWebSocket(c *gin.Context) (wsConnection, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return auth.ValidateOrigin(r, h.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return nil, err
	}
	return conn, nil
}

// Dispatch decodes one inbound frame and routes it to the matching handler.
// The whole command runs under the hub mutex. A malformed frame or an
// unknown action answers only the offender; a handler panic is converted to
// a generic error so one bad frame never tears the connection down.
func (h *Hub) Dispatch(c *Client, data []byte) {
	start := time.Now()

	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.Send(newErrorEvent("Invalid JSON"))
		metrics.WebsocketEvents.WithLabelValues("invalid_json", "error").Inc()
		return
	}

	action := cmd.Action
	defer func() {
		if r := recover(); r != nil {
			logging.Error(context.Background(), "Error handling message",
				zap.String("action", action),
				zap.String("connectionId", string(c.id)),
				zap.Any("panic", r))
			c.Send(newErrorEvent("Server error"))
			metrics.WebsocketEvents.WithLabelValues(action, "panic").Inc()
		}
		metrics.MessageProcessingDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	}()

	h.mu.Lock()
	defer h.mu.Unlock()

	ok := true
	switch action {
	case "set_username":
		ok = h.handleSetUsername(c, &cmd)
	case "create_room":
		ok = h.handleCreateRoom(c, &cmd)
	case "join_room":
		ok = h.handleJoinRoom(c, &cmd)
	case "leave_room":
		ok = h.handleLeaveRoom(c)
	case "get_room_list":
		ok = h.handleGetRoomList(c)
	case "chat_message":
		ok = h.handleChatMessage(c, &cmd)
	case "make_move":
		ok = h.handleMakeMove(c, &cmd)
	case "start_game":
		ok = h.handleStartGame(c)
	case "private_message":
		ok = h.handlePrivateMessage(c, &cmd)
	case "change_member_role":
		ok = h.handleChangeMemberRole(c, &cmd)
	case "kick_member":
		ok = h.handleKickMember(c, &cmd)
	case "get_member_list":
		ok = h.handleGetMemberList(c)
	case "mute_member":
		ok = h.handleMuteMember(c, &cmd)
	case "unmute_member":
		ok = h.handleUnmuteMember(c, &cmd)
	default:
		c.Send(newErrorEvent("Unknown action"))
		metrics.WebsocketEvents.WithLabelValues("unknown", "error").Inc()
		return
	}

	status := "ok"
	if !ok {
		status = "error"
	}
	metrics.WebsocketEvents.WithLabelValues(action, status).Inc()
}

// HandleDisconnect runs the cleanup path for a closed connection: remove it
// from its room (tearing the room down if it was the owner) and from the
// connection and name registries.
func (h *Hub) HandleDisconnect(c *Client) {
	h.mu.Lock()

	for id, rm := range h.rooms {
		if !rm.HasMember(c.id) {
			continue
		}
		wasOwner := rm.RemoveMember(c.id)
		if wasOwner {
			h.destroyRoom(id, rm)
		} else {
			metrics.RoomMembers.WithLabelValues(id).Set(float64(rm.Size()))
		}
	}

	delete(h.conns, c.id)
	delete(h.sessions, c.id)
	h.mu.Unlock()

	c.Disconnect()
	logging.Info(context.Background(), "Client disconnected", zap.String("connectionId", string(c.id)))
}

// Shutdown disconnects every client and drops all rooms.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down Hub - closing all connections...")

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	for id := range h.rooms {
		delete(h.rooms, id)
		metrics.ActiveRooms.Dec()
		metrics.RoomMembers.DeleteLabelValues(id)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Disconnect()
	}

	logging.Info(ctx, "All connections closed", zap.Int("count", len(clients)))
	return nil
}
