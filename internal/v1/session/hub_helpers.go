package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/xqlive/xiangqi-server/internal/v1/logging"
	"github.com/xqlive/xiangqi-server/internal/v1/metrics"
	"github.com/xqlive/xiangqi-server/internal/v1/room"
)

// All helpers in this file assume the hub mutex is held by the caller.

// generateRoomID allocates a room identifier not currently in use: the first
// 8 hex characters of a random UUID, uppercased, regenerated on collision.
func (h *Hub) generateRoomID() string {
	for {
		id := strings.ToUpper(uuid.New().String()[:8])
		if _, exists := h.rooms[id]; !exists {
			return id
		}
	}
}

// broadcastToRoom serializes the event once and enqueues it to every current
// member except the excluded connections. Members whose connection has
// already gone away are skipped silently.
func (h *Hub) broadcastToRoom(rm *room.Room, event any, exclude ...room.ConnectionID) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal broadcast event", zap.Error(err))
		return
	}

	skip := set.New(exclude...)
	for _, id := range rm.MemberIDs() {
		if skip.Has(id) {
			continue
		}
		if c, ok := h.conns[id]; ok {
			c.sendRaw(data)
		}
	}
}

// sendToConn enqueues an event to a single connection if it is still
// registered.
func (h *Hub) sendToConn(id room.ConnectionID, event any) {
	if c, ok := h.conns[id]; ok {
		c.Send(event)
	}
}

// destroyRoom notifies the remaining members, then drops the room from the
// registry. Members' user sessions survive; only their room membership ends.
func (h *Hub) destroyRoom(id string, rm *room.Room) {
	h.broadcastToRoom(rm, roomDeletedEvent{
		Type:    "room_deleted",
		Message: "房主已退出，房间即将关闭",
	})

	delete(h.rooms, id)
	metrics.ActiveRooms.Dec()
	metrics.RoomMembers.DeleteLabelValues(id)

	h.publishEvent(id, "room_deleted", map[string]string{"room_name": rm.Name})
	logging.Info(context.Background(), "Room destroyed", zap.String("roomId", id))
}

// memberRoomOf returns the room the connection belongs to, or nil.
func (h *Hub) memberRoomOf(conn room.ConnectionID) (string, *room.Room) {
	for id, rm := range h.rooms {
		if rm.HasMember(conn) {
			return id, rm
		}
	}
	return "", nil
}

// playerRoomOf returns the room where the connection holds a player seat.
func (h *Hub) playerRoomOf(conn room.ConnectionID) (string, *room.Room) {
	for id, rm := range h.rooms {
		if m := rm.Member(conn); m != nil && m.Role == room.RolePlayer {
			return id, rm
		}
	}
	return "", nil
}

// ownedRoomByName returns the room the connection is in and owns, matching
// ownership by display name.
func (h *Hub) ownedRoomByName(conn room.ConnectionID, username string) *room.Room {
	for _, rm := range h.rooms {
		if rm.HasMember(conn) && rm.Owner == username {
			return rm
		}
	}
	return nil
}

// ownedRoomByConn returns the room the connection is in and owns, matching
// ownership by the bound owner connection.
func (h *Hub) ownedRoomByConn(conn room.ConnectionID) *room.Room {
	for _, rm := range h.rooms {
		if rm.HasMember(conn) && rm.OwnerConn == conn {
			return rm
		}
	}
	return nil
}

// connOfUsername resolves a display name to its connection.
func (h *Hub) connOfUsername(username string) (room.ConnectionID, bool) {
	for id, name := range h.sessions {
		if name == username {
			return id, true
		}
	}
	return "", false
}

// publishEvent mirrors an event to the Redis bus when one is configured.
// The hand-off is non-blocking: the bus worker performs the network
// round-trip outside the hub's critical section, and failures are logged
// inside the bus without affecting the caller.
func (h *Hub) publishEvent(roomID, event string, payload any) {
	if h.bus == nil {
		return
	}
	h.bus.PublishAsync(roomID, event, payload)
}

func nowISO() string {
	return time.Now().Format(time.RFC3339)
}
