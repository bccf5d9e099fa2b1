package session

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xqlive/xiangqi-server/internal/v1/metrics"
	"github.com/xqlive/xiangqi-server/internal/v1/room"
)

func TestGenerateRoomID(t *testing.T) {
	h := newTestHub()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := h.generateRoomID()
		assert.Len(t, id, 8)
		assert.Equal(t, strings.ToUpper(id), id)
		assert.False(t, seen[id], "duplicate room id %s", id)
		seen[id] = true
	}
}

func TestGenerateRoomID_RetriesOnCollision(t *testing.T) {
	h := newTestHub()

	// Occupy many ids; a fresh id must not collide with the registry.
	for i := 0; i < 50; i++ {
		h.rooms[h.generateRoomID()] = nil
	}
	id := h.generateRoomID()
	_, exists := h.rooms[id]
	assert.False(t, exists)
}

func TestHandleConnection_Lifecycle(t *testing.T) {
	h := newTestHub()
	conn := newMockConn()

	client := h.HandleConnection(conn)
	require.NotNil(t, client)

	h.mu.Lock()
	_, registered := h.conns[client.id]
	h.mu.Unlock()
	assert.True(t, registered)

	// Drive a full command through the real pumps.
	conn.inbound <- []byte(`{"action":"set_username","username":"zed"}`)
	require.Eventually(t, func() bool {
		return conn.writtenCount() >= 1
	}, time.Second, 5*time.Millisecond)

	conn.mu.Lock()
	first := string(conn.written[0])
	conn.mu.Unlock()
	assert.Contains(t, first, `"username_set"`)
	assert.Contains(t, first, `"zed"`)

	// Closing the socket runs the disconnect path and deregisters.
	conn.Close()
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.conns) == 0 && len(h.sessions) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHandleConnection_OwnerDisconnectTearsRoomDown(t *testing.T) {
	h := newTestHub()
	ownerConn := newMockConn()
	owner := h.HandleConnection(ownerConn)

	ownerConn.inbound <- []byte(`{"action":"set_username","username":"alice"}`)
	ownerConn.inbound <- []byte(`{"action":"create_room"}`)
	require.Eventually(t, func() bool { return ownerConn.writtenCount() >= 2 }, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	require.Len(t, h.rooms, 1)
	var roomID string
	for id := range h.rooms {
		roomID = id
	}
	h.rooms[roomID].AddMember(owner.id, "alice", room.RolePlayer)
	h.mu.Unlock()

	ownerConn.Close()
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.rooms) == 0 && len(h.conns) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestShutdown(t *testing.T) {
	h := newTestHub()
	conns := []*mockConn{newMockConn(), newMockConn(), newMockConn()}
	for _, conn := range conns {
		h.HandleConnection(conn)
	}

	alice := setupNamedClient(t, h, "x1", "alice")
	setupRoom(t, h, alice, "player")

	require.NoError(t, h.Shutdown(t.Context()))

	h.mu.Lock()
	roomCount := len(h.rooms)
	h.mu.Unlock()
	assert.Equal(t, 0, roomCount)

	// Each writePump flushes a close frame and the pumps exit.
	for _, conn := range conns {
		require.Eventually(t, func() bool { return conn.writtenCount() >= 1 }, time.Second, 5*time.Millisecond)
	}
}

func TestBroadcastToRoom_Exclude(t *testing.T) {
	h := newTestHub()
	alice := setupNamedClient(t, h, "c1", "alice")
	roomID := setupRoom(t, h, alice, "player")
	bob := setupNamedClient(t, h, "c2", "bob")
	joinRoom(t, h, bob, roomID, "spectator")
	drain(alice)

	h.mu.Lock()
	rm := h.rooms[roomID]
	h.broadcastToRoom(rm, leftRoomEvent{Type: "probe"}, bob.id)
	h.mu.Unlock()

	recvType(t, alice, "probe")
	assertNoEvent(t, bob)
}

func TestBroadcastToRoom_SkipsDepartedConnections(t *testing.T) {
	h := newTestHub()
	alice := setupNamedClient(t, h, "c1", "alice")
	roomID := setupRoom(t, h, alice, "player")
	bob := setupNamedClient(t, h, "c2", "bob")
	joinRoom(t, h, bob, roomID, "spectator")
	drain(alice)

	// Simulate a connection that vanished without leaving the room.
	h.mu.Lock()
	delete(h.conns, bob.id)
	rm := h.rooms[roomID]
	h.broadcastToRoom(rm, leftRoomEvent{Type: "probe"})
	h.mu.Unlock()

	recvType(t, alice, "probe")
	assertNoEvent(t, bob)
}

func TestDispatch_OutcomeLabels(t *testing.T) {
	h := newTestHub()
	c := setupNamedClient(t, h, "c1", "alice")

	okBefore := testutil.ToFloat64(metrics.WebsocketEvents.WithLabelValues("join_room", "ok"))
	errBefore := testutil.ToFloat64(metrics.WebsocketEvents.WithLabelValues("join_room", "error"))

	// A rejected command must not be counted as "ok".
	send(t, h, c, map[string]any{"action": "join_room", "room_id": "NOPE1234"})
	recvType(t, c, "error")

	assert.Equal(t, okBefore, testutil.ToFloat64(metrics.WebsocketEvents.WithLabelValues("join_room", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.WebsocketEvents.WithLabelValues("join_room", "error")))

	// A successful command lands on the "ok" side.
	send(t, h, c, map[string]any{"action": "create_room"})
	recvType(t, c, "room_created")
	roomOK := testutil.ToFloat64(metrics.WebsocketEvents.WithLabelValues("create_room", "ok"))
	assert.GreaterOrEqual(t, roomOK, float64(1))
}

func TestSendToClosedClient_DoesNotPanic(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "c1")
	c.Disconnect()

	assert.NotPanics(t, func() {
		c.Send(newErrorEvent("after close"))
	})
}
