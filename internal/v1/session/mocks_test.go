package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/xqlive/xiangqi-server/internal/v1/config"
	"github.com/xqlive/xiangqi-server/internal/v1/game"
	"github.com/xqlive/xiangqi-server/internal/v1/room"
)

// boardWithRookMate is a position where the red rook at (9,0) can take the
// black king at (9,4) in one move.
func boardWithRookMate() game.Board {
	var b game.Board
	b[0][3] = &game.Piece{Type: game.King, Color: game.ColorRed}
	b[9][4] = &game.Piece{Type: game.King, Color: game.ColorBlack}
	b[9][0] = &game.Piece{Type: game.Rook, Color: game.ColorRed}
	return b
}

// mockConn implements wsConnection. Frames pushed to inbound are returned by
// ReadMessage; Close unblocks the reader.
type mockConn struct {
	inbound chan []byte

	mu      sync.Mutex
	written [][]byte

	closeOnce sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{inbound: make(chan []byte, 16)}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	data, ok := <-m.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, data, nil
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, data)
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.inbound) })
	return nil
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	return nil
}

func (m *mockConn) writtenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

// newTestHub builds a hub without rate limiting or a Redis bus.
func newTestHub() *Hub {
	cfg := &config.Config{
		MsgRatePerSec:  1000,
		MsgBurst:       1000,
		MaxChatHistory: 1000,
	}
	return NewHub(cfg, nil, nil, []string{"http://localhost:3000"})
}

// newTestClient registers a client with a buffered outbound channel and no
// socket; tests drive it through Dispatch and read events off the channel.
func newTestClient(h *Hub, id string) *Client {
	c := &Client{
		id:   room.ConnectionID(id),
		hub:  h,
		send: make(chan []byte, 64),
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	return c
}

// event is a decoded server-to-client frame.
type event map[string]any

// send dispatches a client-to-server command built from a map.
func send(t *testing.T, h *Hub, c *Client, cmd map[string]any) {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	h.Dispatch(c, data)
}

// recv pops the next queued event for the client.
func recv(t *testing.T, c *Client) event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

// recvType pops the next event and asserts its type tag.
func recvType(t *testing.T, c *Client, eventType string) event {
	t.Helper()
	ev := recv(t, c)
	require.Equal(t, eventType, ev["type"], "unexpected event: %v", ev)
	return ev
}

// assertNoEvent asserts the client's outbound queue is empty.
func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected event: %s", data)
	default:
	}
}

// drain discards all queued events.
func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// setupNamedClient registers a client and binds a display name.
func setupNamedClient(t *testing.T, h *Hub, id, username string) *Client {
	t.Helper()
	c := newTestClient(h, id)
	send(t, h, c, map[string]any{"action": "set_username", "username": username})
	recvType(t, c, "username_set")
	return c
}

// setupRoom creates a room owned by the client and joins the owner to it,
// returning the room id.
func setupRoom(t *testing.T, h *Hub, owner *Client, joinAs string) string {
	t.Helper()
	send(t, h, owner, map[string]any{"action": "create_room"})
	created := recvType(t, owner, "room_created")
	roomID := created["room_id"].(string)

	send(t, h, owner, map[string]any{"action": "join_room", "room_id": roomID, "join_as": joinAs})
	recvType(t, owner, "joined_room")
	return roomID
}

// joinRoom joins an already-named client to a room.
func joinRoom(t *testing.T, h *Hub, c *Client, roomID, joinAs string) {
	t.Helper()
	send(t, h, c, map[string]any{"action": "join_room", "room_id": roomID, "join_as": joinAs})
	recvType(t, c, "joined_room")
}
