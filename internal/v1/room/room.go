// Package room implements the in-memory aggregate for one Xiangqi room: the
// game, its audience (players and spectators), the mute set, the chat log,
// and the last accepted move.
//
// Concurrency Design:
// A Room has no mutex of its own. Every mutation runs inside the session
// hub's critical section, which serializes all command processing
// (single-mutex model: registry before room state). Rooms must never be
// touched outside that lock.
package room

import (
	"time"

	"github.com/xqlive/xiangqi-server/internal/v1/game"
)

// ConnectionID is the opaque stable identifier assigned to a transport
// connection on accept. Rooms hold ConnectionIDs, never connection handles;
// the hub resolves IDs to connections on demand, keeping ownership acyclic.
type ConnectionID string

// Role is a member's standing within a room.
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Member is the per-room record for one connection.
type Member struct {
	Username string
	Role     Role
	JoinTime time.Time
	Muted    bool
}

// ChatMessage is one entry of the append-only room chat log.
type ChatMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// LastMove records the most recent accepted move for the UI arrow indicator.
// Overwritten on every accepted move.
type LastMove struct {
	FromRow int    `json:"from_row"`
	FromCol int    `json:"from_col"`
	ToRow   int    `json:"to_row"`
	ToCol   int    `json:"to_col"`
	Player  string `json:"player"`
}

// MemberInfo is the wire shape of one member list entry.
type MemberInfo struct {
	WebsocketID string `json:"websocket_id"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	IsOwner     bool   `json:"is_owner"`
	IsMuted     bool   `json:"is_muted"`
	JoinTime    string `json:"join_time"`
}

// Room aggregates one game plus its audience.
//
// Invariants:
//   - At most 2 members hold RolePlayer at any time.
//   - A connection appears at most once.
//   - The owner cannot be kicked or muted.
//   - Among current players, the first to have joined plays red, the
//     second black.
type Room struct {
	ID        string
	Name      string
	Owner     string // display name of the creator
	OwnerConn ConnectionID
	CreatedAt time.Time

	password string

	members     map[ConnectionID]*Member
	memberOrder []ConnectionID // join order, for stable rosters and fan-out
	playerOrder []ConnectionID // join order among players; index 0 is red

	chat     []ChatMessage
	maxChat  int
	lastMove *LastMove

	game *game.Game
}

// New creates a room. An empty password makes the room public. maxChat caps
// the retained chat log (0 = unbounded); late joiners replay what remains.
func New(id, name, password, owner string, maxChat int) *Room {
	return &Room{
		ID:        id,
		Name:      name,
		Owner:     owner,
		CreatedAt: time.Now(),
		password:  password,
		members:   make(map[ConnectionID]*Member),
		maxChat:   maxChat,
		game:      game.NewGame(),
	}
}

// IsPrivate reports whether joining requires a password.
func (r *Room) IsPrivate() bool {
	return r.password != ""
}

// CheckPassword reports whether the supplied password grants entry.
func (r *Room) CheckPassword(password string) bool {
	return !r.IsPrivate() || password == r.password
}

// Game returns the room's game state.
func (r *Room) Game() *game.Game {
	return r.game
}

// AddMember admits a connection with the requested role and returns the role
// actually granted: a player request is silently downgraded to spectator
// when both player seats are taken. Joining as the creator binds OwnerConn.
// Re-adding a current member is idempotent and returns its existing role.
func (r *Room) AddMember(conn ConnectionID, username string, requested Role) Role {
	if username == r.Owner {
		r.OwnerConn = conn
	}

	// Membership is keyed by connection: a repeated join refreshes the
	// record in place and keeps its role. The order slices must never
	// carry a connection twice.
	if m, ok := r.members[conn]; ok {
		m.Username = username
		return m.Role
	}

	role := requested
	if role != RolePlayer {
		role = RoleSpectator
	}
	if role == RolePlayer && len(r.playerOrder) >= 2 {
		role = RoleSpectator
	}

	r.members[conn] = &Member{
		Username: username,
		Role:     role,
		JoinTime: time.Now(),
	}
	r.memberOrder = append(r.memberOrder, conn)
	if role == RolePlayer {
		r.playerOrder = append(r.playerOrder, conn)
	}

	return role
}

// Member returns the record for a connection, or nil if absent.
func (r *Room) Member(conn ConnectionID) *Member {
	return r.members[conn]
}

// HasMember reports whether the connection is in the room.
func (r *Room) HasMember(conn ConnectionID) bool {
	_, ok := r.members[conn]
	return ok
}

// RemoveMember drops a connection from the room and reports whether it
// belonged to the owner, in which case the caller must destroy the room.
func (r *Room) RemoveMember(conn ConnectionID) (wasOwner bool) {
	m, ok := r.members[conn]
	if !ok {
		return false
	}

	delete(r.members, conn)
	r.memberOrder = removeID(r.memberOrder, conn)
	r.playerOrder = removeID(r.playerOrder, conn)

	return m.Username == r.Owner
}

// ChangeRole moves a member between the player seats and the audience.
// Promotion fails when both seats are taken; the member keeps its old role.
func (r *Room) ChangeRole(conn ConnectionID, newRole Role) bool {
	m, ok := r.members[conn]
	if !ok {
		return false
	}

	switch newRole {
	case RolePlayer:
		if m.Role == RolePlayer {
			return true
		}
		if len(r.playerOrder) >= 2 {
			return false
		}
		m.Role = RolePlayer
		r.playerOrder = append(r.playerOrder, conn)
		return true
	case RoleSpectator:
		if m.Role == RolePlayer {
			r.playerOrder = removeID(r.playerOrder, conn)
		}
		m.Role = RoleSpectator
		return true
	}
	return false
}

// Kick removes a member. The owner cannot be kicked.
func (r *Room) Kick(conn ConnectionID) bool {
	m, ok := r.members[conn]
	if !ok || m.Username == r.Owner {
		return false
	}
	r.RemoveMember(conn)
	return true
}

// Mute flags a member so the hub rejects its chat. The owner cannot be muted.
func (r *Room) Mute(conn ConnectionID) bool {
	m, ok := r.members[conn]
	if !ok || m.Username == r.Owner {
		return false
	}
	m.Muted = true
	return true
}

// Unmute clears a member's muted flag.
func (r *Room) Unmute(conn ConnectionID) bool {
	m, ok := r.members[conn]
	if !ok {
		return false
	}
	m.Muted = false
	return true
}

// IsMuted reports whether a member's chat is suppressed.
func (r *Room) IsMuted(conn ConnectionID) bool {
	m, ok := r.members[conn]
	return ok && m.Muted
}

// AppendChat appends an entry to the chat log and returns it. When the log
// cap is reached the oldest entries are dropped.
func (r *Room) AppendChat(username, message string) ChatMessage {
	msg := ChatMessage{
		Username:  username,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	r.chat = append(r.chat, msg)
	if r.maxChat > 0 && len(r.chat) > r.maxChat {
		r.chat = r.chat[len(r.chat)-r.maxChat:]
	}
	return msg
}

// ChatHistory returns the retained chat log, oldest first. Never nil, so the
// wire snapshot serializes as an empty array rather than null.
func (r *Room) ChatHistory() []ChatMessage {
	if r.chat == nil {
		return []ChatMessage{}
	}
	return r.chat
}

// SetLastMove records the most recent accepted move.
func (r *Room) SetLastMove(lm *LastMove) {
	r.lastMove = lm
}

// LastMove returns the most recent accepted move, or nil before the first.
func (r *Room) LastMove() *LastMove {
	return r.lastMove
}

// MemberIDs returns every member connection in join order.
func (r *Room) MemberIDs() []ConnectionID {
	ids := make([]ConnectionID, len(r.memberOrder))
	copy(ids, r.memberOrder)
	return ids
}

// MemberList returns the roster in the wire shape, join order preserved.
func (r *Room) MemberList() []MemberInfo {
	list := make([]MemberInfo, 0, len(r.memberOrder))
	for _, conn := range r.memberOrder {
		m := r.members[conn]
		list = append(list, MemberInfo{
			WebsocketID: string(conn),
			Username:    m.Username,
			Role:        m.Role,
			IsOwner:     m.Username == r.Owner,
			IsMuted:     m.Muted,
			JoinTime:    m.JoinTime.Format(time.RFC3339),
		})
	}
	return list
}

// PlayerNames returns the player display names, red first.
func (r *Room) PlayerNames() []string {
	names := make([]string, 0, len(r.playerOrder))
	for _, conn := range r.playerOrder {
		names = append(names, r.members[conn].Username)
	}
	return names
}

// PlayerColor returns the color a player connection commands: red for the
// first seated player, black for the second.
func (r *Room) PlayerColor(conn ConnectionID) (game.Color, bool) {
	for i, id := range r.playerOrder {
		if id == conn {
			if i == 0 {
				return game.ColorRed, true
			}
			return game.ColorBlack, true
		}
	}
	return "", false
}

// PlayerCount returns the number of seated players.
func (r *Room) PlayerCount() int {
	return len(r.playerOrder)
}

// SpectatorCount returns the number of members in the audience.
func (r *Room) SpectatorCount() int {
	return len(r.members) - len(r.playerOrder)
}

// Size returns the total number of members.
func (r *Room) Size() int {
	return len(r.members)
}

func removeID(ids []ConnectionID, conn ConnectionID) []ConnectionID {
	for i, id := range ids {
		if id == conn {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
