package session

import (
	"github.com/xqlive/xiangqi-server/internal/v1/game"
	"github.com/xqlive/xiangqi-server/internal/v1/room"
)

// Command is the client-to-server frame. Every action shares one envelope;
// the action tag selects which fields are meaningful. Move coordinates are
// pointers so a missing field is distinguishable from a legitimate zero.
type Command struct {
	Action string `json:"action"`

	// set_username
	Username string `json:"username,omitempty"`

	// create_room. A nil password means the room is public.
	RoomName string  `json:"room_name,omitempty"`
	Password *string `json:"password,omitempty"`

	// join_room
	RoomID string `json:"room_id,omitempty"`
	JoinAs string `json:"join_as,omitempty"`

	// chat_message / private_message
	Message        string `json:"message,omitempty"`
	TargetUsername string `json:"target_username,omitempty"`

	// make_move
	FromRow *int `json:"from_row,omitempty"`
	FromCol *int `json:"from_col,omitempty"`
	ToRow   *int `json:"to_row,omitempty"`
	ToCol   *int `json:"to_col,omitempty"`

	// change_member_role / kick_member / mute_member / unmute_member
	TargetWebsocketID string `json:"target_websocket_id,omitempty"`
	NewRole           string `json:"new_role,omitempty"`
}

// Server-to-client events. Each is a flat JSON object tagged by "type".

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorEvent(message string) errorEvent {
	return errorEvent{Type: "error", Message: message}
}

type usernameSetEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type roomCreatedEvent struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	RoomName  string `json:"room_name"`
	IsPrivate bool   `json:"is_private"`
}

// roomSummary is one row of the lobby listing.
type roomSummary struct {
	RoomID     string      `json:"room_id"`
	RoomName   string      `json:"room_name"`
	IsPrivate  bool        `json:"is_private"`
	Players    int         `json:"players"`
	Spectators int         `json:"spectators"`
	GameStatus game.Status `json:"game_status"`
}

type roomListEvent struct {
	Type  string        `json:"type"`
	Rooms []roomSummary `json:"rooms"`
}

// joinedRoomEvent is the full snapshot sent to a member on entry: roster,
// chat replay, last move, and the complete game state.
type joinedRoomEvent struct {
	Type        string             `json:"type"`
	RoomID      string             `json:"room_id"`
	RoomName    string             `json:"room_name"`
	JoinAs      room.Role          `json:"join_as"`
	Players     []string           `json:"players"`
	Spectators  int                `json:"spectators"`
	MemberList  []room.MemberInfo  `json:"member_list"`
	ChatHistory []room.ChatMessage `json:"chat_history"`
	LastMove    *room.LastMove     `json:"last_move"`
	GameState   *game.Game         `json:"game_state"`
}

type userJoinedEvent struct {
	Type       string            `json:"type"`
	Username   string            `json:"username"`
	JoinAs     room.Role         `json:"join_as"`
	Players    []string          `json:"players"`
	Spectators int               `json:"spectators"`
	MemberList []room.MemberInfo `json:"member_list"`
}

type userLeftEvent struct {
	Type       string            `json:"type"`
	Username   string            `json:"username"`
	Players    []string          `json:"players"`
	Spectators int               `json:"spectators"`
	MemberList []room.MemberInfo `json:"member_list"`
}

type leftRoomEvent struct {
	Type string `json:"type"`
}

type chatMessageEvent struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type chatRejectedEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type moveMadeEvent struct {
	Type          string         `json:"type"`
	FromRow       int            `json:"from_row"`
	FromCol       int            `json:"from_col"`
	ToRow         int            `json:"to_row"`
	ToCol         int            `json:"to_col"`
	Player        string         `json:"player"`
	CurrentPlayer game.Color     `json:"current_player"`
	GameStatus    game.Status    `json:"game_status"`
	Winner        *game.Color    `json:"winner"`
	Board         game.Board     `json:"board"`
	LastMove      *room.LastMove `json:"last_move"`
}

type moveRejectedEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type gameStartedEvent struct {
	Type          string     `json:"type"`
	CurrentPlayer game.Color `json:"current_player"`
	Board         game.Board `json:"board"`
}

// privateMessageEvent doubles as private_message (recipient copy) and
// private_message_sent (sender echo); only the type tag differs.
type privateMessageEvent struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type memberRoleChangedEvent struct {
	Type       string            `json:"type"`
	Username   string            `json:"username"`
	NewRole    room.Role         `json:"new_role"`
	MemberList []room.MemberInfo `json:"member_list"`
	Players    []string          `json:"players"`
	Spectators int               `json:"spectators"`
}

type memberKickedEvent struct {
	Type       string            `json:"type"`
	Username   string            `json:"username"`
	MemberList []room.MemberInfo `json:"member_list"`
	Players    []string          `json:"players"`
	Spectators int               `json:"spectators"`
}

type kickedFromRoomEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type memberMutedEvent struct {
	Type       string            `json:"type"`
	Username   string            `json:"username"`
	MemberList []room.MemberInfo `json:"member_list"`
}

type memberListEvent struct {
	Type       string            `json:"type"`
	MemberList []room.MemberInfo `json:"member_list"`
	IsOwner    bool              `json:"is_owner"`
}

type roomDeletedEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
