package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xqlive/xiangqi-server/internal/v1/game"
	"github.com/xqlive/xiangqi-server/internal/v1/logging"
	"github.com/xqlive/xiangqi-server/internal/v1/metrics"
	"github.com/xqlive/xiangqi-server/internal/v1/room"
)

// Command handlers. Each runs under the hub mutex (see Dispatch); room
// mutation and event enqueueing are atomic with respect to other commands.
// The boolean result reports whether the command was rejected (an error or
// rejection event was sent); Dispatch folds it into the outcome metric.

func (h *Hub) handleSetUsername(c *Client, cmd *Command) bool {
	username := strings.TrimSpace(cmd.Username)
	if username == "" {
		c.Send(newErrorEvent("Username cannot be empty"))
		return false
	}

	for id, existing := range h.sessions {
		if id != c.id && existing == username {
			c.Send(newErrorEvent(fmt.Sprintf("用户名 \"%s\" 已被使用，请选择其他用户名", username)))
			return false
		}
	}

	h.sessions[c.id] = username
	c.Send(usernameSetEvent{Type: "username_set", Username: username})
	return true
}

func (h *Hub) handleCreateRoom(c *Client, cmd *Command) bool {
	username, ok := h.sessions[c.id]
	if !ok {
		c.Send(newErrorEvent("Please set username first"))
		return false
	}

	roomName := cmd.RoomName
	if roomName == "" {
		roomName = fmt.Sprintf("%s's room", username)
	}

	password := ""
	if cmd.Password != nil {
		password = *cmd.Password
	}

	id := h.generateRoomID()
	h.rooms[id] = room.New(id, roomName, password, username, h.maxChatHistory)

	metrics.ActiveRooms.Inc()
	h.publishEvent(id, "room_created", map[string]any{
		"room_name":  roomName,
		"owner":      username,
		"is_private": cmd.Password != nil,
	})
	logging.Info(context.Background(), "Room created",
		zap.String("roomId", id),
		zap.String("owner", username),
		zap.Bool("private", cmd.Password != nil))

	c.Send(roomCreatedEvent{
		Type:      "room_created",
		RoomID:    id,
		RoomName:  roomName,
		IsPrivate: cmd.Password != nil,
	})
	return true
}

func (h *Hub) handleJoinRoom(c *Client, cmd *Command) bool {
	username, ok := h.sessions[c.id]
	if !ok {
		c.Send(newErrorEvent("Please set username first"))
		return false
	}

	rm, exists := h.rooms[cmd.RoomID]
	if !exists {
		c.Send(newErrorEvent("Room not found"))
		return false
	}

	password := ""
	if cmd.Password != nil {
		password = *cmd.Password
	}
	if !rm.CheckPassword(password) {
		c.Send(newErrorEvent("Incorrect password"))
		return false
	}

	requested := room.RoleSpectator
	if cmd.JoinAs == "player" {
		requested = room.RolePlayer
	}
	rejoin := rm.HasMember(c.id)
	granted := rm.AddMember(c.id, username, requested)
	metrics.RoomMembers.WithLabelValues(rm.ID).Set(float64(rm.Size()))

	c.Send(joinedRoomEvent{
		Type:        "joined_room",
		RoomID:      rm.ID,
		RoomName:    rm.Name,
		JoinAs:      granted,
		Players:     rm.PlayerNames(),
		Spectators:  rm.SpectatorCount(),
		MemberList:  rm.MemberList(),
		ChatHistory: rm.ChatHistory(),
		LastMove:    rm.LastMove(),
		GameState:   rm.Game(),
	})

	// A repeated join only refreshes the joiner's snapshot; the roster did
	// not change, so the room is not notified again.
	if rejoin {
		return true
	}

	h.broadcastToRoom(rm, userJoinedEvent{
		Type:       "user_joined",
		Username:   username,
		JoinAs:     granted,
		Players:    rm.PlayerNames(),
		Spectators: rm.SpectatorCount(),
		MemberList: rm.MemberList(),
	}, c.id)
	return true
}

func (h *Hub) handleLeaveRoom(c *Client) bool {
	if id, rm := h.memberRoomOf(c.id); rm != nil {
		username, ok := h.sessions[c.id]
		if !ok {
			username = "Unknown"
		}

		wasOwner := rm.RemoveMember(c.id)

		h.broadcastToRoom(rm, userLeftEvent{
			Type:       "user_left",
			Username:   username,
			Players:    rm.PlayerNames(),
			Spectators: rm.SpectatorCount(),
			MemberList: rm.MemberList(),
		})

		if wasOwner {
			h.destroyRoom(id, rm)
		} else {
			metrics.RoomMembers.WithLabelValues(id).Set(float64(rm.Size()))
		}
	}

	c.Send(leftRoomEvent{Type: "left_room"})
	return true
}

func (h *Hub) handleGetRoomList(c *Client) bool {
	rooms := make([]roomSummary, 0, len(h.rooms))
	for _, rm := range h.rooms {
		rooms = append(rooms, roomSummary{
			RoomID:     rm.ID,
			RoomName:   rm.Name,
			IsPrivate:  rm.IsPrivate(),
			Players:    rm.PlayerCount(),
			Spectators: rm.SpectatorCount(),
			GameStatus: rm.Game().Status,
		})
	}

	c.Send(roomListEvent{Type: "room_list", Rooms: rooms})
	return true
}

func (h *Hub) handleChatMessage(c *Client, cmd *Command) bool {
	username, ok := h.sessions[c.id]
	if !ok {
		return true
	}

	text := strings.TrimSpace(cmd.Message)
	if text == "" {
		return true
	}

	_, rm := h.memberRoomOf(c.id)
	if rm == nil {
		return true
	}

	if rm.IsMuted(c.id) {
		c.Send(chatRejectedEvent{Type: "chat_rejected", Reason: "您已被禁言，无法发送消息"})
		return false
	}

	msg := rm.AppendChat(username, text)
	h.broadcastToRoom(rm, chatMessageEvent{
		Type:      "chat_message",
		Username:  msg.Username,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	})
	return true
}

func (h *Hub) handleMakeMove(c *Client, cmd *Command) bool {
	username, ok := h.sessions[c.id]
	if !ok {
		return true
	}

	roomID, rm := h.playerRoomOf(c.id)
	if rm == nil {
		c.Send(newErrorEvent("You are not a player in any room"))
		return false
	}

	if rm.PlayerCount() != 2 {
		c.Send(newErrorEvent("Need 2 players to make moves"))
		return false
	}

	color, _ := rm.PlayerColor(c.id)

	if cmd.FromRow == nil || cmd.FromCol == nil || cmd.ToRow == nil || cmd.ToCol == nil {
		c.Send(newErrorEvent("Invalid move parameters"))
		return false
	}
	move := game.Move{
		FromRow: *cmd.FromRow,
		FromCol: *cmd.FromCol,
		ToRow:   *cmd.ToRow,
		ToCol:   *cmd.ToCol,
	}

	g := rm.Game()
	if err := g.Validate(move, color); err != nil {
		// Potential cheating attempt: accuse publicly, reject privately.
		accusation := fmt.Sprintf("%s可能在作弊，已经拦截！", username)
		msg := rm.AppendChat("System", accusation)
		h.broadcastToRoom(rm, chatMessageEvent{
			Type:      "chat_message",
			Username:  msg.Username,
			Message:   msg.Message,
			Timestamp: msg.Timestamp,
		})

		c.Send(moveRejectedEvent{Type: "move_rejected", Reason: err.Error()})
		metrics.Moves.WithLabelValues("rejected").Inc()
		return false
	}

	g.Apply(move)
	metrics.Moves.WithLabelValues("accepted").Inc()

	lastMove := &room.LastMove{
		FromRow: move.FromRow,
		FromCol: move.FromCol,
		ToRow:   move.ToRow,
		ToCol:   move.ToCol,
		Player:  username,
	}
	rm.SetLastMove(lastMove)

	if g.Status == game.StatusFinished && g.Winner != nil {
		metrics.GamesFinished.WithLabelValues(string(*g.Winner)).Inc()
		h.publishEvent(roomID, "game_finished", map[string]any{
			"winner":  *g.Winner,
			"players": rm.PlayerNames(),
		})
		logging.Info(context.Background(), "Game finished",
			zap.String("roomId", roomID),
			zap.String("winner", string(*g.Winner)))
	}

	h.broadcastToRoom(rm, moveMadeEvent{
		Type:          "move_made",
		FromRow:       move.FromRow,
		FromCol:       move.FromCol,
		ToRow:         move.ToRow,
		ToCol:         move.ToCol,
		Player:        username,
		CurrentPlayer: g.CurrentPlayer,
		GameStatus:    g.Status,
		Winner:        g.Winner,
		Board:         g.Board,
		LastMove:      lastMove,
	})
	return true
}

func (h *Hub) handleStartGame(c *Client) bool {
	username := h.sessions[c.id]

	var roomID string
	var rm *room.Room
	for id, candidate := range h.rooms {
		m := candidate.Member(c.id)
		if candidate.Owner == username && m != nil && m.Role == room.RolePlayer {
			roomID, rm = id, candidate
			break
		}
	}

	if rm == nil {
		c.Send(newErrorEvent("Only room owner can start the game"))
		return false
	}

	if rm.PlayerCount() != 2 {
		c.Send(newErrorEvent("Need 2 players to start game"))
		return false
	}

	g := rm.Game()
	g.Status = game.StatusPlaying

	h.publishEvent(roomID, "game_started", map[string]any{"players": rm.PlayerNames()})
	logging.Info(context.Background(), "Game started", zap.String("roomId", roomID))

	h.broadcastToRoom(rm, gameStartedEvent{
		Type:          "game_started",
		CurrentPlayer: g.CurrentPlayer,
		Board:         g.Board,
	})
	return true
}

func (h *Hub) handlePrivateMessage(c *Client, cmd *Command) bool {
	sender, ok := h.sessions[c.id]
	if !ok {
		return true
	}

	text := strings.TrimSpace(cmd.Message)
	if cmd.TargetUsername == "" || text == "" {
		c.Send(newErrorEvent("Invalid private message"))
		return false
	}

	target, found := h.connOfUsername(cmd.TargetUsername)
	if !found {
		c.Send(newErrorEvent("User not found"))
		return false
	}

	ts := nowISO()
	h.sendToConn(target, privateMessageEvent{
		Type:      "private_message",
		From:      sender,
		To:        cmd.TargetUsername,
		Message:   text,
		Timestamp: ts,
	})
	c.Send(privateMessageEvent{
		Type:      "private_message_sent",
		From:      sender,
		To:        cmd.TargetUsername,
		Message:   text,
		Timestamp: ts,
	})
	return true
}

func (h *Hub) handleChangeMemberRole(c *Client, cmd *Command) bool {
	username, ok := h.sessions[c.id]
	if !ok {
		return true
	}

	rm := h.ownedRoomByName(c.id, username)
	if rm == nil {
		c.Send(newErrorEvent("You are not a room owner or not in any room"))
		return false
	}

	target := room.ConnectionID(cmd.TargetWebsocketID)
	if !rm.HasMember(target) {
		c.Send(newErrorEvent("Target user not in room"))
		return false
	}

	if !rm.ChangeRole(target, room.Role(cmd.NewRole)) {
		c.Send(newErrorEvent("Failed to change role"))
		return false
	}

	h.broadcastToRoom(rm, memberRoleChangedEvent{
		Type:       "member_role_changed",
		Username:   rm.Member(target).Username,
		NewRole:    room.Role(cmd.NewRole),
		MemberList: rm.MemberList(),
		Players:    rm.PlayerNames(),
		Spectators: rm.SpectatorCount(),
	})
	return true
}

func (h *Hub) handleKickMember(c *Client, cmd *Command) bool {
	username, ok := h.sessions[c.id]
	if !ok {
		return true
	}

	rm := h.ownedRoomByName(c.id, username)
	if rm == nil {
		c.Send(newErrorEvent("You are not a room owner or not in any room"))
		return false
	}

	target := room.ConnectionID(cmd.TargetWebsocketID)
	if !rm.Kick(target) {
		c.Send(newErrorEvent("Failed to kick member"))
		return false
	}

	targetUsername, ok := h.sessions[target]
	if !ok {
		targetUsername = "Unknown"
	}
	metrics.RoomMembers.WithLabelValues(rm.ID).Set(float64(rm.Size()))

	h.sendToConn(target, kickedFromRoomEvent{
		Type:    "kicked_from_room",
		Message: "你已被房主踢出房间",
	})

	h.broadcastToRoom(rm, memberKickedEvent{
		Type:       "member_kicked",
		Username:   targetUsername,
		MemberList: rm.MemberList(),
		Players:    rm.PlayerNames(),
		Spectators: rm.SpectatorCount(),
	}, target)
	return true
}

func (h *Hub) handleGetMemberList(c *Client) bool {
	_, rm := h.memberRoomOf(c.id)
	if rm == nil {
		c.Send(newErrorEvent("Not in any room"))
		return false
	}

	c.Send(memberListEvent{
		Type:       "member_list",
		MemberList: rm.MemberList(),
		IsOwner:    c.id == rm.OwnerConn,
	})
	return true
}

func (h *Hub) handleMuteMember(c *Client, cmd *Command) bool {
	if cmd.TargetWebsocketID == "" {
		c.Send(newErrorEvent("Target websocket ID required"))
		return false
	}

	rm := h.ownedRoomByConn(c.id)
	if rm == nil {
		c.Send(newErrorEvent("Only room owner can mute members"))
		return false
	}

	target := room.ConnectionID(cmd.TargetWebsocketID)
	m := rm.Member(target)
	if m == nil {
		c.Send(newErrorEvent("Target user not in room"))
		return false
	}

	if !rm.Mute(target) {
		c.Send(newErrorEvent("Failed to mute member"))
		return false
	}

	h.broadcastToRoom(rm, memberMutedEvent{
		Type:       "member_muted",
		Username:   m.Username,
		MemberList: rm.MemberList(),
	})
	return true
}

func (h *Hub) handleUnmuteMember(c *Client, cmd *Command) bool {
	if cmd.TargetWebsocketID == "" {
		c.Send(newErrorEvent("Target websocket ID required"))
		return false
	}

	rm := h.ownedRoomByConn(c.id)
	if rm == nil {
		c.Send(newErrorEvent("Only room owner can unmute members"))
		return false
	}

	target := room.ConnectionID(cmd.TargetWebsocketID)
	m := rm.Member(target)
	if m == nil {
		c.Send(newErrorEvent("Target user not in room"))
		return false
	}

	if !rm.Unmute(target) {
		c.Send(newErrorEvent("Failed to unmute member"))
		return false
	}

	h.broadcastToRoom(rm, memberMutedEvent{
		Type:       "member_unmuted",
		Username:   m.Username,
		MemberList: rm.MemberList(),
	})
	return true
}
