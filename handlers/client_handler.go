package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"soundscape/server/messages"
	"soundscape/server/models"
	"soundscape/server/network"
	"soundscape/server/persistence"
	"soundscape/server/services"
)

// Deps are the services every client handler talks to.
type Deps struct {
	Players *services.PlayerService
	Room    *services.Room
	Clients *ClientManager
	Store   persistence.Storage
	Log     *log.Logger
}

// inbound mirrors messages.BaseMessage with the payload left undecoded.
type inbound struct {
	Type    messages.MessageType `json:"type"`
	Payload json.RawMessage      `json:"payload"`
}

// ClientHandler manages a single client connection. It is the room's
// recipient for that client.
type ClientHandler struct {
	ctx    context.Context
	conn   *network.Connection
	deps   Deps
	player *models.Player
	seq    atomic.Uint64
}

// HandleClientConnection serves one websocket until it closes.
func HandleClientConnection(ctx context.Context, wsConn *websocket.Conn, deps Deps) {
	if deps.Log == nil {
		deps.Log = log.Default()
	}
	conn := network.NewConnection(wsConn, deps.Log)
	handler := &ClientHandler{ctx: ctx, conn: conn, deps: deps}
	deps.Log.Printf("New connection from %s", conn.RemoteAddr())

	go conn.WritePump()
	conn.ReadPump(handler)

	if handler.player != nil {
		if err := deps.Room.Leave(context.WithoutCancel(ctx), handler.player.ID); err != nil {
			deps.Log.Printf("Error removing %s from room: %v", handler.player.Username, err)
		}
		deps.Clients.RemoveClient(handler.player.ID)
		deps.Players.Logout(handler.player)
		deps.Log.Printf("Player %s disconnected", handler.player.Username)
	}
}

// NextSeq hands out the per-client fest sequence number.
func (h *ClientHandler) NextSeq() uint64 { return h.seq.Add(1) }

func (h *ClientHandler) Send(msg messages.BaseMessage) error {
	return h.conn.SendMessage(msg)
}

// HandleMessage handles incoming messages from the client
func (h *ClientHandler) HandleMessage(_ *network.Connection, message []byte) {
	var msg inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		h.deps.Log.Printf("Error unmarshaling message: %v", err)
		h.sendError("BAD_MESSAGE", "Malformed message")
		return
	}

	switch msg.Type {
	case messages.MessageTypeLogin:
		h.handleLogin(msg.Payload)
	case messages.MessageTypeMove:
		h.handleMove(msg.Payload)
	case messages.MessageTypeChat:
		h.handleChat(msg.Payload)
	default:
		h.deps.Log.Printf("Unknown message type: %s", msg.Type)
		h.sendError("UNKNOWN_MESSAGE_TYPE", "Unknown message type received")
	}
}

func (h *ClientHandler) handleLogin(payload json.RawMessage) {
	if h.player != nil {
		h.sendError("ALREADY_LOGGED_IN", "Already logged in")
		return
	}
	var loginMsg messages.LoginMessage
	if err := json.Unmarshal(payload, &loginMsg); err != nil {
		h.deps.Log.Printf("Error unmarshaling login message: %v", err)
		h.sendError("BAD_MESSAGE", "Malformed login")
		return
	}

	player, err := h.deps.Players.Login(loginMsg.Username)
	if err != nil {
		h.deps.Log.Printf("Login for %q failed: %v", loginMsg.Username, err)
		h.sendError("LOGIN_FAILED", err.Error())
		return
	}

	// Login success goes out before the room can queue its preload messages.
	success := messages.BaseMessage{
		Type: messages.MessageTypeLoginSuccess,
		Payload: messages.LoginSuccessMessage{
			PlayerID: player.ID,
			Room:     h.deps.Room.Name(),
			X:        player.X,
			Y:        player.Y,
			Message:  "Login successful",
		},
	}
	if err := h.Send(success); err != nil {
		h.deps.Log.Printf("Error sending login success: %v", err)
		h.deps.Players.Logout(player)
		return
	}

	if err := joinRoom(h.ctx, h.deps.Room, player, h); err != nil {
		h.deps.Log.Printf("Error joining room: %v", err)
		h.deps.Players.Logout(player)
		h.sendError("LOGIN_FAILED", "Could not enter the room")
		return
	}
	h.player = player
	h.deps.Clients.AddClient(player.ID, h)
}

// joinRoom enters the room. A join abandoned because ctx ended may already
// have been applied by the room loop, so it is undone with a Leave.
func joinRoom(ctx context.Context, room *services.Room, player *models.Player, to services.Recipient) error {
	err := room.Join(ctx, player, to)
	if err != nil && ctx.Err() != nil {
		if lerr := room.Leave(context.WithoutCancel(ctx), player.ID); lerr != nil {
			return errors.Join(err, lerr)
		}
	}
	return err
}

func (h *ClientHandler) handleMove(payload json.RawMessage) {
	if h.player == nil {
		h.sendError("NOT_AUTHENTICATED", "Log in first")
		return
	}
	var moveMsg messages.MoveMessage
	if err := json.Unmarshal(payload, &moveMsg); err != nil {
		h.sendError("BAD_MESSAGE", "Malformed move")
		return
	}

	if _, err := h.deps.Room.Move(h.ctx, h.player.ID, moveMsg.Direction); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidDirection), errors.Is(err, services.ErrOutOfBounds):
			h.sendError("INVALID_MOVE", err.Error())
		default:
			h.deps.Log.Printf("Error moving %s: %v", h.player.Username, err)
		}
	}
}

func (h *ClientHandler) handleChat(payload json.RawMessage) {
	if h.player == nil {
		h.sendError("NOT_AUTHENTICATED", "Log in first")
		return
	}
	var chatMsg messages.ChatMessage
	if err := json.Unmarshal(payload, &chatMsg); err != nil {
		h.sendError("BAD_MESSAGE", "Malformed chat")
		return
	}
	if err := h.deps.Room.Chat(h.ctx, h.player.ID, chatMsg.Message); err != nil {
		h.deps.Log.Printf("Error forwarding chat from %s: %v", h.player.Username, err)
	}
}

func (h *ClientHandler) sendError(code, text string) {
	if err := h.Send(messages.Error(code, text)); err != nil {
		h.deps.Log.Printf("Error sending %s: %v", code, err)
	}
}
