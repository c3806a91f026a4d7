package messages

import "soundscape/server/fest"

// MessageType defines the type of message being sent
type MessageType string

const (
	MessageTypeLogin        MessageType = "login"
	MessageTypeLoginSuccess MessageType = "login_success"
	MessageTypeMove         MessageType = "move"
	MessageTypeChat         MessageType = "chat"
	MessageTypeServer       MessageType = "server"
	MessageTypeSound        MessageType = "sound"
	MessageTypeFest         MessageType = "fest"
	MessageTypeTile         MessageType = "tile"
	MessageTypeError        MessageType = "error"
)

// BaseMessage is the base structure for all messages
type BaseMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// LoginMessage represents a login request
type LoginMessage struct {
	Username string `json:"username"`
}

// LoginSuccessMessage represents a successful login response
type LoginSuccessMessage struct {
	PlayerID string `json:"player_id"`
	Room     string `json:"room"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Message  string `json:"message"`
}

// MoveMessage represents a player movement request
type MoveMessage struct {
	Direction string `json:"direction"` // north, south, east, west, northeast, northwest, southeast, southwest
}

// ChatMessage is player chat, and also carries digit input and /clear, /add commands.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ServerMessage is text addressed to one player by the room.
type ServerMessage struct {
	Text string `json:"text"`
}

// SoundMessage asks the client to play (or, at volume 0, preload) a clip.
type SoundMessage struct {
	Path   string  `json:"path"`
	Volume float64 `json:"volume"`
	Loop   bool    `json:"loop"`
}

// TileMessage tells a player which tile they now stand on.
type TileMessage struct {
	TileID    int    `json:"tile_id"`
	Path      string `json:"path"`
	Sequenced bool   `json:"sequenced"`
	Sequence  []int  `json:"sequence,omitempty"`
	Text      string `json:"text"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Server(text string) BaseMessage {
	return BaseMessage{Type: MessageTypeServer, Payload: ServerMessage{Text: text}}
}

func Sound(path string, volume float64) BaseMessage {
	return BaseMessage{Type: MessageTypeSound, Payload: SoundMessage{Path: path, Volume: volume, Loop: true}}
}

func Fest(env fest.Envelope) BaseMessage {
	return BaseMessage{Type: MessageTypeFest, Payload: env}
}

func Error(code, message string) BaseMessage {
	return BaseMessage{Type: MessageTypeError, Payload: ErrorMessage{Code: code, Message: message}}
}
