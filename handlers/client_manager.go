package handlers

import (
	"log"
	"sync"

	"soundscape/server/messages"
)

// ClientManager indexes live sessions by player id. The room addresses
// players itself; the manager exists for server-wide notices and shutdown.
type ClientManager struct {
	mu      sync.RWMutex
	clients map[string]*ClientHandler
	log     *log.Logger
}

func NewClientManager(logger *log.Logger) *ClientManager {
	if logger == nil {
		logger = log.Default()
	}
	return &ClientManager{
		clients: make(map[string]*ClientHandler),
		log:     logger,
	}
}

// AddClient registers the session for playerID.
func (cm *ClientManager) AddClient(playerID string, handler *ClientHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[playerID] = handler
}

func (cm *ClientManager) RemoveClient(playerID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, playerID)
}

func (cm *ClientManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

func (cm *ClientManager) snapshot() map[string]*ClientHandler {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make(map[string]*ClientHandler, len(cm.clients))
	for id, c := range cm.clients {
		out[id] = c
	}
	return out
}

// BroadcastToAll queues msg on every session. A full send buffer only costs
// that client the message.
func (cm *ClientManager) BroadcastToAll(msg messages.BaseMessage) {
	for id, client := range cm.snapshot() {
		if err := client.Send(msg); err != nil {
			cm.log.Printf("broadcast %s to %s: %v", msg.Type, id, err)
		}
	}
}

// CloseAll sends reason as a server notice and then closes every session.
func (cm *ClientManager) CloseAll(reason string) {
	cm.BroadcastToAll(messages.Server(reason))
	for _, client := range cm.snapshot() {
		client.conn.Close()
	}
}
