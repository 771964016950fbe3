package ws

import (
	"encoding/json"
	"log"
	"sync"

	"parcelhop/internal/envelope"
	"parcelhop/internal/models"
)

// Event is the frame written to conversation sockets.
type Event struct {
	Type     string               `json:"type"` // message | history | error
	Message  *models.ChatMessage  `json:"message,omitempty"`
	Messages []models.ChatMessage `json:"messages,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// ConversationRoom holds the live sockets of one conversation.
type ConversationRoom struct {
	ConversationID uint
	clients        map[*Client]struct{}
	mu             sync.RWMutex
}

func (r *ConversationRoom) Join(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

func (r *ConversationRoom) Leave(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return len(r.clients)
}

func (r *ConversationRoom) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *ConversationRoom) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// ConversationHub fans appended messages out to every socket in the
// message's conversation. Each frame is redacted for the socket's user, so a
// payment message only carries the delivery code to the payer.
type ConversationHub struct {
	mu    sync.Mutex
	rooms map[uint]*ConversationRoom
}

func NewConversationHub() *ConversationHub {
	return &ConversationHub{rooms: make(map[uint]*ConversationRoom)}
}

func (h *ConversationHub) Join(conversationID uint, c *Client) *ConversationRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[conversationID]
	if !ok {
		r = &ConversationRoom{ConversationID: conversationID, clients: make(map[*Client]struct{})}
		h.rooms[conversationID] = r
	}
	r.Join(c)
	return r
}

// Leave removes c and drops the room once it is empty.
func (h *ConversationHub) Leave(conversationID uint, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	if r.Leave(c) == 0 {
		delete(h.rooms, conversationID)
	}
}

func (h *ConversationHub) room(conversationID uint) *ConversationRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[conversationID]
}

// Publish implements deal.Publisher.
func (h *ConversationHub) Publish(m models.ChatMessage) {
	r := h.room(m.ConversationID)
	if r == nil {
		return
	}
	frames := make(map[uint][]byte)
	for _, c := range r.snapshot() {
		data, ok := frames[c.UserID]
		if !ok {
			view := envelope.ForViewer(m, c.UserID)
			var err error
			data, err = json.Marshal(Event{Type: "message", Message: &view})
			if err != nil {
				log.Printf("[ws] encode message %d: %v", m.ID, err)
				return
			}
			frames[c.UserID] = data
		}
		c.trySend(data)
	}
}
