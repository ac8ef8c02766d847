package ws

import (
	"encoding/json"
	"log"
	"sync"

	"rtchat-service/internal/models"
	"rtchat-service/internal/observability"
)

// RoomKey identifies one fanout scope: a room of either kind.
type RoomKey struct {
	Kind models.RoomKind
	ID   int
}

// KeyFor converts a room reference into a registry key.
func KeyFor(ref models.RoomRef) RoomKey {
	return RoomKey{Kind: ref.Kind, ID: ref.ID}
}

// Broker tracks live subscribers per room and fans events out to them.
// The in-process Hub implements it; a bus-backed broker can replace it
// for multi-instance deployments.
type Broker interface {
	Join(key RoomKey, client *Client)
	Leave(key RoomKey, client *Client)
	Fanout(key RoomKey, event models.ChatEvent)
}

// Hub is the in-memory Broker. It holds no persistence and performs no
// identity checks; callers authorize before joining.
type Hub struct {
	mu    sync.RWMutex
	rooms map[RoomKey]map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[RoomKey]map[*Client]bool)}
}

// Join registers a subscriber under the room key. Idempotent.
func (h *Hub) Join(key RoomKey, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*Client]bool)
	}
	h.rooms[key][client] = true
}

// Leave removes a subscriber. Idempotent; the last leave drops the room.
func (h *Hub) Leave(key RoomKey, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[key]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, key)
		}
	}
}

// Fanout delivers the event to every subscriber registered at the
// moment of the call. A subscriber whose buffer is full is detached
// rather than waited on; the failure never reaches the sender.
func (h *Hub) Fanout(key RoomKey, event models.ChatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("fanout: marshal event: %v", err)
		return
	}

	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.rooms[key]))
	for client := range h.rooms[key] {
		snapshot = append(snapshot, client)
	}
	h.mu.RUnlock()

	for _, client := range snapshot {
		if client.Enqueue(payload) {
			observability.IncFanoutDelivery(string(key.Kind))
			continue
		}
		log.Printf("fanout: detaching subscriber conn=%s room=%s_%d", client.Info.ConnID, key.Kind, key.ID)
		observability.IncFanoutDrop(string(key.Kind))
		client.Close()
		h.Leave(key, client)
	}
}

// subscriberCount reports the live subscriber count for a key.
func (h *Hub) subscriberCount(key RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}
