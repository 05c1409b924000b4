package hub

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// Room is a spectate session: one broadcaster, any number of spectators, and
// the broadcaster's last cached offer for bootstrapping latecomers.
type Room struct {
	Token       string
	OwnerConnID string
	OwnerName   string
	Spectators  map[string]bool // spectator connIDs
	CachedOffer json.RawMessage
}

// RoomSummary is the broadcast-list entry pushed to clients.
type RoomSummary struct {
	RoomID              string `json:"roomId"`
	BroadcasterUsername string `json:"broadcasterUsername"`
}

// RoomRegistry holds all live spectate rooms. Room count stays small, so
// reverse lookups at disconnect time scan the map.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*Room)}
}

// Create mints a room for the given broadcaster connection.
func (r *RoomRegistry) Create(ownerConnID, ownerName string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := newRoomToken()
	for r.rooms[token] != nil {
		token = newRoomToken()
	}
	room := &Room{
		Token:       token,
		OwnerConnID: ownerConnID,
		OwnerName:   ownerName,
		Spectators:  make(map[string]bool),
	}
	r.rooms[token] = room
	return room
}

// Close removes a room if the caller owns it. Returns the removed room.
func (r *RoomRegistry) Close(token, ownerConnID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[token]
	if !ok || room.OwnerConnID != ownerConnID {
		return nil, false
	}
	delete(r.rooms, token)
	return room, true
}

// Join adds a spectator and returns what the joiner needs: the owner's
// connection for notification and a copy of the cached offer, if any.
func (r *RoomRegistry) Join(token, spectatorConnID string) (ownerConnID string, offer json.RawMessage, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, exists := r.rooms[token]
	if !exists || spectatorConnID == room.OwnerConnID {
		return "", nil, false
	}
	room.Spectators[spectatorConnID] = true
	if len(room.CachedOffer) > 0 {
		offer = append(json.RawMessage(nil), room.CachedOffer...)
	}
	return room.OwnerConnID, offer, true
}

// Leave removes a spectator from a room. Returns the owner's connection for
// the spectator_left notice.
func (r *RoomRegistry) Leave(token, spectatorConnID string) (ownerConnID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, exists := r.rooms[token]
	if !exists || !room.Spectators[spectatorConnID] {
		return "", false
	}
	delete(room.Spectators, spectatorConnID)
	return room.OwnerConnID, true
}

// OwnerOf returns the broadcaster connection of a room.
func (r *RoomRegistry) OwnerOf(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[token]
	if !ok {
		return "", false
	}
	return room.OwnerConnID, true
}

// IsSpectator reports whether the connection currently watches the room.
func (r *RoomRegistry) IsSpectator(token, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[token]
	return ok && room.Spectators[connID]
}

// SpectatorsOf returns the room's spectator connIDs if the caller owns it.
func (r *RoomRegistry) SpectatorsOf(token, ownerConnID string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[token]
	if !ok || room.OwnerConnID != ownerConnID {
		return nil, false
	}
	ids := make([]string, 0, len(room.Spectators))
	for id := range room.Spectators {
		ids = append(ids, id)
	}
	return ids, true
}

// CacheOffer stores the broadcaster's latest offer payload for latecomers.
// Only the owning connection may write it.
func (r *RoomRegistry) CacheOffer(token, ownerConnID string, payload json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[token]
	if !ok || room.OwnerConnID != ownerConnID {
		return false
	}
	room.CachedOffer = append(json.RawMessage(nil), payload...)
	return true
}

// List returns summaries of all live rooms.
func (r *RoomRegistry) List() []RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomSummary, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, RoomSummary{RoomID: room.Token, BroadcasterUsername: room.OwnerName})
	}
	return out
}

// CloseOwnedBy destroys every room broadcast by the given connection and
// returns them so the caller can notify the spectators.
func (r *RoomRegistry) CloseOwnedBy(connID string) []*Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed []*Room
	for token, room := range r.rooms {
		if room.OwnerConnID == connID {
			delete(r.rooms, token)
			closed = append(closed, room)
		}
	}
	return closed
}

// RemoveSpectator prunes the connection from every room it watches and
// returns those rooms so the caller can notify the broadcasters.
func (r *RoomRegistry) RemoveSpectator(connID string) []*Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected []*Room
	for _, room := range r.rooms {
		if room.Spectators[connID] {
			delete(room.Spectators, connID)
			affected = append(affected, room)
		}
	}
	return affected
}

func newRoomToken() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
