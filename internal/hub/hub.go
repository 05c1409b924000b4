package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Omezi42/anokoro-tcg-backend/internal/cache"
	"github.com/Omezi42/anokoro-tcg-backend/internal/config"
	"github.com/Omezi42/anokoro-tcg-backend/internal/models"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

// Store is the persistence surface the hub depends on. *store.Store satisfies
// it; tests substitute an in-memory fake.
type Store interface {
	FetchUser(ctx context.Context, id string) (*models.User, error)
	FetchUserByName(ctx context.Context, name string) (*models.User, error)
	InsertUser(ctx context.Context, id, name, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string) error
	PatchUser(ctx context.Context, id string, p store.UserPatch) error
	InsertMatch(ctx context.Context, id, p1, p2 string) error
	FetchMatch(ctx context.Context, id string) (*models.Match, error)
	PatchMatchReport(ctx context.Context, id string, slot int, value string) error
	MarkMatchResolved(ctx context.Context, id string, at time.Time) error
	TopByRating(ctx context.Context, limit int) ([]models.RankedUser, error)
}

// Hub owns the session table, the matchmaking queue, and the spectate room
// registry. One live session per user: a later login for the same user
// replaces the earlier connection.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client // connID -> client
	userConns map[string]string  // userID -> connID, only while logged in

	register   chan *Client
	unregister chan *Client

	queue *Queue
	rooms *RoomRegistry

	store    Store
	rankings *cache.Rankings
	cfg      *config.Config
}

func New(st Store, rankings *cache.Rankings, cfg *config.Config) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		userConns:  make(map[string]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		queue:      NewQueue(),
		rooms:      NewRoomRegistry(),
		store:      st,
		rankings:   rankings,
		cfg:        cfg,
	}
}

// Run processes connection lifecycle events until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("[WS] Hub stopped")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connID] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] conn %s connected (%d open)", client.connID, total)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// removeClient tears down a closed connection: session table entry, queue
// membership, owned rooms, and spectator memberships. The user mapping is
// removed only if it still points at this connection, so a stale close never
// evicts a newer session.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	cur, ok := h.clients[c.connID]
	if !ok || cur != c {
		h.mu.Unlock()
		c.closeSend()
		return
	}
	delete(h.clients, c.connID)
	userID := c.userID
	if userID != "" && h.userConns[userID] != c.connID {
		userID = "" // replaced by a newer session; leave its entries alone
	}
	if userID != "" {
		delete(h.userConns, userID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("[WS] conn %s disconnected (%d open)", c.connID, total)

	queueEvicted := false
	if userID != "" {
		queueEvicted = h.queue.Leave(userID)
	}

	closed := h.rooms.CloseOwnedBy(c.connID)
	for _, room := range closed {
		h.notifyBroadcastStopped(room)
	}
	for _, room := range h.rooms.RemoveSpectator(c.connID) {
		h.SendToConn(room.OwnerConnID, map[string]interface{}{
			"type":        "spectator_left",
			"roomId":      room.Token,
			"spectatorId": c.connID,
		})
	}

	if len(closed) > 0 {
		h.broadcastRoomList()
	}
	if queueEvicted {
		h.broadcastQueueCount()
	}

	c.closeSend()
}

// bindUser binds a connection to a user, taking the session over from any
// older connection. The old connection gets a logout_forced notice and is
// closed; its later unregister is a stale close and leaves the new entries
// intact.
func (h *Hub) bindUser(c *Client, userID, username string) {
	h.mu.RLock()
	prev := c.userID
	h.mu.RUnlock()
	if prev != "" && prev != userID {
		// Relogin as a different user on the same connection logs the
		// previous user out first, so its userConns entry, queue slot, and
		// owned rooms never outlive the binding.
		h.unbindUser(c)
	}

	var old *Client
	h.mu.Lock()
	if oldConnID, ok := h.userConns[userID]; ok && oldConnID != c.connID {
		if old = h.clients[oldConnID]; old != nil {
			// Frames still in flight on the old connection must fail auth.
			old.userID = ""
			old.username = ""
		}
	}
	c.userID = userID
	c.username = username
	h.userConns[userID] = c.connID
	h.mu.Unlock()

	if old != nil {
		log.Printf("[WS] session takeover for user %s: conn %s replaces conn %s", userID, c.connID, old.connID)
		old.Send(map[string]interface{}{
			"type":    "logout_forced",
			"message": "logged in from another device",
		})
		old.closeConn("replaced by new login")
	}
}

// unbindUser clears a connection's binding. Owned spectate rooms are
// destroyed; queue membership is dropped.
func (h *Hub) unbindUser(c *Client) {
	h.mu.Lock()
	userID := c.userID
	c.userID = ""
	c.username = ""
	c.opponentID = ""
	c.matchID = ""
	if userID != "" && h.userConns[userID] == c.connID {
		delete(h.userConns, userID)
	}
	h.mu.Unlock()

	if userID == "" {
		return
	}

	queueEvicted := h.queue.Leave(userID)
	closed := h.rooms.CloseOwnedBy(c.connID)
	for _, room := range closed {
		h.notifyBroadcastStopped(room)
	}
	if len(closed) > 0 {
		h.broadcastRoomList()
	}
	if queueEvicted {
		h.broadcastQueueCount()
	}
}

// sessionUser returns the user a connection is bound to, or "".
func (h *Hub) sessionUser(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.userID
}

// sessionInfo returns the bound user id and display name together.
func (h *Hub) sessionInfo(c *Client) (userID, username string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.userID, c.username
}

// liveConn resolves a user to its live connection id. Used by the queue to
// skip entries whose connection has gone away.
func (h *Hub) liveConn(userID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connID, ok := h.userConns[userID]
	if !ok {
		return "", false
	}
	if _, open := h.clients[connID]; !open {
		return "", false
	}
	return connID, true
}

// clientByConn returns the client for a connection id, or nil.
func (h *Hub) clientByConn(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connID]
}

// SendToConn delivers a message to a connection if it is still open.
func (h *Hub) SendToConn(connID string, message interface{}) bool {
	if client := h.clientByConn(connID); client != nil {
		client.Send(message)
		return true
	}
	return false
}

// BroadcastAll pushes a message to every open connection.
func (h *Hub) BroadcastAll(message interface{}) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.Send(message)
	}
}
