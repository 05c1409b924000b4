package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/Omezi42/anokoro-tcg-backend/internal/cache"
	"github.com/Omezi42/anokoro-tcg-backend/internal/config"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

func newTestHub() *Hub {
	return New(newMemStore(), cache.NewRankings(nil, 0), &config.Config{RankingLimit: 100})
}

// addClient registers a connection-less client directly in the session table.
func addClient(h *Hub, connID string) *Client {
	c := &Client{hub: h, connID: connID, send: make(chan []byte, 32)}
	h.mu.Lock()
	h.clients[connID] = c
	h.mu.Unlock()
	return c
}

// recv pops the next queued message, failing the test if none is waiting.
func recv(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.send:
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("queued message is not JSON: %v", err)
		}
		return m
	default:
		t.Fatal("no message queued")
		return nil
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestLoginTakeoverForcesOldSessionOut(t *testing.T) {
	h := newTestHub()
	c1 := addClient(h, "conn-1")
	c2 := addClient(h, "conn-2")

	h.bindUser(c1, "u-alice", "alice")
	h.bindUser(c2, "u-alice", "alice")

	msg := recv(t, c1)
	if msg["type"] != "logout_forced" {
		t.Errorf("old connection got %v, want logout_forced", msg["type"])
	}
	if connID, ok := h.liveConn("u-alice"); !ok || connID != "conn-2" {
		t.Errorf("liveConn(u-alice) = %s/%v, want conn-2", connID, ok)
	}
	if got := h.sessionUser(c1); got != "" {
		t.Errorf("replaced session still bound to %q", got)
	}
	if got := h.sessionUser(c2); got != "u-alice" {
		t.Errorf("new session bound to %q, want u-alice", got)
	}
}

func TestReloginAsDifferentUserReleasesOldBinding(t *testing.T) {
	h := newTestHub()
	c1 := addClient(h, "conn-1")

	h.bindUser(c1, "u-alice", "alice")
	h.queue.Enqueue("u-alice")
	h.bindUser(c1, "u-bob", "bob")

	if connID, ok := h.liveConn("u-alice"); ok {
		t.Errorf("u-alice still resolves to live conn %s after the connection was rebound", connID)
	}
	if h.queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0 (alice evicted on rebind)", h.queue.Len())
	}
	if got := h.sessionUser(c1); got != "u-bob" {
		t.Errorf("connection bound to %q, want u-bob", got)
	}

	// A fresh login by alice must not disturb bob's session.
	c2 := addClient(h, "conn-2")
	h.bindUser(c2, "u-alice", "alice")

	if got := h.sessionUser(c1); got != "u-bob" {
		t.Errorf("bob's session was clobbered by alice's login: bound user = %q", got)
	}
	if connID, ok := h.liveConn("u-bob"); !ok || connID != "conn-1" {
		t.Errorf("liveConn(u-bob) = %s/%v, want conn-1", connID, ok)
	}
	if connID, ok := h.liveConn("u-alice"); !ok || connID != "conn-2" {
		t.Errorf("liveConn(u-alice) = %s/%v, want conn-2", connID, ok)
	}
}

func TestStaleCloseDoesNotEvictNewerSession(t *testing.T) {
	h := newTestHub()
	c1 := addClient(h, "conn-1")
	c2 := addClient(h, "conn-2")

	h.bindUser(c1, "u-alice", "alice")
	h.bindUser(c2, "u-alice", "alice")

	// The replaced connection finally unregisters.
	h.removeClient(c1)

	if connID, ok := h.liveConn("u-alice"); !ok || connID != "conn-2" {
		t.Errorf("stale close evicted the new session: %s/%v", connID, ok)
	}
	if h.clientByConn("conn-2") == nil {
		t.Error("new connection should still be registered")
	}
}

func TestCloseEvictsUserFromQueue(t *testing.T) {
	h := newTestHub()
	c := addClient(h, "conn-1")
	h.bindUser(c, "u-alice", "alice")

	h.queue.Enqueue("u-alice")
	h.removeClient(c)

	if h.queue.Len() != 0 {
		t.Errorf("queue length = %d after close, want 0", h.queue.Len())
	}
	if _, ok := h.liveConn("u-alice"); ok {
		t.Error("closed connection still resolves as live")
	}
}

func TestLogoutDestroysOwnedRooms(t *testing.T) {
	h := newTestHub()
	cara := addClient(h, "conn-cara")
	dave := addClient(h, "conn-dave")
	h.bindUser(cara, "u-cara", "cara")

	room := h.rooms.Create(cara.connID, "cara")
	h.rooms.Join(room.Token, dave.connID)
	drain(cara)
	drain(dave)

	h.unbindUser(cara)

	msg := recv(t, dave)
	if msg["type"] != "broadcast_stopped" {
		t.Errorf("spectator got %v, want broadcast_stopped", msg["type"])
	}
	if len(h.rooms.List()) != 0 {
		t.Error("room should be destroyed on broadcaster logout")
	}
}

func TestSpectatorDisconnectNotifiesBroadcaster(t *testing.T) {
	h := newTestHub()
	cara := addClient(h, "conn-cara")
	dave := addClient(h, "conn-dave")
	h.bindUser(cara, "u-cara", "cara")

	room := h.rooms.Create(cara.connID, "cara")
	h.rooms.Join(room.Token, dave.connID)
	drain(cara)

	h.removeClient(dave)

	msg := recv(t, cara)
	if msg["type"] != "spectator_left" {
		t.Errorf("broadcaster got %v, want spectator_left", msg["type"])
	}
	if h.rooms.IsSpectator(room.Token, dave.connID) {
		t.Error("spectator set should be pruned")
	}
}

func TestRouterRejectsUnauthenticatedRequests(t *testing.T) {
	h := newTestHub()
	c := addClient(h, "conn-1")

	h.route(context.Background(), c, []byte(`{"type":"join_queue"}`))

	msg := recv(t, c)
	if msg["type"] != "join_queue_response" {
		t.Fatalf("reply type = %v, want join_queue_response", msg["type"])
	}
	if msg["success"] != false {
		t.Errorf("success = %v, want false", msg["success"])
	}
}

func TestRouterDropsMalformedAndUnknownFrames(t *testing.T) {
	h := newTestHub()
	c := addClient(h, "conn-1")

	h.route(context.Background(), c, []byte(`{not json`))
	h.route(context.Background(), c, []byte(`{"type":"warp_to_moon"}`))
	h.route(context.Background(), c, []byte(`{"no_type":1}`))

	select {
	case data := <-c.send:
		t.Errorf("dropped frame produced a reply: %s", data)
	default:
	}
}

func TestJoinAndLeaveQueueThroughRouter(t *testing.T) {
	h := newTestHub()
	c := addClient(h, "conn-1")
	h.bindUser(c, "u-alice", "alice")

	h.route(context.Background(), c, []byte(`{"type":"join_queue"}`))
	msg := recv(t, c)
	if msg["type"] != "join_queue_response" || msg["success"] != true {
		t.Fatalf("unexpected reply %v", msg)
	}
	if msg["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", msg["count"])
	}

	// queue_count_update broadcast follows the reply
	msg = recv(t, c)
	if msg["type"] != "queue_count_update" {
		t.Errorf("expected queue_count_update broadcast, got %v", msg["type"])
	}

	h.route(context.Background(), c, []byte(`{"type":"join_queue"}`))
	msg = recv(t, c)
	if msg["success"] != false {
		t.Error("second join_queue should be rejected as already queued")
	}

	h.route(context.Background(), c, []byte(`{"type":"leave_queue"}`))
	msg = recv(t, c)
	if msg["type"] != "leave_queue_response" || msg["success"] != true {
		t.Fatalf("unexpected leave reply %v", msg)
	}
	if h.queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0", h.queue.Len())
	}
}

func TestJoinQueueRejectedWhileInMatch(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	// Session pointer set: rejected without a store read.
	c1 := addClient(h, "conn-1")
	h.bindUser(c1, "u-alice", "alice")
	h.mu.Lock()
	c1.matchID = "m-1"
	h.mu.Unlock()

	h.route(ctx, c1, []byte(`{"type":"join_queue"}`))
	msg := recv(t, c1)
	if msg["success"] != false {
		t.Errorf("join_queue with a session match should fail, got %v", msg)
	}

	// Pending match known only to the store, e.g. after a relogin.
	ms := h.store.(*memStore)
	ms.addUser("u-bob", "bob", 1500)
	mid := sql.NullString{String: "m-2", Valid: true}
	ms.PatchUser(ctx, "u-bob", store.UserPatch{CurrentMatchID: &mid})

	c2 := addClient(h, "conn-2")
	h.bindUser(c2, "u-bob", "bob")
	h.route(ctx, c2, []byte(`{"type":"join_queue"}`))
	msg = recv(t, c2)
	if msg["success"] != false {
		t.Errorf("join_queue with a stored pending match should fail, got %v", msg)
	}
	if h.queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0", h.queue.Len())
	}
}

func TestSignalWithoutOpponentIsRejected(t *testing.T) {
	h := newTestHub()
	c := addClient(h, "conn-1")
	h.bindUser(c, "u-alice", "alice")

	h.route(context.Background(), c, []byte(`{"type":"webrtc_signal","signal":{"sdp":"x"}}`))
	msg := recv(t, c)
	if msg["success"] != false {
		t.Errorf("signal with no opponent should fail, got %v", msg)
	}
}

func TestSignalRelayPrependsSenderIdentity(t *testing.T) {
	h := newTestHub()
	c1 := addClient(h, "conn-1")
	c2 := addClient(h, "conn-2")
	h.bindUser(c1, "u-alice", "alice")
	h.bindUser(c2, "u-bob", "bob")

	h.mu.Lock()
	c1.opponentID, c1.matchID = c2.connID, "m-1"
	c2.opponentID, c2.matchID = c1.connID, "m-1"
	h.mu.Unlock()

	h.route(context.Background(), c1, []byte(`{"type":"webrtc_signal","signal":{"candidate":"abc"}}`))

	msg := recv(t, c2)
	if msg["type"] != "webrtc_signal" {
		t.Fatalf("opponent got %v, want webrtc_signal", msg["type"])
	}
	if msg["from"] != "u-alice" || msg["fromName"] != "alice" {
		t.Errorf("sender identity missing: from=%v fromName=%v", msg["from"], msg["fromName"])
	}
	signal, _ := json.Marshal(msg["signal"])
	if string(signal) != `{"candidate":"abc"}` {
		t.Errorf("payload not forwarded verbatim: %s", signal)
	}
}
