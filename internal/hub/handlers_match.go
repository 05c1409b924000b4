package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"

	"github.com/Omezi42/anokoro-tcg-backend/internal/rating"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

func (h *Hub) handleJoinQueue(ctx context.Context, c *Client) {
	h.mu.RLock()
	userID, matchID := c.userID, c.matchID
	h.mu.RUnlock()

	// A user has at most one unresolved match. The session pointer catches the
	// common case; the stored row catches a relogin with a pending match.
	if matchID == "" {
		if u, err := h.store.FetchUser(ctx, userID); err == nil && u.CurrentMatchID.Valid {
			matchID = u.CurrentMatchID.String
		}
	}
	if matchID != "" {
		c.Send(failResponse("join_queue", "finish or clear your current match first"))
		return
	}

	if !h.queue.Enqueue(userID) {
		c.Send(failResponse("join_queue", "already in queue"))
		return
	}

	count := h.queue.Len()
	log.Printf("[QUEUE] user %s joined (waiting=%d)", userID, count)
	c.Send(okResponse("join_queue", map[string]interface{}{"count": count}))
	h.broadcastQueueCount()

	h.tryPairAndDispatch(ctx)
}

func (h *Hub) handleLeaveQueue(c *Client) {
	userID := h.sessionUser(c)
	if !h.queue.Leave(userID) {
		c.Send(failResponse("leave_queue", "not in queue"))
		return
	}

	log.Printf("[QUEUE] user %s left (waiting=%d)", userID, h.queue.Len())
	c.Send(okResponse("leave_queue", map[string]interface{}{"count": h.queue.Len()}))
	h.broadcastQueueCount()
}

// tryPairAndDispatch makes one pairing attempt and creates the match when a
// live pair comes off the head of the queue.
func (h *Hub) tryPairAndDispatch(ctx context.Context) {
	before := h.queue.Len()
	p1, p2, ok := h.queue.TryPair(h.liveConn)
	if !ok {
		// A dead entry may have been discarded; keep the count honest.
		if h.queue.Len() != before {
			h.broadcastQueueCount()
		}
		return
	}

	log.Printf("[QUEUE] paired %s vs %s", p1.userID, p2.userID)
	h.createMatch(ctx, p1, p2)
	h.broadcastQueueCount()
}

// handleSignal relays an opaque payload to the session's current opponent.
func (h *Hub) handleSignal(c *Client, raw []byte) {
	var req struct {
		Signal json.RawMessage `json:"signal"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || len(req.Signal) == 0 {
		c.Send(failResponse("webrtc_signal", "signal required"))
		return
	}

	h.mu.RLock()
	userID, username := c.userID, c.username
	opponentID := c.opponentID
	h.mu.RUnlock()

	if opponentID == "" {
		c.Send(failResponse("webrtc_signal", "no opponent"))
		return
	}

	delivered := h.SendToConn(opponentID, map[string]interface{}{
		"type":     "webrtc_signal",
		"from":     userID,
		"fromName": username,
		"signal":   req.Signal,
	})
	if !delivered {
		c.Send(failResponse("webrtc_signal", "opponent disconnected"))
	}
}

func (h *Hub) handleReportResult(ctx context.Context, c *Client, raw []byte) {
	var req struct {
		MatchID string `json:"matchId"`
		Result  string `json:"result"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.MatchID == "" {
		c.Send(failResponse("report_result", "matchId and result required"))
		return
	}
	rep := rating.Report(req.Result)
	if !rep.Valid() {
		c.Send(failResponse("report_result", "result must be win, lose or cancel"))
		return
	}

	h.resolveReport(ctx, c, req.MatchID, rep)
}

// handleClearMatchInfo drops the session's opponent pointer and nulls the
// persisted currentMatchId. The match row itself is untouched; a pending
// report still resolves through the store.
func (h *Hub) handleClearMatchInfo(ctx context.Context, c *Client) {
	h.mu.Lock()
	userID := c.userID
	c.opponentID = ""
	c.matchID = ""
	h.mu.Unlock()

	noMatch := sql.NullString{}
	if err := h.store.PatchUser(ctx, userID, store.UserPatch{CurrentMatchID: &noMatch}); err != nil {
		log.Printf("[MATCH] clear_match_info failed for %s: %v", userID, err)
		c.Send(failResponse("clear_match_info", "temporary failure, try again"))
		return
	}

	c.Send(okResponse("clear_match_info", nil))
}
