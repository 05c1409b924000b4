package hub

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/gofrs/uuid"

	"github.com/Omezi42/anokoro-tcg-backend/internal/models"
	"github.com/Omezi42/anokoro-tcg-backend/internal/rating"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

// createMatch persists a match for a freshly paired couple, cross-links the
// two sessions, and notifies both players. The first player (earlier in the
// queue) is the signaling initiator.
func (h *Hub) createMatch(ctx context.Context, p1, p2 pairCandidate) {
	matchID := uuid.Must(uuid.NewV4()).String()

	if err := h.store.InsertMatch(ctx, matchID, p1.userID, p2.userID); err != nil {
		log.Printf("[MATCH] failed to create match row: %v", err)
		h.queue.Requeue(p1.userID, p2.userID)
		return
	}

	mid := sql.NullString{String: matchID, Valid: true}
	if err := h.store.PatchUser(ctx, p1.userID, store.UserPatch{CurrentMatchID: &mid}); err != nil {
		log.Printf("[MATCH] failed to set currentMatchId for %s: %v", p1.userID, err)
	}
	if err := h.store.PatchUser(ctx, p2.userID, store.UserPatch{CurrentMatchID: &mid}); err != nil {
		log.Printf("[MATCH] failed to set currentMatchId for %s: %v", p2.userID, err)
	}

	h.mu.Lock()
	c1 := h.clients[p1.connID]
	c2 := h.clients[p2.connID]
	var name1, name2 string
	if c1 != nil && c2 != nil {
		name1, name2 = c1.username, c2.username
		c1.opponentID, c1.matchID = c2.connID, matchID
		c2.opponentID, c2.matchID = c1.connID, matchID
	}
	h.mu.Unlock()

	if c1 == nil || c2 == nil {
		// A connection vanished between pairing and dispatch. The match row
		// stays; the store is authoritative and the players can report or
		// clear it on next login.
		log.Printf("[MATCH] match %s created but a connection is gone (c1=%v c2=%v)", matchID, c1 != nil, c2 != nil)
		return
	}

	log.Printf("[MATCH] ✓ Match created: %s players=[%s,%s] initiator=%s", matchID, p1.userID, p2.userID, p1.userID)

	c1.Send(map[string]interface{}{
		"type":         "match_found",
		"matchId":      matchID,
		"opponentId":   p2.userID,
		"opponentName": name2,
		"isInitiator":  true,
	})
	c2.Send(map[string]interface{}{
		"type":         "match_found",
		"matchId":      matchID,
		"opponentId":   p1.userID,
		"opponentName": name1,
		"isInitiator":  false,
	})
}

// resolveReport handles a single report_result request end to end: report
// write, and, when it is the second report, resolution with Elo update.
func (h *Hub) resolveReport(ctx context.Context, c *Client, matchID string, rep rating.Report) {
	userID := h.sessionUser(c)

	m, err := h.store.FetchMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Send(failResponse("report_result", "match not found"))
		} else {
			c.Send(failResponse("report_result", "temporary failure, try again"))
		}
		return
	}
	if m.ResolvedAt.Valid {
		c.Send(failResponse("report_result", "match already resolved"))
		return
	}

	slot := m.ReportSlot(userID)
	if slot == 0 {
		c.Send(failResponse("report_result", "not a participant of this match"))
		return
	}
	if (slot == 1 && m.Player1Report.Valid) || (slot == 2 && m.Player2Report.Valid) {
		c.Send(failResponse("report_result", "result already reported"))
		return
	}

	// Durably persist this slot before acking. The null guard turns a racing
	// duplicate into ErrDuplicate.
	if err := h.store.PatchMatchReport(ctx, matchID, slot, string(rep)); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.Send(failResponse("report_result", "result already reported"))
		} else {
			c.Send(failResponse("report_result", "temporary failure, try again"))
		}
		return
	}

	// Re-read to observe both slots after the write.
	m, err = h.store.FetchMatch(ctx, matchID)
	if err != nil {
		c.Send(failResponse("report_result", "temporary failure, try again"))
		return
	}
	if !m.Player1Report.Valid || !m.Player2Report.Valid {
		c.Send(okResponse("report_result", map[string]interface{}{"outcome": "pending"}))
		return
	}

	r1 := rating.Report(m.Player1Report.String)
	r2 := rating.Report(m.Player2Report.String)
	now := time.Now()

	// Claim resolution. Losing the claim means the opposite reporter got
	// here first and is applying the side effects; just report the final
	// state back to this player.
	if err := h.store.MarkMatchResolved(ctx, matchID, now); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			outcome := rating.Classify(r1, r2)
			fields := map[string]interface{}{"outcome": string(outcome)}
			if u := h.resolvedUserState(ctx, userID, matchID); u != nil {
				fields["rate"] = u.Rate
				fields["matchHistory"] = u.History()
			}
			c.Send(okResponse("report_result", fields))
			return
		}
		c.Send(failResponse("report_result", "temporary failure, try again"))
		return
	}

	h.applyResolution(ctx, m, rating.Classify(r1, r2), now)
}

// resolvedUserState reads the reporter's row after a lost resolution claim,
// waiting briefly for the winner's rating patch to land. The patch writes the
// new rate and clears currentMatchId in one update, so a cleared pointer
// means the row is final.
func (h *Hub) resolvedUserState(ctx context.Context, userID, matchID string) *models.User {
	for attempt := 0; attempt < 10; attempt++ {
		u, err := h.store.FetchUser(ctx, userID)
		if err != nil {
			return nil
		}
		if !u.CurrentMatchID.Valid || u.CurrentMatchID.String != matchID {
			return u
		}
		time.Sleep(25 * time.Millisecond)
	}
	u, _ := h.store.FetchUser(ctx, userID)
	return u
}

// applyResolution performs the post-claim side effects: rating and history
// patches, currentMatchId clears, session pointer drops, and notifications to
// both players. Exactly one caller reaches this per match.
func (h *Hub) applyResolution(ctx context.Context, m *models.Match, outcome rating.Outcome, now time.Time) {
	u1, err1 := h.store.FetchUser(ctx, m.Player1ID)
	u2, err2 := h.store.FetchUser(ctx, m.Player2ID)
	if err1 != nil || err2 != nil {
		log.Printf("[MATCH] resolution of %s: failed to load players: %v / %v", m.ID, err1, err2)
		return
	}

	new1, new2 := u1.Rate, u2.Rate
	var entry1, entry2 string

	switch outcome {
	case rating.OutcomeConsistent:
		if m.Player1Report.String == string(rating.ReportWin) {
			delta := rating.WinnerDelta(u1.Rate, u2.Rate)
			new1, new2 = u1.Rate+delta, u2.Rate-delta
			entry1 = rating.WinEntry(now, u2.Username, u1.Rate, new1)
			entry2 = rating.LoseEntry(now, u1.Username, u2.Rate, new2)
		} else {
			delta := rating.WinnerDelta(u2.Rate, u1.Rate)
			new2, new1 = u2.Rate+delta, u1.Rate-delta
			entry2 = rating.WinEntry(now, u1.Username, u2.Rate, new2)
			entry1 = rating.LoseEntry(now, u2.Username, u1.Rate, new1)
		}
	case rating.OutcomeCancel:
		entry1 = rating.CancelEntry(now, u2.Username)
		entry2 = rating.CancelEntry(now, u1.Username)
	default: // disputed
		entry1 = rating.DisputedEntry(now, u2.Username)
		entry2 = rating.DisputedEntry(now, u1.Username)
	}

	hist1 := rating.Prepend(u1.History(), entry1)
	hist2 := rating.Prepend(u2.History(), entry2)
	noMatch := sql.NullString{}

	if err := h.store.PatchUser(ctx, u1.ID, store.UserPatch{Rate: &new1, MatchHistory: &hist1, CurrentMatchID: &noMatch}); err != nil {
		log.Printf("[MATCH] resolution of %s: failed to patch %s: %v", m.ID, u1.ID, err)
	}
	if err := h.store.PatchUser(ctx, u2.ID, store.UserPatch{Rate: &new2, MatchHistory: &hist2, CurrentMatchID: &noMatch}); err != nil {
		log.Printf("[MATCH] resolution of %s: failed to patch %s: %v", m.ID, u2.ID, err)
	}

	if outcome == rating.OutcomeConsistent {
		h.rankings.Invalidate(ctx)
	}

	// Drop the runtime opponent pointers for whichever sessions are live.
	h.mu.Lock()
	var live1, live2 *Client
	if connID, ok := h.userConns[u1.ID]; ok {
		if cl := h.clients[connID]; cl != nil {
			live1 = cl
			if cl.matchID == m.ID {
				cl.opponentID, cl.matchID = "", ""
			}
		}
	}
	if connID, ok := h.userConns[u2.ID]; ok {
		if cl := h.clients[connID]; cl != nil {
			live2 = cl
			if cl.matchID == m.ID {
				cl.opponentID, cl.matchID = "", ""
			}
		}
	}
	h.mu.Unlock()

	log.Printf("[MATCH] resolved %s outcome=%s rates: %s %d→%d, %s %d→%d",
		m.ID, outcome, u1.Username, u1.Rate, new1, u2.Username, u2.Rate, new2)

	if live1 != nil {
		live1.Send(okResponse("report_result", map[string]interface{}{
			"outcome":      string(outcome),
			"rate":         new1,
			"matchHistory": hist1,
		}))
	}
	if live2 != nil {
		live2.Send(okResponse("report_result", map[string]interface{}{
			"outcome":      string(outcome),
			"rate":         new2,
			"matchHistory": hist2,
		}))
	}
}
