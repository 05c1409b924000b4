package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"unicode/utf8"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Omezi42/anokoro-tcg-backend/internal/models"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 15
	passwordMinLen = 4
)

func validUsername(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= usernameMinLen && n <= usernameMaxLen
}

// profileFields builds the profile payload returned by login and auto_login.
func profileFields(u *models.User) map[string]interface{} {
	fields := map[string]interface{}{
		"userId":       u.ID,
		"username":     u.Username,
		"rate":         u.Rate,
		"matchHistory": u.History(),
	}
	if len(u.Memos) > 0 {
		fields["memos"] = json.RawMessage(u.Memos)
	}
	if len(u.BattleRecords) > 0 {
		fields["battleRecords"] = json.RawMessage(u.BattleRecords)
	}
	if len(u.RegisteredDecks) > 0 {
		fields["registeredDecks"] = json.RawMessage(u.RegisteredDecks)
	}
	if u.CurrentMatchID.Valid {
		fields["currentMatchId"] = u.CurrentMatchID.String
	} else {
		fields["currentMatchId"] = nil
	}
	return fields
}

func (h *Hub) handleRegister(ctx context.Context, c *Client, raw []byte) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		c.Send(failResponse("register", "invalid request"))
		return
	}
	if !validUsername(req.Username) {
		c.Send(failResponse("register", "username must be 3-15 characters"))
		return
	}
	if utf8.RuneCountInString(req.Password) < passwordMinLen {
		c.Send(failResponse("register", "password too short"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[AUTH] bcrypt error: %v", err)
		c.Send(failResponse("register", "internal error"))
		return
	}

	userID := uuid.Must(uuid.NewV4()).String()
	if err := h.store.InsertUser(ctx, userID, req.Username, string(hash)); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			c.Send(failResponse("register", "username already taken"))
		case store.IsTransient(err):
			c.Send(failResponse("register", "temporary failure, try again"))
		default:
			log.Printf("[AUTH] register failed: %v", err)
			c.Send(failResponse("register", "internal error"))
		}
		return
	}

	log.Printf("[AUTH] registered user %s (%s)", req.Username, userID)
	c.Send(okResponse("register", map[string]interface{}{
		"userId":   userID,
		"username": req.Username,
	}))
}

func (h *Hub) handleLogin(ctx context.Context, c *Client, raw []byte) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.Username == "" || req.Password == "" {
		c.Send(failResponse("login", "username and password required"))
		return
	}

	u, err := h.store.FetchUserByName(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Send(failResponse("login", "invalid username or password"))
		} else {
			log.Printf("[AUTH] login lookup failed: %v", err)
			c.Send(failResponse("login", "temporary failure, try again"))
		}
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		c.Send(failResponse("login", "invalid username or password"))
		return
	}

	h.bindUser(c, u.ID, u.Username)
	if err := h.store.TouchLastLogin(ctx, u.ID); err != nil {
		log.Printf("[AUTH] failed to touch last_login_at for %s: %v", u.ID, err)
	}

	log.Printf("[AUTH] user %s logged in on conn %s", u.Username, c.connID)
	c.Send(okResponse("login", profileFields(u)))
}

// handleAutoLogin re-binds a returning client if its stored (userId, username)
// tuple still matches.
func (h *Hub) handleAutoLogin(ctx context.Context, c *Client, raw []byte) {
	var req struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.UserID == "" || req.Username == "" {
		c.Send(failResponse("auto_login", "userId and username required"))
		return
	}

	u, err := h.store.FetchUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Send(failResponse("auto_login", "unknown user"))
		} else {
			log.Printf("[AUTH] auto_login lookup failed: %v", err)
			c.Send(failResponse("auto_login", "temporary failure, try again"))
		}
		return
	}
	if u.Username != req.Username {
		c.Send(failResponse("auto_login", "session expired, please log in"))
		return
	}

	h.bindUser(c, u.ID, u.Username)
	if err := h.store.TouchLastLogin(ctx, u.ID); err != nil {
		log.Printf("[AUTH] failed to touch last_login_at for %s: %v", u.ID, err)
	}

	log.Printf("[AUTH] user %s auto-logged in on conn %s", u.Username, c.connID)
	c.Send(okResponse("auto_login", profileFields(u)))
}

func (h *Hub) handleLogout(c *Client) {
	userID, username := h.sessionInfo(c)
	h.unbindUser(c)
	log.Printf("[AUTH] user %s (%s) logged out from conn %s", username, userID, c.connID)
	c.Send(okResponse("logout", nil))
}

func (h *Hub) handleChangeUsername(ctx context.Context, c *Client, raw []byte) {
	var req struct {
		NewUsername string `json:"newUsername"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		c.Send(failResponse("change_username", "invalid request"))
		return
	}
	if !validUsername(req.NewUsername) {
		c.Send(failResponse("change_username", "username must be 3-15 characters"))
		return
	}

	userID := h.sessionUser(c)
	name := req.NewUsername
	err := h.store.PatchUser(ctx, userID, store.UserPatch{Username: &name})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			c.Send(failResponse("change_username", "username already taken"))
		case store.IsTransient(err):
			c.Send(failResponse("change_username", "temporary failure, try again"))
		default:
			log.Printf("[AUTH] change_username failed: %v", err)
			c.Send(failResponse("change_username", "internal error"))
		}
		return
	}

	h.mu.Lock()
	c.username = name
	h.mu.Unlock()

	c.Send(okResponse("change_username", map[string]interface{}{"username": name}))
}

func (h *Hub) handleUpdateUserData(ctx context.Context, c *Client, raw []byte) {
	var req struct {
		Rate            *int             `json:"rate"`
		MatchHistory    *[]string        `json:"matchHistory"`
		Memos           *json.RawMessage `json:"memos"`
		BattleRecords   *json.RawMessage `json:"battleRecords"`
		RegisteredDecks *json.RawMessage `json:"registeredDecks"`
		CurrentMatchID  *string          `json:"currentMatchId"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		c.Send(failResponse("update_user_data", "invalid request"))
		return
	}

	patch := store.UserPatch{
		Rate:            req.Rate,
		MatchHistory:    req.MatchHistory,
		Memos:           req.Memos,
		BattleRecords:   req.BattleRecords,
		RegisteredDecks: req.RegisteredDecks,
	}
	if req.CurrentMatchID != nil {
		v := sql.NullString{String: *req.CurrentMatchID, Valid: *req.CurrentMatchID != ""}
		patch.CurrentMatchID = &v
	}

	userID := h.sessionUser(c)
	if err := h.store.PatchUser(ctx, userID, patch); err != nil {
		if store.IsTransient(err) {
			c.Send(failResponse("update_user_data", "temporary failure, try again"))
		} else {
			log.Printf("[USER] update_user_data failed for %s: %v", userID, err)
			c.Send(failResponse("update_user_data", "internal error"))
		}
		return
	}

	if req.Rate != nil {
		h.rankings.Invalidate(ctx)
	}

	c.Send(okResponse("update_user_data", nil))
}

func (h *Hub) handleGetRanking(ctx context.Context, c *Client) {
	if rows := h.rankings.Get(ctx); rows != nil {
		c.Send(okResponse("get_ranking", map[string]interface{}{"ranking": rows}))
		return
	}

	limit := h.cfg.RankingLimit
	if limit < 10 {
		limit = 10
	} else if limit > 100 {
		limit = 100
	}
	rows, err := h.store.TopByRating(ctx, limit)
	if err != nil {
		log.Printf("[RANKING] query failed: %v", err)
		c.Send(failResponse("get_ranking", "temporary failure, try again"))
		return
	}
	h.rankings.Set(ctx, rows)
	c.Send(okResponse("get_ranking", map[string]interface{}{"ranking": rows}))
}
