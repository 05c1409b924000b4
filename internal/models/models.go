package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// User represents a registered player
type User struct {
	ID              string          `db:"id" json:"userId"`
	Username        string          `db:"username" json:"username"`
	PasswordHash    string          `db:"password_hash" json:"-"`
	Rate            int             `db:"rate" json:"rate"`
	MatchHistory    json.RawMessage `db:"match_history" json:"matchHistory"`
	Memos           json.RawMessage `db:"memos" json:"memos,omitempty"`
	BattleRecords   json.RawMessage `db:"battle_records" json:"battleRecords,omitempty"`
	RegisteredDecks json.RawMessage `db:"registered_decks" json:"registeredDecks,omitempty"`
	CurrentMatchID  sql.NullString  `db:"current_match_id" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"-"`
	LastLoginAt     sql.NullTime    `db:"last_login_at" json:"-"`
}

// History returns the decoded match history, newest first.
func (u *User) History() []string {
	var h []string
	if len(u.MatchHistory) > 0 {
		json.Unmarshal(u.MatchHistory, &h)
	}
	return h
}

// Match represents a rated match between two players
type Match struct {
	ID            string         `db:"id" json:"matchId"`
	Player1ID     string         `db:"player1_id" json:"player1Id"`
	Player2ID     string         `db:"player2_id" json:"player2Id"`
	Player1Report sql.NullString `db:"player1_report" json:"player1Report,omitempty"`
	Player2Report sql.NullString `db:"player2_report" json:"player2Report,omitempty"`
	ResolvedAt    sql.NullTime   `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
}

// ReportSlot returns which report slot (1 or 2) the given user occupies, or 0.
func (m *Match) ReportSlot(userID string) int {
	switch userID {
	case m.Player1ID:
		return 1
	case m.Player2ID:
		return 2
	}
	return 0
}

// RankedUser is a row of the rating leaderboard
type RankedUser struct {
	ID       string `db:"id" json:"userId"`
	Username string `db:"username" json:"username"`
	Rate     int    `db:"rate" json:"rate"`
}
