package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Omezi42/anokoro-tcg-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, username, password_hash, rate, match_history, memos, battle_records, registered_decks, current_match_id, created_at, last_login_at`

const matchColumns = `id, player1_id, player2_id, player1_report, player2_report, resolved_at, created_at`

// Store is the typed gateway to the users and matches tables.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Bootstrap creates the tables if absent and adds any missing column.
// Safe to run on every start.
func (s *Store) Bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			rate INTEGER NOT NULL DEFAULT 1500,
			match_history JSONB NOT NULL DEFAULT '[]',
			memos JSONB,
			battle_records JSONB,
			registered_decks JSONB,
			current_match_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_login_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			player1_id UUID NOT NULL REFERENCES users(id),
			player2_id UUID NOT NULL REFERENCES users(id),
			player1_report TEXT,
			player2_report TEXT,
			resolved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Columns added after the first release; idempotent for older schemas.
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS memos JSONB`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS battle_records JSONB`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS registered_decks JSONB`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS current_match_id UUID`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS last_login_at TIMESTAMPTZ`,
		`CREATE INDEX IF NOT EXISTS idx_users_rate ON users (rate DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap failed: %w", mapError(err))
		}
	}
	log.Printf("[STORE] Schema bootstrap complete")
	return nil
}

// FetchUser returns the user row by id.
func (s *Store) FetchUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.getRetry(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FetchUserByName returns the user row by login name.
func (s *Store) FetchUserByName(ctx context.Context, name string) (*models.User, error) {
	var u models.User
	err := s.getRetry(ctx, &u, `SELECT `+userColumns+` FROM users WHERE username=$1`, name)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertUser creates a new user with default rate and empty history.
func (s *Store) InsertUser(ctx context.Context, id, name, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, NOW())`,
		id, name, passwordHash)
	return mapError(err)
}

// TouchLastLogin records a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at=NOW() WHERE id=$1`, id)
	return mapError(err)
}

// UserPatch is the enumerated partial update for a user row. Nil fields are
// left untouched.
type UserPatch struct {
	Rate            *int
	MatchHistory    *[]string
	Memos           *json.RawMessage
	BattleRecords   *json.RawMessage
	RegisteredDecks *json.RawMessage
	CurrentMatchID  *sql.NullString
	Username        *string
}

// buildUserPatch renders the SET clause and argument list for a patch.
// Returns an empty clause when the patch is a no-op.
func buildUserPatch(p UserPatch) (string, []interface{}) {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}

	if p.Rate != nil {
		add("rate", *p.Rate)
	}
	if p.MatchHistory != nil {
		b, _ := json.Marshal(*p.MatchHistory)
		add("match_history", string(b))
	}
	if p.Memos != nil {
		add("memos", string(*p.Memos))
	}
	if p.BattleRecords != nil {
		add("battle_records", string(*p.BattleRecords))
	}
	if p.RegisteredDecks != nil {
		add("registered_decks", string(*p.RegisteredDecks))
	}
	if p.CurrentMatchID != nil {
		add("current_match_id", *p.CurrentMatchID)
	}
	if p.Username != nil {
		add("username", *p.Username)
	}
	if len(sets) == 0 {
		return "", nil
	}
	return strings.Join(sets, ", "), args
}

// PatchUser applies a partial update. A no-op patch succeeds without touching
// the row.
func (s *Store) PatchUser(ctx context.Context, id string, p UserPatch) error {
	clause, args := buildUserPatch(p)
	if clause == "" {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE id=$%d`, clause, len(args)), args...)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertMatch creates a match row with both reports null.
func (s *Store) InsertMatch(ctx context.Context, id, p1, p2 string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO matches (id, player1_id, player2_id, created_at) VALUES ($1, $2, $3, NOW())`,
		id, p1, p2)
	return mapError(err)
}

// FetchMatch returns the match row by id.
func (s *Store) FetchMatch(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	err := s.getRetry(ctx, &m, `SELECT `+matchColumns+` FROM matches WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// PatchMatchReport writes a report into the given slot (1 or 2). The write is
// guarded on the slot still being null and the match being unresolved, so a
// duplicate report surfaces as ErrDuplicate.
func (s *Store) PatchMatchReport(ctx context.Context, id string, slot int, value string) error {
	col := "player1_report"
	if slot == 2 {
		col = "player2_report"
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE matches SET %s=$1 WHERE id=$2 AND %s IS NULL AND resolved_at IS NULL`, col, col),
		value, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

// MarkMatchResolved claims resolution of a match. The null guard on
// resolved_at makes resolution idempotent under retry: the second caller gets
// ErrDuplicate and must not apply side effects again.
func (s *Store) MarkMatchResolved(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE matches SET resolved_at=$1 WHERE id=$2 AND resolved_at IS NULL`, at, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

// TopByRating returns the highest-rated users.
func (s *Store) TopByRating(ctx context.Context, limit int) ([]models.RankedUser, error) {
	var rows []models.RankedUser
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, username, rate FROM users ORDER BY rate DESC, username ASC LIMIT $1`, limit)
	if err != nil {
		if mapped := mapError(err); IsTransient(mapped) {
			err = s.db.SelectContext(ctx, &rows,
				`SELECT id, username, rate FROM users ORDER BY rate DESC, username ASC LIMIT $1`, limit)
			if err != nil {
				return nil, mapError(err)
			}
			return rows, nil
		}
		return nil, mapError(err)
	}
	return rows, nil
}

// getRetry runs a single-row read, retrying once on a transient failure.
// Reads have no side effects so the retry is always safe.
func (s *Store) getRetry(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := mapError(s.db.GetContext(ctx, dest, query, args...))
	if err == nil || !IsTransient(err) {
		return err
	}
	log.Printf("[STORE] transient read failure, retrying once: %v", err)
	return mapError(s.db.GetContext(ctx, dest, query, args...))
}
