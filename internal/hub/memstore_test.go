package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Omezi42/anokoro-tcg-backend/internal/models"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

// memStore is an in-memory Store for the hub tests. It mirrors the gateway's
// guard semantics: null-guarded report slots and a single-claim resolved_at.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	matches map[string]*models.Match
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*models.User),
		matches: make(map[string]*models.Match),
	}
}

func (s *memStore) addUser(id, name string, rate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &models.User{ID: id, Username: name, Rate: rate, MatchHistory: json.RawMessage(`[]`)}
}

func (s *memStore) FetchUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) FetchUserByName(ctx context.Context, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) InsertUser(ctx context.Context, id, name, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == name {
			return store.ErrDuplicate
		}
	}
	s.users[id] = &models.User{
		ID:           id,
		Username:     name,
		PasswordHash: passwordHash,
		Rate:         1500,
		MatchHistory: json.RawMessage(`[]`),
	}
	return nil
}

func (s *memStore) TouchLastLogin(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LastLoginAt.Time, u.LastLoginAt.Valid = time.Now(), true
	}
	return nil
}

func (s *memStore) PatchUser(ctx context.Context, id string, p store.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Rate != nil {
		u.Rate = *p.Rate
	}
	if p.MatchHistory != nil {
		b, _ := json.Marshal(*p.MatchHistory)
		u.MatchHistory = b
	}
	if p.Memos != nil {
		u.Memos = *p.Memos
	}
	if p.BattleRecords != nil {
		u.BattleRecords = *p.BattleRecords
	}
	if p.RegisteredDecks != nil {
		u.RegisteredDecks = *p.RegisteredDecks
	}
	if p.CurrentMatchID != nil {
		u.CurrentMatchID = *p.CurrentMatchID
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	return nil
}

func (s *memStore) InsertMatch(ctx context.Context, id, p1, p2 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; ok {
		return store.ErrDuplicate
	}
	s.matches[id] = &models.Match{ID: id, Player1ID: p1, Player2ID: p2, CreatedAt: time.Now()}
	return nil
}

func (s *memStore) FetchMatch(ctx context.Context, id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) PatchMatchReport(ctx context.Context, id string, slot int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok || m.ResolvedAt.Valid {
		return store.ErrDuplicate
	}
	target := &m.Player1Report
	if slot == 2 {
		target = &m.Player2Report
	}
	if target.Valid {
		return store.ErrDuplicate
	}
	target.String, target.Valid = value, true
	return nil
}

func (s *memStore) MarkMatchResolved(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok || m.ResolvedAt.Valid {
		return store.ErrDuplicate
	}
	m.ResolvedAt.Time, m.ResolvedAt.Valid = at, true
	return nil
}

func (s *memStore) TopByRating(ctx context.Context, limit int) ([]models.RankedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.RankedUser
	for _, u := range s.users {
		rows = append(rows, models.RankedUser{ID: u.ID, Username: u.Username, Rate: u.Rate})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Rate != rows[j].Rate {
			return rows[i].Rate > rows[j].Rate
		}
		return rows[i].Username < rows[j].Username
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
