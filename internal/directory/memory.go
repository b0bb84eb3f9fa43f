package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Directory for tests and dev.
type Memory struct {
	mu    sync.RWMutex
	users map[string]User
	teams map[string]Team
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]User),
		teams: make(map[string]Team),
	}
}

// AllUsers returns every user, ordered by uid for determinism.
func (m *Memory) AllUsers(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UID < users[j].UID })
	return users, nil
}

// GetUser returns one user by uid.
func (m *Memory) GetUser(_ context.Context, uid string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[uid]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// CreateUser stores a new user. Rejects an already-linked card id.
func (m *Memory) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.CardID != "" {
		for _, existing := range m.users {
			if existing.CardID == u.CardID && existing.UID != u.UID {
				return ErrCardTaken
			}
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = time.Now()
	m.users[u.UID] = u
	return nil
}

// UpdateUser applies partial edits to a user.
func (m *Memory) UpdateUser(_ context.Context, uid string, upd UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrNotFound
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Grade != nil {
		u.Grade = *upd.Grade
	}
	if upd.TeamID != nil {
		u.TeamID = *upd.TeamID
	}
	if upd.CardID != nil {
		u.CardID = *upd.CardID
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.LastActivity != nil {
		u.LastActivity = upd.LastActivity
	}
	u.UpdatedAt = time.Now()
	m.users[uid] = u
	return nil
}

// FindByCardID returns the first user holding the card, by uid order.
func (m *Memory) FindByCardID(_ context.Context, cardID string) (User, error) {
	if cardID == "" {
		return User{}, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	uids := make([]string, 0, len(m.users))
	for uid := range m.users {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	for _, uid := range uids {
		if m.users[uid].CardID == cardID {
			return m.users[uid], nil
		}
	}
	return User{}, ErrNotFound
}

// AllTeams returns every team, ordered by id.
func (m *Memory) AllTeams(_ context.Context) ([]Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	teams := make([]Team, 0, len(m.teams))
	for _, t := range m.teams {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

// CreateTeam stores a new team, generating an id when absent.
func (m *Memory) CreateTeam(_ context.Context, t Team) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m.teams[t.ID] = t
	return t.ID, nil
}

// UpdateTeam applies partial edits to a team.
func (m *Memory) UpdateTeam(_ context.Context, id string, upd TeamUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.LeaderUID != nil {
		t.LeaderUID = *upd.LeaderUID
	}
	m.teams[id] = t
	return nil
}
