// Package directory holds the user and team reference data the aggregation
// engine groups by.
package directory

import (
	"context"
	"errors"
	"time"
)

// Status is a user's denormalized presence status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User is one member of the organization.
type User struct {
	UID          string     `json:"uid"`
	FirstName    string     `json:"firstname"`
	LastName     string     `json:"lastname"`
	Grade        int        `json:"grade"` // cohort number, see internal/grade
	TeamID       string     `json:"team_id,omitempty"`
	CardID       string     `json:"card_id,omitempty"`
	Role         string     `json:"role,omitempty"`
	Status       Status     `json:"status,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at,omitempty"`
}

// DisplayName renders the kiosk greeting name, family name first.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.LastName + " " + u.FirstName
}

// Team groups users.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LeaderUID string    `json:"leader_uid,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// UserUpdate carries partial user edits; nil fields are left untouched.
type UserUpdate struct {
	FirstName    *string
	LastName     *string
	Grade        *int
	TeamID       *string
	CardID       *string
	Role         *string
	Status       *Status
	LastActivity *time.Time
}

// TeamUpdate carries partial team edits.
type TeamUpdate struct {
	Name      *string
	LeaderUID *string
}

// ErrNotFound indicates a lookup miss on users or teams.
var ErrNotFound = errors.New("directory: not found")

// ErrCardTaken indicates a card id is already linked to another user. The
// check is advisory (query-then-write, not transactional): two concurrent
// registrations can still slip through, and FindByCardID then resolves
// first-match.
var ErrCardTaken = errors.New("directory: card already linked")

// Directory is the user/team reference store.
type Directory interface {
	AllUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, uid string) (User, error)
	CreateUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, uid string, upd UserUpdate) error
	// FindByCardID resolves the owner of a physical card. First match wins
	// if duplicates exist; returns ErrNotFound when no user owns the card.
	FindByCardID(ctx context.Context, cardID string) (User, error)

	AllTeams(ctx context.Context) ([]Team, error)
	CreateTeam(ctx context.Context, t Team) (string, error)
	UpdateTeam(ctx context.Context, id string, upd TeamUpdate) error
}
