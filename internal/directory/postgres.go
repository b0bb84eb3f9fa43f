package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Postgres persists the directory in Postgres.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed directory.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const userColumns = `uid, firstname, lastname, grade, team_id, card_id, role, status, last_activity, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u                            User
		teamID, cardID, role, status sql.NullString
		lastActivity                 sql.NullTime
	)
	err := row.Scan(&u.UID, &u.FirstName, &u.LastName, &u.Grade, &teamID, &cardID, &role, &status, &lastActivity, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.TeamID = teamID.String
	u.CardID = cardID.String
	u.Role = role.String
	u.Status = Status(status.String)
	if lastActivity.Valid {
		t := lastActivity.Time
		u.LastActivity = &t
	}
	return u, nil
}

// AllUsers returns every user ordered by uid.
func (p *Postgres) AllUsers(ctx context.Context) ([]User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser returns one user by uid.
func (p *Postgres) GetUser(ctx context.Context, uid string) (User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, uid)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// CreateUser inserts a new user. The card-id uniqueness check is a plain
// query before the insert, matching the registration flow's advisory
// enforcement.
func (p *Postgres) CreateUser(ctx context.Context, u User) error {
	if u.CardID != "" {
		var taken int
		err := p.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE card_id = $1 AND uid <> $2`, u.CardID, u.UID).Scan(&taken)
		if err != nil {
			return err
		}
		if taken > 0 {
			return ErrCardTaken
		}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (uid, firstname, lastname, grade, team_id, card_id, role, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),NOW(),NOW())
	`, u.UID, u.FirstName, u.LastName, u.Grade, u.TeamID, u.CardID, u.Role, string(u.Status))
	return err
}

// UpdateUser applies partial edits via COALESCE so untouched columns keep
// their values.
func (p *Postgres) UpdateUser(ctx context.Context, uid string, upd UserUpdate) error {
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			firstname     = COALESCE($2, firstname),
			lastname      = COALESCE($3, lastname),
			grade         = COALESCE($4, grade),
			team_id       = COALESCE($5, team_id),
			card_id       = COALESCE($6, card_id),
			role          = COALESCE($7, role),
			status        = COALESCE($8, status),
			last_activity = COALESCE($9, last_activity),
			updated_at    = NOW()
		WHERE uid = $1
	`, uid, upd.FirstName, upd.LastName, upd.Grade, upd.TeamID, upd.CardID, upd.Role, status, upd.LastActivity)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

// FindByCardID returns the first user holding the card.
func (p *Postgres) FindByCardID(ctx context.Context, cardID string) (User, error) {
	if cardID == "" {
		return User{}, ErrNotFound
	}
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE card_id = $1 ORDER BY uid LIMIT 1`, cardID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// AllTeams returns every team ordered by id. De-duplication is free here
// (id is the primary key) but kept in the contract for parity with stores
// that can surface duplicates.
func (p *Postgres) AllTeams(ctx context.Context) ([]Team, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, leader_uid, created_at FROM teams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[string]bool)
	var teams []Team
	for rows.Next() {
		var (
			t      Team
			leader sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &leader, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.LeaderUID = leader.String
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// CreateTeam inserts a team, generating an id when absent.
func (p *Postgres) CreateTeam(ctx context.Context, t Team) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, leader_uid, created_at)
		VALUES ($1, $2, NULLIF($3,''), $4)
	`, t.ID, t.Name, t.LeaderUID, t.CreatedAt)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// UpdateTeam applies partial edits to a team.
func (p *Postgres) UpdateTeam(ctx context.Context, id string, upd TeamUpdate) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE teams SET
			name       = COALESCE($2, name),
			leader_uid = COALESCE($3, leader_uid)
		WHERE id = $1
	`, id, upd.Name, upd.LeaderUID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}
