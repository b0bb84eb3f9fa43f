package linkreq

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// PostgresStore persists link requests in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new request.
func (p *PostgresStore) Create(ctx context.Context, req Request) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO link_requests (id, token, status, card_id, uid, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NOW(), NOW())
	`, req.ID, req.Token, string(req.Status), req.CardID, req.UID)
	if err != nil {
		return "", err
	}
	return req.ID, nil
}

// FindByToken returns the request carrying the token.
func (p *PostgresStore) FindByToken(ctx context.Context, token string) (Request, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, token, status, card_id, uid, created_at, updated_at
		FROM link_requests WHERE token = $1
		ORDER BY created_at DESC LIMIT 1
	`, token)
	return scanRequest(row)
}

// UpdateByToken updates status and the optional card/user references on the
// newest request carrying the token, the same row FindByToken resolves to.
func (p *PostgresStore) UpdateByToken(ctx context.Context, token string, status Status, cardID, uid string) (Request, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE link_requests SET
			status     = $2,
			card_id    = COALESCE(NULLIF($3,''), card_id),
			uid        = COALESCE(NULLIF($4,''), uid),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM link_requests WHERE token = $1
			ORDER BY created_at DESC LIMIT 1
		)
		RETURNING id, token, status, card_id, uid, created_at, updated_at
	`, token, string(status), cardID, uid)
	return scanRequest(row)
}

func scanRequest(row *sql.Row) (Request, error) {
	var (
		req         Request
		status      string
		cardID, uid sql.NullString
	)
	err := row.Scan(&req.ID, &req.Token, &status, &cardID, &uid, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	req.Status = Status(status)
	req.CardID = cardID.String
	req.UID = uid.String
	return req, nil
}
