// Package linkreq handles the card-to-user registration handshake: the kiosk
// mints an opaque token, the registration page advances it, and the kiosk
// watches for the terminal state.
package linkreq

import (
	"context"
	"errors"
	"time"
)

// Status is a link request's lifecycle state.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusOpened  Status = "opened"
	StatusDone    Status = "done"
)

var statusRank = map[Status]int{
	StatusWaiting: 0,
	StatusOpened:  1,
	StatusDone:    2,
}

// Request is one pending registration handshake. Requests are never deleted;
// they accumulate until external cleanup.
type Request struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Status    Status    `json:"status"`
	CardID    string    `json:"card_id,omitempty"`
	UID       string    `json:"uid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates no request carries the token.
	ErrNotFound = errors.New("linkreq: token not found")
	// ErrTransition indicates a status regression; the lifecycle only moves
	// waiting -> opened -> done.
	ErrTransition = errors.New("linkreq: invalid status transition")
	// ErrBadStatus indicates a status outside the lifecycle enum.
	ErrBadStatus = errors.New("linkreq: unknown status")
)

// Store persists link requests, queried by token equality.
type Store interface {
	Create(ctx context.Context, req Request) (string, error)
	FindByToken(ctx context.Context, token string) (Request, error)
	UpdateByToken(ctx context.Context, token string, status Status, cardID, uid string) (Request, error)
}

// Notifier fans a request's state changes out to watchers.
type Notifier interface {
	Publish(ctx context.Context, req Request) error
	// Subscribe delivers every subsequent change of the token's request.
	// The caller must call the returned stop function.
	Subscribe(ctx context.Context, token string) (<-chan Request, func(), error)
}

// Broker is the store+notifier pair the kiosk and registration page talk to.
type Broker struct {
	store    Store
	notifier Notifier
}

// NewBroker wires a broker.
func NewBroker(store Store, notifier Notifier) *Broker {
	return &Broker{store: store, notifier: notifier}
}

// Create registers a new waiting request for the token.
func (b *Broker) Create(ctx context.Context, token string) (string, error) {
	now := time.Now()
	return b.store.Create(ctx, Request{
		Token:     token,
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Get returns the request's current state.
func (b *Broker) Get(ctx context.Context, token string) (Request, error) {
	return b.store.FindByToken(ctx, token)
}

// Advance moves the request forward and notifies watchers. Statuses outside
// the enum and regressions are rejected; re-asserting the current status is
// a no-op update.
func (b *Broker) Advance(ctx context.Context, token string, status Status, cardID, uid string) (Request, error) {
	rank, ok := statusRank[status]
	if !ok {
		return Request{}, ErrBadStatus
	}
	cur, err := b.store.FindByToken(ctx, token)
	if err != nil {
		return Request{}, err
	}
	if rank < statusRank[cur.Status] {
		return Request{}, ErrTransition
	}
	req, err := b.store.UpdateByToken(ctx, token, status, cardID, uid)
	if err != nil {
		return Request{}, err
	}
	if err := b.notifier.Publish(ctx, req); err != nil {
		// Watchers miss one push; the record itself is already durable.
		return req, nil
	}
	return req, nil
}

// Subscribe watches the token's request for changes. Reaching StatusDone is
// the signal the kiosk waits on.
func (b *Broker) Subscribe(ctx context.Context, token string) (<-chan Request, func(), error) {
	return b.notifier.Subscribe(ctx, token)
}
