package linkreq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and dev.
type MemoryStore struct {
	mu   sync.RWMutex
	reqs map[string]Request // token -> request
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]Request)}
}

// Create stores a new request keyed by token.
func (s *MemoryStore) Create(_ context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	s.reqs[req.Token] = req
	return req.ID, nil
}

// FindByToken returns the request for the token.
func (s *MemoryStore) FindByToken(_ context.Context, token string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.reqs[token]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

// UpdateByToken updates status and the optional card/user references.
func (s *MemoryStore) UpdateByToken(_ context.Context, token string, status Status, cardID, uid string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.reqs[token]
	if !ok {
		return Request{}, ErrNotFound
	}
	req.Status = status
	if cardID != "" {
		req.CardID = cardID
	}
	if uid != "" {
		req.UID = uid
	}
	req.UpdatedAt = time.Now()
	s.reqs[token] = req
	return req, nil
}

// MemoryNotifier fans out changes to in-process subscribers.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string][]chan Request
}

// NewMemoryNotifier creates an in-process notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string][]chan Request)}
}

// Publish delivers the change to every subscriber of the token. Slow
// subscribers drop updates rather than block the publisher.
func (n *MemoryNotifier) Publish(_ context.Context, req Request) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[req.Token] {
		select {
		case ch <- req:
		default:
		}
	}
	return nil
}

// Subscribe registers a watcher for the token.
func (n *MemoryNotifier) Subscribe(_ context.Context, token string) (<-chan Request, func(), error) {
	ch := make(chan Request, 8)
	n.mu.Lock()
	n.subs[token] = append(n.subs[token], ch)
	n.mu.Unlock()

	stop := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subs[token]
		for i, c := range subs {
			if c == ch {
				n.subs[token] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, stop, nil
}
