package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
// Every mutation runs under a single mutex, so UpdateWhere keeps the same
// atomicity guarantee the SQL implementation provides.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) FindAllByUser(_ context.Context, userID string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateWhere(_ context.Context, id string, expectedVersion int, rot Rotation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil || sess.RefreshVersion != expectedVersion {
		return 0, nil
	}

	sess.HashedRefreshToken = rot.HashedRefreshToken
	sess.RefreshVersion = expectedVersion + 1
	sess.ExpiresAt = rot.ExpiresAt
	sess.IP = rot.IP
	sess.UserAgent = rot.UserAgent
	return 1, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	t := at
	sess.RevokedAt = &t
	return nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			t := at
			sess.RevokedAt = &t
		}
	}
	return nil
}

func (s *MemoryStore) RevokeAllExcept(_ context.Context, userID, keepID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.ID != keepID && sess.RevokedAt == nil {
			t := at
			sess.RevokedAt = &t
		}
	}
	return nil
}
