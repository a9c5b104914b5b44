package service

import (
	"context"
	"sync"
	"time"

	"go-auth-core/internal/model"
)

// In-memory stores implementing the service interfaces, with the same
// conditional-update semantics the Postgres repositories provide.

type memUserStore struct {
	mu   sync.Mutex
	byID map[string]model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{byID: map[string]model.User{}}
}

func (s *memUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return model.ErrEmailAlreadyExists
		}
		if u.Phone != "" && existing.Phone == u.Phone {
			return model.ErrPhoneAlreadyExists
		}
	}

	s.byID[u.ID] = u
	return nil
}

func (s *memUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *memUserStore) FindByIdentifier(_ context.Context, identifier string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.byID {
		if u.Email == identifier || (u.Phone != "" && u.Phone == identifier) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *memUserStore) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.LastLoginAt = &at
	s.byID[userID] = u
	return nil
}

func (s *memUserStore) setActive(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.byID[userID]
	u.IsActive = active
	s.byID[userID] = u
}

type memTokenStore struct {
	mu    sync.Mutex
	rows  map[string]*model.RefreshToken
	users *memUserStore
}

func newMemTokenStore(users *memUserStore) *memTokenStore {
	return &memTokenStore{rows: map[string]*model.RefreshToken{}, users: users}
}

func (s *memTokenStore) Store(_ context.Context, t model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := t
	s.rows[t.Token] = &row
	return nil
}

func (s *memTokenStore) FindByValue(ctx context.Context, tokenValue string) (model.RefreshToken, bool, error) {
	s.mu.Lock()
	row, ok := s.rows[tokenValue]
	if !ok {
		s.mu.Unlock()
		return model.RefreshToken{}, false, model.ErrTokenNotFound
	}
	copied := *row
	s.mu.Unlock()

	owner, err := s.users.FindByID(ctx, copied.UserID)
	if err != nil {
		return model.RefreshToken{}, false, err
	}
	return copied, owner.IsActive, nil
}

func (s *memTokenStore) Redeem(_ context.Context, tokenValue string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[tokenValue]
	if !ok || row.UsedAt != nil {
		return false, nil
	}
	row.UsedAt = &at
	return true, nil
}

func (s *memTokenStore) InvalidateByValue(_ context.Context, tokenValue string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[tokenValue]
	if !ok || row.UsedAt != nil {
		return false, nil
	}
	row.UsedAt = &at
	return true, nil
}

func (s *memTokenStore) InvalidateAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, row := range s.rows {
		if row.UserID == userID && row.UsedAt == nil {
			row.UsedAt = &at
			affected++
		}
	}
	return affected, nil
}

func (s *memTokenStore) get(tokenValue string) (model.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[tokenValue]
	if !ok {
		return model.RefreshToken{}, false
	}
	return *row, true
}

func (s *memTokenStore) expire(tokenValue string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.rows[tokenValue]; ok {
		row.ExpiresAt = at
	}
}

type memAuditStore struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (s *memAuditStore) Record(_ context.Context, event model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

func (s *memAuditStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

// countingHasher wraps a PasswordHasher and counts Verify invocations,
// used to assert the constant-response-shape contract.
type countingHasher struct {
	inner       PasswordHasher
	mu          sync.Mutex
	verifyCalls int
}

func (h *countingHasher) Hash(secret string) (string, error) {
	return h.inner.Hash(secret)
}

func (h *countingHasher) Verify(digest string, secret string) (bool, error) {
	h.mu.Lock()
	h.verifyCalls++
	h.mu.Unlock()
	return h.inner.Verify(digest, secret)
}

func (h *countingHasher) DummyDigest() string {
	return h.inner.DummyDigest()
}

func (h *countingHasher) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifyCalls
}
