package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-core/internal/config"
	"go-auth-core/internal/handler"
	"go-auth-core/internal/limiter"
	"go-auth-core/internal/metrics"
	"go-auth-core/internal/middleware"
	"go-auth-core/internal/model"
	"go-auth-core/internal/password"
	"go-auth-core/internal/router"
	"go-auth-core/internal/service"
	"go-auth-core/internal/token"
)

// ---- in-memory stores ----

type stores struct {
	mu     sync.Mutex
	users  map[string]model.User
	tokens map[string]*model.RefreshToken
}

func newStores() *stores {
	return &stores{users: map[string]model.User{}, tokens: map[string]*model.RefreshToken{}}
}

func (s *stores) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return model.ErrEmailAlreadyExists
		}
		if u.Phone != "" && existing.Phone == u.Phone {
			return model.ErrPhoneAlreadyExists
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *stores) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *stores) FindByIdentifier(_ context.Context, identifier string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == identifier || (u.Phone != "" && u.Phone == identifier) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *stores) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.LastLoginAt = &at
	s.users[userID] = u
	return nil
}

func (s *stores) Store(_ context.Context, t model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := t
	s.tokens[t.Token] = &row
	return nil
}

func (s *stores) FindByValue(_ context.Context, tokenValue string) (model.RefreshToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[tokenValue]
	if !ok {
		return model.RefreshToken{}, false, model.ErrTokenNotFound
	}
	owner := s.users[row.UserID]
	return *row, owner.IsActive, nil
}

func (s *stores) Redeem(_ context.Context, tokenValue string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[tokenValue]
	if !ok || row.UsedAt != nil {
		return false, nil
	}
	row.UsedAt = &at
	return true, nil
}

func (s *stores) InvalidateByValue(_ context.Context, tokenValue string, at time.Time) (bool, error) {
	return s.Redeem(context.Background(), tokenValue, at)
}

func (s *stores) InvalidateAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, row := range s.tokens {
		if row.UserID == userID && row.UsedAt == nil {
			row.UsedAt = &at
			affected++
		}
	}
	return affected, nil
}

func (s *stores) Record(_ context.Context, _ model.AuditEvent) error { return nil }

// ---- harness ----

type harness struct {
	router http.Handler
	stores *stores
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	hasher, err := password.NewHasher(password.Params{
		MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)

	codec, err := token.NewCodec(token.Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "go-auth-core",
		Audience:   "go-auth-core-api",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 720 * time.Hour,
	})
	require.NoError(t, err)

	st := newStores()
	m := metrics.New()
	authService := service.NewAuthService(st, st, st, hasher, codec, m)

	cfg := &config.Config{
		RequestTimeout: 30 * time.Second,
		RateLimitRPM:   10000,
		CORSOrigins:    []string{"*"},
	}

	loginWindow := limiter.NewFixedWindow(limiter.NewMemoryCounter(), 100, time.Minute, "login", false)

	appRouter := router.New(cfg,
		middleware.NewAuthMiddleware(codec),
		handler.NewAuthHandler(authService),
		loginWindow, m,
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
	)

	return &harness{router: appRouter, stores: st}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func (h *harness) do(t *testing.T, method string, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:4567"
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func (h *harness) registerUser(t *testing.T) model.TokenPair {
	t.Helper()

	rec, env := h.do(t, "POST", "/api/v1/auth/register", model.RegisterRequest{
		Email:    "user@test.com",
		Name:     "Test User",
		Password: "Secret123!",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var pair model.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	return pair
}

// ---- tests ----

func TestRegisterLoginFlow(t *testing.T) {
	h := newHarness(t)
	pair := h.registerUser(t)

	assert.Equal(t, "user@test.com", pair.User.Email)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.Equal(t, "Bearer", pair.TokenType)

	rec, env := h.do(t, "POST", "/api/v1/auth/login", model.LoginRequest{
		Identifier: "User@Test.com",
		Password:   "Secret123!",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var loggedIn model.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &loggedIn))
	assert.Equal(t, "user@test.com", loggedIn.User.Email)
	assert.NotEmpty(t, loggedIn.AccessToken)
}

func TestLoginBadCredentials(t *testing.T) {
	h := newHarness(t)
	h.registerUser(t)

	rec, env := h.do(t, "POST", "/api/v1/auth/login", model.LoginRequest{
		Identifier: "user@test.com",
		Password:   "WrongPassword1!",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	h := newHarness(t)
	pair := h.registerUser(t)

	rec, env := h.do(t, "POST", "/api/v1/auth/refresh", model.RefreshRequest{
		RefreshToken: pair.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated model.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The old token is dead; presenting it again is a security incident.
	rec, env = h.do(t, "POST", "/api/v1/auth/refresh", model.RefreshRequest{
		RefreshToken: pair.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFRESH_TOKEN_REUSE_DETECTED", env.Error.Code)

	// The rotated token died in the blast radius too.
	rec, env = h.do(t, "POST", "/api/v1/auth/refresh", model.RefreshRequest{
		RefreshToken: rotated.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
}

func TestMeEndpoint(t *testing.T) {
	h := newHarness(t)
	pair := h.registerUser(t)

	rec, env := h.do(t, "GET", "/api/v1/auth/me", nil, map[string]string{
		"Authorization": "Bearer " + pair.AccessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var user model.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "user@test.com", user.Email)

	rec, env = h.do(t, "GET", "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "MISSING_TOKEN", env.Error.Code)

	rec, env = h.do(t, "GET", "/api/v1/auth/me", nil, map[string]string{
		"Authorization": "bearer " + pair.AccessToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TOKEN_FORMAT", env.Error.Code)
}

func TestLogoutFlow(t *testing.T) {
	h := newHarness(t)
	pair := h.registerUser(t)

	rec, _ := h.do(t, "POST", "/api/v1/auth/logout", model.RefreshRequest{
		RefreshToken: pair.RefreshToken,
	}, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)

	// The continuation token no longer refreshes anything.
	rec, env := h.do(t, "POST", "/api/v1/auth/refresh", model.RefreshRequest{
		RefreshToken: pair.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFRESH_TOKEN_REUSE_DETECTED", env.Error.Code)
}

func TestLogoutAllEndpoint(t *testing.T) {
	h := newHarness(t)
	pair := h.registerUser(t)

	rec, env := h.do(t, "POST", "/api/v1/auth/logout_all", model.RefreshRequest{}, map[string]string{
		"Authorization": "Bearer " + pair.AccessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		SessionsRevoked int64 `json:"sessions_revoked"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(1), result.SessionsRevoked)
}

func TestRegisterValidationOverHTTP(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, "POST", "/api/v1/auth/register", model.RegisterRequest{
		Email:    "bad-email",
		Name:     "Test",
		Password: "Secret123!",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestDuplicateRegistrationOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.registerUser(t)

	rec, env := h.do(t, "POST", "/api/v1/auth/register", model.RegisterRequest{
		Email:    "user@test.com",
		Name:     "Copycat",
		Password: "Another123!",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "EMAIL_ALREADY_EXISTS", env.Error.Code)
}

func TestLoginRateLimitOverHTTP(t *testing.T) {
	hasher, err := password.NewHasher(password.Params{
		MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)

	codec, err := token.NewCodec(token.Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "go-auth-core",
		Audience:   "go-auth-core-api",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 720 * time.Hour,
	})
	require.NoError(t, err)

	st := newStores()
	m := metrics.New()
	authService := service.NewAuthService(st, st, st, hasher, codec, m)

	cfg := &config.Config{RequestTimeout: 30 * time.Second, RateLimitRPM: 10000}
	loginWindow := limiter.NewFixedWindow(limiter.NewMemoryCounter(), 3, time.Minute, "login", false)

	appRouter := router.New(cfg,
		middleware.NewAuthMiddleware(codec),
		handler.NewAuthHandler(authService),
		loginWindow, m,
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
	)

	send := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(model.LoginRequest{Identifier: "nobody@test.com", Password: "whatever123"})
		req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader(body))
		req.RemoteAddr = "10.0.0.1:4567"
		rec := httptest.NewRecorder()
		appRouter.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		rec := send()
		require.Equal(t, http.StatusUnauthorized, rec.Code, fmt.Sprintf("attempt %d", i+1))
	}

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}
