package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-core/internal/metrics"
	"go-auth-core/internal/model"
	"go-auth-core/internal/password"
	"go-auth-core/internal/token"
	"go-auth-core/pkg/apierror"
)

// UserStore is the user-row access the credential service needs.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (model.User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// TokenStore is the refresh-token row access. Redeem must be a conditional
// update that only succeeds while used_at is still NULL.
type TokenStore interface {
	Store(ctx context.Context, t model.RefreshToken) error
	FindByValue(ctx context.Context, tokenValue string) (model.RefreshToken, bool, error)
	Redeem(ctx context.Context, tokenValue string, at time.Time) (bool, error)
	InvalidateByValue(ctx context.Context, tokenValue string, at time.Time) (bool, error)
	InvalidateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

type AuditStore interface {
	Record(ctx context.Context, event model.AuditEvent) error
}

type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(digest string, secret string) (bool, error)
	DummyDigest() string
}

type AuthService struct {
	users   UserStore
	tokens  TokenStore
	audit   AuditStore
	hasher  PasswordHasher
	codec   *token.Codec
	metrics *metrics.Metrics
}

func NewAuthService(users UserStore, tokens TokenStore, audit AuditStore, hasher PasswordHasher, codec *token.Codec, m *metrics.Metrics) *AuthService {
	return &AuthService{
		users:   users,
		tokens:  tokens,
		audit:   audit,
		hasher:  hasher,
		codec:   codec,
		metrics: m,
	}
}

// Register creates a user with the least-privileged role and issues the
// first token pair.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.TokenPair, error) {
	email := normalizeEmail(req.Email)
	phone := normalizePhone(req.Phone)
	name := strings.TrimSpace(req.Name)

	if err := validateRegistration(email, phone, name, req.Password); err != nil {
		return model.TokenPair{}, err
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:             uuid.NewString(),
		Email:          email,
		Phone:          phone,
		Name:           name,
		PasswordDigest: digest,
		Role:           model.RoleUser,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, model.ErrEmailAlreadyExists):
			return model.TokenPair{}, apierror.New("EMAIL_ALREADY_EXISTS", "email already registered", "", http.StatusConflict)
		case errors.Is(err, model.ErrPhoneAlreadyExists):
			return model.TokenPair{}, apierror.New("PHONE_ALREADY_EXISTS", "phone already registered", "", http.StatusConflict)
		}
		return model.TokenPair{}, err
	}

	s.recordAudit(ctx, model.AuditUserRegistered, user.ID, "")
	slog.Info("user registered", "user_id", user.ID, "role", user.Role)

	return s.IssueTokenPair(ctx, user)
}

// Login verifies credentials with a constant response shape: whether or not
// the account exists, exactly one password verification runs. Do not
// "optimize" the dummy verification away; it is what keeps response timing
// from leaking account existence.
func (s *AuthService) Login(ctx context.Context, identifier string, pass string) (model.TokenPair, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" || pass == "" {
		return model.TokenPair{}, apierror.New("VALIDATION_ERROR", "identifier and password are required", "", http.StatusBadRequest)
	}

	user, lookupErr := s.users.FindByIdentifier(ctx, identifier)

	digest := s.hasher.DummyDigest()
	if lookupErr == nil {
		digest = user.PasswordDigest
	} else if !errors.Is(lookupErr, model.ErrUserNotFound) {
		return model.TokenPair{}, lookupErr
	}

	match, err := s.hasher.Verify(digest, pass)
	if err != nil && !errors.Is(err, password.ErrInvalidDigest) {
		return model.TokenPair{}, fmt.Errorf("verify password: %w", err)
	}

	if lookupErr != nil || !match {
		reason := "wrong password"
		if lookupErr != nil {
			reason = "unknown account"
		}
		s.recordAudit(ctx, model.AuditLoginFailed, user.ID, reason)
		s.metrics.Logins.WithLabelValues("invalid_credentials").Inc()
		return model.TokenPair{}, invalidCredentials()
	}

	if !user.IsActive {
		s.recordAudit(ctx, model.AuditLoginFailed, user.ID, "account inactive")
		s.metrics.Logins.WithLabelValues("inactive").Inc()
		return model.TokenPair{}, invalidCredentials()
	}

	// Best effort: a failed timestamp update must not fail the login.
	if err := s.users.TouchLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		slog.Warn("failed to update last_login_at", "user_id", user.ID, "error", err)
	}

	s.recordAudit(ctx, model.AuditLoginSucceeded, user.ID, "")
	s.metrics.Logins.WithLabelValues("success").Inc()

	return s.IssueTokenPair(ctx, user)
}

// IssueTokenPair mints an access token and persists a fresh continuation
// token row. The only other place continuation tokens are minted is the
// refresh rotation below.
func (s *AuthService) IssueTokenPair(ctx context.Context, user model.User) (model.TokenPair, error) {
	accessToken, err := s.codec.GenerateAccessToken(user)
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshValue, err := s.codec.GenerateRefreshToken()
	if err != nil {
		return model.TokenPair{}, err
	}

	now := time.Now().UTC()
	row := model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refreshValue,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codec.RefreshTTL()),
	}
	if err := s.tokens.Store(ctx, row); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		User:         user.Public(),
	}, nil
}

// Refresh redeems a continuation token and rotates the pair.
//
// An already-used token is evidence the value leaked to a second party.
// The response is deliberately coarse: every outstanding token for the
// user is invalidated and the caller must re-authenticate with a password.
func (s *AuthService) Refresh(ctx context.Context, presented string) (model.TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > 512 {
		s.metrics.Refreshes.WithLabelValues("invalid").Inc()
		return model.TokenPair{}, invalidRefreshToken()
	}

	row, ownerActive, err := s.tokens.FindByValue(ctx, presented)
	if err != nil {
		if errors.Is(err, model.ErrTokenNotFound) {
			s.metrics.Refreshes.WithLabelValues("invalid").Inc()
			return model.TokenPair{}, invalidRefreshToken()
		}
		return model.TokenPair{}, err
	}

	now := time.Now().UTC()

	if !row.ExpiresAt.After(now) {
		s.metrics.Refreshes.WithLabelValues("expired").Inc()
		return model.TokenPair{}, apierror.New("REFRESH_TOKEN_EXPIRED", "refresh token expired", "", http.StatusUnauthorized)
	}

	if row.UsedAt != nil {
		return model.TokenPair{}, s.handleReuse(ctx, row.UserID)
	}

	if !ownerActive {
		s.metrics.Refreshes.WithLabelValues("inactive").Inc()
		return model.TokenPair{}, apierror.New("USER_ACCOUNT_INACTIVE", "user account is inactive", "", http.StatusUnauthorized)
	}

	redeemed, err := s.tokens.Redeem(ctx, presented, now)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !redeemed {
		// Lost the race: someone else redeemed this token between our read
		// and the conditional update. Same treatment as observed reuse.
		return model.TokenPair{}, s.handleReuse(ctx, row.UserID)
	}

	user, err := s.users.FindByID(ctx, row.UserID)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.recordAudit(ctx, model.AuditTokenRotated, user.ID, "")
	s.metrics.Refreshes.WithLabelValues("rotated").Inc()

	return s.IssueTokenPair(ctx, user)
}

func (s *AuthService) handleReuse(ctx context.Context, userID string) error {
	revoked, err := s.tokens.InvalidateAllForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return err
	}

	slog.Error("refresh token reuse detected; all sessions revoked",
		"user_id", userID, "tokens_revoked", revoked)
	s.recordAudit(ctx, model.AuditReuseDetected, userID, fmt.Sprintf("revoked %d tokens", revoked))
	s.metrics.Refreshes.WithLabelValues("reuse").Inc()
	s.metrics.ReuseDetected.Inc()

	return apierror.New("REFRESH_TOKEN_REUSE_DETECTED", "refresh token reuse detected", "", http.StatusForbidden)
}

// Logout invalidates a single continuation token. Idempotent: invalidating
// an already-dead token reports found=false, never an error.
func (s *AuthService) Logout(ctx context.Context, tokenValue string) (bool, error) {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		return false, apierror.New("INVALID_REQUEST", "refresh_token is required", "refresh_token", http.StatusBadRequest)
	}

	found, err := s.tokens.InvalidateByValue(ctx, tokenValue, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if found {
		s.recordAudit(ctx, model.AuditLogout, "", "")
	}
	return found, nil
}

// LogoutAll invalidates every live continuation token for the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	revoked, err := s.tokens.InvalidateAllForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	s.recordAudit(ctx, model.AuditLogoutEverywhere, userID, fmt.Sprintf("revoked %d tokens", revoked))
	return revoked, nil
}

// GetUserByID resolves an access token's subject into a full user view.
// A missing row means the user was deleted after the token was issued.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, apierror.New("USER_NOT_FOUND", "user not found", "", http.StatusNotFound)
		}
		return model.User{}, err
	}
	if !user.IsActive {
		return model.User{}, apierror.New("USER_ACCOUNT_INACTIVE", "user account is inactive", "", http.StatusUnauthorized)
	}
	return user.Public(), nil
}

func (s *AuthService) recordAudit(ctx context.Context, action string, userID string, detail string) {
	event := model.AuditEvent{
		Action:     action,
		UserID:     userID,
		ClientIP:   ClientIPFromContext(ctx),
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, event); err != nil {
		slog.Warn("failed to record audit event", "action", action, "error", err)
	}
}

func invalidCredentials() error {
	// One code for wrong password, unknown account and inactive account:
	// the caller must not be able to enumerate accounts from the response.
	return apierror.New("INVALID_CREDENTIALS", "invalid credentials", "", http.StatusUnauthorized)
}

func invalidRefreshToken() error {
	return apierror.New("INVALID_REFRESH_TOKEN", "refresh token is invalid", "", http.StatusUnauthorized)
}
