// Package token signs and verifies short-lived access tokens and generates
// opaque session continuation tokens. Access tokens are HS256 JWTs; refresh
// tokens are plain random secrets that carry no claims at all, so a leaked
// or confused refresh token can never be replayed as an access token.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-auth-core/internal/model"
)

const (
	TypeAccess = "access"

	bearerScheme = "Bearer"

	// 32 bytes of entropy, hex encoded: 64 characters.
	refreshTokenBytes = 32
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token expired")
	ErrWrongType    = errors.New("unexpected token type")
)

type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Codec struct {
	cfg Config
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("token issuer and audience are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}

	return &Codec{cfg: cfg}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.cfg.AccessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

// GenerateAccessToken signs a stateless authorization token for the user.
func (c *Codec) GenerateAccessToken(user model.User) (string, error) {
	now := time.Now().UTC()

	claims := accessClaims{
		Email: user.Email,
		Role:  user.Role,
		Type:  TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature, expiry, issuer, audience and token
// type. All checks are mandatory; failing any of them rejects the token.
func (c *Codec) VerifyAccessToken(tokenString string) (model.AccessClaims, error) {
	var claims accessClaims

	parsed, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return c.cfg.Secret, nil
		},
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.AccessClaims{}, ErrTokenExpired
		}
		return model.AccessClaims{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return model.AccessClaims{}, ErrInvalidToken
	}

	if claims.Type != TypeAccess {
		return model.AccessClaims{}, ErrWrongType
	}
	if claims.Subject == "" {
		return model.AccessClaims{}, ErrInvalidToken
	}

	return model.AccessClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
		Type:   claims.Type,
	}, nil
}

// GenerateRefreshToken returns a fixed-length opaque secret from a
// cryptographically secure source. 256 bits, hex encoded.
func (c *Codec) GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ExtractTokenFromHeader parses an Authorization header value. The scheme
// word is matched exactly, case-sensitive, followed by a single space.
// Missing and malformed headers are both reported as absent.
func ExtractTokenFromHeader(header string) (string, bool) {
	rest, ok := strings.CutPrefix(header, bearerScheme+" ")
	if !ok || rest == "" || strings.HasPrefix(rest, " ") {
		return "", false
	}
	return rest, true
}
