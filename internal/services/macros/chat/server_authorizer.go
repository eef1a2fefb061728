package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a table participant's role.
type Role string

const (
	RoleGM     Role = "gm"
	RolePlayer Role = "player"
)

// Identity is the authenticated websocket user.
type Identity struct {
	UserID string
	Role   Role
}

// IsGM reports whether the identity sees whispered messages.
func (i Identity) IsGM() bool {
	return i.Role == RoleGM
}

// Authorizer resolves a websocket identity from a table token.
type Authorizer interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// TokenConfig configures HS256 table tokens.
type TokenConfig struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

type tableClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenAuthorizer verifies table tokens signed with a shared secret.
type TokenAuthorizer struct {
	cfg TokenConfig
}

// NewTokenAuthorizer returns an authorizer for cfg.
func NewTokenAuthorizer(cfg TokenConfig) (*TokenAuthorizer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenAuthorizer{cfg: cfg}, nil
}

// Authenticate verifies token and returns its subject and role.
func (a *TokenAuthorizer) Authenticate(_ context.Context, token string) (Identity, error) {
	if a == nil {
		return Identity{}, errors.New("token authorizer is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, errors.New("token is required")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(a.cfg.Issuer))
	}

	var claims tableClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.cfg.Secret, nil
	}, options...); err != nil {
		return Identity{}, fmt.Errorf("parse table token: %w", err)
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return Identity{}, errors.New("table token subject is required")
	}
	role, err := parseRole(claims.Role)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: userID, Role: role}, nil
}

// IssueToken signs a table token for identity that expires after ttl.
func IssueToken(cfg TokenConfig, identity Identity, ttl time.Duration) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("token secret is required")
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	role, err := parseRole(string(identity.Role))
	if err != nil {
		return "", err
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	issuedAt := now().UTC()
	claims := tableClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(identity.UserID),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Role: string(role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign table token: %w", err)
	}
	return signed, nil
}

func parseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleGM:
		return RoleGM, nil
	case RolePlayer, "":
		return RolePlayer, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}
