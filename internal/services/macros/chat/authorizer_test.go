package chat

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenAuthorizerRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	cfg := TokenConfig{Secret: []byte("secret"), Issuer: "macrotable", Now: func() time.Time { return now }}
	authorizer, err := NewTokenAuthorizer(cfg)
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}

	tests := []struct {
		name string
		in   Identity
		want Identity
	}{
		{name: "gm", in: Identity{UserID: "u1", Role: RoleGM}, want: Identity{UserID: "u1", Role: RoleGM}},
		{name: "player", in: Identity{UserID: "u2", Role: RolePlayer}, want: Identity{UserID: "u2", Role: RolePlayer}},
		{name: "default role", in: Identity{UserID: " u3 "}, want: Identity{UserID: "u3", Role: RolePlayer}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token, err := IssueToken(cfg, tc.in, time.Hour)
			if err != nil {
				t.Fatalf("issue token: %v", err)
			}
			got, err := authorizer.Authenticate(context.Background(), token)
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if got != tc.want {
				t.Fatalf("identity = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestTokenAuthorizerRejects(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	cfg := TokenConfig{Secret: []byte("secret"), Issuer: "macrotable", Now: func() time.Time { return now }}
	authorizer, err := NewTokenAuthorizer(cfg)
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}

	issued := func(t *testing.T, cfg TokenConfig, identity Identity, ttl time.Duration) string {
		t.Helper()
		token, err := IssueToken(cfg, identity, ttl)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		return token
	}
	past := cfg
	past.Now = func() time.Time { return now.Add(-2 * time.Hour) }
	otherIssuer := cfg
	otherIssuer.Issuer = "elsewhere"
	otherSecret := cfg
	otherSecret.Secret = []byte("other")

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "iss": "macrotable"}).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1", "iss": "macrotable", "role": "dragon", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "macrotable", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: " "},
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: issued(t, past, Identity{UserID: "u1"}, time.Hour)},
		{name: "issuer", token: issued(t, otherIssuer, Identity{UserID: "u1"}, time.Hour)},
		{name: "secret", token: issued(t, otherSecret, Identity{UserID: "u1"}, time.Hour)},
		{name: "no expiry", token: noExpiry},
		{name: "role", token: badRole},
		{name: "subject", token: noSubject},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := authorizer.Authenticate(context.Background(), tc.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestIssueTokenValidation(t *testing.T) {
	cfg := TokenConfig{Secret: []byte("secret")}
	tests := []struct {
		name     string
		cfg      TokenConfig
		identity Identity
		ttl      time.Duration
	}{
		{name: "secret", cfg: TokenConfig{}, identity: Identity{UserID: "u1"}, ttl: time.Hour},
		{name: "user", cfg: cfg, identity: Identity{}, ttl: time.Hour},
		{name: "ttl", cfg: cfg, identity: Identity{UserID: "u1"}, ttl: 0},
		{name: "role", cfg: cfg, identity: Identity{UserID: "u1", Role: "dragon"}, ttl: time.Hour},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := IssueToken(tc.cfg, tc.identity, tc.ttl); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewTokenAuthorizerRequiresSecret(t *testing.T) {
	if _, err := NewTokenAuthorizer(TokenConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
