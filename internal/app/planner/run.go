// Package planner assembles the planner runtime: the identity provider, the
// backing gateway, the device store, and the synchronization engine.
package planner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hearthplan/hearthplan/internal/engine"
	"github.com/hearthplan/hearthplan/internal/gateway/memory"
	"github.com/hearthplan/hearthplan/internal/identity"
	"github.com/hearthplan/hearthplan/internal/identity/token"
	"github.com/hearthplan/hearthplan/internal/localstore/sqlite"
)

// RuntimeConfig holds the assembled runtime settings.
type RuntimeConfig struct {
	// LocalStorePath is the device state database location.
	LocalStorePath string

	// IdentityID and IdentityEmail describe the account the local identity
	// backend signs tokens for.
	IdentityID    string
	IdentityEmail string

	// TokenSecret signs the local session tokens.
	TokenSecret string

	// TokenTTL bounds access token lifetime.
	TokenTTL time.Duration
}

// Run assembles the runtime and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if cfg.IdentityID == "" {
		cfg.IdentityID = uuid.NewString()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = uuid.NewString()
	}

	local, err := sqlite.Open(cfg.LocalStorePath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	api := &localIdentityAPI{
		secret: []byte(cfg.TokenSecret),
		who:    identity.Identity{ID: cfg.IdentityID, Email: cfg.IdentityEmail},
		ttl:    cfg.TokenTTL,
	}
	provider := token.NewProvider(api)

	pair, err := api.issue()
	if err != nil {
		return fmt.Errorf("issue initial session: %w", err)
	}
	if err := provider.SetSession(pair); err != nil {
		return fmt.Errorf("install session: %w", err)
	}

	backend := memory.NewStore()
	eng, err := engine.New(provider, backend, local)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	log.Printf("planner runtime up for %s", cfg.IdentityID)
	return eng.Run(ctx)
}

// localIdentityAPI is the in-process identity backend: it signs and verifies
// HS256 session tokens for a single configured account. It stands in for the
// hosted identity service during local development.
type localIdentityAPI struct {
	secret []byte
	who    identity.Identity
	ttl    time.Duration
}

func (a *localIdentityAPI) issue() (token.Pair, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   a.who.ID,
		"email": a.who.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(a.ttl).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return token.Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	return token.Pair{AccessToken: access, RefreshToken: uuid.NewString()}, nil
}

// VerifyToken checks the signature and expiry and returns the account.
func (a *localIdentityAPI) VerifyToken(ctx context.Context, accessToken string) (identity.Identity, error) {
	parsed, err := jwt.Parse(accessToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return identity.Identity{}, fmt.Errorf("verify token: %w", err)
	}
	if !parsed.Valid {
		return identity.Identity{}, jwt.ErrTokenInvalidClaims
	}
	return a.who, nil
}

// Refresh issues a new pair. The local backend accepts any refresh token it
// has not revoked; there is exactly one session.
func (a *localIdentityAPI) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	if refreshToken == "" {
		return token.Pair{}, jwt.ErrTokenMalformed
	}
	return a.issue()
}

// Revoke is a no-op locally.
func (a *localIdentityAPI) Revoke(ctx context.Context, refreshToken string) error {
	return nil
}
