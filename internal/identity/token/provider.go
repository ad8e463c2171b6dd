// Package token implements an identity provider over bearer-token session
// material. Access tokens are JWTs issued by the identity backend; the
// provider reads claims locally for identity id and expiry, and defers
// signature-level verification to the backend's verify endpoint.
package token

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hearthplan/hearthplan/internal/identity"
)

// Pair holds one access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// API is the identity backend surface the provider depends on.
type API interface {
	// VerifyToken confirms the access token server-side and returns the
	// identity it belongs to.
	VerifyToken(ctx context.Context, accessToken string) (identity.Identity, error)

	// Refresh exchanges a refresh token for a fresh pair.
	Refresh(ctx context.Context, refreshToken string) (Pair, error)

	// Revoke invalidates the refresh token server-side. Failures are
	// tolerated; local sign-out proceeds regardless.
	Revoke(ctx context.Context, refreshToken string) error
}

// Provider is an identity.Provider backed by a token pair.
type Provider struct {
	api   API
	clock func() time.Time

	mu      sync.RWMutex
	pair    Pair
	current identity.Identity
	ready   bool

	subsMu sync.Mutex
	subs   map[int]chan identity.Change
	nextID int
}

// NewProvider creates a provider with no session material. Call SetSession
// once the initial tokens are known.
func NewProvider(api API) *Provider {
	return &Provider{
		api:   api,
		clock: time.Now,
		subs:  make(map[int]chan identity.Change),
	}
}

// SetSession installs new session material, resolves the identity from the
// access token claims, and emits a change event when the identity differs.
func (p *Provider) SetSession(pair Pair) error {
	if p == nil {
		return fmt.Errorf("token provider is not configured")
	}

	resolved, err := identityFromToken(pair.AccessToken)
	if err != nil {
		return err
	}

	p.mu.Lock()
	previous := p.current
	p.pair = pair
	p.current = resolved
	p.ready = true
	p.mu.Unlock()

	if previous.ID != resolved.ID {
		p.emit(identity.Change{Previous: previous, Current: resolved})
	}
	return nil
}

// Current returns the locally observed identity and readiness.
func (p *Provider) Current() (identity.Identity, bool) {
	if p == nil {
		return identity.Identity{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.ready
}

// AccessToken returns the current bearer token for gateway calls.
func (p *Provider) AccessToken() string {
	if p == nil {
		return ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pair.AccessToken
}

// VerifyServerSide confirms the session against the identity backend.
func (p *Provider) VerifyServerSide(ctx context.Context) (identity.Identity, error) {
	if p == nil || p.api == nil {
		return identity.Identity{}, fmt.Errorf("token provider is not configured")
	}

	p.mu.RLock()
	token := p.pair.AccessToken
	p.mu.RUnlock()
	if strings.TrimSpace(token) == "" {
		return identity.Identity{}, identity.ErrIdentityRequired
	}

	resolved, err := p.api.VerifyToken(ctx, token)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("verify token: %w", err)
	}
	return resolved, nil
}

// RefreshSession exchanges the refresh token for a fresh pair.
func (p *Provider) RefreshSession(ctx context.Context) error {
	if p == nil || p.api == nil {
		return fmt.Errorf("token provider is not configured")
	}

	p.mu.RLock()
	refresh := p.pair.RefreshToken
	p.mu.RUnlock()
	if strings.TrimSpace(refresh) == "" {
		return identity.ErrSessionExpired
	}

	pair, err := p.api.Refresh(ctx, refresh)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	return p.SetSession(pair)
}

// SignOut drops session material and emits a signed-out change event.
func (p *Provider) SignOut(ctx context.Context) error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	previous := p.current
	refresh := p.pair.RefreshToken
	p.pair = Pair{}
	p.current = identity.Identity{}
	p.ready = true
	p.mu.Unlock()

	if p.api != nil && strings.TrimSpace(refresh) != "" {
		// Best effort; local sign-out must not depend on the backend.
		_ = p.api.Revoke(ctx, refresh)
	}

	if !previous.IsZero() {
		p.emit(identity.Change{Previous: previous})
	}
	return nil
}

// Subscribe registers for identity-change events.
func (p *Provider) Subscribe() (<-chan identity.Change, func()) {
	if p == nil {
		ch := make(chan identity.Change)
		close(ch)
		return ch, func() {}
	}

	p.subsMu.Lock()
	id := p.nextID
	p.nextID++
	ch := make(chan identity.Change, 4)
	p.subs[id] = ch
	p.subsMu.Unlock()

	cancel := func() {
		p.subsMu.Lock()
		if existing, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(existing)
		}
		p.subsMu.Unlock()
	}
	return ch, cancel
}

// Expired reports whether the access token's exp claim has passed.
func (p *Provider) Expired() bool {
	if p == nil {
		return true
	}
	p.mu.RLock()
	token := p.pair.AccessToken
	p.mu.RUnlock()

	claims, err := parseClaims(token)
	if err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return p.clock().After(exp.Time)
}

func (p *Provider) emit(change identity.Change) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- change:
		default:
			// Slow subscribers drop events rather than block sign-in.
		}
	}
}

// identityFromToken resolves the identity carried in the access token claims.
func identityFromToken(accessToken string) (identity.Identity, error) {
	claims, err := parseClaims(accessToken)
	if err != nil {
		return identity.Identity{}, err
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return identity.Identity{}, fmt.Errorf("access token has no subject")
	}

	resolved := identity.Identity{ID: subject}
	if email, ok := claims["email"].(string); ok {
		resolved.Email = strings.TrimSpace(email)
	}
	return resolved, nil
}

// parseClaims reads JWT claims without local signature verification; the
// backend's verify endpoint is the authority on token validity.
func parseClaims(accessToken string) (jwt.MapClaims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("access token is empty")
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}
