// Package identity defines the authenticated identity contract consumed by
// the synchronization engine. The engine never builds identity itself; it
// observes a Provider and scopes every cache and storage key to the current
// identity id.
package identity

import (
	"context"
	"strings"

	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
)

// ErrIdentityRequired indicates an operation was attempted with no signed-in
// identity.
var ErrIdentityRequired = apperrors.New(apperrors.CodeIdentityRequired, "identity is required")

// ErrSessionExpired indicates a session that could not be verified or
// refreshed; callers must treat it as terminal and re-authenticate.
var ErrSessionExpired = apperrors.New(apperrors.CodeSessionExpired, "session expired")

// Identity is one authenticated household account.
type Identity struct {
	ID    string
	Email string
}

// IsZero reports whether the identity is absent.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.ID) == ""
}

// Change describes one identity transition observed from the provider.
type Change struct {
	Previous Identity
	Current  Identity
}

// SignedIn reports whether the change ends with an authenticated identity.
func (c Change) SignedIn() bool {
	return !c.Current.IsZero()
}

// Provider supplies the current identity and session controls. Implementations
// must be safe for concurrent use.
type Provider interface {
	// Current returns the identity most recently observed locally. The
	// boolean reports readiness: false means the provider has not yet
	// resolved the initial session and callers should wait.
	Current() (Identity, bool)

	// VerifyServerSide confirms the session against the identity backend and
	// returns the server-confirmed identity.
	VerifyServerSide(ctx context.Context) (Identity, error)

	// RefreshSession exchanges the current session material for fresh
	// credentials.
	RefreshSession(ctx context.Context) error

	// SignOut terminates the session. Implementations emit a Change with a
	// zero Current identity.
	SignOut(ctx context.Context) error

	// Subscribe registers for identity-change events. The cancel func
	// releases the subscription; events after cancel are not delivered.
	Subscribe() (<-chan Change, func())
}
