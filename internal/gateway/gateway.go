// Package gateway defines the remote gateway contracts shared by every
// domain container: change-feed subscription, error classification, and the
// bootstrap procedures. Per-entity CRUD surfaces are declared by their
// consuming domain packages; implementations live under gateway/memory and
// any network-backed client.
package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
)

// Table names in the remote store. Change-feed subscriptions and audit rows
// are keyed by these.
const (
	TableGuests   = "guests"
	TableTables   = "tables"
	TableTasks    = "tasks"
	TableExpenses = "expenses"
	TableProfiles = "profiles"
)

// ErrNotFound indicates the requested row does not exist for the identity.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "row not found")

// ErrConflict indicates the remote store rejected a concurrent modification.
var ErrConflict = apperrors.New(apperrors.CodeConflict, "row conflict")

// Op identifies one change-feed row operation.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Event is one row-level change delivered by the feed. Payloads are
// deliberately opaque: consumers reload the source of truth instead of
// attempting partial merges.
type Event struct {
	Op    Op
	Table string
	RowID string
}

// Feed is the change-feed surface. Subscriptions are filtered server-side to
// rows owned by the given identity; no ordering or delivery guarantee is
// assumed beyond eventual delivery. The returned cancel stops delivery and
// should close the event channel; consumers must not rely on the close.
type Feed interface {
	Subscribe(ctx context.Context, table, identityID string) (<-chan Event, func(), error)
}

// Bootstrap is the remote bootstrap surface guarded by the initialization
// coordinator. The seed procedures are destructive when misapplied and are
// not internally idempotent; callers must never invoke them unguarded.
type Bootstrap interface {
	// InitializationFlag reads the per-identity "already initialized" marker
	// for one domain.
	InitializationFlag(ctx context.Context, identityID, domain string) (bool, error)

	// SetInitializationFlag persists the marker after a successful seed.
	SetInitializationFlag(ctx context.Context, identityID, domain string) error

	// CountRows reports existing row count for one domain's table.
	CountRows(ctx context.Context, identityID, domain string) (int, error)

	// Seed invokes the remote seed procedure for one domain.
	Seed(ctx context.Context, identityID, domain string) error
}

// AuditLogger records mutation audit rows. Audit failures are non-fatal by
// contract: implementations may fail, callers log and continue.
type AuditLogger interface {
	RecordMutation(ctx context.Context, identityID, table, rowID, action string) error
}

// authTokenMarkers are message fragments that identify token-related
// failures from backends that report auth errors as plain text.
var authTokenMarkers = []string{
	"jwt expired",
	"token expired",
	"invalid token",
	"token is expired",
	"refresh_token",
	"not authenticated",
}

// IsAuthError reports whether err is an authorization failure that the
// retry-with-reauthentication wrapper should handle.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return true
		}
	}

	if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return true
	}

	switch apperrors.GetCode(err) {
	case apperrors.CodeSessionExpired, apperrors.CodeIdentityMismatch:
		return true
	}

	message := strings.ToLower(err.Error())
	for _, marker := range authTokenMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether err is a deadline expiry rather than a
// gateway-reported failure. The two surface different user messages.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.DeadlineExceeded {
		return true
	}
	return apperrors.IsCode(err, apperrors.CodeTimeout)
}

// IsNotFound reports whether err indicates a missing row.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
		return true
	}
	return false
}
