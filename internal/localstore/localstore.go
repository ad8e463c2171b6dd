// Package localstore defines the device-scoped persistent store owned by the
// engine: per-domain initialization markers, custom category lists, and UI
// state echoes. Every key carries the identity segment so a second identity
// signing in on the same device can never read the first identity's data.
package localstore

import "context"

// Purposes for stored values. The on-disk key is "<purpose>-<identity-id>".
const (
	PurposeTasksInitialized  = "tasks-initialized"
	PurposeBudgetInitialized = "budget-initialized"
	PurposeCustomCategories  = "custom-categories"
	PurposeExpandedSections  = "expanded-sections"
)

// Store is the key/value surface. Implementations must reject empty identity
// ids rather than fall back to an unscoped key.
type Store interface {
	// Get returns the stored value and whether it was present.
	Get(ctx context.Context, purpose, identityID string) (string, bool, error)

	// Set upserts the value for one purpose and identity.
	Set(ctx context.Context, purpose, identityID, value string) error

	// Delete removes the value; deleting an absent key is not an error.
	Delete(ctx context.Context, purpose, identityID string) error
}

// HasMarker reports whether a boolean marker is set.
func HasMarker(ctx context.Context, store Store, purpose, identityID string) (bool, error) {
	if store == nil {
		return false, nil
	}
	_, ok, err := store.Get(ctx, purpose, identityID)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SetMarker sets a boolean marker.
func SetMarker(ctx context.Context, store Store, purpose, identityID string) error {
	if store == nil {
		return nil
	}
	return store.Set(ctx, purpose, identityID, "1")
}
