package guest

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/hearthplan/hearthplan/internal/container"
	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/identity"
	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
	"github.com/hearthplan/hearthplan/internal/platform/timeouts"
	"github.com/hearthplan/hearthplan/internal/retry"
)

// Gateway is the remote CRUD surface for guest rows.
type Gateway interface {
	ListGuests(ctx context.Context, identityID string) ([]Guest, error)
	InsertGuest(ctx context.Context, identityID string, input CreateInput) (Guest, error)
	UpdateGuest(ctx context.Context, identityID, guestID string, patch Patch) (Guest, error)
	DeleteGuest(ctx context.Context, identityID, guestID string) error
}

// SeatingView exposes the seating snapshot the roster consults for capacity
// checks. Implemented by the seating container.
type SeatingView interface {
	TableCapacity(tableID string) (int, bool)
}

// Roster is the guest domain state container for one identity. Mutations are
// confirmed remotely before the snapshot changes; a reload replaces the
// snapshot wholesale and supersedes any merge still in flight.
type Roster struct {
	who      identity.Identity
	provider identity.Provider
	gw       Gateway
	audit    gateway.AuditLogger

	notifier container.Notifier

	// roleMu serializes mutations claiming a unique role so two concurrent
	// creates cannot both pass the bride/groom uniqueness check.
	roleMu sync.Mutex

	mu      sync.RWMutex
	state   container.State
	guests  []Guest
	seating SeatingView
}

// NewRoster creates an empty roster container for one identity.
func NewRoster(who identity.Identity, provider identity.Provider, gw Gateway, audit gateway.AuditLogger) (*Roster, error) {
	if who.IsZero() {
		return nil, identity.ErrIdentityRequired
	}
	if gw == nil {
		return nil, fmt.Errorf("guest gateway is required")
	}
	return &Roster{
		who:      who,
		provider: provider,
		gw:       gw,
		audit:    audit,
	}, nil
}

// SetSeatingView wires the seating snapshot in after both containers exist.
func (r *Roster) SetSeatingView(view SeatingView) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.seating = view
	r.mu.Unlock()
}

// State returns the container lifecycle state.
func (r *Roster) State() container.State {
	if r == nil {
		return container.StateEmpty
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Snapshot returns the current guest list. Never blocks on I/O.
func (r *Roster) Snapshot() []Guest {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneGuests(r.guests)
}

// Subscribe registers for snapshot-change notifications.
func (r *Roster) Subscribe() (<-chan struct{}, func()) {
	return r.notifier.Subscribe()
}

// Reload re-fetches the full collection and replaces the snapshot wholesale.
// On failure the previous snapshot stays in place and the state returns to
// Ready so one failed background reload never strands the UI in a spinner.
func (r *Roster) Reload(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("roster is not configured")
	}

	r.mu.Lock()
	previous := r.state
	r.state = container.StateLoading
	r.mu.Unlock()

	guests, err := retry.Execute(ctx, r.provider, "guests.reload", func(ctx context.Context) ([]Guest, error) {
		listCtx, cancel := context.WithTimeout(ctx, timeouts.CollectionReload)
		defer cancel()
		return r.gw.ListGuests(listCtx, r.who.ID)
	})
	if err != nil {
		r.mu.Lock()
		if previous == container.StateReady {
			r.state = container.StateReady
		} else {
			r.state = container.StateEmpty
		}
		r.mu.Unlock()
		if gateway.IsTimeout(err) {
			return apperrors.Wrap(apperrors.CodeTimeout, "guest reload timed out", err)
		}
		return fmt.Errorf("reload guests: %w", err)
	}

	r.mu.Lock()
	r.guests = guests
	r.state = container.StateReady
	r.mu.Unlock()
	r.notifier.Notify()
	return nil
}

// Clear drops the snapshot, used when the identity disappears.
func (r *Roster) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.guests = nil
	r.state = container.StateEmpty
	r.mu.Unlock()
	r.notifier.Notify()
}

// Create validates and inserts one guest. The snapshot is only updated with
// the authoritative row returned by the gateway (appended, preserving order).
func (r *Roster) Create(ctx context.Context, input CreateInput) (Guest, error) {
	if r == nil {
		return Guest{}, fmt.Errorf("roster is not configured")
	}

	normalized, err := NormalizeCreateInput(input)
	if err != nil {
		return Guest{}, err
	}
	if normalized.Role.Unique() {
		r.roleMu.Lock()
		defer r.roleMu.Unlock()
	}
	if err := r.checkRoleFree(normalized.Role, ""); err != nil {
		return Guest{}, err
	}
	if err := r.checkCompanion(normalized.CompanionOf, ""); err != nil {
		return Guest{}, err
	}

	created, err := retry.Execute(ctx, r.provider, "guests.create", func(ctx context.Context) (Guest, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return r.gw.InsertGuest(mutCtx, r.who.ID, normalized)
	})
	if err != nil {
		return Guest{}, fmt.Errorf("create guest: %w", err)
	}

	r.mu.Lock()
	r.guests = append(r.guests, created)
	r.mu.Unlock()
	r.notifier.Notify()
	r.recordAudit(ctx, created.ID, "create")
	return created, nil
}

// Update validates and applies a partial update, merging the authoritative
// row back by id. An RSVP transition to declined clears the seat in the same
// gateway call so no observer sees a declined guest still holding a chair.
func (r *Roster) Update(ctx context.Context, guestID string, patch Patch) (Guest, error) {
	if r == nil {
		return Guest{}, fmt.Errorf("roster is not configured")
	}
	if err := ValidatePatch(patch); err != nil {
		return Guest{}, err
	}

	current, ok := r.find(guestID)
	if !ok {
		return Guest{}, gateway.ErrNotFound
	}
	if patch.Role != nil {
		if patch.Role.Unique() {
			r.roleMu.Lock()
			defer r.roleMu.Unlock()
		}
		if err := r.checkRoleFree(*patch.Role, guestID); err != nil {
			return Guest{}, err
		}
	}
	if patch.CompanionOf != nil && *patch.CompanionOf != "" {
		if err := r.checkCompanion(*patch.CompanionOf, guestID); err != nil {
			return Guest{}, err
		}
	}

	// A declined guest never holds a seat, whichever order the fields
	// arrive in: a seat patch landing on a declined row is rejected, and a
	// decline on a seated row clears the seat in the same gateway call so
	// interleaved reloads never observe the intermediate state.
	effectiveRSVP := current.RSVP
	if patch.RSVP != nil {
		effectiveRSVP = *patch.RSVP
	}
	if effectiveRSVP == RSVPDeclined {
		if patch.Seat != nil {
			return Guest{}, apperrors.New(apperrors.CodeGuestDeclinedHasSeat, "declined guests cannot hold a seat")
		}
		if current.Seated() {
			patch.ClearSeat = true
		}
	}

	updated, err := retry.Execute(ctx, r.provider, "guests.update", func(ctx context.Context) (Guest, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return r.gw.UpdateGuest(mutCtx, r.who.ID, guestID, patch)
	})
	if err != nil {
		return Guest{}, fmt.Errorf("update guest: %w", err)
	}

	r.merge(updated)
	r.recordAudit(ctx, guestID, "update")
	return updated, nil
}

// UpdateRSVP is the compound RSVP mutation path.
func (r *Roster) UpdateRSVP(ctx context.Context, guestID string, rsvp RSVP) (Guest, error) {
	return r.Update(ctx, guestID, Patch{RSVP: &rsvp})
}

// Delete removes one guest remotely, then from the snapshot. Companions
// linked to the guest are unlinked locally on the next reload.
func (r *Roster) Delete(ctx context.Context, guestID string) error {
	if r == nil {
		return fmt.Errorf("roster is not configured")
	}
	if _, ok := r.find(guestID); !ok {
		return gateway.ErrNotFound
	}

	if err := retry.Do(ctx, r.provider, "guests.delete", func(ctx context.Context) error {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return r.gw.DeleteGuest(mutCtx, r.who.ID, guestID)
	}); err != nil {
		return fmt.Errorf("delete guest: %w", err)
	}

	r.mu.Lock()
	kept := r.guests[:0:0]
	for _, g := range r.guests {
		if g.ID != guestID {
			kept = append(kept, g)
		}
	}
	r.guests = kept
	r.mu.Unlock()
	r.notifier.Notify()
	r.recordAudit(ctx, guestID, "delete")
	return nil
}

// AssignSeat seats a guest at a table. Capacity and seat collisions are
// checked against the local snapshots only; concurrent assignment from a
// second session can still overflow remotely, which is accepted.
func (r *Roster) AssignSeat(ctx context.Context, guestID, tableID string, seatIndex int) (Guest, error) {
	if r == nil {
		return Guest{}, fmt.Errorf("roster is not configured")
	}

	current, ok := r.find(guestID)
	if !ok {
		return Guest{}, gateway.ErrNotFound
	}
	if current.RSVP == RSVPDeclined {
		return Guest{}, apperrors.New(apperrors.CodeGuestDeclinedHasSeat, "declined guests cannot hold a seat")
	}

	r.mu.RLock()
	view := r.seating
	r.mu.RUnlock()
	if view == nil {
		return Guest{}, apperrors.New(apperrors.CodeGuestSeatWithoutTable, "seating plan is not available")
	}
	capacity, ok := view.TableCapacity(tableID)
	if !ok {
		return Guest{}, apperrors.New(apperrors.CodeTableNotFound, "table not found")
	}
	if seatIndex < 0 || seatIndex >= capacity {
		return Guest{}, apperrors.WithMetadata(apperrors.CodeTableSeatOutOfRange, "seat index out of range", map[string]string{
			"seatIndex": fmt.Sprintf("must be between 0 and %d", capacity-1),
		})
	}

	occupants := AssignedTo(r.Snapshot(), tableID)
	occupied := 0
	for _, occupant := range occupants {
		if occupant.ID == guestID {
			continue
		}
		occupied++
		if occupant.Seat.Index == seatIndex {
			return Guest{}, apperrors.New(apperrors.CodeTableSeatTaken, "seat is already taken")
		}
	}
	if occupied >= capacity {
		return Guest{}, apperrors.New(apperrors.CodeTableFull, "table is full")
	}

	return r.Update(ctx, guestID, Patch{Seat: &Seat{TableID: tableID, Index: seatIndex}})
}

// UnassignSeat clears a guest's table assignment.
func (r *Roster) UnassignSeat(ctx context.Context, guestID string) (Guest, error) {
	return r.Update(ctx, guestID, Patch{ClearSeat: true})
}

// LinkCompanion links companionID as a plus-one of hostID.
func (r *Roster) LinkCompanion(ctx context.Context, companionID, hostID string) (Guest, error) {
	return r.Update(ctx, companionID, Patch{CompanionOf: &hostID})
}

// UnlinkCompanion clears a companion link.
func (r *Roster) UnlinkCompanion(ctx context.Context, companionID string) (Guest, error) {
	empty := ""
	return r.Update(ctx, companionID, Patch{CompanionOf: &empty})
}

// RoleGuest returns the guest holding a role, if any.
func (r *Roster) RoleGuest(role Role) (Guest, bool) {
	if r == nil {
		return Guest{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return FindRole(r.guests, role)
}

// SeatedCount reports how many guests are assigned to one table.
func (r *Roster) SeatedCount(tableID string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, g := range r.guests {
		if g.Seat != nil && g.Seat.TableID == tableID {
			count++
		}
	}
	return count
}

// find looks a guest up in the snapshot by id.
func (r *Roster) find(guestID string) (Guest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.guests {
		if g.ID == guestID {
			return g, true
		}
	}
	return Guest{}, false
}

// merge replaces one row by id, preserving snapshot order.
func (r *Roster) merge(updated Guest) {
	r.mu.Lock()
	for i, g := range r.guests {
		if g.ID == updated.ID {
			r.guests[i] = updated
			break
		}
	}
	r.mu.Unlock()
	r.notifier.Notify()
}

// checkRoleFree enforces at most one bride and one groom, excluding the
// guest being updated.
func (r *Roster) checkRoleFree(role Role, excludeID string) error {
	if !role.Unique() {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.guests {
		if g.Role == role && g.ID != excludeID {
			return apperrors.WithMetadata(apperrors.CodeGuestRoleTaken, "role already taken", map[string]string{
				"role": string(role),
			})
		}
	}
	return nil
}

// checkCompanion enforces the one-level companion rule.
func (r *Roster) checkCompanion(hostID, selfID string) error {
	if hostID == "" {
		return nil
	}
	if hostID == selfID {
		return apperrors.New(apperrors.CodeGuestCompanionOfSelf, "guest cannot be their own companion")
	}
	host, ok := r.find(hostID)
	if !ok {
		return apperrors.New(apperrors.CodeGuestCompanionNotFound, "companion host not found")
	}
	if host.CompanionOf != "" {
		return apperrors.New(apperrors.CodeGuestCompanionChained, "a companion cannot host a companion")
	}
	return nil
}

// recordAudit writes one audit row. Audit failures never block the mutation.
func (r *Roster) recordAudit(ctx context.Context, guestID, action string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.RecordMutation(ctx, r.who.ID, gateway.TableGuests, guestID, action); err != nil {
		log.Printf("audit %s guest %s: %v", action, guestID, err)
	}
}

func cloneGuests(guests []Guest) []Guest {
	if len(guests) == 0 {
		return nil
	}
	result := make([]Guest, len(guests))
	copy(result, guests)
	for i, g := range result {
		if g.Seat != nil {
			seat := *g.Seat
			result[i].Seat = &seat
		}
	}
	return result
}
