package seating

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/hearthplan/hearthplan/internal/container"
	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/guest"
	"github.com/hearthplan/hearthplan/internal/identity"
	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
	"github.com/hearthplan/hearthplan/internal/platform/flight"
	"github.com/hearthplan/hearthplan/internal/platform/timeouts"
	"github.com/hearthplan/hearthplan/internal/retry"
)

// Gateway is the remote CRUD surface for table rows.
type Gateway interface {
	ListTables(ctx context.Context, identityID string) ([]Table, error)
	InsertTable(ctx context.Context, identityID string, input CreateInput) (Table, error)
	UpdateTable(ctx context.Context, identityID, tableID string, patch Patch) (Table, error)
	DeleteTable(ctx context.Context, identityID, tableID string) error
}

// RosterDirectory is the slice of the guest roster the seating plan needs:
// locating and creating the couple's guest rows, seating them, and counting
// occupancy for duplicate couple-table resolution.
type RosterDirectory interface {
	RoleGuest(role guest.Role) (guest.Guest, bool)
	Create(ctx context.Context, input guest.CreateInput) (guest.Guest, error)
	AssignSeat(ctx context.Context, guestID, tableID string, seatIndex int) (guest.Guest, error)
	SeatedCount(tableID string) int
}

// Plan is the seating domain state container for one identity.
type Plan struct {
	who      identity.Identity
	provider identity.Provider
	gw       Gateway

	notifier container.Notifier
	couple   flight.Group

	mu     sync.RWMutex
	state  container.State
	tables []Table
	roster RosterDirectory
}

// NewPlan creates an empty seating container for one identity.
func NewPlan(who identity.Identity, provider identity.Provider, gw Gateway) (*Plan, error) {
	if who.IsZero() {
		return nil, identity.ErrIdentityRequired
	}
	if gw == nil {
		return nil, fmt.Errorf("table gateway is required")
	}
	return &Plan{
		who:      who,
		provider: provider,
		gw:       gw,
	}, nil
}

// SetRosterDirectory wires the roster in after both containers exist.
func (p *Plan) SetRosterDirectory(roster RosterDirectory) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.roster = roster
	p.mu.Unlock()
}

// State returns the container lifecycle state.
func (p *Plan) State() container.State {
	if p == nil {
		return container.StateEmpty
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Snapshot returns the current table list. Never blocks on I/O.
func (p *Plan) Snapshot() []Table {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneTables(p.tables)
}

// Subscribe registers for snapshot-change notifications.
func (p *Plan) Subscribe() (<-chan struct{}, func()) {
	return p.notifier.Subscribe()
}

// TableCapacity implements the roster's seating view.
func (p *Plan) TableCapacity(tableID string) (int, bool) {
	if p == nil {
		return 0, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.tables {
		if t.ID == tableID {
			return t.Capacity, true
		}
	}
	return 0, false
}

// Reload re-fetches the full collection and replaces the snapshot wholesale.
func (p *Plan) Reload(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("seating plan is not configured")
	}

	p.mu.Lock()
	previous := p.state
	p.state = container.StateLoading
	p.mu.Unlock()

	tables, err := retry.Execute(ctx, p.provider, "tables.reload", func(ctx context.Context) ([]Table, error) {
		listCtx, cancel := context.WithTimeout(ctx, timeouts.CollectionReload)
		defer cancel()
		return p.gw.ListTables(listCtx, p.who.ID)
	})
	if err != nil {
		p.mu.Lock()
		if previous == container.StateReady {
			p.state = container.StateReady
		} else {
			p.state = container.StateEmpty
		}
		p.mu.Unlock()
		if gateway.IsTimeout(err) {
			return apperrors.Wrap(apperrors.CodeTimeout, "seating reload timed out", err)
		}
		return fmt.Errorf("reload tables: %w", err)
	}

	p.mu.Lock()
	p.tables = tables
	p.state = container.StateReady
	p.mu.Unlock()
	p.notifier.Notify()
	return nil
}

// Clear drops the snapshot, used when the identity disappears.
func (p *Plan) Clear() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.tables = nil
	p.state = container.StateEmpty
	p.mu.Unlock()
	p.notifier.Notify()
}

// Create validates and inserts one table. Creating a main_couple table
// funnels through EnsureCoupleTable so the singleton rule holds even for
// direct creation requests.
func (p *Plan) Create(ctx context.Context, input CreateInput) (Table, error) {
	if p == nil {
		return Table{}, fmt.Errorf("seating plan is not configured")
	}

	normalized, err := NormalizeCreateInput(input)
	if err != nil {
		return Table{}, err
	}
	if normalized.Type == TypeMainCouple {
		return p.EnsureCoupleTable(ctx)
	}

	created, err := retry.Execute(ctx, p.provider, "tables.create", func(ctx context.Context) (Table, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.InsertTable(mutCtx, p.who.ID, normalized)
	})
	if err != nil {
		return Table{}, fmt.Errorf("create table: %w", err)
	}

	p.mu.Lock()
	p.tables = append(p.tables, created)
	p.mu.Unlock()
	p.notifier.Notify()
	return created, nil
}

// Update validates and applies a partial update, merging the authoritative
// row back by id.
func (p *Plan) Update(ctx context.Context, tableID string, patch Patch) (Table, error) {
	if p == nil {
		return Table{}, fmt.Errorf("seating plan is not configured")
	}
	if err := ValidatePatch(patch); err != nil {
		return Table{}, err
	}
	if _, ok := p.find(tableID); !ok {
		return Table{}, gateway.ErrNotFound
	}

	updated, err := retry.Execute(ctx, p.provider, "tables.update", func(ctx context.Context) (Table, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.UpdateTable(mutCtx, p.who.ID, tableID, patch)
	})
	if err != nil {
		return Table{}, fmt.Errorf("update table: %w", err)
	}

	p.mu.Lock()
	for i, t := range p.tables {
		if t.ID == updated.ID {
			p.tables[i] = updated
			break
		}
	}
	p.mu.Unlock()
	p.notifier.Notify()
	return updated, nil
}

// Delete removes one table remotely, then from the snapshot.
func (p *Plan) Delete(ctx context.Context, tableID string) error {
	if p == nil {
		return fmt.Errorf("seating plan is not configured")
	}
	if _, ok := p.find(tableID); !ok {
		return gateway.ErrNotFound
	}

	if err := retry.Do(ctx, p.provider, "tables.delete", func(ctx context.Context) error {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.DeleteTable(mutCtx, p.who.ID, tableID)
	}); err != nil {
		return fmt.Errorf("delete table: %w", err)
	}

	p.mu.Lock()
	kept := p.tables[:0:0]
	for _, t := range p.tables {
		if t.ID != tableID {
			kept = append(kept, t)
		}
	}
	p.tables = kept
	p.mu.Unlock()
	p.notifier.Notify()
	return nil
}

// EnsureCoupleTable reuses or creates the singleton main_couple table, then
// attempts to locate or create the bride and groom rows and seat them. The
// whole check-then-act sequence is single-flight guarded so a reload landing
// mid-creation cannot race a second creation.
func (p *Plan) EnsureCoupleTable(ctx context.Context) (Table, error) {
	if p == nil {
		return Table{}, fmt.Errorf("seating plan is not configured")
	}

	value, _, err := p.couple.DoValue("couple-table", func() (any, error) {
		return p.ensureCoupleTable(ctx)
	})
	if err != nil {
		return Table{}, err
	}
	table, ok := value.(Table)
	if !ok {
		return Table{}, fmt.Errorf("unexpected couple table result %T", value)
	}
	return table, nil
}

func (p *Plan) ensureCoupleTable(ctx context.Context) (Table, error) {
	if existing, ok := p.preferredCoupleTable(); ok {
		return existing, nil
	}

	created, err := retry.Execute(ctx, p.provider, "tables.create_couple", func(ctx context.Context) (Table, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.InsertTable(mutCtx, p.who.ID, CreateInput{
			Name:     CoupleTableName,
			Capacity: CoupleTableCapacity,
			Type:     TypeMainCouple,
		})
	})
	if err != nil {
		return Table{}, fmt.Errorf("create couple table: %w", err)
	}

	p.mu.Lock()
	p.tables = append(p.tables, created)
	p.mu.Unlock()
	p.notifier.Notify()

	p.seatCouple(ctx, created)
	return created, nil
}

// preferredCoupleTable resolves the singleton. Duplicates, if they ever
// occur, are settled by most existing assignments, then newest creation.
func (p *Plan) preferredCoupleTable() (Table, bool) {
	p.mu.RLock()
	candidates := CoupleTables(p.tables)
	roster := p.roster
	p.mu.RUnlock()

	switch len(candidates) {
	case 0:
		return Table{}, false
	case 1:
		return candidates[0], true
	}

	best := candidates[0]
	bestCount := -1
	if roster != nil {
		bestCount = roster.SeatedCount(best.ID)
	}
	for _, candidate := range candidates[1:] {
		count := -1
		if roster != nil {
			count = roster.SeatedCount(candidate.ID)
		}
		switch {
		case count > bestCount:
			best, bestCount = candidate, count
		case count == bestCount && candidate.CreatedAt.After(best.CreatedAt):
			best = candidate
		}
	}
	return best, true
}

// seatCouple locates or creates the bride and groom rows and assigns them to
// the couple table. Failures here are logged, not fatal: the table exists and
// the couple can be seated manually.
func (p *Plan) seatCouple(ctx context.Context, table Table) {
	p.mu.RLock()
	roster := p.roster
	p.mu.RUnlock()
	if roster == nil {
		return
	}

	seats := []struct {
		role  guest.Role
		index int
	}{
		{role: guest.RoleBride, index: 0},
		{role: guest.RoleGroom, index: 1},
	}
	for _, seat := range seats {
		member, ok := roster.RoleGuest(seat.role)
		if !ok {
			created, err := roster.Create(ctx, guest.CreateInput{
				FirstName: coupleDisplayName(seat.role),
				Group:     guest.GroupCouple,
				RSVP:      guest.RSVPConfirmed,
				Role:      seat.role,
			})
			if err != nil {
				log.Printf("create %s guest for couple table: %v", seat.role, err)
				continue
			}
			member = created
		}
		if member.Seat != nil && member.Seat.TableID == table.ID {
			continue
		}
		if _, err := roster.AssignSeat(ctx, member.ID, table.ID, seat.index); err != nil {
			log.Printf("seat %s at couple table: %v", seat.role, err)
		}
	}
}

// coupleDisplayName is the placeholder name for an auto-created couple row.
func coupleDisplayName(role guest.Role) string {
	switch role {
	case guest.RoleBride:
		return "Bride"
	case guest.RoleGroom:
		return "Groom"
	default:
		return string(role)
	}
}

// find looks a table up in the snapshot by id.
func (p *Plan) find(tableID string) (Table, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.tables {
		if t.ID == tableID {
			return t, true
		}
	}
	return Table{}, false
}

func cloneTables(tables []Table) []Table {
	if len(tables) == 0 {
		return nil
	}
	result := make([]Table, len(tables))
	copy(result, tables)
	return result
}
