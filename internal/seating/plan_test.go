package seating

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hearthplan/hearthplan/internal/guest"
	"github.com/hearthplan/hearthplan/internal/identity"
	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
)

type fakeTableGateway struct {
	mu      sync.Mutex
	rows    []Table
	nextID  int
	inserts int
}

func (f *fakeTableGateway) ListTables(ctx context.Context, identityID string) ([]Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]Table, len(f.rows))
	copy(rows, f.rows)
	return rows, nil
}

func (f *fakeTableGateway) InsertTable(ctx context.Context, identityID string, input CreateInput) (Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.inserts++
	row := Table{
		ID:        fmt.Sprintf("t-%d", f.nextID),
		Name:      input.Name,
		Capacity:  input.Capacity,
		Type:      input.Type,
		CreatedAt: time.Now(),
	}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeTableGateway) UpdateTable(ctx context.Context, identityID, tableID string, patch Patch) (Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.rows {
		if t.ID == tableID {
			f.rows[i] = patch.Apply(t)
			return f.rows[i], nil
		}
	}
	return Table{}, fmt.Errorf("table %s not found", tableID)
}

func (f *fakeTableGateway) DeleteTable(ctx context.Context, identityID, tableID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.rows {
		if t.ID == tableID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("table %s not found", tableID)
}

// rosterStub satisfies RosterDirectory with canned data.
type rosterStub struct {
	mu      sync.Mutex
	guests  map[guest.Role]guest.Guest
	seated  map[string]int
	creates int
	assigns int
}

func newRosterStub() *rosterStub {
	return &rosterStub{
		guests: make(map[guest.Role]guest.Guest),
		seated: make(map[string]int),
	}
}

func (r *rosterStub) RoleGuest(role guest.Role) (guest.Guest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[role]
	return g, ok
}

func (r *rosterStub) Create(ctx context.Context, input guest.CreateInput) (guest.Guest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	g := guest.Guest{
		ID:        fmt.Sprintf("couple-%d", r.creates),
		FirstName: input.FirstName,
		Group:     input.Group,
		RSVP:      input.RSVP,
		Role:      input.Role,
	}
	r.guests[input.Role] = g
	return g, nil
}

func (r *rosterStub) AssignSeat(ctx context.Context, guestID, tableID string, seatIndex int) (guest.Guest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigns++
	r.seated[tableID]++
	for role, g := range r.guests {
		if g.ID == guestID {
			g.Seat = &guest.Seat{TableID: tableID, Index: seatIndex}
			r.guests[role] = g
			return g, nil
		}
	}
	return guest.Guest{}, fmt.Errorf("guest %s not found", guestID)
}

func (r *rosterStub) SeatedCount(tableID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seated[tableID]
}

func newTestPlan(t *testing.T, gw *fakeTableGateway) *Plan {
	t.Helper()
	plan, err := NewPlan(identity.Identity{ID: "id-1"}, nil, gw)
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}
	return plan
}

func TestPlanCreateValidation(t *testing.T) {
	t.Parallel()

	plan := newTestPlan(t, &fakeTableGateway{})

	if _, err := plan.Create(context.Background(), CreateInput{Name: " ", Capacity: 4}); !apperrors.IsCode(err, apperrors.CodeTableNameEmpty) {
		t.Fatalf("empty name error = %v, want CodeTableNameEmpty", err)
	}
	if _, err := plan.Create(context.Background(), CreateInput{Name: "T", Capacity: 0}); !apperrors.IsCode(err, apperrors.CodeTableInvalidCapacity) {
		t.Fatalf("zero capacity error = %v, want CodeTableInvalidCapacity", err)
	}
	if _, err := plan.Create(context.Background(), CreateInput{Name: "T", Capacity: 65}); !apperrors.IsCode(err, apperrors.CodeTableInvalidCapacity) {
		t.Fatalf("oversize capacity error = %v, want CodeTableInvalidCapacity", err)
	}

	created, err := plan.Create(context.Background(), CreateInput{Name: "Family", Capacity: 8})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Type != TypeRegular {
		t.Fatalf("Create() type = %v, want regular default", created.Type)
	}
}

func TestPlanEnsureCoupleTableCreatesSingleton(t *testing.T) {
	t.Parallel()

	gw := &fakeTableGateway{}
	plan := newTestPlan(t, gw)
	roster := newRosterStub()
	plan.SetRosterDirectory(roster)

	table, err := plan.EnsureCoupleTable(context.Background())
	if err != nil {
		t.Fatalf("EnsureCoupleTable() error = %v", err)
	}
	if table.Name != CoupleTableName || table.Capacity != CoupleTableCapacity || table.Type != TypeMainCouple {
		t.Fatalf("couple table = %+v, want %q capacity %d", table, CoupleTableName, CoupleTableCapacity)
	}

	// Bride and groom rows were auto-created and seated at 0 and 1.
	if roster.creates != 2 || roster.assigns != 2 {
		t.Fatalf("couple rows: creates = %d, assigns = %d, want 2 and 2", roster.creates, roster.assigns)
	}
	bride, ok := roster.RoleGuest(guest.RoleBride)
	if !ok || bride.Seat == nil || bride.Seat.TableID != table.ID || bride.Seat.Index != 0 {
		t.Fatalf("bride = %+v, want seated at %s index 0", bride, table.ID)
	}

	again, err := plan.EnsureCoupleTable(context.Background())
	if err != nil {
		t.Fatalf("EnsureCoupleTable() again error = %v", err)
	}
	if again.ID != table.ID {
		t.Fatalf("second ensure returned %s, want singleton %s", again.ID, table.ID)
	}
	if gw.inserts != 1 {
		t.Fatalf("gateway inserts = %d, want 1", gw.inserts)
	}
}

func TestPlanEnsureCoupleTableSingleFlight(t *testing.T) {
	t.Parallel()

	gw := &fakeTableGateway{}
	plan := newTestPlan(t, gw)
	plan.SetRosterDirectory(newRosterStub())

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table, err := plan.EnsureCoupleTable(context.Background())
			if err != nil {
				t.Errorf("EnsureCoupleTable() error = %v", err)
				return
			}
			ids[i] = table.ID
		}(i)
	}
	wg.Wait()

	if gw.inserts != 1 {
		t.Fatalf("concurrent ensure created %d tables, want 1", gw.inserts)
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("callers saw different couple tables: %v", ids)
		}
	}
}

func TestPlanCreateMainCoupleFunnelsToSingleton(t *testing.T) {
	t.Parallel()

	gw := &fakeTableGateway{}
	plan := newTestPlan(t, gw)
	plan.SetRosterDirectory(newRosterStub())

	first, err := plan.Create(context.Background(), CreateInput{Name: "Sweetheart", Capacity: 6, Type: TypeMainCouple})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := plan.Create(context.Background(), CreateInput{Name: "Another", Capacity: 4, Type: TypeMainCouple})
	if err != nil {
		t.Fatalf("Create() second error = %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("direct main_couple creation bypassed the singleton")
	}
	// The singleton always carries the fixed couple shape, not the request's.
	if first.Name != CoupleTableName || first.Capacity != CoupleTableCapacity {
		t.Fatalf("couple table = %+v, want fixed name and capacity", first)
	}
}

func TestPlanDuplicateCoupleResolution(t *testing.T) {
	t.Parallel()

	older := Table{ID: "t-old", Name: CoupleTableName, Capacity: 2, Type: TypeMainCouple, CreatedAt: time.Now().Add(-time.Hour)}
	newer := Table{ID: "t-new", Name: CoupleTableName, Capacity: 2, Type: TypeMainCouple, CreatedAt: time.Now()}
	gw := &fakeTableGateway{rows: []Table{older, newer}}
	plan := newTestPlan(t, gw)
	roster := newRosterStub()
	roster.seated["t-old"] = 2
	plan.SetRosterDirectory(roster)

	if err := plan.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	// Most assignments wins over recency.
	table, err := plan.EnsureCoupleTable(context.Background())
	if err != nil {
		t.Fatalf("EnsureCoupleTable() error = %v", err)
	}
	if table.ID != "t-old" {
		t.Fatalf("resolved %s, want t-old with more assignments", table.ID)
	}
	if gw.inserts != 0 {
		t.Fatalf("duplicate resolution created %d tables, want 0", gw.inserts)
	}
}

func TestPlanDuplicateCoupleResolutionTieBreaksNewest(t *testing.T) {
	t.Parallel()

	older := Table{ID: "t-old", Name: CoupleTableName, Capacity: 2, Type: TypeMainCouple, CreatedAt: time.Now().Add(-time.Hour)}
	newer := Table{ID: "t-new", Name: CoupleTableName, Capacity: 2, Type: TypeMainCouple, CreatedAt: time.Now()}
	gw := &fakeTableGateway{rows: []Table{older, newer}}
	plan := newTestPlan(t, gw)
	plan.SetRosterDirectory(newRosterStub())

	if err := plan.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	table, err := plan.EnsureCoupleTable(context.Background())
	if err != nil {
		t.Fatalf("EnsureCoupleTable() error = %v", err)
	}
	if table.ID != "t-new" {
		t.Fatalf("resolved %s, want newest on tie", table.ID)
	}
}

func TestPlanUpdateAndDelete(t *testing.T) {
	t.Parallel()

	gw := &fakeTableGateway{}
	plan := newTestPlan(t, gw)

	created, err := plan.Create(context.Background(), CreateInput{Name: "Family", Capacity: 8})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	capacity := 10
	updated, err := plan.Update(context.Background(), created.ID, Patch{Capacity: &capacity})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Capacity != 10 {
		t.Fatalf("Update() capacity = %d, want 10", updated.Capacity)
	}
	if got, ok := plan.TableCapacity(created.ID); !ok || got != 10 {
		t.Fatalf("TableCapacity() = %d, %v; want 10, true", got, ok)
	}

	if err := plan.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(plan.Snapshot()) != 0 {
		t.Fatal("deleted table still in snapshot")
	}
}
