// Package memory implements the full gateway surface in process: per-entity
// CRUD, the bootstrap procedures, the change feed, and the audit log. It
// backs the development runtime and the engine tests. Semantics mirror the
// remote store: server-assigned ids, last write wins, no transactions.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/guest"
	"github.com/hearthplan/hearthplan/internal/planning"
	"github.com/hearthplan/hearthplan/internal/seating"
)

// AuditEntry is one recorded mutation.
type AuditEntry struct {
	IdentityID string
	Table      string
	RowID      string
	Action     string
	At         time.Time
}

type subscription struct {
	table      string
	identityID string
	events     chan gateway.Event
}

// Store is the in-memory gateway. Safe for concurrent use.
type Store struct {
	clock func() time.Time

	// Hook, when set, runs before every operation with the operation name
	// (e.g. "guests.insert") and can inject a failure. Tests use it to
	// simulate auth expiry and outages.
	Hook func(op string) error

	mu        sync.Mutex
	guests    map[string][]guest.Guest
	tables    map[string][]seating.Table
	tasks     map[string][]planning.Task
	expenses  map[string][]planning.Expense
	profiles  map[string]planning.Profile
	initFlags map[string]bool
	audits    []AuditEntry

	subsMu sync.Mutex
	subs   map[int]*subscription
	nextID int
}

// NewStore creates an empty in-memory gateway.
func NewStore() *Store {
	return &Store{
		clock:     time.Now,
		guests:    make(map[string][]guest.Guest),
		tables:    make(map[string][]seating.Table),
		tasks:     make(map[string][]planning.Task),
		expenses:  make(map[string][]planning.Expense),
		profiles:  make(map[string]planning.Profile),
		initFlags: make(map[string]bool),
		subs:      make(map[int]*subscription),
	}
}

// SetClock overrides the timestamp source for deterministic tests.
func (s *Store) SetClock(clock func() time.Time) {
	if s == nil || clock == nil {
		return
	}
	s.clock = clock
}

// SetProfile installs an identity profile record.
func (s *Store) SetProfile(identityID string, profile planning.Profile) {
	s.mu.Lock()
	profile.IdentityID = identityID
	s.profiles[identityID] = profile
	s.mu.Unlock()
	s.emit(gateway.Event{Op: gateway.OpUpdate, Table: gateway.TableProfiles, RowID: identityID}, identityID)
}

// Audits returns the recorded audit rows.
func (s *Store) Audits() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audits)
}

func (s *Store) hook(op string) error {
	if s.Hook != nil {
		return s.Hook(op)
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// --- guest CRUD ---

// ListGuests returns the identity's guests.
func (s *Store) ListGuests(ctx context.Context, identityID string) ([]guest.Guest, error) {
	if err := s.hook("guests.list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.guests[identityID]), nil
}

// InsertGuest creates a guest with a server-assigned id.
func (s *Store) InsertGuest(ctx context.Context, identityID string, input guest.CreateInput) (guest.Guest, error) {
	if err := s.hook("guests.insert"); err != nil {
		return guest.Guest{}, err
	}

	now := s.now()
	row := guest.Guest{
		ID:                 uuid.NewString(),
		FirstName:          input.FirstName,
		LastName:           input.LastName,
		Group:              input.Group,
		Status:             input.Status,
		RSVP:               input.RSVP,
		NeedsAccommodation: input.NeedsAccommodation,
		NeedsTransport:     input.NeedsTransport,
		IsServiceProvider:  input.IsServiceProvider,
		DiscountType:       input.DiscountType,
		CompanionOf:        input.CompanionOf,
		Role:               input.Role,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	s.mu.Lock()
	s.guests[identityID] = append(s.guests[identityID], row)
	s.mu.Unlock()
	s.emit(gateway.Event{Op: gateway.OpInsert, Table: gateway.TableGuests, RowID: row.ID}, identityID)
	return row, nil
}

// UpdateGuest applies a patch and returns the authoritative row.
func (s *Store) UpdateGuest(ctx context.Context, identityID, guestID string, patch guest.Patch) (guest.Guest, error) {
	if err := s.hook("guests.update"); err != nil {
		return guest.Guest{}, err
	}

	s.mu.Lock()
	rows := s.guests[identityID]
	index := slices.IndexFunc(rows, func(g guest.Guest) bool { return g.ID == guestID })
	if index < 0 {
		s.mu.Unlock()
		return guest.Guest{}, gateway.ErrNotFound
	}
	updated := patch.Apply(rows[index])
	updated.UpdatedAt = s.now()
	rows[index] = updated
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpUpdate, Table: gateway.TableGuests, RowID: guestID}, identityID)
	return updated, nil
}

// DeleteGuest removes a guest row.
func (s *Store) DeleteGuest(ctx context.Context, identityID, guestID string) error {
	if err := s.hook("guests.delete"); err != nil {
		return err
	}

	s.mu.Lock()
	rows := s.guests[identityID]
	index := slices.IndexFunc(rows, func(g guest.Guest) bool { return g.ID == guestID })
	if index < 0 {
		s.mu.Unlock()
		return gateway.ErrNotFound
	}
	s.guests[identityID] = slices.Delete(rows, index, index+1)
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpDelete, Table: gateway.TableGuests, RowID: guestID}, identityID)
	return nil
}

// --- table CRUD ---

// ListTables returns the identity's tables.
func (s *Store) ListTables(ctx context.Context, identityID string) ([]seating.Table, error) {
	if err := s.hook("tables.list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tables[identityID]), nil
}

// InsertTable creates a table with a server-assigned id.
func (s *Store) InsertTable(ctx context.Context, identityID string, input seating.CreateInput) (seating.Table, error) {
	if err := s.hook("tables.insert"); err != nil {
		return seating.Table{}, err
	}

	row := seating.Table{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Capacity:  input.Capacity,
		Type:      input.Type,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.tables[identityID] = append(s.tables[identityID], row)
	s.mu.Unlock()
	s.emit(gateway.Event{Op: gateway.OpInsert, Table: gateway.TableTables, RowID: row.ID}, identityID)
	return row, nil
}

// UpdateTable applies a patch and returns the authoritative row.
func (s *Store) UpdateTable(ctx context.Context, identityID, tableID string, patch seating.Patch) (seating.Table, error) {
	if err := s.hook("tables.update"); err != nil {
		return seating.Table{}, err
	}

	s.mu.Lock()
	rows := s.tables[identityID]
	index := slices.IndexFunc(rows, func(t seating.Table) bool { return t.ID == tableID })
	if index < 0 {
		s.mu.Unlock()
		return seating.Table{}, gateway.ErrNotFound
	}
	updated := patch.Apply(rows[index])
	rows[index] = updated
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpUpdate, Table: gateway.TableTables, RowID: tableID}, identityID)
	return updated, nil
}

// DeleteTable removes a table row.
func (s *Store) DeleteTable(ctx context.Context, identityID, tableID string) error {
	if err := s.hook("tables.delete"); err != nil {
		return err
	}

	s.mu.Lock()
	rows := s.tables[identityID]
	index := slices.IndexFunc(rows, func(t seating.Table) bool { return t.ID == tableID })
	if index < 0 {
		s.mu.Unlock()
		return gateway.ErrNotFound
	}
	s.tables[identityID] = slices.Delete(rows, index, index+1)
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpDelete, Table: gateway.TableTables, RowID: tableID}, identityID)
	return nil
}

// --- task and expense CRUD ---

// ListTasks returns the identity's tasks across both logical lists.
func (s *Store) ListTasks(ctx context.Context, identityID string) ([]planning.Task, error) {
	if err := s.hook("tasks.list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tasks[identityID]), nil
}

// InsertTask creates a task with a server-assigned id.
func (s *Store) InsertTask(ctx context.Context, identityID string, input planning.TaskInput) (planning.Task, error) {
	if err := s.hook("tasks.insert"); err != nil {
		return planning.Task{}, err
	}

	now := s.now()
	row := planning.Task{
		ID:        uuid.NewString(),
		Title:     input.Title,
		Category:  input.Category,
		Priority:  input.Priority,
		Type:      input.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.tasks[identityID] = append(s.tasks[identityID], row)
	s.mu.Unlock()
	s.emit(gateway.Event{Op: gateway.OpInsert, Table: gateway.TableTasks, RowID: row.ID}, identityID)
	return row, nil
}

// UpdateTask applies a patch and returns the authoritative row.
func (s *Store) UpdateTask(ctx context.Context, identityID, taskID string, patch planning.TaskPatch) (planning.Task, error) {
	if err := s.hook("tasks.update"); err != nil {
		return planning.Task{}, err
	}

	s.mu.Lock()
	rows := s.tasks[identityID]
	index := slices.IndexFunc(rows, func(t planning.Task) bool { return t.ID == taskID })
	if index < 0 {
		s.mu.Unlock()
		return planning.Task{}, gateway.ErrNotFound
	}
	updated := planning.ApplyTaskPatch(rows[index], patch)
	updated.UpdatedAt = s.now()
	rows[index] = updated
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpUpdate, Table: gateway.TableTasks, RowID: taskID}, identityID)
	return updated, nil
}

// DeleteTask removes a task row.
func (s *Store) DeleteTask(ctx context.Context, identityID, taskID string) error {
	if err := s.hook("tasks.delete"); err != nil {
		return err
	}

	s.mu.Lock()
	rows := s.tasks[identityID]
	index := slices.IndexFunc(rows, func(t planning.Task) bool { return t.ID == taskID })
	if index < 0 {
		s.mu.Unlock()
		return gateway.ErrNotFound
	}
	s.tasks[identityID] = slices.Delete(rows, index, index+1)
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpDelete, Table: gateway.TableTasks, RowID: taskID}, identityID)
	return nil
}

// DeleteAllTasks removes every task of one type for the identity.
func (s *Store) DeleteAllTasks(ctx context.Context, identityID string, taskType planning.TaskType) error {
	if err := s.hook("tasks.delete_all"); err != nil {
		return err
	}

	s.mu.Lock()
	kept := s.tasks[identityID][:0:0]
	for _, t := range s.tasks[identityID] {
		if t.Type != taskType {
			kept = append(kept, t)
		}
	}
	s.tasks[identityID] = kept
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpDelete, Table: gateway.TableTasks, RowID: ""}, identityID)
	return nil
}

// ListExpenses returns the identity's expenses.
func (s *Store) ListExpenses(ctx context.Context, identityID string) ([]planning.Expense, error) {
	if err := s.hook("expenses.list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.expenses[identityID]), nil
}

// InsertExpense creates an expense with a server-assigned id.
func (s *Store) InsertExpense(ctx context.Context, identityID string, input planning.ExpenseInput) (planning.Expense, error) {
	if err := s.hook("expenses.insert"); err != nil {
		return planning.Expense{}, err
	}

	now := s.now()
	row := planning.Expense{
		ID:            uuid.NewString(),
		Title:         input.Title,
		Category:      input.Category,
		AmountCents:   input.AmountCents,
		IsDeposit:     input.IsDeposit,
		PaymentStatus: input.PaymentStatus,
		Note:          input.Note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.expenses[identityID] = append(s.expenses[identityID], row)
	s.mu.Unlock()
	s.emit(gateway.Event{Op: gateway.OpInsert, Table: gateway.TableExpenses, RowID: row.ID}, identityID)
	return row, nil
}

// UpdateExpense applies a patch and returns the authoritative row.
func (s *Store) UpdateExpense(ctx context.Context, identityID, expenseID string, patch planning.ExpensePatch) (planning.Expense, error) {
	if err := s.hook("expenses.update"); err != nil {
		return planning.Expense{}, err
	}

	s.mu.Lock()
	rows := s.expenses[identityID]
	index := slices.IndexFunc(rows, func(e planning.Expense) bool { return e.ID == expenseID })
	if index < 0 {
		s.mu.Unlock()
		return planning.Expense{}, gateway.ErrNotFound
	}
	updated := planning.ApplyExpensePatch(rows[index], patch)
	updated.UpdatedAt = s.now()
	rows[index] = updated
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpUpdate, Table: gateway.TableExpenses, RowID: expenseID}, identityID)
	return updated, nil
}

// DeleteExpense removes an expense row.
func (s *Store) DeleteExpense(ctx context.Context, identityID, expenseID string) error {
	if err := s.hook("expenses.delete"); err != nil {
		return err
	}

	s.mu.Lock()
	rows := s.expenses[identityID]
	index := slices.IndexFunc(rows, func(e planning.Expense) bool { return e.ID == expenseID })
	if index < 0 {
		s.mu.Unlock()
		return gateway.ErrNotFound
	}
	s.expenses[identityID] = slices.Delete(rows, index, index+1)
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpDelete, Table: gateway.TableExpenses, RowID: expenseID}, identityID)
	return nil
}

// GetProfile returns the identity profile record.
func (s *Store) GetProfile(ctx context.Context, identityID string) (planning.Profile, error) {
	if err := s.hook("profiles.get"); err != nil {
		return planning.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[identityID]
	if !ok {
		return planning.Profile{}, gateway.ErrNotFound
	}
	return profile, nil
}

// --- bootstrap ---

// InitializationFlag reads the per-identity initialization marker.
func (s *Store) InitializationFlag(ctx context.Context, identityID, domain string) (bool, error) {
	if err := s.hook("bootstrap.flag"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initFlags[identityID+"/"+domain], nil
}

// SetInitializationFlag persists the marker.
func (s *Store) SetInitializationFlag(ctx context.Context, identityID, domain string) error {
	if err := s.hook("bootstrap.set_flag"); err != nil {
		return err
	}
	s.mu.Lock()
	s.initFlags[identityID+"/"+domain] = true
	s.mu.Unlock()
	return nil
}

// CountRows reports the row count backing one seedable domain.
func (s *Store) CountRows(ctx context.Context, identityID, domain string) (int, error) {
	if err := s.hook("bootstrap.count"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.tasks[identityID] {
		if (domain == "budget") == (t.Type == planning.TaskBudget) {
			count++
		}
	}
	return count, nil
}

// Seed appends the default rows for one domain. Deliberately not idempotent:
// calling it twice duplicates rows, exactly like the remote procedure. The
// initialization coordinator is the only safe caller.
func (s *Store) Seed(ctx context.Context, identityID, domain string) error {
	if err := s.hook("bootstrap.seed"); err != nil {
		return err
	}

	titles := defaultWeddingTasks
	taskType := planning.TaskWedding
	if domain == "budget" {
		titles = defaultBudgetTasks
		taskType = planning.TaskBudget
	}

	now := s.now()
	s.mu.Lock()
	for _, title := range titles {
		s.tasks[identityID] = append(s.tasks[identityID], planning.Task{
			ID:        uuid.NewString(),
			Title:     title,
			Category:  "other",
			Type:      taskType,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	s.mu.Unlock()

	s.emit(gateway.Event{Op: gateway.OpInsert, Table: gateway.TableTasks, RowID: ""}, identityID)
	return nil
}

var defaultWeddingTasks = []string{
	"Set the date",
	"Book the venue",
	"Send invitations",
	"Choose the menu",
	"Book the photographer",
	"Plan the ceremony",
}

var defaultBudgetTasks = []string{
	"Set the total budget",
	"Collect venue quotes",
	"Track vendor deposits",
	"Reconcile final invoices",
}

// --- audit log ---

// RecordMutation appends one audit row.
func (s *Store) RecordMutation(ctx context.Context, identityID, table, rowID, action string) error {
	if err := s.hook("audit.record"); err != nil {
		return err
	}
	s.mu.Lock()
	s.audits = append(s.audits, AuditEntry{
		IdentityID: identityID,
		Table:      table,
		RowID:      rowID,
		Action:     action,
		At:         s.now(),
	})
	s.mu.Unlock()
	return nil
}

// --- change feed ---

// Subscribe registers a feed subscription filtered to one table and identity.
func (s *Store) Subscribe(ctx context.Context, table, identityID string) (<-chan gateway.Event, func(), error) {
	if err := s.hook("feed.subscribe"); err != nil {
		return nil, nil, err
	}

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	sub := &subscription{
		table:      table,
		identityID: identityID,
		events:     make(chan gateway.Event, 16),
	}
	s.subs[id] = sub
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing.events)
		}
		s.subsMu.Unlock()
	}
	return sub.events, cancel, nil
}

// emit fans one event out to matching subscriptions. Slow consumers drop
// events; the feed offers no delivery guarantee and consumers reload anyway.
func (s *Store) emit(event gateway.Event, identityID string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		if sub.table != event.Table || sub.identityID != identityID {
			continue
		}
		select {
		case sub.events <- event:
		default:
		}
	}
}
