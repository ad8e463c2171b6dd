package planning

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/identity"
	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
)

type fakePlanningGateway struct {
	mu       sync.Mutex
	tasks    []Task
	expenses []Expense
	profile  *Profile
	nextID   int

	seedCalls []string
}

func (f *fakePlanningGateway) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakePlanningGateway) ListTasks(ctx context.Context, identityID string) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]Task, len(f.tasks))
	copy(rows, f.tasks)
	return rows, nil
}

func (f *fakePlanningGateway) InsertTask(ctx context.Context, identityID string, input TaskInput) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := Task{ID: f.id("task"), Title: input.Title, Category: input.Category, Priority: input.Priority, Type: input.Type}
	f.tasks = append(f.tasks, row)
	return row, nil
}

func (f *fakePlanningGateway) UpdateTask(ctx context.Context, identityID, taskID string, patch TaskPatch) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == taskID {
			f.tasks[i] = ApplyTaskPatch(t, patch)
			return f.tasks[i], nil
		}
	}
	return Task{}, gateway.ErrNotFound
}

func (f *fakePlanningGateway) DeleteTask(ctx context.Context, identityID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == taskID {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (f *fakePlanningGateway) DeleteAllTasks(ctx context.Context, identityID string, taskType TaskType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tasks[:0:0]
	for _, t := range f.tasks {
		if t.Type != taskType {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	return nil
}

func (f *fakePlanningGateway) ListExpenses(ctx context.Context, identityID string) ([]Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]Expense, len(f.expenses))
	copy(rows, f.expenses)
	return rows, nil
}

func (f *fakePlanningGateway) InsertExpense(ctx context.Context, identityID string, input ExpenseInput) (Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := Expense{
		ID:            f.id("exp"),
		Title:         input.Title,
		Category:      input.Category,
		AmountCents:   input.AmountCents,
		IsDeposit:     input.IsDeposit,
		PaymentStatus: input.PaymentStatus,
		Note:          input.Note,
	}
	f.expenses = append(f.expenses, row)
	return row, nil
}

func (f *fakePlanningGateway) UpdateExpense(ctx context.Context, identityID, expenseID string, patch ExpensePatch) (Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.expenses {
		if e.ID == expenseID {
			f.expenses[i] = ApplyExpensePatch(e, patch)
			return f.expenses[i], nil
		}
	}
	return Expense{}, gateway.ErrNotFound
}

func (f *fakePlanningGateway) DeleteExpense(ctx context.Context, identityID, expenseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.expenses {
		if e.ID == expenseID {
			f.expenses = append(f.expenses[:i], f.expenses[i+1:]...)
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (f *fakePlanningGateway) GetProfile(ctx context.Context, identityID string) (Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profile == nil {
		return Profile{}, gateway.ErrNotFound
	}
	return *f.profile, nil
}

func (f *fakePlanningGateway) Seed(ctx context.Context, identityID, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seedCalls = append(f.seedCalls, domain)
	taskType := TaskWedding
	if domain == "budget" {
		taskType = TaskBudget
	}
	f.tasks = append(f.tasks, Task{ID: f.id("seeded"), Title: "seeded", Category: "other", Type: taskType})
	return nil
}

type verifyingProvider struct {
	who identity.Identity
}

func (p *verifyingProvider) Current() (identity.Identity, bool) { return p.who, true }
func (p *verifyingProvider) VerifyServerSide(ctx context.Context) (identity.Identity, error) {
	return p.who, nil
}
func (p *verifyingProvider) RefreshSession(ctx context.Context) error { return nil }
func (p *verifyingProvider) SignOut(ctx context.Context) error        { return nil }
func (p *verifyingProvider) Subscribe() (<-chan identity.Change, func()) {
	events := make(chan identity.Change)
	return events, func() {}
}

type categoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func (s *categoryStore) Get(ctx context.Context, purpose, identityID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[purpose+"-"+identityID]
	return value, ok, nil
}

func (s *categoryStore) Set(ctx context.Context, purpose, identityID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[purpose+"-"+identityID] = value
	return nil
}

func (s *categoryStore) Delete(ctx context.Context, purpose, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, purpose+"-"+identityID)
	return nil
}

func newTestPlanner(t *testing.T, gw *fakePlanningGateway) *Planner {
	t.Helper()
	planner, err := NewPlanner(identity.Identity{ID: "id-1"}, &verifyingProvider{who: identity.Identity{ID: "id-1"}}, gw, &categoryStore{}, gw)
	if err != nil {
		t.Fatalf("NewPlanner() error = %v", err)
	}
	return planner
}

func TestPlannerReloadPartitionsTasks(t *testing.T) {
	t.Parallel()

	gw := &fakePlanningGateway{tasks: []Task{
		{ID: "t-1", Title: "book venue", Type: TaskWedding},
		{ID: "t-2", Title: "set budget", Type: TaskBudget},
		{ID: "t-3", Title: "send invites", Type: TaskWedding},
	}}
	planner := newTestPlanner(t, gw)

	if err := planner.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := len(planner.WeddingTasks()); got != 2 {
		t.Fatalf("WeddingTasks() = %d entries, want 2", got)
	}
	if got := len(planner.BudgetTasks()); got != 1 {
		t.Fatalf("BudgetTasks() = %d entries, want 1", got)
	}
}

func TestPlannerReloadToleratesMissingProfile(t *testing.T) {
	t.Parallel()

	gw := &fakePlanningGateway{}
	planner := newTestPlanner(t, gw)

	if err := planner.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() with no profile error = %v", err)
	}
	if got := planner.BudgetCents(); got != 0 {
		t.Fatalf("BudgetCents() = %d, want 0 with no profile and no expenses", got)
	}
}

func TestPlannerBudgetResolution(t *testing.T) {
	t.Parallel()

	gw := &fakePlanningGateway{expenses: []Expense{
		{ID: "e-1", Title: "venue", AmountCents: 500_00, PaymentStatus: PaymentPaid},
		{ID: "e-2", Title: "band", AmountCents: 300_00, PaymentStatus: PaymentNone},
	}}
	planner := newTestPlanner(t, gw)
	if err := planner.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	// No profile figure: the expense total is the fallback.
	if got := planner.BudgetCents(); got != 800_00 {
		t.Fatalf("BudgetCents() fallback = %d, want 80000", got)
	}
	if got := planner.RemainingCents(); got != 300_00 {
		t.Fatalf("RemainingCents() fallback = %d, want 30000", got)
	}

	// A profile figure always wins, even when it is smaller than the total.
	budget := int64(600_00)
	gw.mu.Lock()
	gw.profile = &Profile{IdentityID: "id-1", BudgetCents: &budget}
	gw.mu.Unlock()
	if err := planner.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := planner.BudgetCents(); got != 600_00 {
		t.Fatalf("BudgetCents() with profile = %d, want 60000", got)
	}
	if got := planner.RemainingCents(); got != 100_00 {
		t.Fatalf("RemainingCents() with profile = %d, want 10000", got)
	}
}

func TestPlannerToggleTask(t *testing.T) {
	t.Parallel()

	gw := &fakePlanningGateway{}
	planner := newTestPlanner(t, gw)

	created, err := planner.CreateTask(context.Background(), TaskInput{Title: "book venue"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if created.Type != TaskWedding {
		t.Fatalf("CreateTask() type = %v, want wedding default", created.Type)
	}

	toggled, err := planner.ToggleTask(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("ToggleTask() error = %v", err)
	}
	if !toggled.Completed {
		t.Fatal("ToggleTask() did not complete the task")
	}
	toggled, err = planner.ToggleTask(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("ToggleTask() back error = %v", err)
	}
	if toggled.Completed {
		t.Fatal("second toggle did not reopen the task")
	}
}

func TestPlannerCreateExpenseValidation(t *testing.T) {
	t.Parallel()

	planner := newTestPlanner(t, &fakePlanningGateway{})

	_, err := planner.CreateExpense(context.Background(), ExpenseInput{Title: " "})
	if !apperrors.IsCode(err, apperrors.CodeExpenseTitleEmpty) {
		t.Fatalf("empty title error = %v, want CodeExpenseTitleEmpty", err)
	}
	_, err = planner.CreateExpense(context.Background(), ExpenseInput{Title: "venue", AmountCents: -1})
	if !apperrors.IsCode(err, apperrors.CodeExpenseNegativeAmount) {
		t.Fatalf("negative amount error = %v, want CodeExpenseNegativeAmount", err)
	}
	_, err = planner.CreateExpense(context.Background(), ExpenseInput{Title: "venue", AmountCents: 0, PaymentStatus: PaymentPaid})
	if !apperrors.IsCode(err, apperrors.CodeExpensePaidZeroAmount) {
		t.Fatalf("paid zero error = %v, want CodeExpensePaidZeroAmount", err)
	}
}

func TestPlannerPaidRequiresPostPatchAmount(t *testing.T) {
	t.Parallel()

	gw := &fakePlanningGateway{}
	planner := newTestPlanner(t, gw)

	created, err := planner.CreateExpense(context.Background(), ExpenseInput{Title: "dj", AmountCents: 0})
	if err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	// Marking paid while the amount stays zero must fail.
	paid := PaymentPaid
	if _, err := planner.UpdateExpense(context.Background(), created.ID, ExpensePatch{PaymentStatus: &paid}); !apperrors.IsCode(err, apperrors.CodeExpensePaidZeroAmount) {
		t.Fatalf("paid with zero amount error = %v, want CodeExpensePaidZeroAmount", err)
	}

	// Raising the amount in the same patch satisfies the rule.
	amount := int64(150_00)
	updated, err := planner.UpdateExpense(context.Background(), created.ID, ExpensePatch{PaymentStatus: &paid, AmountCents: &amount})
	if err != nil {
		t.Fatalf("UpdateExpense() error = %v", err)
	}
	if updated.PaymentStatus != PaymentPaid || updated.AmountCents != 150_00 {
		t.Fatalf("UpdateExpense() = %+v, want paid at 15000", updated)
	}
}

func TestPlannerResetToTemplate(t *testing.T) {
	t.Parallel()

	gw := &fakePlanningGateway{tasks: []Task{
		{ID: "t-1", Title: "custom wedding", Type: TaskWedding},
		{ID: "t-2", Title: "custom budget", Type: TaskBudget},
	}}
	planner := newTestPlanner(t, gw)
	if err := planner.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if err := planner.ResetToTemplate(context.Background(), TaskWedding); err != nil {
		t.Fatalf("ResetToTemplate() error = %v", err)
	}

	if len(gw.seedCalls) != 1 || gw.seedCalls[0] != "tasks" {
		t.Fatalf("seed calls = %v, want [tasks]", gw.seedCalls)
	}
	for _, task := range planner.WeddingTasks() {
		if task.Title == "custom wedding" {
			t.Fatal("reset kept the custom wedding task")
		}
	}
	budget := planner.BudgetTasks()
	if len(budget) != 1 || budget[0].Title != "custom budget" {
		t.Fatalf("budget list after wedding reset = %+v, want untouched", budget)
	}
}

func TestPlannerResetRejectsIdentityMismatch(t *testing.T) {
	t.Parallel()

	gw := &fakePlanningGateway{}
	planner, err := NewPlanner(identity.Identity{ID: "id-1"}, &verifyingProvider{who: identity.Identity{ID: "id-other"}}, gw, &categoryStore{}, gw)
	if err != nil {
		t.Fatalf("NewPlanner() error = %v", err)
	}

	if err := planner.ResetToTemplate(context.Background(), TaskWedding); !apperrors.IsCode(err, apperrors.CodeIdentityMismatch) {
		t.Fatalf("ResetToTemplate() error = %v, want CodeIdentityMismatch", err)
	}
	if len(gw.seedCalls) != 0 {
		t.Fatal("reset ran under a mismatched identity")
	}
}

func TestPlannerCategories(t *testing.T) {
	t.Parallel()

	planner := newTestPlanner(t, &fakePlanningGateway{})
	ctx := context.Background()

	categories, err := planner.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(categories) != len(DefaultCategories) {
		t.Fatalf("Categories() = %d entries, want the %d defaults", len(categories), len(DefaultCategories))
	}

	if err := planner.AddCategory(ctx, " fireworks "); err != nil {
		t.Fatalf("AddCategory() error = %v", err)
	}
	// Duplicates of defaults and existing customs are silently dropped.
	if err := planner.AddCategory(ctx, "venue"); err != nil {
		t.Fatalf("AddCategory() default duplicate error = %v", err)
	}
	if err := planner.AddCategory(ctx, "fireworks"); err != nil {
		t.Fatalf("AddCategory() duplicate error = %v", err)
	}

	categories, err = planner.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(categories) != len(DefaultCategories)+1 {
		t.Fatalf("Categories() = %v, want defaults plus fireworks", categories)
	}
	if categories[len(categories)-1] != "fireworks" {
		t.Fatalf("custom category = %q, want fireworks appended", categories[len(categories)-1])
	}
}
