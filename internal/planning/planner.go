package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/hearthplan/hearthplan/internal/container"
	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/identity"
	"github.com/hearthplan/hearthplan/internal/localstore"
	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
	"github.com/hearthplan/hearthplan/internal/platform/timeouts"
	"github.com/hearthplan/hearthplan/internal/retry"
)

// DefaultCategories are the built-in task/expense categories. Users extend
// the list; extensions persist per identity in the device-local store.
var DefaultCategories = []string{
	"venue",
	"catering",
	"music",
	"photography",
	"flowers",
	"attire",
	"transport",
	"other",
}

// Gateway is the remote surface for the planning collection: tasks and
// expenses plus the identity profile that carries the budget figure.
type Gateway interface {
	ListTasks(ctx context.Context, identityID string) ([]Task, error)
	InsertTask(ctx context.Context, identityID string, input TaskInput) (Task, error)
	UpdateTask(ctx context.Context, identityID, taskID string, patch TaskPatch) (Task, error)
	DeleteTask(ctx context.Context, identityID, taskID string) error
	DeleteAllTasks(ctx context.Context, identityID string, taskType TaskType) error

	ListExpenses(ctx context.Context, identityID string) ([]Expense, error)
	InsertExpense(ctx context.Context, identityID string, input ExpenseInput) (Expense, error)
	UpdateExpense(ctx context.Context, identityID, expenseID string, patch ExpensePatch) (Expense, error)
	DeleteExpense(ctx context.Context, identityID, expenseID string) error

	GetProfile(ctx context.Context, identityID string) (Profile, error)
}

// Reseeder restores a domain's default rows; used by ResetToTemplate.
type Reseeder interface {
	Seed(ctx context.Context, identityID, domain string) error
}

// Planner is the tasks & budget state container for one identity.
type Planner struct {
	who      identity.Identity
	provider identity.Provider
	gw       Gateway
	local    localstore.Store
	reseeder Reseeder

	notifier container.Notifier

	mu       sync.RWMutex
	state    container.State
	wedding  []Task
	budget   []Task
	expenses []Expense
	profile  Profile
}

// NewPlanner creates an empty planning container for one identity.
func NewPlanner(who identity.Identity, provider identity.Provider, gw Gateway, local localstore.Store, reseeder Reseeder) (*Planner, error) {
	if who.IsZero() {
		return nil, identity.ErrIdentityRequired
	}
	if gw == nil {
		return nil, fmt.Errorf("planning gateway is required")
	}
	return &Planner{
		who:      who,
		provider: provider,
		gw:       gw,
		local:    local,
		reseeder: reseeder,
	}, nil
}

// State returns the container lifecycle state.
func (p *Planner) State() container.State {
	if p == nil {
		return container.StateEmpty
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Subscribe registers for snapshot-change notifications.
func (p *Planner) Subscribe() (<-chan struct{}, func()) {
	return p.notifier.Subscribe()
}

// WeddingTasks returns the wedding checklist. Never blocks on I/O.
func (p *Planner) WeddingTasks() []Task {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.wedding)
}

// BudgetTasks returns the budget checklist. Never blocks on I/O.
func (p *Planner) BudgetTasks() []Task {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.budget)
}

// Expenses returns the expense list. Never blocks on I/O.
func (p *Planner) Expenses() []Expense {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.expenses)
}

// BudgetCents resolves the budget figure. The profile record is
// authoritative whenever it carries a value; the sum of the expense snapshot
// is only a fallback, never the reverse.
func (p *Planner) BudgetCents() int64 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.profile.BudgetCents != nil {
		return *p.profile.BudgetCents
	}
	return TotalCents(p.expenses)
}

// RemainingCents is the budget figure minus settled expenses.
func (p *Planner) RemainingCents() int64 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	budget := TotalCents(p.expenses)
	if p.profile.BudgetCents != nil {
		budget = *p.profile.BudgetCents
	}
	return budget - PaidCents(p.expenses)
}

// Reload re-fetches tasks, expenses, and the profile, replacing the snapshot
// wholesale. The collection is re-partitioned on every reload; pre-split
// input is never assumed. On failure the previous snapshot stays in place.
func (p *Planner) Reload(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("planner is not configured")
	}

	p.mu.Lock()
	previous := p.state
	p.state = container.StateLoading
	p.mu.Unlock()

	type payload struct {
		tasks    []Task
		expenses []Expense
		profile  Profile
	}
	loaded, err := retry.Execute(ctx, p.provider, "planning.reload", func(ctx context.Context) (payload, error) {
		listCtx, cancel := context.WithTimeout(ctx, timeouts.CollectionReload)
		defer cancel()

		tasks, err := p.gw.ListTasks(listCtx, p.who.ID)
		if err != nil {
			return payload{}, fmt.Errorf("list tasks: %w", err)
		}
		expenses, err := p.gw.ListExpenses(listCtx, p.who.ID)
		if err != nil {
			return payload{}, fmt.Errorf("list expenses: %w", err)
		}
		profile, err := p.gw.GetProfile(listCtx, p.who.ID)
		if err != nil && !gateway.IsNotFound(err) {
			return payload{}, fmt.Errorf("get profile: %w", err)
		}
		return payload{tasks: tasks, expenses: expenses, profile: profile}, nil
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
			return apperrors.Wrap(apperrors.CodeTimeout, "planning reload timed out", err)
		}
		return fmt.Errorf("reload planning: %w", err)
	}

	wedding, budget := Partition(loaded.tasks)
	p.mu.Lock()
	p.wedding = wedding
	p.budget = budget
	p.expenses = loaded.expenses
	p.profile = loaded.profile
	p.state = container.StateReady
	p.mu.Unlock()
	p.notifier.Notify()
	return nil
}

// Clear drops the snapshot, used when the identity disappears.
func (p *Planner) Clear() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.wedding = nil
	p.budget = nil
	p.expenses = nil
	p.profile = Profile{}
	p.state = container.StateEmpty
	p.mu.Unlock()
	p.notifier.Notify()
}

// CreateTask validates and inserts one task into its logical list.
func (p *Planner) CreateTask(ctx context.Context, input TaskInput) (Task, error) {
	if p == nil {
		return Task{}, fmt.Errorf("planner is not configured")
	}

	normalized, err := NormalizeTaskInput(input)
	if err != nil {
		return Task{}, err
	}

	created, err := retry.Execute(ctx, p.provider, "planning.create_task", func(ctx context.Context) (Task, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.InsertTask(mutCtx, p.who.ID, normalized)
	})
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}

	p.mu.Lock()
	if created.Type == TaskBudget {
		p.budget = append(p.budget, created)
	} else {
		p.wedding = append(p.wedding, created)
	}
	p.mu.Unlock()
	p.notifier.Notify()
	return created, nil
}

// UpdateTask validates and applies a partial task update.
func (p *Planner) UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (Task, error) {
	if p == nil {
		return Task{}, fmt.Errorf("planner is not configured")
	}
	if err := ValidateTaskPatch(patch); err != nil {
		return Task{}, err
	}
	if _, ok := p.findTask(taskID); !ok {
		return Task{}, gateway.ErrNotFound
	}

	updated, err := retry.Execute(ctx, p.provider, "planning.update_task", func(ctx context.Context) (Task, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.UpdateTask(mutCtx, p.who.ID, taskID, patch)
	})
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}

	p.mu.Lock()
	p.replaceTask(updated)
	p.mu.Unlock()
	p.notifier.Notify()
	return updated, nil
}

// ToggleTask flips a task's completed flag.
func (p *Planner) ToggleTask(ctx context.Context, taskID string) (Task, error) {
	current, ok := p.findTask(taskID)
	if !ok {
		return Task{}, gateway.ErrNotFound
	}
	completed := !current.Completed
	return p.UpdateTask(ctx, taskID, TaskPatch{Completed: &completed})
}

// DeleteTask removes one task remotely, then from the snapshot.
func (p *Planner) DeleteTask(ctx context.Context, taskID string) error {
	if p == nil {
		return fmt.Errorf("planner is not configured")
	}
	if _, ok := p.findTask(taskID); !ok {
		return gateway.ErrNotFound
	}

	if err := retry.Do(ctx, p.provider, "planning.delete_task", func(ctx context.Context) error {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.DeleteTask(mutCtx, p.who.ID, taskID)
	}); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	p.mu.Lock()
	p.wedding = removeTask(p.wedding, taskID)
	p.budget = removeTask(p.budget, taskID)
	p.mu.Unlock()
	p.notifier.Notify()
	return nil
}

// CreateExpense validates and inserts one expense.
func (p *Planner) CreateExpense(ctx context.Context, input ExpenseInput) (Expense, error) {
	if p == nil {
		return Expense{}, fmt.Errorf("planner is not configured")
	}

	normalized, err := NormalizeExpenseInput(input)
	if err != nil {
		return Expense{}, err
	}

	created, err := retry.Execute(ctx, p.provider, "planning.create_expense", func(ctx context.Context) (Expense, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.InsertExpense(mutCtx, p.who.ID, normalized)
	})
	if err != nil {
		return Expense{}, fmt.Errorf("create expense: %w", err)
	}

	p.mu.Lock()
	p.expenses = append(p.expenses, created)
	p.mu.Unlock()
	p.notifier.Notify()
	return created, nil
}

// UpdateExpense validates and applies a partial expense update. Marking an
// expense paid requires a positive post-patch amount.
func (p *Planner) UpdateExpense(ctx context.Context, expenseID string, patch ExpensePatch) (Expense, error) {
	if p == nil {
		return Expense{}, fmt.Errorf("planner is not configured")
	}

	current, ok := p.findExpense(expenseID)
	if !ok {
		return Expense{}, gateway.ErrNotFound
	}
	if err := ValidateExpensePatch(current, patch); err != nil {
		return Expense{}, err
	}

	updated, err := retry.Execute(ctx, p.provider, "planning.update_expense", func(ctx context.Context) (Expense, error) {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.UpdateExpense(mutCtx, p.who.ID, expenseID, patch)
	})
	if err != nil {
		return Expense{}, fmt.Errorf("update expense: %w", err)
	}

	p.mu.Lock()
	for i, e := range p.expenses {
		if e.ID == updated.ID {
			p.expenses[i] = updated
			break
		}
	}
	p.mu.Unlock()
	p.notifier.Notify()
	return updated, nil
}

// DeleteExpense removes one expense remotely, then from the snapshot.
func (p *Planner) DeleteExpense(ctx context.Context, expenseID string) error {
	if p == nil {
		return fmt.Errorf("planner is not configured")
	}
	if _, ok := p.findExpense(expenseID); !ok {
		return gateway.ErrNotFound
	}

	if err := retry.Do(ctx, p.provider, "planning.delete_expense", func(ctx context.Context) error {
		mutCtx, cancel := context.WithTimeout(ctx, timeouts.Mutation)
		defer cancel()
		return p.gw.DeleteExpense(mutCtx, p.who.ID, expenseID)
	}); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	p.mu.Lock()
	kept := p.expenses[:0:0]
	for _, e := range p.expenses {
		if e.ID != expenseID {
			kept = append(kept, e)
		}
	}
	p.expenses = kept
	p.mu.Unlock()
	p.notifier.Notify()
	return nil
}

// ResetToTemplate bulk-deletes one task list and restores the defaults. The
// identity is verified server-side first; a bulk delete under a stale or
// wrong identity would destroy another account's data.
func (p *Planner) ResetToTemplate(ctx context.Context, taskType TaskType) error {
	if p == nil {
		return fmt.Errorf("planner is not configured")
	}
	if !taskType.Valid() {
		return apperrors.New(apperrors.CodeTaskInvalidType, "task type must be wedding or budget")
	}
	if p.provider == nil {
		return identity.ErrIdentityRequired
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeouts.IdentityVerify)
	confirmed, err := p.provider.VerifyServerSide(verifyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("verify identity before reset: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(confirmed.ID), p.who.ID) {
		return apperrors.New(apperrors.CodeIdentityMismatch, "reset identity mismatch")
	}

	if err := retry.Do(ctx, p.provider, "planning.reset", func(ctx context.Context) error {
		resetCtx, cancel := context.WithTimeout(ctx, timeouts.Bootstrap)
		defer cancel()
		if err := p.gw.DeleteAllTasks(resetCtx, p.who.ID, taskType); err != nil {
			return fmt.Errorf("delete %s tasks: %w", taskType, err)
		}
		if p.reseeder != nil {
			domain := "tasks"
			if taskType == TaskBudget {
				domain = "budget"
			}
			if err := p.reseeder.Seed(resetCtx, p.who.ID, domain); err != nil {
				return fmt.Errorf("reseed %s defaults: %w", taskType, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return p.Reload(ctx)
}

// Categories returns the default categories plus the identity's custom ones.
func (p *Planner) Categories(ctx context.Context) ([]string, error) {
	if p == nil {
		return nil, fmt.Errorf("planner is not configured")
	}

	categories := slices.Clone(DefaultCategories)
	if p.local == nil {
		return categories, nil
	}

	raw, ok, err := p.local.Get(ctx, localstore.PurposeCustomCategories, p.who.ID)
	if err != nil {
		return nil, fmt.Errorf("read custom categories: %w", err)
	}
	if !ok {
		return categories, nil
	}

	var custom []string
	if err := json.Unmarshal([]byte(raw), &custom); err != nil {
		// A corrupt local value is dropped rather than poisoning the list.
		log.Printf("decode custom categories: %v", err)
		return categories, nil
	}
	for _, name := range custom {
		if !slices.Contains(categories, name) {
			categories = append(categories, name)
		}
	}
	return categories, nil
}

// AddCategory persists one custom category for this identity on this device.
func (p *Planner) AddCategory(ctx context.Context, name string) error {
	if p == nil {
		return fmt.Errorf("planner is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("category name is required")
	}
	if p.local == nil {
		return fmt.Errorf("local store is not configured")
	}

	raw, ok, err := p.local.Get(ctx, localstore.PurposeCustomCategories, p.who.ID)
	if err != nil {
		return fmt.Errorf("read custom categories: %w", err)
	}
	var custom []string
	if ok {
		if err := json.Unmarshal([]byte(raw), &custom); err != nil {
			log.Printf("decode custom categories: %v", err)
			custom = nil
		}
	}
	if slices.Contains(custom, name) || slices.Contains(DefaultCategories, name) {
		return nil
	}
	custom = append(custom, name)

	encoded, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("encode custom categories: %w", err)
	}
	return p.local.Set(ctx, localstore.PurposeCustomCategories, p.who.ID, string(encoded))
}

func (p *Planner) findTask(taskID string) (Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.wedding {
		if t.ID == taskID {
			return t, true
		}
	}
	for _, t := range p.budget {
		if t.ID == taskID {
			return t, true
		}
	}
	return Task{}, false
}

func (p *Planner) findExpense(expenseID string) (Expense, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.expenses {
		if e.ID == expenseID {
			return e, true
		}
	}
	return Expense{}, false
}

// replaceTask merges one authoritative row by id; callers hold the lock.
func (p *Planner) replaceTask(updated Task) {
	for i, t := range p.wedding {
		if t.ID == updated.ID {
			p.wedding[i] = updated
			return
		}
	}
	for i, t := range p.budget {
		if t.ID == updated.ID {
			p.budget[i] = updated
			return
		}
	}
}

func removeTask(tasks []Task, taskID string) []Task {
	kept := tasks[:0:0]
	for _, t := range tasks {
		if t.ID != taskID {
			kept = append(kept, t)
		}
	}
	return kept
}
