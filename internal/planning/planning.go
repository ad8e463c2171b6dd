// Package planning owns the tasks & budget domain: wedding and budget task
// lists split from one remote collection, expenses, the authoritative budget
// figure, and the planner state container.
package planning

import (
	"strings"
	"time"

	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
)

// TaskType is the discriminator splitting one physical collection into two
// logical lists.
type TaskType string

const (
	TaskWedding TaskType = "wedding"
	TaskBudget  TaskType = "budget"
)

// Valid reports whether the task type is a known value.
func (t TaskType) Valid() bool {
	return t == TaskWedding || t == TaskBudget
}

// Task is one identity-scoped checklist entry.
type Task struct {
	ID        string
	Title     string
	Category  string
	Completed bool
	Priority  bool
	Type      TaskType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentStatus tracks whether an expense has been settled.
type PaymentStatus string

const (
	PaymentNone PaymentStatus = "none"
	PaymentPaid PaymentStatus = "paid"
)

// Valid reports whether the payment status is a known value.
func (s PaymentStatus) Valid() bool {
	return s == PaymentNone || s == PaymentPaid
}

// Expense is one identity-scoped budget line.
type Expense struct {
	ID            string
	Title         string
	Category      string
	AmountCents   int64
	IsDeposit     bool
	PaymentStatus PaymentStatus
	Note          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the identity profile record. Its budget figure, when present,
// always wins over the container's own cached total.
type Profile struct {
	IdentityID  string
	BudgetCents *int64
}

// TaskInput describes a new task.
type TaskInput struct {
	Title    string
	Category string
	Priority bool
	Type     TaskType
}

// TaskPatch carries a partial task update. Nil fields are untouched.
type TaskPatch struct {
	Title     *string
	Category  *string
	Completed *bool
	Priority  *bool
}

// ExpenseInput describes a new expense.
type ExpenseInput struct {
	Title         string
	Category      string
	AmountCents   int64
	IsDeposit     bool
	PaymentStatus PaymentStatus
	Note          string
}

// ExpensePatch carries a partial expense update. Nil fields are untouched.
type ExpensePatch struct {
	Title         *string
	Category      *string
	AmountCents   *int64
	IsDeposit     *bool
	PaymentStatus *PaymentStatus
	Note          *string
}

// NormalizeTaskInput trims, applies defaults, and validates a new task.
func NormalizeTaskInput(input TaskInput) (TaskInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)
	if input.Type == "" {
		input.Type = TaskWedding
	}

	violations := map[string]string{}
	code := apperrors.CodeUnknown
	if input.Title == "" {
		violations["title"] = "a task title is required"
		code = apperrors.CodeTaskTitleEmpty
	}
	if !input.Type.Valid() {
		violations["taskType"] = "task type must be wedding or budget"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeTaskInvalidType
		}
	}
	if len(violations) > 0 {
		return TaskInput{}, apperrors.WithMetadata(code, "task validation failed", violations)
	}
	return input, nil
}

// ValidateTaskPatch checks the fields of a partial task update.
func ValidateTaskPatch(patch TaskPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return apperrors.WithMetadata(apperrors.CodeTaskTitleEmpty, "task validation failed", map[string]string{
			"title": "a task title is required",
		})
	}
	return nil
}

// NormalizeExpenseInput trims, applies defaults, and validates a new expense.
func NormalizeExpenseInput(input ExpenseInput) (ExpenseInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)
	input.Note = strings.TrimSpace(input.Note)
	if input.PaymentStatus == "" {
		input.PaymentStatus = PaymentNone
	}

	violations := map[string]string{}
	code := apperrors.CodeUnknown
	if input.Title == "" {
		violations["title"] = "an expense title is required"
		code = apperrors.CodeExpenseTitleEmpty
	}
	if input.AmountCents < 0 {
		violations["amount"] = "amount must not be negative"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeExpenseNegativeAmount
		}
	}
	if !input.PaymentStatus.Valid() {
		violations["paymentStatus"] = "payment status must be none or paid"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeExpenseInvalidStatus
		}
	}
	if input.PaymentStatus == PaymentPaid && input.AmountCents <= 0 {
		violations["paymentStatus"] = "an expense with no amount cannot be paid"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeExpensePaidZeroAmount
		}
	}
	if len(violations) > 0 {
		return ExpenseInput{}, apperrors.WithMetadata(code, "expense validation failed", violations)
	}
	return input, nil
}

// ValidateExpensePatch checks a partial expense update against the current
// row. The paid-requires-amount rule is evaluated on the post-patch values.
func ValidateExpensePatch(current Expense, patch ExpensePatch) error {
	violations := map[string]string{}
	code := apperrors.CodeUnknown
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		violations["title"] = "an expense title is required"
		code = apperrors.CodeExpenseTitleEmpty
	}
	if patch.AmountCents != nil && *patch.AmountCents < 0 {
		violations["amount"] = "amount must not be negative"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeExpenseNegativeAmount
		}
	}
	if patch.PaymentStatus != nil && !patch.PaymentStatus.Valid() {
		violations["paymentStatus"] = "payment status must be none or paid"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeExpenseInvalidStatus
		}
	}

	amount := current.AmountCents
	if patch.AmountCents != nil {
		amount = *patch.AmountCents
	}
	status := current.PaymentStatus
	if patch.PaymentStatus != nil {
		status = *patch.PaymentStatus
	}
	if status == PaymentPaid && amount <= 0 {
		violations["paymentStatus"] = "an expense with no amount cannot be paid"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeExpensePaidZeroAmount
		}
	}

	if len(violations) > 0 {
		return apperrors.WithMetadata(code, "expense validation failed", violations)
	}
	return nil
}

// ApplyTaskPatch returns a copy of t with the patch applied.
func ApplyTaskPatch(t Task, patch TaskPatch) Task {
	if patch.Title != nil {
		t.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Category != nil {
		t.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	return t
}

// ApplyExpensePatch returns a copy of e with the patch applied.
func ApplyExpensePatch(e Expense, patch ExpensePatch) Expense {
	if patch.Title != nil {
		e.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Category != nil {
		e.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.AmountCents != nil {
		e.AmountCents = *patch.AmountCents
	}
	if patch.IsDeposit != nil {
		e.IsDeposit = *patch.IsDeposit
	}
	if patch.PaymentStatus != nil {
		e.PaymentStatus = *patch.PaymentStatus
	}
	if patch.Note != nil {
		e.Note = strings.TrimSpace(*patch.Note)
	}
	return e
}

// Partition splits one task collection into the wedding and budget lists,
// preserving order. Callers must never assume pre-partitioned input.
func Partition(tasks []Task) (wedding, budget []Task) {
	for _, t := range tasks {
		if t.Type == TaskBudget {
			budget = append(budget, t)
		} else {
			wedding = append(wedding, t)
		}
	}
	return wedding, budget
}

// CompletedCount tallies completed tasks in a list.
func CompletedCount(tasks []Task) int {
	count := 0
	for _, t := range tasks {
		if t.Completed {
			count++
		}
	}
	return count
}

// TotalCents sums all expense amounts.
func TotalCents(expenses []Expense) int64 {
	var total int64
	for _, e := range expenses {
		total += e.AmountCents
	}
	return total
}

// PaidCents sums settled expense amounts.
func PaidCents(expenses []Expense) int64 {
	var total int64
	for _, e := range expenses {
		if e.PaymentStatus == PaymentPaid {
			total += e.AmountCents
		}
	}
	return total
}

// DepositCents sums deposit expense amounts.
func DepositCents(expenses []Expense) int64 {
	var total int64
	for _, e := range expenses {
		if e.IsDeposit {
			total += e.AmountCents
		}
	}
	return total
}
