// Package seating owns the seating plan: the table entity, the plan state
// container, and the singleton couple-table rule that spans the roster and
// seating domains.
package seating

import (
	"strings"
	"time"

	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
)

// Type identifies the table kind. Exactly one main_couple table exists per
// identity once initialization has run.
type Type string

const (
	TypeMainCouple Type = "main_couple"
	TypeRegular    Type = "regular"
)

// Valid reports whether the type is a known value.
func (t Type) Valid() bool {
	return t == TypeMainCouple || t == TypeRegular
}

// CoupleTableName is the deterministic name given to the singleton couple
// table when the engine creates it.
const CoupleTableName = "Couple Table"

// CoupleTableCapacity seats the two primary roles.
const CoupleTableCapacity = 2

// maxCapacity bounds a single table; anything larger is a typo.
const maxCapacity = 64

// Table is one identity-scoped seating table. Assigned guest ids are derived
// from the guest snapshot, never stored on the table row.
type Table struct {
	ID        string
	Name      string
	Capacity  int
	Type      Type
	CreatedAt time.Time
}

// CreateInput describes a new table.
type CreateInput struct {
	Name     string
	Capacity int
	Type     Type
}

// Patch carries a partial table update. Nil fields are untouched. The table
// type is immutable after creation.
type Patch struct {
	Name     *string
	Capacity *int
}

// NormalizeCreateInput trims, applies defaults, and validates a new table.
func NormalizeCreateInput(input CreateInput) (CreateInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Type == "" {
		input.Type = TypeRegular
	}

	violations := map[string]string{}
	code := apperrors.CodeUnknown
	if input.Name == "" {
		violations["name"] = "a table name is required"
		code = apperrors.CodeTableNameEmpty
	}
	if input.Capacity <= 0 || input.Capacity > maxCapacity {
		violations["capacity"] = "capacity must be between 1 and 64"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeTableInvalidCapacity
		}
	}
	if !input.Type.Valid() {
		violations["tableType"] = "table type must be main_couple or regular"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeTableInvalidType
		}
	}
	if len(violations) > 0 {
		return CreateInput{}, apperrors.WithMetadata(code, "table validation failed", violations)
	}
	return input, nil
}

// ValidatePatch checks the fields of a partial update.
func ValidatePatch(patch Patch) error {
	violations := map[string]string{}
	code := apperrors.CodeUnknown
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		violations["name"] = "a table name is required"
		code = apperrors.CodeTableNameEmpty
	}
	if patch.Capacity != nil && (*patch.Capacity <= 0 || *patch.Capacity > maxCapacity) {
		violations["capacity"] = "capacity must be between 1 and 64"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeTableInvalidCapacity
		}
	}
	if len(violations) > 0 {
		return apperrors.WithMetadata(code, "table validation failed", violations)
	}
	return nil
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Table) Table {
	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.Capacity != nil {
		t.Capacity = *p.Capacity
	}
	return t
}

// CoupleTables filters the main_couple tables from a snapshot.
func CoupleTables(tables []Table) []Table {
	var result []Table
	for _, t := range tables {
		if t.Type == TypeMainCouple {
			result = append(result, t)
		}
	}
	return result
}
