// Package errors provides structured error handling for the planning engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Guest errors
	CodeGuestNameEmpty          Code = "GUEST_NAME_EMPTY"
	CodeGuestInvalidStatus      Code = "GUEST_INVALID_STATUS"
	CodeGuestInvalidRSVP        Code = "GUEST_INVALID_RSVP"
	CodeGuestInvalidRole        Code = "GUEST_INVALID_ROLE"
	CodeGuestInvalidDiscount    Code = "GUEST_INVALID_DISCOUNT"
	CodeGuestCompanionOfSelf    Code = "GUEST_COMPANION_OF_SELF"
	CodeGuestCompanionChained   Code = "GUEST_COMPANION_CHAINED"
	CodeGuestCompanionNotFound  Code = "GUEST_COMPANION_NOT_FOUND"
	CodeGuestRoleTaken          Code = "GUEST_ROLE_TAKEN"
	CodeGuestDeclinedHasSeat    Code = "GUEST_DECLINED_HAS_SEAT"
	CodeGuestSeatWithoutTable   Code = "GUEST_SEAT_WITHOUT_TABLE"

	// Table errors
	CodeTableNameEmpty       Code = "TABLE_NAME_EMPTY"
	CodeTableInvalidCapacity Code = "TABLE_INVALID_CAPACITY"
	CodeTableInvalidType     Code = "TABLE_INVALID_TYPE"
	CodeTableFull            Code = "TABLE_FULL"
	CodeTableNotFound        Code = "TABLE_NOT_FOUND"
	CodeTableSeatTaken       Code = "TABLE_SEAT_TAKEN"
	CodeTableSeatOutOfRange  Code = "TABLE_SEAT_OUT_OF_RANGE"

	// Task errors
	CodeTaskTitleEmpty  Code = "TASK_TITLE_EMPTY"
	CodeTaskInvalidType Code = "TASK_INVALID_TYPE"

	// Expense errors
	CodeExpenseTitleEmpty     Code = "EXPENSE_TITLE_EMPTY"
	CodeExpenseNegativeAmount Code = "EXPENSE_NEGATIVE_AMOUNT"
	CodeExpensePaidZeroAmount Code = "EXPENSE_PAID_ZERO_AMOUNT"
	CodeExpenseInvalidStatus  Code = "EXPENSE_INVALID_STATUS"

	// Identity/session errors
	CodeIdentityRequired Code = "IDENTITY_REQUIRED"
	CodeIdentityMismatch Code = "IDENTITY_MISMATCH"
	CodeSessionExpired   Code = "SESSION_EXPIRED"

	// Gateway/transport errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeUnavailable Code = "UNAVAILABLE"
	CodeTimeout     Code = "TIMEOUT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeGuestNameEmpty,
		CodeGuestInvalidStatus,
		CodeGuestInvalidRSVP,
		CodeGuestInvalidRole,
		CodeGuestInvalidDiscount,
		CodeGuestCompanionOfSelf,
		CodeGuestCompanionChained,
		CodeGuestSeatWithoutTable,
		CodeTableNameEmpty,
		CodeTableInvalidCapacity,
		CodeTableInvalidType,
		CodeTableSeatOutOfRange,
		CodeTaskTitleEmpty,
		CodeTaskInvalidType,
		CodeExpenseTitleEmpty,
		CodeExpenseNegativeAmount,
		CodeExpenseInvalidStatus,
		CodeIdentityRequired:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow the operation
	case CodeGuestRoleTaken,
		CodeGuestDeclinedHasSeat,
		CodeExpensePaidZeroAmount,
		CodeTableFull,
		CodeTableSeatTaken:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeGuestCompanionNotFound,
		CodeTableNotFound:
		return codes.NotFound

	case CodeIdentityMismatch, CodeSessionExpired:
		return codes.Unauthenticated

	case CodeConflict:
		return codes.Aborted

	case CodeUnavailable:
		return codes.Unavailable

	case CodeTimeout:
		return codes.DeadlineExceeded

	default:
		return codes.Internal
	}
}
