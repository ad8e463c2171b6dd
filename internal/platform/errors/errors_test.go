package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGetCodeTraversesWrapping(t *testing.T) {
	t.Parallel()

	base := New(CodeGuestNameEmpty, "name required")
	wrapped := fmt.Errorf("create guest: %w", base)

	if got := GetCode(wrapped); got != CodeGuestNameEmpty {
		t.Fatalf("GetCode() = %v, want CodeGuestNameEmpty", got)
	}
	if !IsCode(wrapped, CodeGuestNameEmpty) {
		t.Fatal("IsCode() = false through wrapping")
	}
	if got := GetCode(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("GetCode(plain) = %v, want CodeUnknown", got)
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	a := New(CodeTableFull, "table is full")
	b := Wrap(CodeTableFull, "different message", stderrors.New("cause"))
	if !stderrors.Is(b, a) {
		t.Fatal("errors with the same code do not match")
	}
	if stderrors.Is(a, New(CodeTableNotFound, "x")) {
		t.Fatal("errors with different codes match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("connection reset")
	wrapped := Wrap(CodeTimeout, "guest reload timed out", cause)
	if !stderrors.Is(wrapped, cause) {
		t.Fatal("Wrap() lost the cause")
	}
}

func TestGetMetadata(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeGuestInvalidRSVP, "guest validation failed", map[string]string{
		"rsvp": "rsvp must be pending, confirmed or declined",
	})
	meta := GetMetadata(fmt.Errorf("outer: %w", err))
	if meta["rsvp"] == "" {
		t.Fatalf("GetMetadata() = %v, want rsvp violation", meta)
	}
	if GetMetadata(stderrors.New("plain")) != nil {
		t.Fatal("GetMetadata(plain) != nil")
	}
}

func TestToGRPCStatus(t *testing.T) {
	t.Parallel()

	err := New(CodeSessionExpired, "session expired").ToGRPCStatus()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("ToGRPCStatus() did not produce a status error")
	}
	if st.Code() != codes.Unauthenticated {
		t.Fatalf("status code = %v, want Unauthenticated", st.Code())
	}
}

func TestUserMessageNeverLeaksBackendText(t *testing.T) {
	t.Parallel()

	leaky := Wrap(CodeUnknown, "pq: duplicate key value violates unique constraint", stderrors.New("internal"))
	message := UserMessage(leaky)
	if strings.Contains(message, "pq:") || strings.Contains(message, "constraint") {
		t.Fatalf("UserMessage() leaked backend text: %q", message)
	}

	cases := map[Code]string{
		CodeGuestNameEmpty: "Some of the entered values are invalid",
		CodeTableFull:      "conflicts with the current plan state",
		CodeSessionExpired: "sign in again",
		CodeTimeout:        "taking too long",
		CodeUnavailable:    "taking too long",
	}
	for code, want := range cases {
		got := UserMessage(New(code, "internal detail"))
		if !strings.Contains(got, want) {
			t.Fatalf("UserMessage(%v) = %q, want fragment %q", code, got, want)
		}
		if strings.Contains(got, "internal detail") {
			t.Fatalf("UserMessage(%v) leaked the internal message", code)
		}
	}

	if UserMessage(nil) != "" {
		t.Fatal("UserMessage(nil) != empty")
	}
}
