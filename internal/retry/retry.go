// Package retry wraps gateway calls with the reauthentication policy: an
// authorization failure triggers one session verify/refresh cycle and one
// retry of the original call. Nothing else is retried here; transient network
// failures are left to the caller's timeout policy.
package retry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/identity"
	"github.com/hearthplan/hearthplan/internal/platform/timeouts"
)

const tracerName = "github.com/hearthplan/hearthplan/internal/retry"

// Execute runs op, recovering exactly once from an expired session.
//
// On an authorization failure it verifies the session server-side; an invalid
// session forces sign-out and fails terminally with ErrSessionExpired.
// Otherwise it refreshes the session; refresh failure also forces sign-out
// and fails terminally. On refresh success op runs once more and that outcome
// is returned as-is, success or failure.
func Execute[T any](ctx context.Context, provider identity.Provider, label string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if op == nil {
		return zero, fmt.Errorf("operation is required")
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, label)
	defer span.End()

	result, err := op(ctx)
	if err == nil {
		return result, nil
	}
	if !gateway.IsAuthError(err) || provider == nil {
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	if reauthErr := reauthenticate(ctx, provider); reauthErr != nil {
		span.SetStatus(codes.Error, reauthErr.Error())
		return zero, reauthErr
	}

	result, err = op(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	return result, nil
}

// Do is Execute for operations with no result value.
func Do(ctx context.Context, provider identity.Provider, label string, op func(context.Context) error) error {
	_, err := Execute(ctx, provider, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// reauthenticate verifies then refreshes the session. Any failure signs the
// identity out and returns the terminal session-expired error.
func reauthenticate(ctx context.Context, provider identity.Provider) error {
	verifyCtx, cancel := context.WithTimeout(ctx, timeouts.IdentityVerify)
	_, verifyErr := provider.VerifyServerSide(verifyCtx)
	cancel()
	if verifyErr != nil {
		if signOutErr := provider.SignOut(ctx); signOutErr != nil {
			return fmt.Errorf("sign out after failed verification: %w", signOutErr)
		}
		return identity.ErrSessionExpired
	}

	refreshCtx, cancel := context.WithTimeout(ctx, timeouts.SessionRefresh)
	refreshErr := provider.RefreshSession(refreshCtx)
	cancel()
	if refreshErr != nil {
		if signOutErr := provider.SignOut(ctx); signOutErr != nil {
			return fmt.Errorf("sign out after failed refresh: %w", signOutErr)
		}
		return identity.ErrSessionExpired
	}
	return nil
}
