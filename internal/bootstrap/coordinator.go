// Package bootstrap guards the destructive one-time seed procedures. A
// coordinator exists per seedable domain per identity session and guarantees
// the remote seed runs at most once per identity per process, behind three
// layers: the remote initialization flag, the device-local marker, and an
// in-memory single-flight lock.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/identity"
	"github.com/hearthplan/hearthplan/internal/localstore"
	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
	"github.com/hearthplan/hearthplan/internal/platform/flight"
	"github.com/hearthplan/hearthplan/internal/platform/timeouts"
	"github.com/hearthplan/hearthplan/internal/retry"
)

// Seedable domains.
const (
	DomainTasks  = "tasks"
	DomainBudget = "budget"
)

// localPurpose maps a domain to its device-marker purpose key.
func localPurpose(domain string) string {
	switch domain {
	case DomainBudget:
		return localstore.PurposeBudgetInitialized
	default:
		return localstore.PurposeTasksInitialized
	}
}

// Coordinator deduplicates one domain's seed procedure for one identity.
// Safe for concurrent use; concurrent callers share a single execution.
type Coordinator struct {
	domain   string
	who      identity.Identity
	provider identity.Provider
	remote   gateway.Bootstrap
	local    localstore.Store

	flight flight.Group

	mu      sync.Mutex
	checked bool
	seeded  bool
}

// NewCoordinator creates a coordinator for one domain and identity.
func NewCoordinator(domain string, who identity.Identity, provider identity.Provider, remote gateway.Bootstrap, local localstore.Store) (*Coordinator, error) {
	if domain != DomainTasks && domain != DomainBudget {
		return nil, fmt.Errorf("unknown seedable domain %q", domain)
	}
	if who.IsZero() {
		return nil, identity.ErrIdentityRequired
	}
	if remote == nil {
		return nil, fmt.Errorf("bootstrap gateway is required")
	}
	return &Coordinator{
		domain:   domain,
		who:      who,
		provider: provider,
		remote:   remote,
		local:    local,
	}, nil
}

// Seeded reports whether this coordinator invoked the seed procedure.
func (c *Coordinator) Seeded() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seeded
}

// EnsureInitialized runs the guarded seed protocol. It is idempotent and safe
// to call repeatedly and concurrently; within one session the guards are
// evaluated at most once. The returned boolean reports whether this call (or
// the shared in-flight call) invoked the seed procedure.
func (c *Coordinator) EnsureInitialized(ctx context.Context) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("coordinator is not configured")
	}

	_, err := c.flight.Do(c.domain, func() error {
		return c.ensure(ctx)
	})
	return c.Seeded(), err
}

// ensure evaluates the guard chain. Guard-read failures abort without
// seeding and mark the session checked so one broken backend does not turn
// into a retry storm.
func (c *Coordinator) ensure(ctx context.Context) error {
	c.mu.Lock()
	if c.checked {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// All outcomes below settle the session; only a fresh session or a new
	// identity re-evaluates the guards.
	defer c.markChecked()

	if err := c.verifyIdentity(ctx); err != nil {
		return err
	}

	remoteFlag, err := retry.Execute(ctx, c.provider, c.domain+".bootstrap.flag", func(ctx context.Context) (bool, error) {
		flagCtx, cancel := context.WithTimeout(ctx, timeouts.IdentityVerify)
		defer cancel()
		return c.remote.InitializationFlag(flagCtx, c.who.ID, c.domain)
	})
	if err != nil {
		return fmt.Errorf("read %s initialization flag: %w", c.domain, err)
	}
	if remoteFlag {
		return nil
	}

	hasLocal, err := localstore.HasMarker(ctx, c.local, localPurpose(c.domain), c.who.ID)
	if err != nil {
		return fmt.Errorf("read %s local marker: %w", c.domain, err)
	}
	if hasLocal {
		return nil
	}

	count, err := retry.Execute(ctx, c.provider, c.domain+".bootstrap.count", func(ctx context.Context) (int, error) {
		countCtx, cancel := context.WithTimeout(ctx, timeouts.CollectionReload)
		defer cancel()
		return c.remote.CountRows(countCtx, c.who.ID, c.domain)
	})
	if err != nil {
		return fmt.Errorf("count %s rows: %w", c.domain, err)
	}
	if count > 0 {
		// Rows exist without markers - a previous seed or manual entry.
		// Never seed over existing data.
		return nil
	}

	if err := retry.Do(ctx, c.provider, c.domain+".bootstrap.seed", func(ctx context.Context) error {
		seedCtx, cancel := context.WithTimeout(ctx, timeouts.Bootstrap)
		defer cancel()
		return c.remote.Seed(seedCtx, c.who.ID, c.domain)
	}); err != nil {
		return fmt.Errorf("seed %s defaults: %w", c.domain, err)
	}

	c.mu.Lock()
	c.seeded = true
	c.mu.Unlock()

	// Marker writes are best effort once the seed has succeeded; the row
	// count guard covers a lost marker on the next session.
	if err := localstore.SetMarker(ctx, c.local, localPurpose(c.domain), c.who.ID); err != nil {
		log.Printf("set %s local marker: %v", c.domain, err)
	}
	if err := c.remote.SetInitializationFlag(ctx, c.who.ID, c.domain); err != nil {
		log.Printf("set %s remote marker: %v", c.domain, err)
	}
	return nil
}

// verifyIdentity confirms the presented identity server-side before any
// destructive step. A mismatch means session material and cached identity
// have diverged; seeding then could write into the wrong account.
func (c *Coordinator) verifyIdentity(ctx context.Context) error {
	if c.provider == nil {
		return fmt.Errorf("identity provider is required for %s bootstrap", c.domain)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeouts.IdentityVerify)
	confirmed, err := c.provider.VerifyServerSide(verifyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("verify identity for %s bootstrap: %w", c.domain, err)
	}
	if !strings.EqualFold(strings.TrimSpace(confirmed.ID), c.who.ID) {
		return apperrors.WithMetadata(apperrors.CodeIdentityMismatch, "bootstrap identity mismatch", map[string]string{
			"expected": c.who.ID,
			"actual":   confirmed.ID,
		})
	}
	return nil
}

func (c *Coordinator) markChecked() {
	c.mu.Lock()
	c.checked = true
	c.mu.Unlock()
}
