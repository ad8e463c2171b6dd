// Package engine owns the per-identity session: the three domain containers,
// their once-per-identity initialization, and the change-feed listeners that
// keep them reconciled. The engine reacts to identity changes by tearing the
// whole session down and building a fresh one, so state from one account can
// never leak into another.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/hearthplan/hearthplan/internal/bootstrap"
	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/guest"
	"github.com/hearthplan/hearthplan/internal/identity"
	"github.com/hearthplan/hearthplan/internal/localstore"
	"github.com/hearthplan/hearthplan/internal/planning"
	"github.com/hearthplan/hearthplan/internal/realtime"
	"github.com/hearthplan/hearthplan/internal/seating"
)

// Backend aggregates the full remote surface one session needs: domain CRUD,
// the bootstrap procedures, the change feed, and the audit log.
type Backend interface {
	guest.Gateway
	seating.Gateway
	planning.Gateway
	gateway.Bootstrap
	gateway.Feed
	gateway.AuditLogger
}

// Session is the live state for one signed-in identity. All fields are built
// together and torn down together; a Session is never reused across
// identities.
type Session struct {
	who     identity.Identity
	roster  *guest.Roster
	plan    *seating.Plan
	planner *planning.Planner

	tasksBoot  *bootstrap.Coordinator
	budgetBoot *bootstrap.Coordinator

	listeners []*realtime.Listener
}

// Identity returns the identity this session belongs to.
func (s *Session) Identity() identity.Identity {
	if s == nil {
		return identity.Identity{}
	}
	return s.who
}

// Roster returns the guest roster container.
func (s *Session) Roster() *guest.Roster {
	if s == nil {
		return nil
	}
	return s.roster
}

// SeatingPlan returns the seating container.
func (s *Session) SeatingPlan() *seating.Plan {
	if s == nil {
		return nil
	}
	return s.plan
}

// Planner returns the tasks-and-budget container.
func (s *Session) Planner() *planning.Planner {
	if s == nil {
		return nil
	}
	return s.planner
}

// Engine drives session lifecycle off the identity provider's change stream.
type Engine struct {
	provider identity.Provider
	backend  Backend
	local    localstore.Store

	mu      sync.RWMutex
	session *Session
}

// New creates an engine. Run must be called to start session management.
func New(provider identity.Provider, backend Backend, local localstore.Store) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	return &Engine{
		provider: provider,
		backend:  backend,
		local:    local,
	}, nil
}

// Session returns the current session, if an identity is signed in.
func (e *Engine) Session() (*Session, bool) {
	if e == nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session, e.session != nil
}

// Run opens a session for the current identity, then blocks consuming
// identity changes until ctx is cancelled. Sign-out tears the session down;
// a new sign-in builds a fresh one, even for the same account.
func (e *Engine) Run(ctx context.Context) error {
	if e == nil {
		return fmt.Errorf("engine is not configured")
	}

	changes, unsubscribe := e.provider.Subscribe()
	defer unsubscribe()

	if who, ok := e.provider.Current(); ok {
		e.swap(ctx, who)
	}

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				e.teardown()
				return nil
			}
			if change.Current.IsZero() {
				e.teardown()
				continue
			}
			e.swap(ctx, change.Current)
		}
	}
}

// swap replaces the current session with one for who. A repeat notification
// for the identity already in place is a no-op; anything else is a full
// teardown and rebuild.
func (e *Engine) swap(ctx context.Context, who identity.Identity) {
	e.mu.Lock()
	if e.session != nil && e.session.who.ID == who.ID {
		e.mu.Unlock()
		return
	}
	previous := e.session
	e.session = nil
	e.mu.Unlock()

	closeSession(previous)

	session, err := e.openSession(ctx, who)
	if err != nil {
		log.Printf("engine: open session for %s: %v", who.ID, err)
		return
	}

	e.mu.Lock()
	e.session = session
	e.mu.Unlock()
}

func (e *Engine) teardown() {
	e.mu.Lock()
	previous := e.session
	e.session = nil
	e.mu.Unlock()
	closeSession(previous)
}

// openSession builds the containers, runs the once-per-identity
// initialization, loads the initial snapshots, and starts the feed
// listeners. Partial failures after the loads (couple table, listeners) are
// logged and tolerated; the session still opens.
func (e *Engine) openSession(ctx context.Context, who identity.Identity) (*Session, error) {
	roster, err := guest.NewRoster(who, e.provider, e.backend, e.backend)
	if err != nil {
		return nil, fmt.Errorf("build roster: %w", err)
	}
	plan, err := seating.NewPlan(who, e.provider, e.backend)
	if err != nil {
		return nil, fmt.Errorf("build seating plan: %w", err)
	}
	planner, err := planning.NewPlanner(who, e.provider, e.backend, e.local, e.backend)
	if err != nil {
		return nil, fmt.Errorf("build planner: %w", err)
	}

	// Cross-domain views are injected after construction so neither
	// container depends on the other's package at build time.
	roster.SetSeatingView(plan)
	plan.SetRosterDirectory(roster)

	tasksBoot, err := bootstrap.NewCoordinator(bootstrap.DomainTasks, who, e.provider, e.backend, e.local)
	if err != nil {
		return nil, fmt.Errorf("build tasks coordinator: %w", err)
	}
	budgetBoot, err := bootstrap.NewCoordinator(bootstrap.DomainBudget, who, e.provider, e.backend, e.local)
	if err != nil {
		return nil, fmt.Errorf("build budget coordinator: %w", err)
	}

	// Seeding must settle before the planner's first load so the snapshot
	// includes the template rows.
	if _, err := tasksBoot.EnsureInitialized(ctx); err != nil {
		log.Printf("engine: tasks initialization for %s: %v", who.ID, err)
	}
	if _, err := budgetBoot.EnsureInitialized(ctx); err != nil {
		log.Printf("engine: budget initialization for %s: %v", who.ID, err)
	}

	if err := roster.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if err := plan.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load seating plan: %w", err)
	}
	if err := planner.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load planner: %w", err)
	}

	if _, err := plan.EnsureCoupleTable(ctx); err != nil {
		log.Printf("engine: ensure couple table for %s: %v", who.ID, err)
	}

	session := &Session{
		who:        who,
		roster:     roster,
		plan:       plan,
		planner:    planner,
		tasksBoot:  tasksBoot,
		budgetBoot: budgetBoot,
	}

	targets := []struct {
		table  string
		target realtime.Reloader
	}{
		{gateway.TableGuests, roster},
		{gateway.TableTables, plan},
		{gateway.TableTasks, planner},
		{gateway.TableExpenses, planner},
		{gateway.TableProfiles, planner},
	}
	for _, t := range targets {
		listener, err := realtime.Listen(ctx, e.backend, t.table, who, t.target)
		if err != nil {
			log.Printf("engine: listen %s feed for %s: %v", t.table, who.ID, err)
			continue
		}
		session.listeners = append(session.listeners, listener)
	}

	return session, nil
}

// closeSession stops the listeners and drops the snapshots. Safe on nil.
func closeSession(s *Session) {
	if s == nil {
		return
	}
	for _, listener := range s.listeners {
		listener.Close()
	}
	s.roster.Clear()
	s.plan.Clear()
	s.planner.Clear()
}
