// Package realtime turns change-feed events into container reloads. Event
// payloads are never merged; every event means "something changed, reload the
// source of truth", which trades a little bandwidth for the absence of
// partial-merge divergence bugs.
package realtime

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/hearthplan/hearthplan/internal/gateway"
	"github.com/hearthplan/hearthplan/internal/identity"
)

// Reloader is the slice of a domain container the listener drives.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Listener owns one (table, identity) feed subscription and the run loop
// consuming it.
type Listener struct {
	table  string
	target Reloader

	// alive is the liveness token captured at subscription time. A reload
	// triggered by an event that arrives after Close is discarded; in-flight
	// feed deliveries are not cancelled, only their effects.
	alive  atomic.Bool
	cancel func()
	stop   chan struct{}
	done   chan struct{}
}

// Listen subscribes to one table's change feed for one identity and starts
// the reconciliation loop.
func Listen(ctx context.Context, feed gateway.Feed, table string, who identity.Identity, target Reloader) (*Listener, error) {
	if feed == nil {
		return nil, fmt.Errorf("change feed is required")
	}
	if who.IsZero() {
		return nil, identity.ErrIdentityRequired
	}
	if target == nil {
		return nil, fmt.Errorf("reload target is required")
	}

	events, cancel, err := feed.Subscribe(ctx, table, who.ID)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s feed: %w", table, err)
	}

	listener := &Listener{
		table:  table,
		target: target,
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	listener.alive.Store(true)
	go listener.run(ctx, events)
	return listener, nil
}

// Close tears the subscription down. Events already in flight no longer
// trigger reloads. The run loop is stopped through the listener's own stop
// channel, so Close returns even against a feed whose cancel only halts
// delivery without closing the event channel.
func (l *Listener) Close() {
	if l == nil {
		return
	}
	if l.alive.CompareAndSwap(true, false) {
		if l.cancel != nil {
			l.cancel()
		}
		close(l.stop)
	}
	<-l.done
}

// run consumes the event channel until the feed closes, the listener is
// stopped, or liveness is revoked. Reload failures are logged and the
// previous snapshot stands; the next event tries again.
func (l *Listener) run(ctx context.Context, events <-chan gateway.Event) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if !l.alive.Load() {
				return
			}
			if err := l.target.Reload(ctx); err != nil {
				log.Printf("reload %s after feed event: %v", l.table, err)
			}
		}
	}
}
