// Package flight provides a thin single-flight wrapper used wherever the
// engine must guarantee that a check-then-act sequence runs at most once at a
// time, with concurrent callers sharing the in-progress result.
package flight

import "golang.org/x/sync/singleflight"

// Group deduplicates concurrent executions by key. Callers that arrive while
// an execution for the same key is in progress block and receive the same
// result instead of starting their own execution.
type Group struct {
	group singleflight.Group
}

// Do executes fn once per key at a time. The boolean reports whether the
// result was shared with another in-flight caller.
func (g *Group) Do(key string, fn func() error) (shared bool, err error) {
	if g == nil {
		return false, fn()
	}
	_, err, shared = g.group.Do(key, func() (any, error) {
		return nil, fn()
	})
	return shared, err
}

// DoValue executes fn once per key at a time and returns its value.
func (g *Group) DoValue(key string, fn func() (any, error)) (any, bool, error) {
	if g == nil {
		v, err := fn()
		return v, false, err
	}
	v, err, shared := g.group.Do(key, fn)
	return v, shared, err
}

// Forget drops the in-flight record for key so the next Do starts fresh.
func (g *Group) Forget(key string) {
	if g == nil {
		return
	}
	g.group.Forget(key)
}
