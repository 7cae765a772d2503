// Package baseline turns successive full snapshots of a source into diffs.
//
// The first successful snapshot only records the starting state; nothing
// that already existed when watching began is ever reported as new.
package baseline

import (
	"sync"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// Diff is the change between the stored baseline and a new snapshot.
type Diff[T any] struct {
	New     []T
	Closed  []T
	Updated []T
	// Baselined is set when the snapshot only established the baseline.
	Baselined bool
}

// Empty reports whether the diff carries no changes.
func (d Diff[T]) Empty() bool {
	return len(d.New) == 0 && len(d.Closed) == 0 && len(d.Updated) == 0
}

// Differ keeps the last snapshot of one source, keyed by a stable identity.
// It is safe for concurrent use.
type Differ[T any] struct {
	key   func(T) string
	equal func(a, b T) bool

	mu       sync.Mutex
	state    domain.BaselineState
	baseline map[string]T
	order    []string
}

// New creates a Differ. key must return the same identity for the same
// exposure across polls; equal decides whether two items with the same key
// differ in attributes.
func New[T any](key func(T) string, equal func(a, b T) bool) *Differ[T] {
	return &Differ[T]{
		key:   key,
		equal: equal,
		state: domain.BaselineUninitialized,
	}
}

// State returns where the differ is in its lifecycle.
func (d *Differ[T]) State() domain.BaselineState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Apply records current as the new baseline and returns what changed. Only
// call it with the result of a successful poll.
func (d *Differ[T]) Apply(current []T) Diff[T] {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[string]T, len(current))
	order := make([]string, 0, len(current))
	for _, item := range current {
		k := d.key(item)
		if _, dup := next[k]; !dup {
			order = append(order, k)
		}
		next[k] = item
	}

	if d.state == domain.BaselineUninitialized {
		d.baseline, d.order = next, order
		d.state = domain.BaselineBaselined
		return Diff[T]{Baselined: true}
	}

	var diff Diff[T]
	for _, k := range order {
		cur := next[k]
		prev, seen := d.baseline[k]
		switch {
		case !seen:
			diff.New = append(diff.New, cur)
		case !d.equal(prev, cur):
			diff.Updated = append(diff.Updated, cur)
		}
	}
	for _, k := range d.order {
		if _, still := next[k]; !still {
			diff.Closed = append(diff.Closed, d.baseline[k])
		}
	}

	d.baseline, d.order = next, order
	d.state = domain.BaselineActive
	return diff
}

// Previous returns the baseline item stored under key.
func (d *Differ[T]) Previous(key string) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.baseline[key]
	return v, ok
}

// Reset forgets the baseline; the next Apply re-baselines.
func (d *Differ[T]) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = domain.BaselineUninitialized
	d.baseline = nil
	d.order = nil
}
