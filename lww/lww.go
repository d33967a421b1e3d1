// Package lww implements a last-writer-wins register map: one independently
// resolved key per entry, each winning or losing concurrent writes purely on
// its HLC timestamp. The resolution rule follows resolvers/crdt/lww.go's
// LWWResolver, which keeps a clock and a tombstone time per path and
// accepts a write only if its OpTime is strictly after whichever of the
// two is later; here that per-path clock/tombstone pair collapses into
// one register per key.
package lww

import "github.com/nullstream/collabdoc/clock"

type register[V any] struct {
	value     V
	timestamp clock.Timestamp
	removed   bool
}

// LwwMap is a last-writer-wins map from K to V. Every key resolves
// independently: a Set or Remove only takes effect if its timestamp is
// strictly after the timestamp already recorded for that key, so
// concurrent writes converge to whichever replica's clock ran ahead
// without needing to compare the whole map.
type LwwMap[K comparable, V any] struct {
	entries map[K]*register[V]
}

// New returns an empty LwwMap.
func New[K comparable, V any]() *LwwMap[K, V] {
	return &LwwMap[K, V]{entries: make(map[K]*register[V])}
}

// Set writes v for k if ts is strictly after the timestamp currently held
// for k (whether that timestamp came from a prior Set or a prior Remove).
// Returns whether the write was accepted.
func (m *LwwMap[K, V]) Set(k K, v V, ts clock.Timestamp) bool {
	if r, ok := m.entries[k]; ok && !ts.After(r.timestamp) {
		return false
	}
	m.entries[k] = &register[V]{value: v, timestamp: ts}
	return true
}

// Remove tombstones k if ts is strictly after the timestamp currently held
// for k. A Remove of a key that was never set still reserves a tombstone at
// ts, so a late-arriving Set with an earlier timestamp can't resurrect it.
func (m *LwwMap[K, V]) Remove(k K, ts clock.Timestamp) bool {
	if r, ok := m.entries[k]; ok && !ts.After(r.timestamp) {
		return false
	}
	var zero V
	m.entries[k] = &register[V]{value: zero, timestamp: ts, removed: true}
	return true
}

// Get returns the live value for k, or ok=false if k was never set or its
// latest write was a Remove.
func (m *LwwMap[K, V]) Get(k K) (V, bool) {
	r, ok := m.entries[k]
	if !ok || r.removed {
		var zero V
		return zero, false
	}
	return r.value, true
}

// Snapshot returns a plain map of the currently live (non-removed) entries.
func (m *LwwMap[K, V]) Snapshot() map[K]V {
	out := make(map[K]V, len(m.entries))
	for k, r := range m.entries {
		if !r.removed {
			out[k] = r.value
		}
	}
	return out
}

// Len returns the number of live (non-removed) entries.
func (m *LwwMap[K, V]) Len() int {
	n := 0
	for _, r := range m.entries {
		if !r.removed {
			n++
		}
	}
	return n
}
