// Package idarena implements the dense, id-as-position arena described in
// SPEC_FULL.md's DESIGN NOTES: every collection in the database is a
// []T indexed by its own id, and inserting at an existing id shifts every
// later element's id by one. Arena only owns the shift of its own
// collection; the store package is responsible for the accompanying
// database-wide pass that bumps every cross-collection reference to an
// id >= the insertion point (shiftReferences in internal/store/shift.go).
package idarena

import "encoding/json"

// Arena is a dense, id-addressed collection.
type Arena[T any] struct {
	items []T
}

// MarshalJSON encodes the arena as a plain JSON array, so a collection's
// snapshot file on disk is exactly the list of its items in id order.
func (a Arena[T]) MarshalJSON() ([]byte, error) {
	if a.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.items)
}

// UnmarshalJSON decodes a plain JSON array back into the arena.
func (a *Arena[T]) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &a.items)
}

// Clone returns a deep copy of the arena. cloneItem deep-copies a single
// element (map/pointer/slice fields an item holds are the caller's
// responsibility, since Arena itself has no visibility into T's shape).
func (a Arena[T]) Clone(cloneItem func(T) T) Arena[T] {
	out := make([]T, len(a.items))
	for i, it := range a.items {
		out[i] = cloneItem(it)
	}
	return Arena[T]{items: out}
}

// New builds an arena pre-populated with items, in order.
func New[T any](items ...T) Arena[T] {
	return Arena[T]{items: append([]T{}, items...)}
}

// Len returns the number of items.
func (a *Arena[T]) Len() int { return len(a.items) }

// Get returns the item at id, or false if id is out of range.
func (a *Arena[T]) Get(id int) (T, bool) {
	var zero T
	if id < 0 || id >= len(a.items) {
		return zero, false
	}
	return a.items[id], true
}

// All returns every item, in id order. The returned slice aliases the
// arena's backing array; callers must not mutate it in place.
func (a *Arena[T]) All() []T { return a.items }

// Last returns the highest-id item, or false if the arena is empty.
func (a *Arena[T]) Last() (T, bool) {
	var zero T
	if len(a.items) == 0 {
		return zero, false
	}
	return a.items[len(a.items)-1], true
}

// Append adds item at the next dense id, invoking setID with the assigned
// id, and returns that id.
func (a *Arena[T]) Append(item T, setID func(t *T, id int)) int {
	id := len(a.items)
	setID(&item, id)
	a.items = append(a.items, item)
	return id
}

// Overwrite replaces the item stored at id in place, used when Update
// detects an identity-timestamp match. Returns false if id is out of
// range.
func (a *Arena[T]) Overwrite(id int, item T) bool {
	if id < 0 || id >= len(a.items) {
		return false
	}
	a.items[id] = item
	return true
}

// InsertAt inserts item at id, shifting every later element's id (and
// in-arena position) up by one. Returns false if id is out of the
// [0, Len()] range.
func (a *Arena[T]) InsertAt(id int, item T, setID func(t *T, id int)) bool {
	if id < 0 || id > len(a.items) {
		return false
	}
	a.items = append(a.items, item)
	copy(a.items[id+1:], a.items[id:])
	a.items[id] = item
	for i := id; i < len(a.items); i++ {
		setID(&a.items[i], i)
	}
	return true
}
