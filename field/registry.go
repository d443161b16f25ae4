package field

import "slices"

// Registry is an ordered membership list. It holds references only; the
// members' data lives with whoever owns them.
type Registry[T comparable] struct {
	items []T
}

// Add appends item. Adding a present item is a no-op and returns false.
func (r *Registry[T]) Add(item T) bool {
	if r.Contains(item) {
		return false
	}
	r.items = append(r.items, item)
	return true
}

// Remove deletes item, keeping the order of the rest. Removing an absent
// item is a no-op and returns false.
func (r *Registry[T]) Remove(item T) bool {
	i := slices.Index(r.items, item)
	if i < 0 {
		return false
	}
	r.items = slices.Delete(r.items, i, i+1)
	return true
}

// Contains reports whether item is a member.
func (r *Registry[T]) Contains(item T) bool {
	return slices.Contains(r.items, item)
}

// Len returns the member count.
func (r *Registry[T]) Len() int { return len(r.items) }

// Items returns the members in insertion order. The slice is only valid
// until the next Add or Remove.
func (r *Registry[T]) Items() []T { return r.items }

// Clear removes every member.
func (r *Registry[T]) Clear() { r.items = r.items[:0] }
