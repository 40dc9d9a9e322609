// Package registry provides a concurrent, name-indexed store used by the note
// catalog to look up type descriptors without taking locks on the emit path.
package registry

import (
	"slices"
	"strings"

	"github.com/alphadose/haxmap"
)

type Registry[T any] interface {
	Get(name string) (T, bool)
	// Add stores value under name unless the name is taken. It reports whether
	// the value was stored.
	Add(name string, value T) bool
	GetOrAdd(name string, value func() T) (T, bool)
	Del(name string)
	Len() int
	// Values returns the stored values ordered by name.
	Values() []T
}

type registry[T any] struct {
	values *haxmap.Map[string, T]
}

func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

func (r *registry[T]) Add(name string, value T) bool {
	_, loaded := r.values.GetOrCompute(name, func() T { return value })
	return !loaded
}

func (r *registry[T]) GetOrAdd(name string, valueFn func() T) (T, bool) {
	return r.values.GetOrCompute(name, valueFn)
}

func (r *registry[T]) Del(name string) {
	r.values.Del(name)
}

func (r *registry[T]) Len() int {
	return int(r.values.Len())
}

func (r *registry[T]) Values() []T {
	type entry struct {
		name  string
		value T
	}
	entries := make([]entry, 0, r.values.Len())
	r.values.ForEach(func(name string, value T) bool {
		entries = append(entries, entry{name: name, value: value})
		return true
	})
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.name, b.name) })

	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}
