package notebus

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/reflectx"
	"github.com/casualjim/notebus/pkg/uuidx"
)

// Subscription binds a handler and an optional filter to one note type.
// It never changes after registration.
type Subscription struct {
	id       string
	typ      *note.Type
	handler  *Handler
	filter   *Filter
	registry *Registry
}

func (s *Subscription) ID() string        { return s.id }
func (s *Subscription) Type() *note.Type  { return s.typ }
func (s *Subscription) Handler() *Handler { return s.handler }
func (s *Subscription) Filter() *Filter   { return s.filter }
func (s *Subscription) String() string {
	if s.filter == nil {
		return fmt.Sprintf("%s -> %s", s.typ, s.handler)
	}
	return fmt.Sprintf("%s -> %s where %s", s.typ, s.handler, s.filter)
}

// Unsubscribe removes the subscription from its registry. It reports whether
// the subscription was still registered.
func (s *Subscription) Unsubscribe() bool {
	return s.registry.remove(s)
}

// Registry holds subscriptions per note type, in registration order.
//
// Registration may happen at any time, also while notes are being emitted.
// Writers replace the slice of a type instead of appending in place, so a
// slice returned by Lookup is never modified afterwards.
type Registry struct {
	mu       sync.RWMutex
	byType   map[*note.Type][]*Subscription
	handlers map[uintptr]*Handler
}

func NewRegistry() *Registry {
	return &Registry{
		byType:   make(map[*note.Type][]*Subscription),
		handlers: make(map[uintptr]*Handler),
	}
}

// Register subscribes handler to notes of type t and its subtypes. handler is a
// *Handler or a function accepted by NewHandler; filter is nil, a *Filter or a
// function accepted by NewFilter.
//
// A declared function or method expression maps to one *Handler per registry,
// so registered under several types it is still called once per emission. Func
// literals and method values get a new *Handler on every call; wrap them with
// MustHandler to share one identity. Registering the same pair twice under one
// type is allowed and creates two subscriptions.
func (r *Registry) Register(t *note.Type, handler, filter any, options ...HandlerOption) (*Subscription, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil note type", ErrInvalidHandler)
	}

	var f *Filter
	if filter != nil {
		var err error
		if f, err = NewFilter(filter); err != nil {
			return nil, err
		}
	}
	if f != nil {
		if err := f.accepts(t); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, key, err := r.handlerFor(handler, options)
	if err != nil {
		return nil, err
	}
	if err := h.accepts(t); err != nil {
		return nil, err
	}
	if key != 0 {
		r.handlers[key] = h
	}

	sub := &Subscription{
		id:       uuidx.Prefixed("sub"),
		typ:      t,
		handler:  h,
		filter:   f,
		registry: r,
	}
	current := r.byType[t]
	next := make([]*Subscription, len(current), len(current)+1)
	copy(next, current)
	r.byType[t] = append(next, sub)
	return sub, nil
}

// handlerFor resolves the identity of handler. A declared function seen before
// maps to its earlier *Handler; a new one comes with the key to remember it
// under. Callers hold the write lock.
func (r *Registry) handlerFor(handler any, options []HandlerOption) (*Handler, uintptr, error) {
	switch h := handler.(type) {
	case *Handler:
		if h == nil {
			return nil, 0, fmt.Errorf("%w: nil handler", ErrInvalidHandler)
		}
		return h, 0, nil
	case nil:
		return nil, 0, fmt.Errorf("%w: nil handler", ErrInvalidHandler)
	}

	var key uintptr
	if reflectx.IsNamedFunction(handler) {
		key = reflectx.CodePointer(handler)
		if h, ok := r.handlers[key]; ok {
			return h, 0, nil
		}
	}
	h, err := NewHandler(handler, options...)
	if err != nil {
		return nil, 0, err
	}
	return h, key, nil
}

// Lookup returns the subscriptions registered exactly under t, in registration
// order. The returned slice must not be modified.
func (r *Registry) Lookup(t *note.Type) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t]
}

// Clear removes every subscription.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byType)
	clear(r.handlers)
}

// Count is the total number of subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, subs := range r.byType {
		n += len(subs)
	}
	return n
}

// Types returns the note types that have at least one subscription, by name.
func (r *Registry) Types() []*note.Type {
	r.mu.RLock()
	types := make([]*note.Type, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	r.mu.RUnlock()

	slices.SortFunc(types, func(a, b *note.Type) int { return strings.Compare(a.Name(), b.Name()) })
	return types
}

func (r *Registry) remove(sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.byType[sub.typ]
	i := slices.Index(current, sub)
	if i < 0 {
		return false
	}
	if len(current) == 1 {
		delete(r.byType, sub.typ)
	} else {
		r.byType[sub.typ] = slices.Concat(current[:i], current[i+1:])
	}
	r.forget(sub.handler)
	return true
}

// forget drops h from the identity cache once no subscription uses it.
// Callers hold the write lock.
func (r *Registry) forget(h *Handler) {
	for _, subs := range r.byType {
		if slices.ContainsFunc(subs, func(s *Subscription) bool { return s.handler == h }) {
			return
		}
	}
	maps.DeleteFunc(r.handlers, func(_ uintptr, cached *Handler) bool { return cached == h })
}
