package note

import "reflect"

// maxEmbedDepth bounds the walk through embedded fields.
const maxEmbedDepth = 16

// Upcast returns n as a value of Go type target. When n is not assignable to
// target directly, the embedded fields of n are searched for an ancestor view
// of that type. A pointer target taken from a note passed by value points to a
// copy of the embedded struct.
func Upcast(n Note, target reflect.Type) (reflect.Value, bool) {
	if n == nil {
		return reflect.Value{}, false
	}
	return upcast(reflect.ValueOf(n), target, 0)
}

func upcast(v reflect.Value, to reflect.Type, depth int) (reflect.Value, bool) {
	if depth > maxEmbedDepth {
		return reflect.Value{}, false
	}

	from := v.Type()
	if from.AssignableTo(to) {
		return v, true
	}

	switch {
	case from.Kind() == reflect.Struct && to == reflect.PointerTo(from):
		if v.CanAddr() {
			return v.Addr(), true
		}
		p := reflect.New(from)
		p.Elem().Set(v)
		return p, true
	case from.Kind() == reflect.Pointer && from.Elem() == to:
		if v.IsNil() {
			return reflect.Value{}, false
		}
		return v.Elem(), true
	}

	s := v
	if s.Kind() == reflect.Pointer {
		if s.IsNil() {
			return reflect.Value{}, false
		}
		s = s.Elem()
	}
	if s.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}

	st := s.Type()
	for i := range st.NumField() {
		f := st.Field(i)
		if !f.Anonymous || !f.IsExported() {
			continue
		}
		if out, ok := upcast(s.Field(i), to, depth+1); ok {
			return out, true
		}
	}
	return reflect.Value{}, false
}

// reachable is the type-level counterpart of upcast.
func reachable(from, to reflect.Type) bool {
	return reachableDepth(from, to, 0)
}

func reachableDepth(from, to reflect.Type, depth int) bool {
	if depth > maxEmbedDepth {
		return false
	}
	if from.AssignableTo(to) {
		return true
	}
	if from.Kind() == reflect.Struct && to == reflect.PointerTo(from) {
		return true
	}
	if from.Kind() == reflect.Pointer && from.Elem() == to {
		return true
	}

	s := from
	if s.Kind() == reflect.Pointer {
		s = s.Elem()
	}
	if s.Kind() != reflect.Struct {
		return false
	}
	for i := range s.NumField() {
		f := s.Field(i)
		if f.Anonymous && f.IsExported() && reachableDepth(f.Type, to, depth+1) {
			return true
		}
	}
	return false
}

// embeds reports whether child directly embeds parent by value or pointer.
func embeds(child, parent reflect.Type) bool {
	for i := range child.NumField() {
		f := child.Field(i)
		if !f.Anonymous {
			continue
		}
		if f.Type == parent || f.Type == reflect.PointerTo(parent) {
			return true
		}
	}
	return false
}
