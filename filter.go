package notebus

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/jsonx"
	"github.com/casualjim/notebus/pkg/reflectx"
)

var boolType = reflect.TypeFor[bool]()

// Filter decides whether a subscription receives a note. It takes the same
// leading parameters as a Handler and returns bool or (bool, error). A filter
// error aborts the emission.
type Filter struct {
	name       string
	fn         reflect.Value
	params     params
	returnsErr bool
	match      func(delivery) (bool, error)
	children   []*Filter
}

// NewFilter describes fn, failing with ErrInvalidFilter when its signature is not supported.
// A *Filter is returned as is; a nil *Filter yields nil, the filter that always matches.
func NewFilter(fn any) (*Filter, error) {
	if f, ok := fn.(*Filter); ok {
		return f, nil
	}
	sig, ok := reflectx.SignatureOf(fn)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a function", ErrInvalidFilter, fn)
	}
	if reflect.ValueOf(fn).IsNil() {
		return nil, fmt.Errorf("%w: nil function", ErrInvalidFilter)
	}

	p, err := parseParams(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	f := &Filter{
		name:   reflectx.FunctionName(fn),
		fn:     reflect.ValueOf(fn),
		params: p,
	}
	switch {
	case len(sig.Out) == 1 && sig.Out[0] == boolType:
	case len(sig.Out) == 2 && sig.Out[0] == boolType && sig.ReturnsError():
		f.returnsErr = true
	default:
		return nil, fmt.Errorf("%w: %s must return bool or (bool, error)", ErrInvalidFilter, sig.Type)
	}
	f.match = f.call
	return f, nil
}

// MustFilter is NewFilter for package level variables; it panics on error.
func MustFilter(fn any) *Filter {
	f, err := NewFilter(fn)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Filter) Name() string   { return f.name }
func (f *Filter) String() string { return f.name }

func (f *Filter) accepts(t *note.Type) error {
	if f.fn.IsValid() && !f.params.acceptsType(t) {
		return fmt.Errorf("%w: %s takes %s which cannot hold a %s note", ErrInvalidFilter, f.name, f.params.noteParam, t)
	}
	for _, c := range f.children {
		if err := c.accepts(t); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filter) call(d delivery) (bool, error) {
	args, err := f.params.args(d)
	if err != nil {
		return false, err
	}
	out, err := call(f.fn, args)
	if err != nil {
		return false, err
	}
	if f.returnsErr {
		if err := errorOf(out[1]); err != nil {
			return false, err
		}
	}
	return out[0].Bool(), nil
}

func builtin(name string, match func(delivery) (bool, error), children ...*Filter) *Filter {
	return &Filter{name: name, match: match, children: children}
}

// PayloadEquals matches when the gjson path in the payload holds v.
// Numbers compare by value.
func PayloadEquals(path string, v any) *Filter {
	return builtin(fmt.Sprintf("payload[%s]==%s", path, jsonx.MustString(v)), func(d delivery) (bool, error) {
		return jsonx.Equal(d.payload.Query(path), v), nil
	})
}

// PayloadExists matches when the gjson path in the payload is present.
func PayloadExists(path string) *Filter {
	return builtin(fmt.Sprintf("payload[%s]", path), func(d delivery) (bool, error) {
		return d.payload.Query(path).Exists(), nil
	})
}

// NoteMatches matches when the gjson path in the JSON form of the note holds v.
func NoteMatches(path string, v any) *Filter {
	return builtin(fmt.Sprintf("note[%s]==%s", path, jsonx.MustString(v)), func(d delivery) (bool, error) {
		return jsonx.Equal(jsonx.Query(d.note, path), v), nil
	})
}

// All matches when every filter matches. It stops at the first miss.
func All(filters ...*Filter) *Filter {
	return builtin(join("all", filters), func(d delivery) (bool, error) {
		for _, f := range filters {
			ok, err := f.match(d)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}, filters...)
}

// Any matches when at least one filter matches. It stops at the first hit.
func Any(filters ...*Filter) *Filter {
	return builtin(join("any", filters), func(d delivery) (bool, error) {
		for _, f := range filters {
			ok, err := f.match(d)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}, filters...)
}

func Not(f *Filter) *Filter {
	return builtin("not("+f.name+")", func(d delivery) (bool, error) {
		ok, err := f.match(d)
		return !ok && err == nil, err
	}, f)
}

func join(op string, filters []*Filter) string {
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = f.name
	}
	return op + "(" + strings.Join(names, ", ") + ")"
}
