package notebus

import (
	"fmt"
	"maps"
	"slices"

	"github.com/fogfish/opts"
)

// ContextKey is the reserved payload key that carries the context vars.
const ContextKey = "context"

type envelope struct {
	payload *Payload
	vars    ContextVars
}

// Arg adds data to an emission.
type Arg = opts.Option[envelope]

// Put adds key to the payload. The reserved key "context" sets the context vars
// instead and must hold ContextVars or map[string]any.
func Put(key string, value any) Arg {
	return opts.Type[envelope](func(e *envelope) error {
		return e.put(key, value)
	})
}

// Attach adds every entry of m to the payload, keys in sorted order.
func Attach(m map[string]any) Arg {
	return opts.Type[envelope](func(e *envelope) error {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if err := e.put(k, m[k]); err != nil {
				return err
			}
		}
		return nil
	})
}

// WithContext shares cv with every handler. Handler changes to cv are visible
// to the caller after Emit returns.
func WithContext(cv ContextVars) Arg {
	return opts.Type[envelope](func(e *envelope) error {
		return e.put(ContextKey, cv)
	})
}

func (e *envelope) put(key string, value any) error {
	if key != ContextKey {
		e.payload.Set(key, value)
		return nil
	}
	switch cv := value.(type) {
	case ContextVars:
		e.vars = cv
	case map[string]any:
		e.vars = ContextVars(cv)
	case nil:
		e.vars = nil
	default:
		return fmt.Errorf("%w: %q must be ContextVars or map[string]any, got %T", ErrInvalidContext, ContextKey, value)
	}
	return nil
}

func newEnvelope(args []Arg) (*envelope, error) {
	e := &envelope{payload: NewPayload()}
	if err := opts.Apply(e, args); err != nil {
		return nil, err
	}
	if e.vars == nil {
		e.vars = ContextVars{}
	}
	return e, nil
}
