package notebus

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/reflectx"
)

var (
	payloadType = reflect.TypeFor[*Payload]()
	varsType    = reflect.TypeFor[ContextVars]()
	taskType    = reflect.TypeFor[Task]()
)

// delivery is everything a filter or handler may ask for.
type delivery struct {
	ctx     context.Context
	note    note.Note
	payload *Payload
	vars    ContextVars
}

// params describes the leading parameters of a filter or handler:
// an optional context.Context, then the note, then optionally the payload and
// the context vars. Arity counts the note and what follows it.
type params struct {
	withContext bool
	arity       int
	noteParam   reflect.Type
	varsParam   reflect.Type
}

func parseParams(sig reflectx.Signature) (params, error) {
	if sig.Variadic {
		return params{}, fmt.Errorf("variadic %s is not supported", sig.Type)
	}

	in := sig.In
	var p params
	if len(in) > 0 && reflectx.Is[context.Context](in[0]) {
		p.withContext = true
		in = in[1:]
	}

	switch {
	case len(in) == 0:
		return params{}, fmt.Errorf("%s takes no note parameter", sig.Type)
	case len(in) > 3:
		return params{}, fmt.Errorf("%s takes %d parameters, at most 3 are supported (note, payload, context)", sig.Type, len(in))
	}
	p.arity = len(in)
	p.noteParam = in[0]

	if p.arity > 1 && !reflectx.Is[*Payload](in[1]) {
		return params{}, fmt.Errorf("second parameter of %s must be %s, got %s", sig.Type, payloadType, in[1])
	}
	if p.arity > 2 {
		if !reflectx.Is[ContextVars](in[2]) && !reflectx.Is[map[string]any](in[2]) {
			return params{}, fmt.Errorf("third parameter of %s must be %s, got %s", sig.Type, varsType, in[2])
		}
		p.varsParam = in[2]
	}
	return p, nil
}

// acceptsType reports whether every note of type t can be passed as the note parameter.
func (p params) acceptsType(t *note.Type) bool {
	return t.Accepts(p.noteParam)
}

func (p params) args(d delivery) ([]reflect.Value, error) {
	args := make([]reflect.Value, 0, p.arity+1)
	if p.withContext {
		args = append(args, reflect.ValueOf(&d.ctx).Elem())
	}

	nv, ok := note.Upcast(d.note, p.noteParam)
	if !ok {
		return nil, fmt.Errorf("%w: %T cannot be delivered as %s", ErrInvalidNote, d.note, p.noteParam)
	}
	args = append(args, nv)

	if p.arity > 1 {
		args = append(args, reflect.ValueOf(d.payload))
	}
	if p.arity > 2 {
		args = append(args, reflect.ValueOf(d.vars).Convert(p.varsParam))
	}
	return args, nil
}

// call invokes fn, turning a panic into a *PanicError.
func call(fn reflect.Value, args []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &PanicError{Value: r, Stack: stack()}
		}
	}()
	return fn.Call(args), nil
}

func errorOf(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func isTaskType(t reflect.Type) bool {
	return t.Kind() == reflect.Func && t.ConvertibleTo(taskType)
}

func stack() []byte {
	return debug.Stack()
}
