package notebus

import (
	"context"
	"fmt"
	"reflect"

	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/reflectx"
	"github.com/fogfish/opts"
)

// Task is the pending work returned by an async handler. The bus runs every
// task of an emission concurrently and waits for all of them before Emit
// returns. The context is cancelled when a sibling task fails or the caller's
// context is done.
type Task func(context.Context) (any, error)

// Mode tells how the result of a handler is produced.
type Mode int

const (
	// Sync handlers run inline, in subscription order.
	Sync Mode = iota
	// Async handlers return a Task that is scheduled after traversal.
	Async
)

func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Async:
		return "async"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

type resultShape uint8

const (
	resultNone resultShape = iota
	resultValue
	resultErr
	resultValueErr
	resultTask
	resultTaskErr
)

// Handler is a subscriber function described once, when it is registered.
//
// Supported shapes, where N is the note parameter and ctx is optional:
//
//	func([ctx context.Context,] N)
//	func([ctx context.Context,] N, *Payload)
//	func([ctx context.Context,] N, *Payload, ContextVars)
//
// returning one of (), (R), (error), (R, error) for a sync handler, or
// (Task), (Task, error) for an async one. N is any, an interface, or the Go
// type of the subscribed note type (value or pointer) or one of its ancestors.
//
// A *Handler is its own identity: a note is delivered at most once to the same
// *Handler per emission, however many of its types it is subscribed to.
type Handler struct {
	name    string
	fn      reflect.Value
	raw     any
	params  params
	results resultShape
}

// HandlerOption configures a handler when it is created.
type HandlerOption = opts.Option[Handler]

// HandlerName overrides the name derived from the function.
var HandlerName = opts.ForName[Handler, string]("name")

// NewHandler describes fn, failing with ErrInvalidHandler when its signature is not supported.
func NewHandler(fn any, options ...HandlerOption) (*Handler, error) {
	sig, ok := reflectx.SignatureOf(fn)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a function", ErrInvalidHandler, fn)
	}
	if reflect.ValueOf(fn).IsNil() {
		return nil, fmt.Errorf("%w: nil function", ErrInvalidHandler)
	}

	p, err := parseParams(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandler, err)
	}
	shape, err := handlerResults(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandler, err)
	}

	h := &Handler{
		name:    reflectx.FunctionName(fn),
		fn:      reflect.ValueOf(fn),
		raw:     fn,
		params:  p,
		results: shape,
	}
	if err := opts.Apply(h, options); err != nil {
		return nil, err
	}
	return h, nil
}

// MustHandler is NewHandler for package level variables; it panics on error.
func MustHandler(fn any, options ...HandlerOption) *Handler {
	h, err := NewHandler(fn, options...)
	if err != nil {
		panic(err)
	}
	return h
}

func handlerResults(sig reflectx.Signature) (resultShape, error) {
	out := sig.Out
	switch len(out) {
	case 0:
		return resultNone, nil
	case 1:
		switch {
		case out[0] == reflectx.ErrorType:
			return resultErr, nil
		case isTaskType(out[0]):
			return resultTask, nil
		default:
			return resultValue, nil
		}
	case 2:
		if !sig.ReturnsError() {
			return 0, fmt.Errorf("second result of %s must be error, got %s", sig.Type, out[1])
		}
		if isTaskType(out[0]) {
			return resultTaskErr, nil
		}
		return resultValueErr, nil
	default:
		return 0, fmt.Errorf("%s returns %d results, at most 2 are supported", sig.Type, len(out))
	}
}

func (h *Handler) Name() string { return h.name }

// Arity is the number of note, payload and context parameters the handler takes.
func (h *Handler) Arity() int { return h.params.arity }

func (h *Handler) Mode() Mode {
	if h.results == resultTask || h.results == resultTaskErr {
		return Async
	}
	return Sync
}

// NoteParam is the Go type of the note parameter.
func (h *Handler) NoteParam() reflect.Type { return h.params.noteParam }

// Func returns the function the handler was built from.
func (h *Handler) Func() any { return h.raw }

func (h *Handler) String() string { return h.name }

func (h *Handler) accepts(t *note.Type) error {
	if !h.params.acceptsType(t) {
		return fmt.Errorf("%w: %s takes %s which cannot hold a %s note", ErrInvalidHandler, h.name, h.params.noteParam, t)
	}
	return nil
}

// invoke runs the handler. A sync handler yields its result, an async one the
// task to schedule.
func (h *Handler) invoke(d delivery) (any, Task, error) {
	args, err := h.params.args(d)
	if err != nil {
		return nil, nil, err
	}
	out, err := call(h.fn, args)
	if err != nil {
		return nil, nil, err
	}

	switch h.results {
	case resultValue:
		return out[0].Interface(), nil, nil
	case resultErr:
		return nil, nil, errorOf(out[0])
	case resultValueErr:
		if err := errorOf(out[1]); err != nil {
			return nil, nil, err
		}
		return out[0].Interface(), nil, nil
	case resultTask:
		return nil, taskOf(out[0]), nil
	case resultTaskErr:
		if err := errorOf(out[1]); err != nil {
			return nil, nil, err
		}
		return nil, taskOf(out[0]), nil
	default:
		return nil, nil, nil
	}
}

// taskOf converts a returned func into a Task. A nil func completes with no result.
func taskOf(v reflect.Value) Task {
	if v.IsNil() {
		return func(context.Context) (any, error) { return nil, nil }
	}
	return v.Convert(taskType).Interface().(Task)
}

// runTask executes t, turning a panic into a *PanicError.
func runTask(ctx context.Context, t Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{Value: r, Stack: stack()}
		}
	}()
	return t(ctx)
}
