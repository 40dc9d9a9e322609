package notebus

import (
	"errors"
	"fmt"

	"github.com/casualjim/notebus/note"
)

var (
	// ErrInvalidHandler is returned at registration when a handler has an unsupported signature.
	ErrInvalidHandler = errors.New("invalid handler")
	// ErrInvalidFilter is returned at registration when a filter has an unsupported signature.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidNote is returned when a note fails its own validation or cannot
	// be delivered to a handler's parameter type.
	ErrInvalidNote = errors.New("invalid note")
	// ErrInvalidContext is returned when the reserved "context" payload key
	// holds something other than ContextVars or map[string]any.
	ErrInvalidContext = errors.New("invalid context")
	ErrNilNote        = note.ErrNilNote
)

// Stage names the step of a delivery that failed.
type Stage string

const (
	StageFilter  Stage = "filter"
	StageHandler Stage = "handler"
	StageTask    Stage = "task"
)

// HandlerError wraps a failure raised while delivering a note to one subscription.
type HandlerError struct {
	Subscription *Subscription
	Stage        Stage
	Err          error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s %s for %s failed: %v", e.Subscription.Handler().Name(), e.Stage, e.Subscription.Type(), e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered panic from a filter, handler or task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
