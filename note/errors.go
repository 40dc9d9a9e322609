package note

import "errors"

var (
	// ErrNilNote is returned when a nil value is used as a note.
	ErrNilNote = errors.New("note is nil")
	// ErrUnknownType is returned when a value's Go type was never declared.
	ErrUnknownType = errors.New("unknown note type")
	// ErrDuplicateType is returned when a name or Go type is declared twice.
	ErrDuplicateType = errors.New("note type already declared")
	// ErrInvalidParent is returned when a declared type does not embed its parent.
	ErrInvalidParent = errors.New("invalid parent note type")
	// ErrInvalidType is returned when a declared Go type is not a named struct.
	ErrInvalidType = errors.New("invalid note type")
)
