package note

import (
	"iter"
	"reflect"
	"slices"
	"sync"

	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
)

// Note is a value delivered by the bus. The concrete Go type decides the note
// type through a Catalog lookup, or through Typed when the value implements it.
type Note any

// Typed is implemented by notes that report their own type instead of being
// resolved by Go type. A struct that embeds a Typed note must override
// NoteType, otherwise it reports its parent's type.
type Typed interface {
	NoteType() *Type
}

// Validator is implemented by notes that check their own fields.
type Validator interface {
	Validate() error
}

// Base is the Go type of Root. Embedding it is optional.
type Base struct{}

// Root is the common ancestor of every declared note type.
var Root = newRoot()

func newRoot() *Type {
	t := &Type{
		name:        "Note",
		goType:      reflect.TypeFor[Base](),
		description: "root of the note hierarchy",
	}
	t.lineage = []*Type{t}
	return t
}

// Type is an immutable descriptor of a note type.
type Type struct {
	name        string
	description string
	parent      *Type
	goType      reflect.Type
	lineage     []*Type

	schemaOnce sync.Once
	schema     *jsonschema.Schema
}

// Option configures a Type at declaration.
type Option = opts.Option[Type]

// Description sets the human readable description, also used as the schema description.
var Description = opts.ForName[Type, string]("description")

func (t *Type) Name() string         { return t.name }
func (t *Type) Description() string  { return t.description }
func (t *Type) GoType() reflect.Type { return t.goType }

// Parent returns the direct ancestor, nil for Root.
func (t *Type) Parent() *Type { return t.parent }

// Depth is the number of ancestors between t and Root; Root has depth 0.
func (t *Type) Depth() int { return len(t.lineage) - 1 }

// Lineage returns t followed by all of its ancestors, ending at Root.
func (t *Type) Lineage() []*Type {
	return slices.Clone(t.lineage)
}

// Ancestry iterates the lineage without copying it.
func (t *Type) Ancestry() iter.Seq[*Type] {
	return slices.Values(t.lineage)
}

// Is reports whether t is other or one of its subtypes.
func (t *Type) Is(other *Type) bool {
	if t == nil || other == nil {
		return false
	}
	return slices.Contains(t.lineage, other)
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.name
}

// Accepts reports whether a value of Go type in can be obtained from any note
// of type t, either directly or through an embedded ancestor.
func (t *Type) Accepts(in reflect.Type) bool {
	if in.Kind() == reflect.Interface && in.NumMethod() == 0 {
		return true
	}
	if t.goType == nil {
		return false
	}
	return reachable(t.goType, in) || reachable(reflect.PointerTo(t.goType), in)
}
