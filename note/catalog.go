package note

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/casualjim/notebus/internal/registry"
	"github.com/fogfish/opts"
)

// Catalog maps Go types and names to declared note types. Lookups are lock
// free; declarations are serialized and claim the name first, releasing it
// again when the Go type turns out to be taken.
type Catalog struct {
	mu     sync.Mutex
	byName registry.Registry[*Type]
	byGo   registry.Registry[*Type]
}

// NewCatalog creates a catalog that contains only Root.
func NewCatalog() *Catalog {
	c := &Catalog{
		byName: registry.New[*Type](),
		byGo:   registry.New[*Type](),
	}
	c.byName.Add(Root.name, Root)
	c.byGo.Add(goTypeKey(Root.goType), Root)
	return c
}

var defaultCatalog = NewCatalog()

// Default returns the process-wide catalog used by Declare and TypeOf.
func Default() *Catalog { return defaultCatalog }

// Declare registers T in the default catalog under name with the given parent.
// A nil parent means Root.
func Declare[T any](name string, parent *Type, options ...Option) (*Type, error) {
	return DeclareIn[T](defaultCatalog, name, parent, options...)
}

// DeclareIn registers T in c.
func DeclareIn[T any](c *Catalog, name string, parent *Type, options ...Option) (*Type, error) {
	return c.Declare(name, reflect.TypeFor[T](), parent, options...)
}

// MustDeclare is Declare for package level variables; it panics on error.
func MustDeclare[T any](name string, parent *Type, options ...Option) *Type {
	t, err := Declare[T](name, parent, options...)
	if err != nil {
		panic(err)
	}
	return t
}

// Declare registers goType under name. goType must be a named struct (or a
// pointer to one) that embeds the parent's struct unless the parent is Root.
func (c *Catalog) Declare(name string, goType reflect.Type, parent *Type, options ...Option) (*Type, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidType)
	}
	if goType == nil {
		return nil, fmt.Errorf("%w: %s has no Go type", ErrInvalidType, name)
	}
	for goType.Kind() == reflect.Pointer {
		goType = goType.Elem()
	}
	if goType.Kind() != reflect.Struct || goType.Name() == "" {
		return nil, fmt.Errorf("%w: %s must be a named struct, got %s", ErrInvalidType, name, goType)
	}

	if parent == nil {
		parent = Root
	}
	if registered, ok := c.byName.Get(parent.name); !ok || registered != parent {
		return nil, fmt.Errorf("%w: %s is not declared in this catalog", ErrInvalidParent, parent)
	}
	if parent != Root && !embeds(goType, parent.goType) {
		return nil, fmt.Errorf("%w: %s must embed %s", ErrInvalidParent, goType, parent.goType)
	}

	t := &Type{
		name:   name,
		parent: parent,
		goType: goType,
	}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}
	t.lineage = append([]*Type{t}, parent.lineage...)

	c.mu.Lock()
	defer c.mu.Unlock()
	claim := func() *Type { return t }
	if _, loaded := c.byName.GetOrAdd(name, claim); loaded {
		return nil, fmt.Errorf("%w: name %q", ErrDuplicateType, name)
	}
	if existing, loaded := c.byGo.GetOrAdd(goTypeKey(goType), claim); loaded {
		c.byName.Del(name)
		return nil, fmt.Errorf("%w: %s is already declared as %s", ErrDuplicateType, goType, existing)
	}
	return t, nil
}

// TypeOf resolves the note type of n.
func (c *Catalog) TypeOf(n Note) (*Type, error) {
	if n == nil {
		return nil, ErrNilNote
	}
	v := reflect.ValueOf(n)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, ErrNilNote
	}
	if typed, ok := n.(Typed); ok {
		if t := typed.NoteType(); t != nil {
			return t, nil
		}
	}

	rt := v.Type()
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if t, ok := c.byGo.Get(goTypeKey(rt)); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, rt)
}

// Lookup finds a type by its declared name.
func (c *Catalog) Lookup(name string) (*Type, bool) {
	return c.byName.Get(name)
}

// Types returns every declared type, Root included, ordered by name.
func (c *Catalog) Types() []*Type {
	return c.byName.Values()
}

// Len is the number of declared types, Root included.
func (c *Catalog) Len() int {
	return c.byName.Len()
}

// TypeOf resolves n against the default catalog.
func TypeOf(n Note) (*Type, error) {
	return defaultCatalog.TypeOf(n)
}

func goTypeKey(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
