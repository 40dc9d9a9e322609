// Package note describes the type hierarchy of notes delivered by the bus.
//
// A note is any Go value whose struct type has been declared in a Catalog. Each
// declaration names a parent type, so types form a single-inheritance chain that
// ends at Root. The chain is computed once when the type is declared and is
// exposed most-derived first:
//
//	type Foo struct {
//	    Foo int `json:"foo"`
//	}
//
//	type Bar struct {
//	    Foo
//	    Bar int `json:"bar"`
//	}
//
//	var (
//	    FooType = note.MustDeclare[Foo]("Foo", nil)      // parent Root
//	    BarType = note.MustDeclare[Bar]("Bar", FooType)  // Bar must embed Foo
//	)
//
//	for t := range BarType.Ancestry() {
//	    fmt.Println(t.Name()) // Bar, Foo, Note
//	}
//
// Go has no subclassing, so a subtype embeds its parent's struct. Upcast uses
// that embedding to hand a Bar to code that expects a Foo or *Foo.
//
// Field schemas are reflected with github.com/invopop/jsonschema, and a note
// that implements Validator is checked before it is emitted.
package note
