/*
Package notebus is an in-process, typed publish/subscribe bus.

A producer builds a note, a value of a type declared in a note.Catalog, and
emits it. The bus hands the note to every handler subscribed to the note's
type or to any of its ancestor types, optionally gated by a filter, and
collects what the handlers return into an Emission.

# Declaring notes

Note types form a single-inheritance hierarchy rooted at note.Root. A subtype
embeds its parent's struct:

	type Foo struct {
		X int `json:"foo"`
	}

	type Bar struct {
		Foo
		Y int `json:"bar"`
	}

	var (
		FooType = note.MustDeclare[Foo]("Foo", nil)
		BarType = note.MustDeclare[Bar]("Bar", FooType)
	)

# Subscribing

Handlers take the note, and optionally the emission's *Payload and
ContextVars. A handler subscribed to Foo receives Bar notes as well; when its
parameter is *Foo it gets a pointer to the Foo embedded in the Bar.

	bus, _ := notebus.New()

	bus.Register(FooType, func(f *Foo, p *notebus.Payload) string {
		return fmt.Sprintf("foo=%d", f.X)
	}, nil)

	bus.Subscribe(BarType, notebus.Where(notebus.PayloadEquals("user", "bob")))(
		func(ctx context.Context, b *Bar) notebus.Task {
			return func(ctx context.Context) (any, error) {
				return lookup(ctx, b.Y)
			}
		},
	)

A handler that returns a Task is async: the bus schedules the task after
visiting every subscription and waits for it before Emit returns.

# Emitting

	em, err := bus.Emit(ctx, &Bar{Foo: Foo{X: 1}, Y: 2}, notebus.Put("user", "bob"))
	for _, r := range em.All() {
		fmt.Println(r)
	}

Each emission gets a fresh Payload and, unless the caller passes its own
through WithContext or the "context" key, a fresh ContextVars. Both are shared
by all handlers of that emission, in delivery order.

# Failure

Filters and handlers may return an error or panic. Either aborts the emission:
Emit returns a *HandlerError describing the subscription and stage, and no
partial Emission. Async tasks that are already running observe a cancelled
context and are waited for.
*/
package notebus
