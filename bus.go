package notebus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/reflectx"
	"github.com/casualjim/notebus/pkg/slogx"
	"github.com/fogfish/opts"
)

// Bus delivers notes to the handlers subscribed to their type or any ancestor type.
// A Bus is safe for concurrent use; subscriptions may change while notes are
// being emitted.
type Bus struct {
	name           string
	catalog        *note.Catalog
	registry       *Registry
	logger         *slog.Logger
	hook           Hook
	maxConcurrency int
	handlerTimeout time.Duration
}

// Option configures a Bus.
type Option = opts.Option[Bus]

var (
	// Name labels the bus in log output.
	Name = opts.ForName[Bus, string]("name")

	// WithLogger sets the logger, slog.Default by default.
	WithLogger = opts.ForName[Bus, *slog.Logger]("logger")

	// MaxConcurrency bounds the number of async tasks of one emission that run
	// at the same time. Zero means no bound.
	MaxConcurrency = opts.ForName[Bus, int]("maxConcurrency")

	// HandlerTimeout bounds each async task. Zero means no timeout.
	HandlerTimeout = opts.ForName[Bus, time.Duration]("handlerTimeout")

	// WithCatalog resolves note types against c instead of note.Default().
	WithCatalog = opts.ForName[Bus, *note.Catalog]("catalog")

	// WithRegistry shares a subscription registry between buses.
	WithRegistry = opts.ForName[Bus, *Registry]("registry")
)

// WithHook adds a hook. Hooks added more than once are called in order.
func WithHook(h Hook) Option {
	return opts.Type[Bus](func(b *Bus) error {
		if h == nil {
			return errors.New("hook is required")
		}
		if b.hook == nil {
			b.hook = h
			return nil
		}
		b.hook = CompositeHook{b.hook, h}
		return nil
	})
}

// New creates a bus.
func New(options ...Option) (*Bus, error) {
	b := &Bus{name: "notebus"}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}

	var err error
	if b.maxConcurrency < 0 {
		err = errors.Join(err, fmt.Errorf("max concurrency must not be negative, got %d", b.maxConcurrency))
	}
	if b.handlerTimeout < 0 {
		err = errors.Join(err, fmt.Errorf("handler timeout must not be negative, got %s", b.handlerTimeout))
	}
	if err != nil {
		return nil, err
	}

	if b.catalog == nil {
		b.catalog = note.Default()
	}
	if b.registry == nil {
		b.registry = NewRegistry()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With(slogx.LoggerName(b.name))
	if b.hook == nil {
		b.hook = noopHook{}
	}
	return b, nil
}

func (b *Bus) Name() string           { return b.name }
func (b *Bus) Catalog() *note.Catalog { return b.catalog }
func (b *Bus) Registry() *Registry    { return b.registry }
func (b *Bus) Logger() *slog.Logger   { return b.logger }

// Register subscribes handler to notes of type t and its subtypes, gated by
// filter when it is not nil. See Registry.Register for the accepted shapes.
func (b *Bus) Register(t *note.Type, handler, filter any, options ...HandlerOption) (*Subscription, error) {
	sub, err := b.registry.Register(t, handler, filter, options...)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("subscribed",
		slogx.NoteType(t),
		slogx.Handler(sub.handler.Name()),
		slog.String("func", reflectx.QualifiedName(sub.handler.Func())),
	)
	return sub, nil
}

// Registrar registers a handler with the settings captured by Subscribe.
type Registrar func(handler any) (*Subscription, error)

// Must registers handler and panics on error.
func (r Registrar) Must(handler any) *Subscription {
	sub, err := r(handler)
	if err != nil {
		panic(err)
	}
	return sub
}

type subscribeConfig struct {
	filter  any
	options []HandlerOption
}

// SubscribeOption configures Subscribe.
type SubscribeOption = opts.Option[subscribeConfig]

// Where gates the subscription with a filter.
var Where = opts.ForName[subscribeConfig, any]("filter")

// Named sets the handler name.
func Named(name string) SubscribeOption {
	return opts.Type[subscribeConfig](func(c *subscribeConfig) error {
		c.options = append(c.options, HandlerName(name))
		return nil
	})
}

// Subscribe returns a Registrar for t. It is equivalent to Register and is
// convenient when the handler is written inline:
//
//	bus.Subscribe(BarType, notebus.Where(isAdmin))(func(b *Bar, p *notebus.Payload) string {
//		return "seen"
//	})
func (b *Bus) Subscribe(t *note.Type, options ...SubscribeOption) Registrar {
	var cfg subscribeConfig
	cfgErr := opts.Apply(&cfg, options)
	return func(handler any) (*Subscription, error) {
		if cfgErr != nil {
			return nil, cfgErr
		}
		return b.Register(t, handler, cfg.filter, cfg.options...)
	}
}

// Clear removes every subscription of the bus registry.
func (b *Bus) Clear() {
	b.registry.Clear()
	b.logger.Debug("subscriptions cleared")
}

// Dispatch emits n and discards the emission, keeping only the error.
func (b *Bus) Dispatch(ctx context.Context, n note.Note, args ...Arg) error {
	_, err := b.Emit(ctx, n, args...)
	return err
}

// EmitAsync runs Emit on its own goroutine.
func (b *Bus) EmitAsync(ctx context.Context, n note.Note, args ...Arg) Future[*Emission] {
	f := NewFuture[*Emission]()
	go func() {
		em, err := b.Emit(ctx, n, args...)
		if err != nil {
			f.Error(err)
			return
		}
		f.Complete(em)
	}()
	return f
}

var defaultBus = sync.OnceValue(func() *Bus {
	b, err := New(Name("default"))
	if err != nil {
		panic(err)
	}
	return b
})

// Default returns the process-wide bus backed by the default note catalog.
func Default() *Bus { return defaultBus() }

// Subscribe is Default().Subscribe.
func Subscribe(t *note.Type, options ...SubscribeOption) Registrar {
	return Default().Subscribe(t, options...)
}

// Register is Default().Register.
func Register(t *note.Type, handler, filter any, options ...HandlerOption) (*Subscription, error) {
	return Default().Register(t, handler, filter, options...)
}

// Emit is Default().Emit.
func Emit(ctx context.Context, n note.Note, args ...Arg) (*Emission, error) {
	return Default().Emit(ctx, n, args...)
}

// Dispatch is Default().Dispatch.
func Dispatch(ctx context.Context, n note.Note, args ...Arg) error {
	return Default().Dispatch(ctx, n, args...)
}

// Clear is Default().Clear.
func Clear() { Default().Clear() }
