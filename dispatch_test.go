package notebus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casualjim/notebus/note"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_SubtypeDelivery(t *testing.T) {
	f := newFixture(t)

	var got []*Foo
	_, err := f.bus.Register(f.fooType, func(foo *Foo) { got = append(got, foo) }, nil)
	require.NoError(t, err)

	bar := &Bar{Foo: Foo{X: 1}, Y: 2}
	em, err := f.bus.Emit(context.Background(), bar)
	require.NoError(t, err)

	require.Equal(t, 1, em.Len())
	require.Len(t, got, 1)
	assert.Same(t, &bar.Foo, got[0])
	assert.Same(t, bar, em.At(0).Note)
	assert.Equal(t, f.barType, em.At(0).Type)
}

func TestEmit_Dedup(t *testing.T) {
	f := newFixture(t)

	var calls int
	handler := MustHandler(func(n note.Note) { calls++ })
	for _, typ := range []*note.Type{note.Root, f.fooType, f.barType} {
		_, err := f.bus.Register(typ, handler, nil)
		require.NoError(t, err)
	}

	em, err := f.bus.Emit(context.Background(), &Bar{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Equal(t, 1, em.Len())
	assert.Equal(t, f.barType, em.At(0).Subscription.Type(), "attributed to the most derived level")
}

func TestEmit_DedupDeclaredFunction(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []*note.Type{note.Root, f.fooType, f.barType} {
		_, err := f.bus.Register(typ, countDelivery, nil)
		require.NoError(t, err)
	}

	cv := ContextVars{}
	em, err := f.bus.Emit(context.Background(), &Bar{}, WithContext(cv))
	require.NoError(t, err)
	assert.Equal(t, 1, em.Len())
	assert.Equal(t, 1, cv["calls"])
}

func TestEmit_LiteralsRegisteredInALoopAreDistinct(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []*note.Type{f.fooType, f.barType} {
		_, err := f.bus.Register(typ, func(n any) string { return "seen" }, nil)
		require.NoError(t, err)
	}

	em, err := f.bus.Emit(context.Background(), &Bar{})
	require.NoError(t, err)
	assert.Equal(t, []any{"seen", "seen"}, em.Results())
}

func TestEmit_Hierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bus.Subscribe(note.Root).Must(func(n note.Note, p *Payload) string { return "root" })
	f.bus.Subscribe(f.fooType).Must(func(foo *Foo, p *Payload) string { return "foo" })
	f.bus.Subscribe(f.barType).Must(func(bar *Bar, p *Payload) string { return "bar" })

	em, err := f.bus.Emit(ctx, &Bar{Foo: Foo{X: 1}, Y: 2}, Put("extra", "bar"))
	require.NoError(t, err)
	require.Equal(t, 3, em.Len())
	assert.Equal(t, []any{"bar", "foo", "root"}, em.Results())
	for _, r := range em.All() {
		assert.Equal(t, map[string]any{"extra": "bar"}, r.Payload.Map())
	}

	em, err = f.bus.Emit(ctx, &Foo{X: 3}, Put("extra", "foo"))
	require.NoError(t, err)
	require.Equal(t, 2, em.Len())
	assert.Equal(t, []any{"foo", "root"}, em.Results())
	for _, r := range em.All() {
		assert.Equal(t, map[string]any{"extra": "foo"}, r.Payload.Map())
	}

	em, err = f.bus.Emit(ctx, note.Base{})
	require.NoError(t, err)
	require.Equal(t, 1, em.Len())
	assert.Equal(t, []any{"root"}, em.Results())
}

func TestEmit_FilteredCount(t *testing.T) {
	f := newFixture(t)

	_, err := f.bus.Register(f.counterType, func(c Counter, p *Payload) int { return c.Count }, nil, HandlerName("always"))
	require.NoError(t, err)
	_, err = f.bus.Register(f.counterType, func(c Counter, p *Payload) int { return c.Count }, PayloadEquals("count", 2), HandlerName("only_two"))
	require.NoError(t, err)

	var always, filtered []any
	for i := range 3 {
		em, err := f.bus.Emit(context.Background(), Counter{Count: i}, Put("count", i))
		require.NoError(t, err)
		for _, r := range em.All() {
			switch r.Handler.Name() {
			case "always":
				always = append(always, r.Result)
			case "only_two":
				filtered = append(filtered, r.Result)
			}
		}
	}
	assert.Equal(t, []any{0, 1, 2}, always)
	assert.Equal(t, []any{2}, filtered)
}

func TestEmit_FilterGating(t *testing.T) {
	f := newFixture(t)

	var calls int
	_, err := f.bus.Register(f.fooType, func(foo *Foo) { calls++ }, func(foo *Foo) bool { return foo.X > 0 })
	require.NoError(t, err)

	em, err := f.bus.Emit(context.Background(), &Foo{X: 0})
	require.NoError(t, err)
	assert.Zero(t, em.Len())
	assert.Zero(t, calls)

	em, err = f.bus.Emit(context.Background(), &Foo{X: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, em.Len())
	assert.Equal(t, 1, calls)
}

func TestEmit_DedupBeforeFilter(t *testing.T) {
	f := newFixture(t)

	var calls int
	handler := MustHandler(func(n note.Note) { calls++ })
	_, err := f.bus.Register(f.barType, handler, func(n note.Note) bool { return false })
	require.NoError(t, err)
	_, err = f.bus.Register(f.fooType, handler, nil)
	require.NoError(t, err)

	em, err := f.bus.Emit(context.Background(), &Bar{})
	require.NoError(t, err)
	assert.Zero(t, em.Len(), "a handler rejected at a derived level is not retried at an ancestor level")
	assert.Zero(t, calls)
}

func TestEmit_Arity(t *testing.T) {
	f := newFixture(t)

	type seen struct {
		note    note.Note
		payload *Payload
		vars    ContextVars
		args    int
	}
	var one, two, three seen
	f.bus.Subscribe(f.fooType).Must(func(n note.Note) { one = seen{note: n, args: 1} })
	f.bus.Subscribe(f.fooType).Must(func(n note.Note, p *Payload) { two = seen{note: n, payload: p, args: 2} })
	f.bus.Subscribe(f.fooType).Must(func(n note.Note, p *Payload, cv ContextVars) {
		three = seen{note: n, payload: p, vars: cv, args: 3}
	})

	foo := &Foo{X: 7}
	cv := ContextVars{"who": "me"}
	em, err := f.bus.Emit(context.Background(), foo, Put("k", "v"), WithContext(cv))
	require.NoError(t, err)
	require.Equal(t, 3, em.Len())

	assert.Equal(t, seen{note: foo, args: 1}, one)
	assert.Same(t, foo, two.note)
	assert.Equal(t, map[string]any{"k": "v"}, two.payload.Map())
	assert.Nil(t, two.vars)
	assert.Same(t, two.payload, three.payload)
	assert.Equal(t, cv, three.vars)
}

func TestEmit_ContextSharing(t *testing.T) {
	f := newFixture(t)

	f.bus.Subscribe(f.fooType).Must(func(n note.Note, p *Payload, cv ContextVars) {
		n2, _ := cv["n"].(int)
		cv["n"] = n2 + 1
	})
	var observed []int
	f.bus.Subscribe(note.Root).Must(func(n note.Note, p *Payload, cv ContextVars) {
		observed = append(observed, cv["n"].(int))
		p.Set("touched", true)
	})

	ctx := context.Background()
	_, err := f.bus.Emit(ctx, &Foo{})
	require.NoError(t, err)
	_, err = f.bus.Emit(ctx, &Foo{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, observed, "fresh context per emission")

	shared := ContextVars{}
	_, err = f.bus.Emit(ctx, &Foo{}, WithContext(shared))
	require.NoError(t, err)
	em, err := f.bus.Emit(ctx, &Foo{}, Put(ContextKey, shared))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2}, observed)
	assert.Equal(t, 2, shared["n"], "caller sees handler changes")

	touched, _ := em.At(0).Payload.Get("touched")
	assert.Equal(t, true, touched, "payload mutations are shared within an emission")
}

func TestEmit_EmptyEmission(t *testing.T) {
	f := newFixture(t)

	em, err := f.bus.Emit(context.Background(), Quiet{Msg: "hello"})
	require.NoError(t, err)
	require.NotNil(t, em)
	assert.Zero(t, em.Len())
	assert.Empty(t, em.Results())
	assert.NotNil(t, em.Responses())
	assert.Equal(t, "Emission(len=0, responses=[])", em.GoString())
}

func TestEmit_InvalidNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bus.Emit(ctx, nil)
	require.ErrorIs(t, err, ErrNilNote)

	_, err = f.bus.Emit(ctx, (*Foo)(nil))
	require.ErrorIs(t, err, ErrNilNote)

	_, err = f.bus.Emit(ctx, struct{ A int }{})
	require.ErrorIs(t, err, note.ErrUnknownType)

	_, err = f.bus.Emit(ctx, Checked{})
	require.ErrorIs(t, err, ErrInvalidNote)
	require.ErrorIs(t, err, errFixture)

	_, err = f.bus.Emit(ctx, Checked{Name: "ok"})
	require.NoError(t, err)

	_, err = f.bus.Emit(ctx, &Foo{}, Put(ContextKey, "nope"))
	require.ErrorIs(t, err, ErrInvalidContext)
}

func TestEmit_Failures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f fixture)
		stage  Stage
		target error
	}{
		{
			name: "handler error",
			setup: func(f fixture) {
				f.bus.Subscribe(f.fooType).Must(func(n note.Note) error { return errFixture })
			},
			stage:  StageHandler,
			target: errFixture,
		},
		{
			name: "handler panic",
			setup: func(f fixture) {
				f.bus.Subscribe(f.fooType).Must(func(n note.Note) { panic(errFixture) })
			},
			stage:  StageHandler,
			target: errFixture,
		},
		{
			name: "filter error",
			setup: func(f fixture) {
				f.bus.Subscribe(f.fooType, Where(func(n note.Note) (bool, error) { return false, errFixture })).Must(func(n note.Note) {})
			},
			stage:  StageFilter,
			target: errFixture,
		},
		{
			name: "task error",
			setup: func(f fixture) {
				f.bus.Subscribe(f.fooType).Must(func(n note.Note) Task {
					return func(context.Context) (any, error) { return nil, errFixture }
				})
			},
			stage:  StageTask,
			target: errFixture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var ran bool
			f.bus.Subscribe(note.Root).Must(func(n note.Note) string {
				ran = true
				return "ok"
			})
			tt.setup(f)

			em, err := f.bus.Emit(context.Background(), &Bar{})
			require.Nil(t, em, "no partial emission")
			require.ErrorIs(t, err, tt.target)

			var he *HandlerError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.stage, he.Stage)
			assert.Equal(t, f.fooType, he.Subscription.Type())
			if tt.stage != StageTask {
				assert.False(t, ran, "traversal stops at the failure")
			}
		})
	}
}

func TestEmit_AsyncOrder(t *testing.T) {
	f := newFixture(t)

	delayed := func(name string, d time.Duration) func(n note.Note) Task {
		return func(n note.Note) Task {
			return func(ctx context.Context) (any, error) {
				time.Sleep(d)
				return name, nil
			}
		}
	}
	f.bus.Subscribe(f.barType).Must(delayed("slow", 60*time.Millisecond))
	f.bus.Subscribe(f.barType).Must(func(n note.Note) string { return "sync-bar" })
	f.bus.Subscribe(f.fooType).Must(delayed("fast", time.Millisecond))
	f.bus.Subscribe(note.Root).Must(func(n note.Note) string { return "sync-root" })

	start := time.Now()
	em, err := f.bus.Emit(context.Background(), &Bar{})
	require.NoError(t, err)

	assert.Equal(t, []any{"sync-bar", "sync-root", "slow", "fast"}, em.Results())
	assert.Equal(t, Sync, em.At(0).Mode)
	assert.Equal(t, Async, em.At(2).Mode)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestEmit_AsyncRunsConcurrently(t *testing.T) {
	f := newFixture(t)

	var inFlight, peak atomic.Int32
	for range 4 {
		f.bus.Subscribe(f.fooType).Must(MustHandler(func(n note.Note) Task {
			return func(ctx context.Context) (any, error) {
				cur := inFlight.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				inFlight.Add(-1)
				return nil, nil
			}
		}))
	}

	em, err := f.bus.Emit(context.Background(), &Foo{})
	require.NoError(t, err)
	assert.Equal(t, 4, em.Len())
	assert.Greater(t, peak.Load(), int32(1))
}

func TestEmit_MaxConcurrency(t *testing.T) {
	f := newFixture(t, MaxConcurrency(1))

	var inFlight, peak atomic.Int32
	for range 3 {
		f.bus.Subscribe(f.fooType).Must(MustHandler(func(n note.Note) Task {
			return func(ctx context.Context) (any, error) {
				cur := inFlight.Add(1)
				if cur > peak.Load() {
					peak.Store(cur)
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil, nil
			}
		}))
	}

	_, err := f.bus.Emit(context.Background(), &Foo{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestEmit_AsyncFailureCancelsSiblings(t *testing.T) {
	f := newFixture(t)

	var cancelled atomic.Bool
	f.bus.Subscribe(f.fooType).Must(func(n note.Note) Task {
		return func(ctx context.Context) (any, error) {
			select {
			case <-ctx.Done():
				cancelled.Store(true)
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return "too late", nil
			}
		}
	})
	f.bus.Subscribe(f.fooType).Must(func(n note.Note) Task {
		return func(ctx context.Context) (any, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, errFixture
		}
	})

	start := time.Now()
	em, err := f.bus.Emit(context.Background(), &Foo{})
	require.Nil(t, em)
	require.ErrorIs(t, err, errFixture)
	assert.True(t, cancelled.Load(), "sibling saw the cancellation before Emit returned")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEmit_HandlerTimeout(t *testing.T) {
	f := newFixture(t, HandlerTimeout(20*time.Millisecond))

	f.bus.Subscribe(f.fooType).Must(func(n note.Note) Task {
		return func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
	})

	_, err := f.bus.Emit(context.Background(), &Foo{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmit_Cancellation(t *testing.T) {
	f := newFixture(t)

	t.Run("before traversal", func(t *testing.T) {
		var calls int
		f.bus.Subscribe(f.quietType).Must(func(q Quiet) { calls++ })

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.bus.Emit(ctx, Quiet{})
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})

	t.Run("during join", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var finished atomic.Bool
		f.bus.Subscribe(f.counterType).Must(func(c Counter) Task {
			return func(ctx context.Context) (any, error) {
				cancel()
				time.Sleep(10 * time.Millisecond)
				finished.Store(true)
				return "ignored the context", nil
			}
		})

		_, err := f.bus.Emit(ctx, Counter{})
		require.True(t, errors.Is(err, context.Canceled))
		assert.True(t, finished.Load(), "Emit waits for running tasks")
	})
}

func TestEmit_ContextInHandlers(t *testing.T) {
	f := newFixture(t)

	type key struct{}
	f.bus.Subscribe(f.fooType).Must(func(ctx context.Context, foo *Foo) any { return ctx.Value(key{}) })

	ctx := context.WithValue(context.Background(), key{}, "value")
	em, err := f.bus.Emit(ctx, &Foo{})
	require.NoError(t, err)
	assert.Equal(t, []any{"value"}, em.Results())
}

func TestDispatch(t *testing.T) {
	f := newFixture(t)

	var calls int
	f.bus.Subscribe(f.fooType).Must(func(foo *Foo) { calls++ })
	require.NoError(t, f.bus.Dispatch(context.Background(), &Bar{}))
	assert.Equal(t, 1, calls)

	f.bus.Subscribe(f.fooType).Must(func(foo *Foo) error { return errFixture })
	require.ErrorIs(t, f.bus.Dispatch(context.Background(), &Foo{}), errFixture)
}

func TestEmitAsync(t *testing.T) {
	f := newFixture(t)
	f.bus.Subscribe(f.fooType).Must(func(foo *Foo) int { return foo.X })

	fut := f.bus.EmitAsync(context.Background(), &Foo{X: 5})
	em, err := fut.Get()
	require.NoError(t, err)
	assert.Equal(t, []any{5}, em.Results())

	_, err = f.bus.EmitAsync(context.Background(), nil).Wait(context.Background())
	require.ErrorIs(t, err, ErrNilNote)
}
