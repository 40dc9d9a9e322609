package notebus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/slogx"
	"github.com/casualjim/notebus/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	"golang.org/x/sync/errgroup"
)

type pendingTask struct {
	sub  *Subscription
	task Task
}

// Emit delivers n to every handler subscribed to its type or one of its
// ancestors, most derived type first and in registration order within a type.
// A handler reached through several types runs once, at the most derived one.
//
// Sync handlers run inline. Tasks returned by async handlers run concurrently
// once every subscription has been visited; their responses follow the sync
// ones in the order the tasks were returned. The first failing task cancels
// the context of the others and Emit waits for all of them before returning.
//
// A filter or handler error aborts the emission: Emit returns a *HandlerError
// and no responses. An emission without matching subscribers is empty, not nil.
func (b *Bus) Emit(ctx context.Context, n note.Note, args ...Arg) (em *Emission, err error) {
	defer func() {
		if err != nil {
			b.hook.OnError(ctx, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := b.catalog.TypeOf(n)
	if err != nil {
		return nil, err
	}
	if err := note.Validate(n); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidNote, t, err)
	}
	env, err := newEnvelope(args)
	if err != nil {
		return nil, err
	}

	em = &Emission{
		ID:        uuidx.NewString(),
		Note:      n,
		Type:      t,
		StartedAt: strfmt.DateTime(time.Now()),
		responses: []Response{},
	}
	log := b.logger.With(slogx.EmissionID(em.ID), slogx.NoteType(t))
	b.hook.OnEmit(ctx, n, t)

	d := delivery{ctx: ctx, note: n, payload: env.payload, vars: env.vars}
	seen := make(map[*Handler]struct{})
	var pending []pendingTask

	for at := range t.Ancestry() {
		for _, sub := range b.registry.Lookup(at) {
			if _, dup := seen[sub.handler]; dup {
				log.Debug("already delivered", slogx.Handler(sub.handler.Name()), slog.String("level", at.Name()))
				continue
			}
			seen[sub.handler] = struct{}{}

			if sub.filter != nil {
				ok, err := sub.filter.match(d)
				if err != nil {
					return nil, &HandlerError{Subscription: sub, Stage: StageFilter, Err: err}
				}
				if !ok {
					continue
				}
			}

			start := time.Now()
			result, task, err := sub.handler.invoke(d)
			if err != nil {
				return nil, &HandlerError{Subscription: sub, Stage: StageHandler, Err: err}
			}
			if task != nil {
				pending = append(pending, pendingTask{sub: sub, task: task})
				continue
			}

			em.responses = append(em.responses, newResponse(sub, t, d, result, Sync, time.Since(start)))
		}
	}

	if len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		async, err := b.join(ctx, t, d, pending)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		em.responses = append(em.responses, async...)
	}

	log.Debug("emitted", slog.Int("responses", len(em.responses)), slog.Int("async", len(pending)))
	for _, r := range em.responses {
		b.hook.OnResponse(ctx, r)
	}
	b.hook.OnComplete(ctx, em)
	return em, nil
}

// join runs the tasks concurrently. Results land in submission order.
func (b *Bus) join(ctx context.Context, t *note.Type, d delivery, pending []pendingTask) ([]Response, error) {
	g, gctx := errgroup.WithContext(ctx)
	if b.maxConcurrency > 0 {
		g.SetLimit(b.maxConcurrency)
	}

	out := make([]Response, len(pending))
	for i, p := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tctx := gctx
			if b.handlerTimeout > 0 {
				var cancel context.CancelFunc
				tctx, cancel = context.WithTimeout(gctx, b.handlerTimeout)
				defer cancel()
			}

			start := time.Now()
			result, err := runTask(tctx, p.task)
			if err != nil {
				return &HandlerError{Subscription: p.sub, Stage: StageTask, Err: err}
			}
			out[i] = newResponse(p.sub, t, d, result, Async, time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func newResponse(sub *Subscription, t *note.Type, d delivery, result any, mode Mode, took time.Duration) Response {
	return Response{
		Handler:      sub.handler,
		Subscription: sub,
		Note:         d.note,
		Type:         t,
		Payload:      d.payload,
		Context:      d.vars,
		Result:       result,
		Mode:         mode,
		Duration:     took,
	}
}
