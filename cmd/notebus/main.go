package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/casualjim/notebus"
	"github.com/casualjim/notebus/internal/config"
	"github.com/casualjim/notebus/internal/emitfmt"
	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/slogx"
	"github.com/mattn/go-isatty"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

type Order struct {
	ID    string  `json:"id"`
	Total float64 `json:"total"`
}

type PaidOrder struct {
	Order
	Method string `json:"method"`
}

type RefundedOrder struct {
	PaidOrder
	Reason string `json:"reason"`
}

var (
	orderType    = note.MustDeclare[Order]("Order", nil, note.Description("an order was placed"))
	paidType     = note.MustDeclare[PaidOrder]("PaidOrder", orderType, note.Description("an order was paid"))
	refundedType = note.MustDeclare[RefundedOrder]("RefundedOrder", paidType, note.Description("a paid order was refunded"))
)

func setupLogging(level slog.Level) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
}

// audit is subscribed to several levels of the hierarchy and still runs once per note.
func audit(n note.Note, p *notebus.Payload, cv notebus.ContextVars) string {
	seen, _ := cv["audited"].(int)
	cv["audited"] = seen + 1
	return fmt.Sprintf("audited by %v", p.Query("actor"))
}

func subscribe(bus *notebus.Bus) error {
	registrations := []struct {
		typ     *note.Type
		handler any
		filter  any
	}{
		{note.Root, audit, nil},
		{orderType, audit, nil},
		{orderType, func(o *Order) float64 { return o.Total }, nil},
		{paidType, func(ctx context.Context, o *PaidOrder) notebus.Task {
			return func(ctx context.Context) (any, error) {
				select {
				case <-time.After(20 * time.Millisecond):
					return "receipt sent for " + o.ID, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}, nil},
		{paidType, func(o PaidOrder, p *notebus.Payload) string {
			return "fraud review for " + o.Method
		}, notebus.All(notebus.NoteMatches("method", "card"), notebus.PayloadExists("risk"))},
		{refundedType, func(r *RefundedOrder) string { return "refunded: " + r.Reason }, nil},
	}

	for _, reg := range registrations {
		if _, err := bus.Register(reg.typ, reg.handler, reg.filter); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context) error {
	envFile := flag.String("env", ".env", "optional .env file with NOTEBUS_* settings")
	markdown := flag.Bool("markdown", false, "render emissions as markdown")
	dump := flag.Bool("dump", false, "pretty print emission values")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	bus, err := notebus.New(cfg.BusOptions(slog.Default())...)
	if err != nil {
		return err
	}
	if err := subscribe(bus); err != nil {
		return err
	}

	tty := isatty.IsTerminal(os.Stdout.Fd())
	renderer, err := emitfmt.NewRenderer(tty)
	if err != nil {
		return err
	}

	shared := notebus.ContextVars{}
	notes := []note.Note{
		&Order{ID: "o-1", Total: 12.5},
		&PaidOrder{Order: Order{ID: "o-2", Total: 30}, Method: "card"},
		&RefundedOrder{PaidOrder: PaidOrder{Order: Order{ID: "o-3", Total: 8}, Method: "cash"}, Reason: "damaged"},
		note.Base{},
	}
	for _, n := range notes {
		em, err := bus.Emit(ctx, n,
			notebus.Put("actor", "cli"),
			notebus.Put("risk", "high"),
			notebus.WithContext(shared),
		)
		if err != nil {
			return err
		}

		switch {
		case *dump:
			err = emitfmt.Dump(os.Stdout, em, tty)
		case *markdown:
			err = renderer.Render(os.Stdout, em)
		default:
			err = emitfmt.Console(os.Stdout, em)
		}
		if err != nil {
			return err
		}
	}

	slog.Info("done", slog.Any("context", shared), slog.Int("types", len(bus.Registry().Types())))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("notebus failed", slogx.Error(err))
		os.Exit(1)
	}
}
