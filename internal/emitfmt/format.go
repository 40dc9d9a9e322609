// Package emitfmt renders emissions for terminals.
package emitfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/casualjim/notebus"
	"github.com/casualjim/notebus/pkg/jsonx"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
)

// Console writes one colored line per response, headed by the note.
func Console(w io.Writer, em *notebus.Emission) error {
	if _, err := fmt.Fprintf(w, "%s %s\n", color.CyanString("emit"), em.Type.Format(em.Note)); err != nil {
		return err
	}
	if em.Len() == 0 {
		_, err := fmt.Fprintln(w, color.HiBlackString("  no subscribers"))
		return err
	}
	for _, r := range em.All() {
		mode := color.GreenString(r.Mode.String())
		if r.Mode == notebus.Async {
			mode = color.YellowString(r.Mode.String())
		}
		if _, err := fmt.Fprintf(w, "  %s %s via %s: %s\n",
			color.MagentaString(r.Handler.Name()), mode, r.Subscription.Type(), jsonx.MustString(r.Result)); err != nil {
			return err
		}
	}
	return nil
}

// Markdown renders the emission as a markdown document.
func Markdown(em *notebus.Emission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", em.Type.Format(em.Note))
	fmt.Fprintf(&b, "emission `%s` at %s\n\n", em.ID, em.StartedAt)
	if em.Len() == 0 {
		b.WriteString("_no subscribers_\n")
		return b.String()
	}
	b.WriteString("| # | handler | type | mode | result |\n")
	b.WriteString("|---|---------|------|------|--------|\n")
	for i, r := range em.All() {
		fmt.Fprintf(&b, "| %d | `%s` | %s | %s | `%s` |\n",
			i, r.Handler.Name(), r.Subscription.Type(), r.Mode, strings.ReplaceAll(jsonx.MustString(r.Result), "|", `\|`))
	}
	if p := em.At(0).Payload; p.Len() > 0 {
		fmt.Fprintf(&b, "\npayload\n\n```json\n%s\n```\n", p)
	}
	return b.String()
}

// Renderer turns markdown into styled terminal output.
type Renderer struct {
	glam *glamour.TermRenderer
}

// NewRenderer creates a renderer. With auto set the style follows the
// terminal background, otherwise it is plain ASCII for files and pipes.
func NewRenderer(auto bool) (*Renderer, error) {
	style := glamour.WithStandardStyle("ascii")
	if auto {
		style = glamour.WithAutoStyle()
	}
	glam, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return nil, err
	}
	return &Renderer{glam: glam}, nil
}

func (r *Renderer) Render(w io.Writer, em *notebus.Emission) error {
	out, err := r.glam.Render(Markdown(em))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

type dumpedResponse struct {
	Handler string
	Type    string
	Mode    string
	Result  any
	Payload map[string]any
	Context notebus.ContextVars
}

// Dump pretty prints the Go values of the note and of every response.
func Dump(w io.Writer, em *notebus.Emission, colored bool) error {
	responses := make([]dumpedResponse, 0, em.Len())
	for _, r := range em.All() {
		responses = append(responses, dumpedResponse{
			Handler: r.Handler.Name(),
			Type:    r.Subscription.Type().Name(),
			Mode:    r.Mode.String(),
			Result:  r.Result,
			Payload: r.Payload.Map(),
			Context: r.Context,
		})
	}

	printer := pp.New()
	printer.SetColoringEnabled(colored)
	_, err := printer.Fprintln(w, em.Note, responses)
	return err
}
