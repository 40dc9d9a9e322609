package notebus

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/jsonx"
	"github.com/go-openapi/strfmt"
	"github.com/goccy/go-json"
)

// Response is the outcome of delivering one note to one handler.
type Response struct {
	Handler      *Handler
	Subscription *Subscription
	Note         note.Note
	Type         *note.Type
	Payload      *Payload
	Context      ContextVars
	// Result is what the handler returned; nil when it returns nothing.
	Result   any
	Mode     Mode
	Duration time.Duration
}

// String renders the response as: Response from `handler` to Bar(foo=1): "result".
func (r Response) String() string {
	return fmt.Sprintf("Response from `%s` to %s: %s", r.Handler.Name(), r.Type.Format(r.Note), formatResult(r.Result))
}

func (r Response) GoString() string {
	return fmt.Sprintf("<Response handler=%s note=%s result=%s>", r.Handler.Name(), r.Type.Format(r.Note), formatResult(r.Result))
}

func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Handler  string      `json:"handler"`
		Type     string      `json:"type"`
		Note     note.Note   `json:"note"`
		Payload  *Payload    `json:"payload"`
		Context  ContextVars `json:"context"`
		Result   any         `json:"result"`
		Mode     string      `json:"mode"`
		Duration string      `json:"duration"`
	}{
		Handler:  r.Handler.Name(),
		Type:     r.Type.Name(),
		Note:     r.Note,
		Payload:  r.Payload,
		Context:  r.Context,
		Result:   r.Result,
		Mode:     r.Mode.String(),
		Duration: r.Duration.String(),
	})
}

func formatResult(v any) string {
	switch r := v.(type) {
	case nil:
		return "null"
	case fmt.Stringer:
		return fmt.Sprintf("%q", r.String())
	default:
		return jsonx.MustString(v)
	}
}

// Emission is the ordered set of responses produced by one Emit call:
// responses of sync handlers in traversal order, followed by those of async
// handlers in the order their tasks were scheduled.
type Emission struct {
	ID        string
	Note      note.Note
	Type      *note.Type
	StartedAt strfmt.DateTime
	responses []Response
}

func (e *Emission) Len() int {
	if e == nil {
		return 0
	}
	return len(e.responses)
}

// At returns the i-th response. It panics when i is out of range.
func (e *Emission) At(i int) Response {
	return e.responses[i]
}

// All iterates the responses with their index.
func (e *Emission) All() iter.Seq2[int, Response] {
	return func(yield func(int, Response) bool) {
		if e == nil {
			return
		}
		for i, r := range e.responses {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Responses returns a copy of the responses.
func (e *Emission) Responses() []Response {
	if e == nil {
		return nil
	}
	return slices.Clone(e.responses)
}

// Results returns the handler results in response order.
func (e *Emission) Results() []any {
	out := make([]any, 0, e.Len())
	for _, r := range e.All() {
		out = append(out, r.Result)
	}
	return out
}

// String renders one response per line.
func (e *Emission) String() string {
	var b strings.Builder
	for i, r := range e.All() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.String())
	}
	return b.String()
}

func (e *Emission) GoString() string {
	parts := make([]string, 0, e.Len())
	for _, r := range e.All() {
		parts = append(parts, r.GoString())
	}
	return fmt.Sprintf("Emission(len=%d, responses=[%s])", e.Len(), strings.Join(parts, ", "))
}

func (e *Emission) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	typeName := ""
	if e.Type != nil {
		typeName = e.Type.Name()
	}
	responses := e.responses
	if responses == nil {
		responses = []Response{}
	}
	return json.Marshal(struct {
		ID        string          `json:"id"`
		Type      string          `json:"type"`
		Note      note.Note       `json:"note"`
		StartedAt strfmt.DateTime `json:"started_at"`
		Responses []Response      `json:"responses"`
	}{
		ID:        e.ID,
		Type:      typeName,
		Note:      e.Note,
		StartedAt: e.StartedAt,
		Responses: responses,
	})
}
