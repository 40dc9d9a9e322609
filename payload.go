package notebus

import (
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/casualjim/notebus/pkg/jsonx"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Payload is the keyed data that travels with one emission. Keys keep their
// insertion order. A single Payload is shared by every filter and handler of
// an emission, so a change made by one handler is seen by the ones after it.
//
// Payload is not safe for concurrent modification; async tasks that write to
// it must synchronize on their own.
type Payload struct {
	values *orderedmap.OrderedMap[string, any]
}

// NewPayload creates an empty payload.
func NewPayload() *Payload {
	return &Payload{values: orderedmap.New[string, any]()}
}

// PayloadOf copies m into a new payload, keys in sorted order.
func PayloadOf(m map[string]any) *Payload {
	p := NewPayload()
	for _, k := range slices.Sorted(maps.Keys(m)) {
		p.Set(k, m[k])
	}
	return p
}

func (p *Payload) Get(key string) (any, bool) {
	return p.values.Get(key)
}

// Set stores value under key. A new key goes last; an existing key keeps its position.
func (p *Payload) Set(key string, value any) {
	p.values.Set(key, value)
}

// Delete removes key and reports whether it was present.
func (p *Payload) Delete(key string) bool {
	_, ok := p.values.Delete(key)
	return ok
}

func (p *Payload) Has(key string) bool {
	_, ok := p.values.Get(key)
	return ok
}

func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return p.values.Len()
}

func (p *Payload) Keys() []string {
	keys := make([]string, 0, p.Len())
	for k := range p.All() {
		keys = append(keys, k)
	}
	return keys
}

// All iterates the entries in insertion order.
func (p *Payload) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if p == nil {
			return
		}
		for pair := p.values.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Map returns a plain copy of the entries.
func (p *Payload) Map() map[string]any {
	m := make(map[string]any, p.Len())
	for k, v := range p.All() {
		m[k] = v
	}
	return m
}

// Clone returns a shallow copy with the same key order.
func (p *Payload) Clone() *Payload {
	c := NewPayload()
	for k, v := range p.All() {
		c.Set(k, v)
	}
	return c
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for k, v := range p.All() {
		if !first {
			b.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Query evaluates a gjson path against the JSON form of the payload, e.g.
// "user.name" or "items.#".
func (p *Payload) Query(path string) gjson.Result {
	return jsonx.Query(p, path)
}

// SetPath sets a nested value with an sjson path. The first path element
// names the payload key; the rest addresses into the JSON form of its value,
// which is replaced by the decoded result. Values stored this way become
// generic JSON values (map[string]any, []any, float64, ...).
func (p *Payload) SetPath(path string, value any) error {
	key, rest, nested := strings.Cut(path, ".")
	if !nested {
		p.Set(key, value)
		return nil
	}

	doc := "{}"
	if current, ok := p.Get(key); ok && current != nil {
		b, err := json.Marshal(current)
		if err != nil {
			return err
		}
		doc = string(b)
	}
	updated, err := sjson.Set(doc, rest, value)
	if err != nil {
		return err
	}

	var decoded any
	if err := json.Unmarshal([]byte(updated), &decoded); err != nil {
		return err
	}
	p.Set(key, decoded)
	return nil
}

func (p *Payload) String() string {
	return jsonx.MustString(p)
}

// ContextVars is the mutable scratch space shared by every handler of an
// emission. When the caller passes its own ContextVars, changes made by
// handlers are visible to the caller after Emit returns.
//
// ContextVars is a map type and is not safe for concurrent modification.
type ContextVars map[string]any

// String returns a JSON string representation of the ContextVars.
func (cv ContextVars) String() string {
	if cv == nil {
		return "{}"
	}
	return jsonx.MustString(map[string]any(cv))
}
