package notebus

import (
	"testing"

	"github.com/casualjim/notebus/note"
	"github.com/stretchr/testify/require"
)

type Foo struct {
	X int `json:"foo"`
}

type Bar struct {
	Foo
	Y int `json:"bar"`
}

type Counter struct {
	Count int `json:"count"`
}

type Quiet struct {
	Msg string
}

type Checked struct {
	Name string
}

func (c Checked) Validate() error {
	if c.Name == "" {
		return errFixture
	}
	return nil
}

type fixture struct {
	bus         *Bus
	catalog     *note.Catalog
	fooType     *note.Type
	barType     *note.Type
	counterType *note.Type
	quietType   *note.Type
	checkedType *note.Type
}

func newFixture(t *testing.T, options ...Option) fixture {
	t.Helper()
	c := note.NewCatalog()
	f := fixture{catalog: c}

	var err error
	f.fooType, err = note.DeclareIn[Foo](c, "Foo", nil)
	require.NoError(t, err)
	f.barType, err = note.DeclareIn[Bar](c, "Bar", f.fooType)
	require.NoError(t, err)
	f.counterType, err = note.DeclareIn[Counter](c, "Counter", nil)
	require.NoError(t, err)
	f.quietType, err = note.DeclareIn[Quiet](c, "Quiet", nil)
	require.NoError(t, err)
	f.checkedType, err = note.DeclareIn[Checked](c, "Checked", nil)
	require.NoError(t, err)

	f.bus, err = New(append([]Option{WithCatalog(c)}, options...)...)
	require.NoError(t, err)
	return f
}

func handlerNames(em *Emission) []string {
	names := make([]string, 0, em.Len())
	for _, r := range em.All() {
		names = append(names, r.Handler.Name())
	}
	return names
}

// countDelivery is a declared function, so every registration shares one *Handler.
func countDelivery(n note.Note, p *Payload, cv ContextVars) int {
	calls, _ := cv["calls"].(int)
	cv["calls"] = calls + 1
	return calls + 1
}

func handleFoo(f *Foo) {}
