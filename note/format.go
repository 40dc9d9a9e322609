package note

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-openapi/swag"
)

// Format renders n as Name(field=value, ...) using the type name from the
// default catalog.
func Format(n Note) string {
	return defaultCatalog.Format(n)
}

// Format renders n with the name of its declared type. Values of undeclared
// types fall back to their Go type name.
func (c *Catalog) Format(n Note) string {
	if t, err := c.TypeOf(n); err == nil {
		return t.Format(n)
	}
	if n == nil {
		return "<nil>"
	}
	rt := reflect.TypeOf(n)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return formatAs(rt.Name(), n)
}

// Format renders n as t's name followed by its exported fields. Embedded
// ancestors are flattened; field names follow the json tag or the lower camel
// case form of the Go name.
func (t *Type) Format(n Note) string {
	return formatAs(t.name, n)
}

func formatAs(name string, n Note) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')

	v := reflect.ValueOf(n)
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			b.WriteString("nil)")
			return b.String()
		}
		v = v.Elem()
	}
	if v.IsValid() && v.Kind() == reflect.Struct {
		first := true
		writeFields(&b, v, &first, 0)
	}
	b.WriteByte(')')
	return b.String()
}

func writeFields(b *strings.Builder, v reflect.Value, first *bool, depth int) {
	if depth > maxEmbedDepth {
		return
	}
	st := v.Type()
	for i := range st.NumField() {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		fv := v.Field(i)

		if f.Anonymous && f.Tag.Get("json") == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				writeFields(b, inner, first, depth+1)
				continue
			}
		}

		name, ok := fieldName(f)
		if !ok {
			continue
		}
		if !*first {
			b.WriteString(", ")
		}
		*first = false
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatValue(fv))
	}
}

func fieldName(f reflect.StructField) (string, bool) {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return "", false
	case "":
		return swag.ToJSONName(f.Name), true
	default:
		return name, true
	}
}

func formatValue(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return strconv.Quote(v.String())
	}
	return fmt.Sprintf("%v", v.Interface())
}
