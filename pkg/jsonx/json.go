package jsonx

import (
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// MustString marshals val and returns the JSON text. Values that cannot be
// marshalled render as a JSON string holding the error message, so the result
// is always valid JSON; it is meant for log and display output.
func MustString(val any) string {
	b, err := json.Marshal(val)
	if err != nil {
		b, _ = json.Marshal("!" + err.Error())
	}
	return string(b)
}

// Query marshals val and evaluates a gjson path against it. A value that
// cannot be marshalled yields a result that does not exist.
func Query(val any, path string) gjson.Result {
	b, err := json.Marshal(val)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(b, path)
}

// Equal reports whether a gjson result holds the same JSON value as v.
// Numbers compare by value, so 2 and 2.0 are equal.
func Equal(r gjson.Result, v any) bool {
	if !r.Exists() {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	want := gjson.ParseBytes(b)
	if r.Type != want.Type {
		return false
	}
	switch r.Type {
	case gjson.Number:
		return r.Num == want.Num
	case gjson.String:
		return r.Str == want.Str
	case gjson.True, gjson.False, gjson.Null:
		return true
	default:
		var a, z any
		if json.Unmarshal([]byte(r.Raw), &a) != nil || json.Unmarshal(b, &z) != nil {
			return false
		}
		return MustString(a) == MustString(z)
	}
}
