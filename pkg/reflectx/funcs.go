package reflectx

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
)

// ErrorType is the reflect.Type of the error interface.
var ErrorType = reflect.TypeFor[error]()

// literalSuffix matches the runtime symbol of func literals, nested ones included:
// pkg.Outer.func1, pkg.Outer.func1.2, pkg.glob..func3.
var literalSuffix = regexp.MustCompile(`\.func\d+(\.\d+)*$`)

func IsFunction(fn any) bool {
	if fn == nil {
		return false
	}
	return reflect.TypeOf(fn).Kind() == reflect.Func
}

// FunctionName returns a short name for fn: the type name for named func
// types, otherwise the last element of the runtime symbol without the -fm
// suffix of method values. Closures come out as "func1", "func2", ...
func FunctionName(fn any) string {
	if !IsFunction(fn) {
		return ""
	}

	val := reflect.ValueOf(fn)
	typ := val.Type()
	if typ.Name() != "" {
		return typ.String()
	}

	rf := runtime.FuncForPC(val.Pointer())
	if rf == nil {
		return typ.String()
	}
	name := rf.Name()
	if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
		name = name[lastDot+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// QualifiedName is the full runtime symbol of fn, package path included.
func QualifiedName(fn any) string {
	if !IsFunction(fn) {
		return ""
	}
	if rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); rf != nil {
		return strings.TrimSuffix(rf.Name(), "-fm")
	}
	return ""
}

// CodePointer returns the entry point of fn. Two func values share a code
// pointer when they come from the same function or method expression; method
// values and closures over different receivers may share one too.
func CodePointer(fn any) uintptr {
	if !IsFunction(fn) {
		return 0
	}
	return reflect.ValueOf(fn).Pointer()
}

// IsNamedFunction reports whether fn is a declared function or a method
// expression. Func literals and method values are not: the same literal may
// evaluate to one shared value or to a new one each time, depending on what it
// captures, so their identity carries no meaning.
func IsNamedFunction(fn any) bool {
	if !IsFunction(fn) || reflect.ValueOf(fn).IsNil() {
		return false
	}
	rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if rf == nil {
		return false
	}
	name := rf.Name()
	return !strings.HasSuffix(name, "-fm") && !literalSuffix.MatchString(name)
}

// Signature is the parameter and result list of a function type.
type Signature struct {
	Type     reflect.Type
	In       []reflect.Type
	Out      []reflect.Type
	Variadic bool
}

// SignatureOf inspects fn, which may be a function value or a reflect.Type of
// kind Func. It reports false for anything else.
func SignatureOf(fn any) (Signature, bool) {
	var ft reflect.Type
	switch v := fn.(type) {
	case nil:
		return Signature{}, false
	case reflect.Type:
		ft = v
	default:
		ft = reflect.TypeOf(fn)
	}
	if ft.Kind() != reflect.Func {
		return Signature{}, false
	}

	sig := Signature{
		Type:     ft,
		In:       make([]reflect.Type, ft.NumIn()),
		Out:      make([]reflect.Type, ft.NumOut()),
		Variadic: ft.IsVariadic(),
	}
	for i := range sig.In {
		sig.In[i] = ft.In(i)
	}
	for i := range sig.Out {
		sig.Out[i] = ft.Out(i)
	}
	return sig, true
}

// ReturnsError reports whether the last result of s is exactly error.
func (s Signature) ReturnsError() bool {
	return len(s.Out) > 0 && s.Out[len(s.Out)-1] == ErrorType
}

// Is reports whether t is exactly the type T. Named types that share an
// underlying type with T do not match.
func Is[T any](t reflect.Type) bool {
	return t == reflect.TypeFor[T]()
}
