// internal/ipc/args.go
package ipc

import (
	"github.com/spf13/cast"
)

// Args are the positional arguments of a message after they crossed the
// codec: numbers arrive as json.Number, objects as map[string]any.
type Args []any

// Len reports the number of arguments.
func (a Args) Len() int { return len(a) }

// At returns argument i, or nil when it is absent.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// Int64 reads argument i as an integer.
func (a Args) Int64(i int) (int64, error) {
	if i >= len(a) || a[i] == nil {
		return 0, &ArgError{Index: i, Want: "integer"}
	}
	v, err := cast.ToInt64E(a[i])
	if err != nil {
		return 0, &ArgError{Index: i, Want: "integer", Err: err}
	}
	return v, nil
}

// Float64 reads argument i as a number.
func (a Args) Float64(i int) (float64, error) {
	if i >= len(a) || a[i] == nil {
		return 0, &ArgError{Index: i, Want: "number"}
	}
	v, err := cast.ToFloat64E(a[i])
	if err != nil {
		return 0, &ArgError{Index: i, Want: "number", Err: err}
	}
	return v, nil
}

// String reads argument i as a string.
func (a Args) String(i int) (string, error) {
	if i >= len(a) || a[i] == nil {
		return "", &ArgError{Index: i, Want: "string"}
	}
	v, err := cast.ToStringE(a[i])
	if err != nil {
		return "", &ArgError{Index: i, Want: "string", Err: err}
	}
	return v, nil
}

// StringOr reads argument i as a string, falling back to def when it is
// absent or unreadable.
func (a Args) StringOr(i int, def string) string {
	v, err := a.String(i)
	if err != nil {
		return def
	}
	return v
}

// Bool reads argument i as a boolean.
func (a Args) Bool(i int) (bool, error) {
	if i >= len(a) || a[i] == nil {
		return false, &ArgError{Index: i, Want: "boolean"}
	}
	v, err := cast.ToBoolE(a[i])
	if err != nil {
		return false, &ArgError{Index: i, Want: "boolean", Err: err}
	}
	return v, nil
}

// Map reads argument i as an object.
func (a Args) Map(i int) (map[string]any, error) {
	if i >= len(a) || a[i] == nil {
		return nil, &ArgError{Index: i, Want: "object"}
	}
	v, err := cast.ToStringMapE(a[i])
	if err != nil {
		return nil, &ArgError{Index: i, Want: "object", Err: err}
	}
	return v, nil
}

// Strings reads argument i as a list of strings.
func (a Args) Strings(i int) ([]string, error) {
	if i >= len(a) || a[i] == nil {
		return nil, &ArgError{Index: i, Want: "string list"}
	}
	v, err := cast.ToStringSliceE(a[i])
	if err != nil {
		return nil, &ArgError{Index: i, Want: "string list", Err: err}
	}
	return v, nil
}

// Tail returns the arguments from index i on.
func (a Args) Tail(i int) Args {
	if i >= len(a) {
		return nil
	}
	return a[i:]
}
