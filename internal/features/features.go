// Package features parses window feature strings such as
// "width=350,height=450,resizable".
package features

import "strings"

// Feature is one comma-separated entry. Valueless tokens have HasValue false.
type Feature struct {
	Key      string
	Value    any
	HasValue bool
}

// Parse splits s on commas and each entry on its first '='. Surrounding
// whitespace is trimmed and empty keys are skipped. Values "yes" and "no"
// become booleans; everything else stays a string so numeric coercion is
// left to the caller.
func Parse(s string) []Feature {
	var out []Feature
	Each(s, func(f Feature) {
		out = append(out, f)
	})
	return out
}

// Each calls fn for every feature in s, in order.
func Each(s string, fn func(Feature)) {
	for _, entry := range strings.Split(s, ",") {
		key, value, hasValue := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !hasValue {
			fn(Feature{Key: key})
			continue
		}
		fn(Feature{Key: key, Value: convert(strings.TrimSpace(value)), HasValue: true})
	}
}

func convert(v string) any {
	switch v {
	case "yes":
		return true
	case "no":
		return false
	default:
		return v
	}
}
