// Package enums holds the string enums stored in Postgres enum columns.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// values is the closed set of a string enum.
type values[T ~string] []T

func (v values[T]) has(x T) bool {
	return slices.Contains(v, x)
}

// parse accepts raw only when, after trimming, it names a member of v.
func (v values[T]) parse(what, raw string) (T, error) {
	if x := T(strings.TrimSpace(raw)); v.has(x) {
		return x, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", what, raw)
}
