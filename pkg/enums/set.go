package enums

import (
	"fmt"
	"strings"
)

// set is a closed list of string-backed enum values.
type set[T ~string] map[T]struct{}

func newSet[T ~string](values ...T) set[T] {
	s := make(set[T], len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s set[T]) has(v T) bool {
	_, ok := s[v]
	return ok
}

// parseUpper matches case-insensitively against upper-case values.
func (s set[T]) parseUpper(kind, raw string) (T, error) {
	v := T(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.has(v) {
		return "", fmt.Errorf("invalid %s %q", kind, raw)
	}
	return v, nil
}

// parseLower matches case-insensitively against lower-case values.
func (s set[T]) parseLower(kind, raw string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if !s.has(v) {
		return "", fmt.Errorf("invalid %s %q", kind, raw)
	}
	return v, nil
}
