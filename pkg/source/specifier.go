package source

import (
	"fmt"
	"strconv"
	"strings"
)

// Specifier is a parsed capture source specifier. An empty string or a
// non-negative integer names a device index; anything else is a path or URI.
type Specifier struct {
	Raw      string
	Index    int
	IsDevice bool

	// ParseErr is set when Raw is not a device index. It is a diagnostic,
	// never a reason to abort.
	ParseErr error
}

// ParseSpecifier parses raw once. It never fails.
func ParseSpecifier(raw string) Specifier {
	spec := Specifier{Raw: raw}
	if raw == "" {
		spec.IsDevice = true
		return spec
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil:
		spec.ParseErr = fmt.Errorf("parse %q as device index: %w", raw, err)
	case n < 0:
		spec.ParseErr = fmt.Errorf("device index %d is negative", n)
	default:
		spec.Index = n
		spec.IsDevice = true
	}
	return spec
}

// String returns a human-readable form for logs
func (s Specifier) String() string {
	if s.IsDevice {
		return fmt.Sprintf("device:%d", s.Index)
	}
	return "path:" + s.Raw
}
