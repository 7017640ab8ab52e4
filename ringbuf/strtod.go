package ringbuf

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFloat parses a textual decimal into a float64 using Go's
// strconv, which already implements the strtod contract this helper
// needs: "inf", "-inf", and "nan" are accepted case-insensitively, and
// any trailing non-whitespace leaves the parse rejected rather than
// silently truncated.
//
// Binding layers rely on this for uniform cross-language NaN/Inf
// handling when marshaling tmin/tmax into the ring.
func ParseFloat(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty float literal", ErrFatal)
	}

	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %s", ErrFatal, s, err)
	}
	return v, nil
}
