package recurrence

import (
	"fmt"
	"strings"
)

// Pattern is the frequency of a recurrence rule. The interval is always 1.
type Pattern string

// Supported patterns.
const (
	Once    Pattern = "ONCE"
	Daily   Pattern = "DAILY"
	Weekly  Pattern = "WEEKLY"
	Monthly Pattern = "MONTHLY"
	Yearly  Pattern = "YEARLY"
)

// Patterns lists every supported pattern.
var Patterns = []Pattern{Once, Daily, Weekly, Monthly, Yearly}

// Valid reports whether p is one of the supported patterns.
func (p Pattern) Valid() bool {
	switch p {
	case Once, Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// ParsePattern parses a pattern name case-insensitively.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("recurrence: unknown pattern %q", s)
	}
	return p, nil
}
