package severity

import "strings"

// Coarse severity classes derived from a free-text level at write time.
const (
	Low    = "Low"
	Medium = "Medium"
	High   = "High"
)

// Level classes used by batch aggregation.
type Class int

const (
	ClassInfo Class = iota
	ClassWarning
	ClassError
)

// FromLevel derives the coarse severity from a free-text level.
// The rule is a case-insensitive substring match: a level containing
// "error" is High, containing "warn" is Medium, anything else is Low.
func FromLevel(level string) string {
	lvl := strings.ToLower(level)
	switch {
	case strings.Contains(lvl, "error"):
		return High
	case strings.Contains(lvl, "warn"):
		return Medium
	default:
		return Low
	}
}

// Classify buckets a free-text level into exactly one of error, warning
// or info using the same substring rule as FromLevel.
func Classify(level string) Class {
	lvl := strings.ToLower(level)
	switch {
	case strings.Contains(lvl, "error"):
		return ClassError
	case strings.Contains(lvl, "warn"):
		return ClassWarning
	default:
		return ClassInfo
	}
}

// IsErrorLevel reports whether a level names an error-class record
// exactly ("error" or "critical", case-insensitive). The query engine
// uses this stricter match when selecting error candidates.
func IsErrorLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error", "critical":
		return true
	default:
		return false
	}
}
