// Package match filters object keys with doublestar glob patterns.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates include and exclude patterns against object keys.
//
//   - Include patterns: a key must match at least one (none means all keys)
//   - Exclude patterns: a key must not match any
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes      []string
	excludes      []string
	prefix        string
	excludeHidden bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns a key must match (at least one).
	Includes []string

	// Excludes are glob patterns a key must not match.
	Excludes []string

	// ExcludeHidden drops keys with a path segment starting with '.'.
	ExcludeHidden bool
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New validates the patterns and returns a Matcher.
func New(cfg Config) (*Matcher, error) {
	for _, group := range [][]string{cfg.Includes, cfg.Excludes} {
		for _, p := range group {
			if !doublestar.ValidatePattern(p) {
				return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
			}
		}
	}

	m := &Matcher{
		includes:      append([]string(nil), cfg.Includes...),
		excludes:      append([]string(nil), cfg.Excludes...),
		excludeHidden: cfg.ExcludeHidden,
	}
	if len(m.includes) > 0 {
		m.prefix = CommonPrefix(DerivePrefixes(m.includes))
	}
	return m, nil
}

// Match reports whether key passes the filter.
func (m *Matcher) Match(key string) bool {
	if m.excludeHidden && IsHidden(key) {
		return false
	}

	if len(m.includes) > 0 {
		matched := false
		for _, inc := range m.includes {
			if matchPattern(inc, key) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, exc := range m.excludes {
		if matchPattern(exc, key) {
			return false
		}
	}
	return true
}

// ListPrefix narrows base to the static prefix shared by every include
// pattern when that prefix lies under base. Otherwise base is returned and
// Match does the filtering.
func (m *Matcher) ListPrefix(base string) string {
	if len(m.prefix) > len(base) && strings.HasPrefix(m.prefix, base) {
		return m.prefix
	}
	return base
}

// IncludePatterns returns the include patterns.
func (m *Matcher) IncludePatterns() []string { return m.includes }

// ExcludePatterns returns the exclude patterns.
func (m *Matcher) ExcludePatterns() []string { return m.excludes }

// IsHidden reports whether any '/'-separated segment of key starts with '.'.
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func matchPattern(pattern, key string) bool {
	matched, err := doublestar.Match(pattern, key)
	if err != nil {
		// Validated at construction.
		return false
	}
	return matched
}
