package match

import (
	"sort"
	"strings"
)

// DerivePrefix extracts the longest static prefix of a glob pattern that can
// be sent as a listing prefix.
//
// Escaped metacharacters (\*, \?, \[, \{) are literals and stay in the
// prefix, unescaped. The prefix is cut back to the last '/' before the first
// glob metacharacter.
//
//	"data/2024/**/*.parquet" → "data/2024/"
//	"*.json"                 → ""
//	"logs/app-{a,b}/*.log"   → "logs/"
//	"exact/path/file.txt"    → "exact/path/file.txt"
//	"data/file\*.txt"        → "data/file*.txt"
func DerivePrefix(pattern string) string {
	metaIdx := firstUnescapedMeta(pattern)
	if metaIdx == -1 {
		return unescape(pattern)
	}
	lastSlash := strings.LastIndex(pattern[:metaIdx], "/")
	if lastSlash < 0 {
		return ""
	}
	return unescape(pattern[:lastSlash+1])
}

// DerivePrefixes derives and deduplicates the prefixes of several patterns.
// A prefix that starts with another is dropped; "" subsumes everything.
func DerivePrefixes(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	prefixes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		prefixes = append(prefixes, DerivePrefix(p))
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) < len(prefixes[j]) })

	var out []string
	for _, candidate := range prefixes {
		subsumed := false
		for _, kept := range out {
			if strings.HasPrefix(candidate, kept) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			out = append(out, candidate)
		}
	}
	sort.Strings(out)
	return out
}

// CommonPrefix returns the longest string every element starts with.
func CommonPrefix(prefixes []string) string {
	if len(prefixes) == 0 {
		return ""
	}
	common := prefixes[0]
	for _, p := range prefixes[1:] {
		n := 0
		for n < len(common) && n < len(p) && common[n] == p[n] {
			n++
		}
		common = common[:n]
	}
	return common
}

// IsGlobPattern reports whether pattern contains an unescaped metacharacter.
func IsGlobPattern(pattern string) bool {
	return firstUnescapedMeta(pattern) != -1
}

func isMeta(c byte) bool {
	return c == '*' || c == '?' || c == '[' || c == '{'
}

func firstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			if next := pattern[i+1]; isMeta(next) || next == '\\' {
				i++
			}
			continue
		}
		if isMeta(c) {
			return i
		}
	}
	return -1
}

func unescape(prefix string) string {
	if !strings.ContainsRune(prefix, '\\') {
		return prefix
	}
	var b strings.Builder
	b.Grow(len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '\\' && i+1 < len(prefix) {
			switch next := prefix[i+1]; next {
			case '*', '?', '[', ']', '{', '}', '\\':
				b.WriteByte(next)
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
