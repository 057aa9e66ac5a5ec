package events

import (
	"strings"

	"github.com/helmcode/crew-bus/internal/protocol"
)

// Filter selects event types by glob pattern. A nil Filter matches everything.
type Filter []string

// ParseFilter splits a comma-separated pattern list such as
// "agent_*,private_session_ended". Blank entries are ignored; an empty list
// yields a nil Filter.
func ParseFilter(spec string) Filter {
	var f Filter
	for _, p := range strings.Split(spec, ",") {
		if p = strings.TrimSpace(p); p != "" {
			f = append(f, p)
		}
	}
	return f
}

// Match reports whether t matches any pattern in the filter.
func (f Filter) Match(t protocol.EventType) bool {
	if len(f) == 0 {
		return true
	}
	for _, p := range f {
		if MatchPattern(p, string(t)) {
			return true
		}
	}
	return false
}

// MatchPattern matches value against a pattern where "*" stands for any
// run of characters. Iterative, so several wildcards stay linear-ish.
func MatchPattern(pattern, value string) bool {
	pi, vi := 0, 0
	starIdx, matchIdx := -1, 0

	for vi < len(value) {
		switch {
		case pi < len(pattern) && pattern[pi] == '*':
			starIdx = pi
			matchIdx = vi
			pi++
		case pi < len(pattern) && pattern[pi] == value[vi]:
			pi++
			vi++
		case starIdx != -1:
			// Let the last '*' swallow one more character.
			pi = starIdx + 1
			matchIdx++
			vi = matchIdx
		default:
			return false
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
