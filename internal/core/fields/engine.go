package fields

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Engine selects the regular expression implementation used for patterns.
type Engine string

const (
	// EngineRegexp2 is a backtracking engine: lookarounds, backreferences and
	// Python-style inline flags work, guarded by a per-match timeout.
	EngineRegexp2 Engine = "regexp2"
	// EngineRE2 is the standard library engine: linear time, no lookarounds.
	EngineRE2 Engine = "re2"
)

// ParseEngine maps a config value to an Engine; empty selects EngineRegexp2.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case "", EngineRegexp2:
		return EngineRegexp2, nil
	case EngineRE2:
		return EngineRE2, nil
	default:
		return "", fmt.Errorf("unknown pattern engine %q", s)
	}
}

// matcher runs one compiled pattern against a text.
type matcher interface {
	match(text string) MatchResult
}

func compile(engine Engine, pattern string, timeout time.Duration) (matcher, error) {
	switch engine {
	case EngineRE2:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return re2Matcher{re: re}, nil
	default:
		translated, groups := translatePattern(pattern)
		re, err := regexp2.Compile(translated, regexp2.None)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			re.MatchTimeout = timeout
		}
		// the scan missed a construct (e.g. comments under (?x)); use regexp2's numbering
		if len(groups) != len(re.GetGroupNumbers())-1 {
			groups = groups[:0]
			for _, n := range re.GetGroupNumbers()[1:] {
				groups = append(groups, groupRef{number: n})
			}
		}
		return regexp2Matcher{re: re, groups: groups}, nil
	}
}

type re2Matcher struct {
	re *regexp.Regexp
}

func (m re2Matcher) match(text string) MatchResult {
	loc := m.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return MatchResult{Outcome: NoMatch}
	}
	// Walk the groups from the last one; -1 marks a group that did not participate.
	for g := m.re.NumSubexp(); g >= 1; g-- {
		if loc[2*g] >= 0 {
			return MatchResult{Outcome: Matched, Value: text[loc[2*g]:loc[2*g+1]]}
		}
	}
	return MatchResult{Outcome: Matched, Value: text[loc[0]:loc[1]]}
}

type regexp2Matcher struct {
	re     *regexp2.Regexp
	groups []groupRef // in pattern order
}

func (m regexp2Matcher) match(text string) MatchResult {
	found, err := m.re.FindStringMatch(text)
	if err != nil {
		return MatchResult{Outcome: MatchError, Err: err}
	}
	if found == nil {
		return MatchResult{Outcome: NoMatch}
	}
	for g := len(m.groups) - 1; g >= 0; g-- {
		if grp := m.groups[g].lookup(found); grp != nil && len(grp.Captures) > 0 {
			return MatchResult{Outcome: Matched, Value: grp.String()}
		}
	}
	return MatchResult{Outcome: Matched, Value: found.String()}
}
