package fields

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// groupRef names a capturing group the way regexp2 resolves it. regexp2
// numbers unnamed groups first and named ones after them, so a named group is
// looked up by name and an unnamed one by its index among unnamed groups.
type groupRef struct {
	name   string
	number int
}

func (r groupRef) lookup(m *regexp2.Match) *regexp2.Group {
	if r.name != "" {
		return m.GroupByName(r.name)
	}
	return m.GroupByNumber(r.number)
}

// translatePattern rewrites the Python-only group forms (?P<name>...) and
// (?P=name) into (?<name>...) and \k<name>, and returns the capturing groups
// in the order their opening parenthesis appears.
func translatePattern(pattern string) (string, []groupRef) {
	var (
		b       strings.Builder
		groups  []groupRef
		unnamed int
	)
	b.Grow(len(pattern))

	for i := 0; i < len(pattern); {
		rest := pattern[i:]
		switch {
		case rest[0] == '\\':
			n := min(2, len(rest))
			b.WriteString(rest[:n])
			i += n
		case rest[0] == '[':
			n := classLen(rest)
			b.WriteString(rest[:n])
			i += n
		case strings.HasPrefix(rest, "(?P<"):
			if name, ok := groupName(rest[4:], '>'); ok {
				groups = append(groups, groupRef{name: name})
			}
			b.WriteString("(?<")
			i += 4
		case strings.HasPrefix(rest, "(?P="):
			end := strings.IndexByte(rest, ')')
			if end < 0 {
				b.WriteString(rest)
				i = len(pattern)
				continue
			}
			b.WriteString(`\k<` + rest[4:end] + `>`)
			i += end + 1
		case strings.HasPrefix(rest, "(?#"):
			end := strings.IndexByte(rest, ')')
			if end < 0 {
				end = len(rest) - 1
			}
			b.WriteString(rest[:end+1])
			i += end + 1
		case strings.HasPrefix(rest, "(?"):
			if len(rest) > 3 && rest[2] == '<' && rest[3] != '=' && rest[3] != '!' {
				if name, ok := groupName(rest[3:], '>'); ok {
					groups = append(groups, groupRef{name: name})
				}
			} else if len(rest) > 2 && rest[2] == '\'' {
				if name, ok := groupName(rest[3:], '\''); ok {
					groups = append(groups, groupRef{name: name})
				}
			}
			b.WriteString("(?")
			i += 2
		case rest[0] == '(':
			unnamed++
			groups = append(groups, groupRef{number: unnamed})
			b.WriteByte('(')
			i++
		default:
			b.WriteByte(rest[0])
			i++
		}
	}
	return b.String(), groups
}

// groupName reads a group name up to the closing delimiter. Balancing groups
// (?<a-b>...) are reported under their first name.
func groupName(s string, closing byte) (string, bool) {
	end := strings.IndexByte(s, closing)
	if end <= 0 {
		return "", false
	}
	name := s[:end]
	if dash := strings.IndexByte(name, '-'); dash >= 0 {
		name = name[:dash]
	}
	return name, name != ""
}

// classLen returns the length of the character class at the start of s,
// including the brackets. A ']' right after '[' or '[^' is literal.
func classLen(s string) int {
	j := 1
	if j < len(s) && s[j] == '^' {
		j++
	}
	if j < len(s) && s[j] == ']' {
		j++
	}
	for j < len(s) {
		switch s[j] {
		case '\\':
			j += 2
			continue
		case ']':
			return j + 1
		}
		j++
	}
	return len(s)
}
