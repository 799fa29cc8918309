// Package pattern compiles path-style route patterns into anchored
// ECMAScript regular expressions.
//
// Supported tokens:
//
//	/info.html      literal text, matched exactly
//	/(.*)           unnamed capture; the body is an ECMAScript regex
//	/note/:slug     named single-segment param
//	/note/[slug]    same as :slug
//	/user/:id(\d+)  named param with a custom body
//
// A backslash escapes the next character so it is matched literally.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

var ErrInvalidPattern = errors.New("invalid route pattern")

var paramNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

const defaultParamBody = `[^/]+?`

// A match that runs longer than this is reported as no match.
const matchTimeout = 100 * time.Millisecond

type Matcher struct {
	pattern string
	source  string
	re      *regexp2.Regexp
	keys    []string
}

type Match struct {
	Path     string
	Captures []string
	Params   map[string]string
}

func (m Match) Param(name string) (string, bool) {
	if m.Params == nil {
		return "", false
	}

	value, ok := m.Params[name]
	return value, ok
}

func MustCompile(pattern string) *Matcher {
	matcher, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return matcher
}

func Compile(pattern string) (*Matcher, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: pattern cannot be empty", ErrInvalidPattern)
	}

	source, keys, err := translate(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}

	re, err := regexp2.Compile("^(?:"+source+")$", regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	re.MatchTimeout = matchTimeout

	return &Matcher{
		pattern: pattern,
		source:  source,
		re:      re,
		keys:    keys,
	}, nil
}

func (m *Matcher) String() string {
	return m.pattern
}

// Keys lists one entry per capture in declaration order; unnamed captures
// are reported as "".
func (m *Matcher) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

func (m *Matcher) Match(path string) (Match, bool) {
	found, err := m.re.FindStringMatch(path)
	if err != nil || found == nil {
		return Match{}, false
	}
	// $ in regexp2 also accepts a trailing newline; require the whole input.
	if found.Index != 0 || found.Length != utf8.RuneCountInString(path) {
		return Match{}, false
	}

	captures := make([]string, 0, len(m.keys))
	var params map[string]string
	for idx, key := range m.keys {
		value := ""
		if group := found.GroupByNumber(idx + 1); group != nil {
			value = group.String()
		}
		captures = append(captures, value)

		if key == "" {
			continue
		}
		if params == nil {
			params = make(map[string]string, len(m.keys))
		}
		params[key] = value
	}

	return Match{Path: path, Captures: captures, Params: params}, true
}

func translate(pattern string) (string, []string, error) {
	var out strings.Builder
	var literal strings.Builder
	keys := make([]string, 0, 2)
	seen := make(map[string]struct{})

	flush := func() {
		if literal.Len() == 0 {
			return
		}
		out.WriteString(regexp2.Escape(literal.String()))
		literal.Reset()
	}

	addKey := func(name string) error {
		if name == "" {
			keys = append(keys, "")
			return nil
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate param name %q", name)
		}
		seen[name] = struct{}{}
		keys = append(keys, name)
		return nil
	}

	for idx := 0; idx < len(pattern); {
		ch := pattern[idx]
		switch ch {
		case '\\':
			if idx+1 >= len(pattern) {
				return "", nil, errors.New("trailing escape")
			}
			_, size := utf8.DecodeRuneInString(pattern[idx+1:])
			literal.WriteString(pattern[idx+1 : idx+1+size])
			idx += 1 + size

		case '(':
			body, next, err := readGroup(pattern, idx)
			if err != nil {
				return "", nil, err
			}
			flush()
			if err := addKey(""); err != nil {
				return "", nil, err
			}
			out.WriteString("(" + body + ")")
			idx = next

		case ':':
			name, next := readName(pattern, idx+1)
			if name == "" {
				return "", nil, fmt.Errorf("missing param name at offset %d", idx)
			}
			if !paramNamePattern.MatchString(name) {
				return "", nil, fmt.Errorf("invalid param name %q", name)
			}
			body := defaultParamBody
			if next < len(pattern) && pattern[next] == '(' {
				custom, after, err := readGroup(pattern, next)
				if err != nil {
					return "", nil, err
				}
				body = custom
				next = after
			}
			flush()
			if err := addKey(name); err != nil {
				return "", nil, err
			}
			out.WriteString("(" + body + ")")
			idx = next

		case '[':
			end := strings.IndexByte(pattern[idx:], ']')
			if end < 0 {
				return "", nil, fmt.Errorf("unterminated wildcard segment at offset %d", idx)
			}
			name := strings.TrimSpace(pattern[idx+1 : idx+end])
			if !paramNamePattern.MatchString(name) {
				return "", nil, fmt.Errorf("invalid wildcard name %q", name)
			}
			flush()
			if err := addKey(name); err != nil {
				return "", nil, err
			}
			out.WriteString("(" + defaultParamBody + ")")
			idx += end + 1

		case ')', ']':
			return "", nil, fmt.Errorf("unbalanced %q at offset %d", ch, idx)

		default:
			_, size := utf8.DecodeRuneInString(pattern[idx:])
			literal.WriteString(pattern[idx : idx+size])
			idx += size
		}
	}

	flush()
	return out.String(), keys, nil
}

// readGroup returns the body of the group opening at start and the offset
// just past its closing paren. Nested groups must be non-capturing.
func readGroup(pattern string, start int) (string, int, error) {
	depth := 0
	for idx := start + 1; idx < len(pattern); idx++ {
		switch pattern[idx] {
		case '\\':
			idx++
		case '(':
			if idx+1 >= len(pattern) || pattern[idx+1] != '?' {
				return "", 0, fmt.Errorf("capturing group not allowed inside group at offset %d", idx)
			}
			depth++
		case ')':
			if depth > 0 {
				depth--
				continue
			}
			body := pattern[start+1 : idx]
			if strings.TrimSpace(body) == "" {
				return "", 0, fmt.Errorf("empty group at offset %d", start)
			}
			return body, idx + 1, nil
		}
	}

	return "", 0, fmt.Errorf("unterminated group at offset %d", start)
}

func readName(pattern string, start int) (string, int) {
	end := start
	for end < len(pattern) {
		ch := pattern[end]
		if ch == '_' || (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
			end++
			continue
		}
		break
	}
	return pattern[start:end], end
}
