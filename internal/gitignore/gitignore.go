// Package gitignore matches root-relative paths against gitignore-style
// patterns. The crawler reads them from the configured ignore list and
// from an IgnoreFileName file at the top of each root.
package gitignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// IgnoreFileName is read from the top of each root.
const IgnoreFileName = ".amanindexignore"

// Matcher holds compiled patterns. It is immutable once built and safe for
// concurrent use.
type Matcher struct {
	rules []rule
}

type rule struct {
	pattern string
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
}

// New compiles patterns in order. Blank lines and comments are skipped.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		if r, ok := compile(p); ok {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

// With returns a matcher holding m's rules followed by patterns. m is
// left unchanged.
func (m *Matcher) With(patterns ...string) *Matcher {
	extra := New(patterns...)
	if len(extra.rules) == 0 {
		return m
	}
	rules := make([]rule, 0, m.Len()+len(extra.rules))
	if m != nil {
		rules = append(rules, m.rules...)
	}
	return &Matcher{rules: append(rules, extra.rules...)}
}

// Len is the number of compiled rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

// Match reports whether rel (slash-separated, relative to the root) is
// ignored. The last matching rule wins, so "!" rules re-include paths.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.re.MatchString(rel) {
			ignored = !r.negate
		}
	}
	return ignored
}

// ReadFile returns the patterns in path. A missing file yields none.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		patterns = append(patterns, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return patterns, nil
}

// compile turns one pattern line into a rule.
func compile(line string) (rule, bool) {
	// A trailing "\ " keeps one literal space.
	keepSpace := strings.HasSuffix(line, `\ `)
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") {
		return rule{}, false
	}
	if keepSpace {
		p = strings.TrimSuffix(p, `\`) + " "
	}

	r := rule{pattern: p}
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		return rule{}, false
	}

	// A slash anywhere but the end anchors the pattern to the root;
	// otherwise it matches a name at any depth.
	var prefix string
	if strings.Contains(p, "/") {
		p = strings.TrimPrefix(p, "/")
		prefix = "^"
	} else {
		prefix = "^(?:.*/)?"
	}

	re, err := regexp.Compile(prefix + globToRegex(p) + "$")
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

// globToRegex translates gitignore wildcards. "**" spans directories;
// "*" and "?" stay within one path element.
func globToRegex(glob string) string {
	var sb strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch {
		case strings.HasPrefix(glob[i:], "**/"):
			sb.WriteString("(?:.*/)?")
			i += 2
		case strings.HasPrefix(glob[i:], "/**") && i+3 == len(glob):
			sb.WriteString("(?:/.*)?")
			i += 2
		case strings.HasPrefix(glob[i:], "**"):
			sb.WriteString(".*")
			i++
		case c == '*':
			sb.WriteString("[^/]*")
		case c == '?':
			sb.WriteString("[^/]")
		case c == '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + class + "]")
			i += end + 1
		case c == '\\' && i+1 < len(glob):
			i++
			sb.WriteString(regexp.QuoteMeta(string(glob[i])))
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
