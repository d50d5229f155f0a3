// Package filter implements the domain filter collaborator (filter_url):
// a configured list of blocked host patterns.
package filter

import (
	"regexp"
	"strings"
)

// Filter holds a set of blocked host patterns. Patterns without special
// regex characters are matched as exact host suffixes (so "example.com"
// also blocks "www.example.com"); patterns containing "*" are translated
// to a regular expression.
type Filter struct {
	enabled  bool
	suffixes []string
	patterns []*regexp.Regexp
}

// New compiles a Filter from a list of blocked domain patterns.
func New(enabled bool, patterns []string) (*Filter, error) {
	f := &Filter{enabled: enabled}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			re, err := regexp.Compile(globToRegexp(p))
			if err != nil {
				return nil, err
			}
			f.patterns = append(f.patterns, re)
			continue
		}
		f.suffixes = append(f.suffixes, p)
	}
	return f, nil
}

// Enabled reports whether domain filtering is active (config.filter).
func (f *Filter) Enabled() bool {
	return f != nil && f.enabled
}

// Blocked reports whether host should be refused with a 404
// (filter_url). Filtering is only consulted when Enabled.
func (f *Filter) Blocked(host string) bool {
	if !f.Enabled() {
		return false
	}
	host = strings.ToLower(host)
	for _, s := range f.suffixes {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}

func globToRegexp(glob string) string {
	var sb strings.Builder
	sb.WriteByte('^')
	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteByte('.')
		case '.':
			sb.WriteString(`\.`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('$')
	return sb.String()
}
