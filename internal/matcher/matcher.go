// Package matcher decides whether message text contains configured keywords.
package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

// Matcher finds whole-word keyword matches in message text.
// Matching is case-insensitive and Unicode-aware: letters and digits
// outside ASCII count as word characters, so "кот" does not match inside
// "котик". Matching is pure; a Matcher is safe for concurrent use only
// from a single goroutine because regexp2 runtimes carry internal state.
type Matcher struct {
	keywords []string
	patterns []*regexp2.Regexp
}

// New builds a matcher from the keyword list. Keywords are lowercased and
// trimmed; empty results are discarded. Keyword order is preserved for
// match summaries.
func New(keywords []string) (*Matcher, error) {
	m := &Matcher{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}

		// stdlib QuoteMeta escaping is valid regexp2 syntax
		pattern, err := regexp2.Compile(`\b`+regexp.QuoteMeta(kw)+`\b`, regexp2.IgnoreCase|regexp2.Unicode)
		if err != nil {
			return nil, fmt.Errorf("compile keyword pattern %q: %w", kw, err)
		}

		m.keywords = append(m.keywords, kw)
		m.patterns = append(m.patterns, pattern)
	}
	return m, nil
}

// Keywords returns the normalized keyword list in configured order.
func (m *Matcher) Keywords() []string {
	return m.keywords
}

// Matches reports whether text contains at least one keyword.
func (m *Matcher) Matches(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range m.patterns {
		if ok, _ := p.MatchString(text); ok {
			return true
		}
	}
	return false
}

// FindMatches returns all matched keywords in configured order.
func (m *Matcher) FindMatches(text string) []string {
	if text == "" {
		return nil
	}
	var matches []string
	for i, p := range m.patterns {
		if ok, _ := p.MatchString(text); ok {
			matches = append(matches, m.keywords[i])
		}
	}
	return matches
}

// Summary returns a human-readable description of the matches in text, or
// "" when nothing matched. At most three keywords are listed; the rest are
// folded into a "+N more" suffix.
func (m *Matcher) Summary(text string) string {
	matches := m.FindMatches(text)
	if len(matches) == 0 {
		return ""
	}

	if len(matches) == 1 {
		return fmt.Sprintf("Keyword matched: '%s'", matches[0])
	}

	shown := matches
	if len(shown) > 3 {
		shown = shown[:3]
	}
	quoted := make([]string, len(shown))
	for i, kw := range shown {
		quoted[i] = "'" + kw + "'"
	}

	extra := ""
	if len(matches) > 3 {
		extra = fmt.Sprintf(" (+%d more)", len(matches)-3)
	}
	return fmt.Sprintf("Keywords matched: %s%s", strings.Join(quoted, ", "), extra)
}
