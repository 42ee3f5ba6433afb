package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Rule is one predicate. A rule matches when the normalized text is at least
// MinLength runes long and any of its matchers fires.
type Rule struct {
	// Keywords are phrases matched on word boundaries.
	Keywords []string `yaml:"keywords,omitempty" mapstructure:"keywords"`
	// Fragments are substrings matched anywhere.
	Fragments []string `yaml:"fragments,omitempty" mapstructure:"fragments"`
	// Leading matches the first word of the text.
	Leading []string `yaml:"leading,omitempty" mapstructure:"leading"`
	// Pattern is an optional regular expression.
	Pattern string `yaml:"pattern,omitempty" mapstructure:"pattern"`
	// MinLength gates the rule entirely.
	MinLength int `yaml:"min_length,omitempty" mapstructure:"min_length"`
	// LongerThan, when positive, matches any text strictly longer than it.
	LongerThan int `yaml:"longer_than,omitempty" mapstructure:"longer_than"`
}

// IsZero reports whether the rule has no matcher at all.
func (r Rule) IsZero() bool {
	return len(r.Keywords) == 0 && len(r.Fragments) == 0 && len(r.Leading) == 0 &&
		r.Pattern == "" && r.LongerThan == 0
}

// compiledRule is a Rule with its regular expressions prepared.
type compiledRule struct {
	keywords  *regexp.Regexp
	fragments []string
	leading   map[string]struct{}
	pattern   *regexp.Regexp
	minLength int
	longer    int
	zero      bool
}

func compileRule(r Rule) (*compiledRule, error) {
	c := &compiledRule{
		fragments: r.Fragments,
		minLength: r.MinLength,
		longer:    r.LongerThan,
		zero:      r.IsZero(),
	}
	if len(r.Keywords) > 0 {
		quoted := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = Normalize(k)
			if k == "" {
				continue
			}
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
		if len(quoted) > 0 {
			re, err := regexp.Compile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
			if err != nil {
				return nil, err
			}
			c.keywords = re
		}
	}
	if len(r.Leading) > 0 {
		c.leading = make(map[string]struct{}, len(r.Leading))
		for _, w := range r.Leading {
			c.leading[Normalize(w)] = struct{}{}
		}
	}
	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		c.pattern = re
	}
	return c, nil
}

// match evaluates the rule against already-normalized text.
func (c *compiledRule) match(text string) bool {
	if c == nil || c.zero || text == "" {
		return false
	}
	n := utf8.RuneCountInString(text)
	if n < c.minLength {
		return false
	}
	if c.longer > 0 && n > c.longer {
		return true
	}
	if c.keywords != nil && c.keywords.MatchString(text) {
		return true
	}
	for _, f := range c.fragments {
		if strings.Contains(text, f) {
			return true
		}
	}
	if c.leading != nil {
		first, _, _ := strings.Cut(text, " ")
		if _, ok := c.leading[first]; ok {
			return true
		}
	}
	return c.pattern != nil && c.pattern.MatchString(text)
}

// Normalize trims, lower-cases and collapses whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
