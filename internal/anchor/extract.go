package anchor

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Rule declares how one field is located in page text: the labels that may
// precede it, the labels that may follow it, a length bound, the stop set
// that bounds it and the names of post-processors applied after the generic
// cleanup.
type Rule struct {
	Field  string   `yaml:"field"`
	Start  []string `yaml:"start"`
	End    []string `yaml:"end"`
	MaxLen int      `yaml:"max_len"`
	Stops  StopSet  `yaml:"stops"`
	Post   []string `yaml:"post"`
}

// Matcher is a compiled Rule.
type Matcher struct {
	rule    Rule
	between *regexp.Regexp
	start   *regexp.Regexp
	post    []PostFunc
}

// Compile builds a Matcher from r. A rule without start labels is invalid,
// as is one naming an unknown post-processor.
func Compile(r Rule) (*Matcher, error) {
	startGroup := group(r.Start)
	if startGroup == "" {
		return nil, eris.Errorf("anchor: rule %q has no start labels", r.Field)
	}
	if r.Stops != StopsAddress && r.Stops != StopsName {
		return nil, eris.Errorf("anchor: rule %q has unknown stops %q (valid: names)", r.Field, r.Stops)
	}
	m := &Matcher{rule: r}
	var err error
	if m.start, err = regexp.Compile(`(?is)` + startGroup + `\s*:?\s*`); err != nil {
		return nil, eris.Wrapf(err, "anchor: compile start labels of %q", r.Field)
	}
	if endGroup := group(r.End); endGroup != "" {
		if m.between, err = regexp.Compile(`(?is)` + startGroup + `\s*:?\s*(.*?)\s*` + endGroup); err != nil {
			return nil, eris.Wrapf(err, "anchor: compile end labels of %q", r.Field)
		}
	}
	for _, name := range r.Post {
		fn, ok := postProcessors[name]
		if !ok {
			return nil, eris.Errorf("anchor: rule %q names unknown post-processor %q", r.Field, name)
		}
		m.post = append(m.post, fn)
	}
	return m, nil
}

// Field returns the name of the field the matcher extracts.
func (m *Matcher) Field() string { return m.rule.Field }

// Find extracts the value between the earliest start label and the nearest
// following end label. Without an end label it stops at the next
// "Label:" pair or at the length bound. It returns "" when nothing matches.
func (m *Matcher) Find(text string) string {
	if m == nil || text == "" {
		return ""
	}
	text = Sanitize(text)
	maxLen := m.rule.MaxLen

	val := ""
	if m.between != nil {
		if sm := m.between.FindStringSubmatch(text); sm != nil && sm[1] != "" {
			val = postClean(sm[1], maxLen, m.rule.Stops)
		}
	}
	if val == "" {
		val = m.fallback(text, maxLen)
	}
	for _, fn := range m.post {
		if val == "" {
			break
		}
		val = fn(val)
	}
	return truncate(val, maxLen)
}

func (m *Matcher) fallback(text string, maxLen int) string {
	loc := m.start.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if stop := labelIndex(rest); stop >= 0 {
		rest = rest[:stop]
	} else {
		rest = truncate(rest, maxLen)
	}
	return postClean(rest, maxLen, m.rule.Stops)
}

// Extract is the one-off form of Compile(...).Find(text). Invalid label sets
// yield "".
func Extract(text string, start, end []string, maxLen int) string {
	m, err := Compile(Rule{Start: start, End: end, MaxLen: maxLen})
	if err != nil {
		return ""
	}
	return m.Find(text)
}

// PostFunc transforms an extracted value.
type PostFunc func(string) string

var postProcessors = map[string]PostFunc{
	"strip_street_label": func(s string) string { return StripLeadingLabel(s) },
	"strip_street_type":  StripStreetType,
	"company_name":       CleanCompanyName,
	"upper":              strings.ToUpper,
	"digits": func(s string) string {
		return strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s)
	},
}
