package anchor

import (
	_ "embed"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Field names of the built-in rule set.
const (
	FieldCompanyName     = "company_name"
	FieldStreet          = "street"
	FieldExteriorNumber  = "exterior_number"
	FieldColony          = "colony"
	FieldCity            = "city"
	FieldState           = "state"
	FieldPostalCode      = "postal_code"
	FieldFirstName       = "first_name"
	FieldPaternalSurname = "paternal_surname"
	FieldMaternalSurname = "maternal_surname"
)

//go:embed rules.yaml
var defaultRules []byte

// RuleSet is a named collection of compiled rules.
type RuleSet struct {
	matchers map[string]*Matcher
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules parses and compiles a YAML rule document.
func LoadRules(data []byte) (*RuleSet, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "anchor: parse rules")
	}
	rs := &RuleSet{matchers: make(map[string]*Matcher, len(f.Rules))}
	for _, r := range f.Rules {
		if r.Field == "" {
			return nil, eris.New("anchor: rule without field name")
		}
		if _, dup := rs.matchers[r.Field]; dup {
			return nil, eris.Errorf("anchor: duplicate rule for %q", r.Field)
		}
		m, err := Compile(r)
		if err != nil {
			return nil, err
		}
		rs.matchers[r.Field] = m
	}
	return rs, nil
}

var (
	defaultOnce sync.Once
	defaultSet  *RuleSet
)

// Default returns the built-in rule set for SAT registration pages.
func Default() *RuleSet {
	defaultOnce.Do(func() {
		rs, err := LoadRules(defaultRules)
		if err != nil {
			panic(err)
		}
		defaultSet = rs
	})
	return defaultSet
}

// Find runs the rule named field against text. Unknown fields yield "".
func (rs *RuleSet) Find(field, text string) string {
	if rs == nil {
		return ""
	}
	return rs.matchers[field].Find(text)
}

// Has reports whether the set has a rule for field.
func (rs *RuleSet) Has(field string) bool {
	if rs == nil {
		return false
	}
	_, ok := rs.matchers[field]
	return ok
}
