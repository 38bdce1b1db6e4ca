// Package checklist derives compliance checklists from a declarative rule table.
//
// A RuleSet holds the canonical item templates and the conditional priority rules evaluated
// against them. Derivation is a pure function of the rule set and the selection: it performs no
// I/O, never fails, and is safe for concurrent use.
package checklist

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"compliancekit/internal/domain"
)

// Match fields a rule may test.
const (
	FieldCompanyType  = "companyType"
	FieldJurisdiction = "jurisdiction"
	FieldIndustry     = "industry"
)

//go:embed ruleset.yml
var embeddedRuleSet []byte

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z]+\}`)

var knownPlaceholders = map[string]bool{
	"{" + FieldCompanyType + "}":  true,
	"{" + FieldJurisdiction + "}": true,
	"{" + FieldIndustry + "}":     true,
}

// ItemTemplate is one canonical checklist item before interpolation.
type ItemTemplate struct {
	Key         string          `yaml:"key" json:"key"`
	Category    string          `yaml:"category" json:"category"`
	Title       string          `yaml:"title" json:"title"`
	Description string          `yaml:"description" json:"description"`
	Priority    domain.Priority `yaml:"priority" json:"priority"`
}

// Rule overrides the priority of one item when a selection field equals a value.
type Rule struct {
	Item       string          `yaml:"item" json:"item"`
	MatchField string          `yaml:"match_field" json:"match_field"`
	MatchValue string          `yaml:"match_value" json:"match_value"`
	Priority   domain.Priority `yaml:"priority" json:"priority"`
}

func (r Rule) matches(sel domain.Selection) bool {
	switch r.MatchField {
	case FieldCompanyType:
		return sel.CompanyType == r.MatchValue
	case FieldJurisdiction:
		return sel.Jurisdiction == r.MatchValue
	case FieldIndustry:
		return sel.Industry == r.MatchValue
	}
	return false
}

// RuleSet is an immutable, validated rule table.
type RuleSet struct {
	Items []ItemTemplate `yaml:"items" json:"items"`
	Rules []Rule         `yaml:"rules" json:"rules"`

	byItem map[string][]Rule
}

var defaultRuleSet = sync.OnceValue(func() *RuleSet {
	rs, err := Parse(embeddedRuleSet)
	if err != nil {
		panic(fmt.Sprintf("embedded rule set: %v", err))
	}
	return rs
})

// Default returns the embedded rule set.
func Default() *RuleSet {
	return defaultRuleSet()
}

// Parse decodes and validates a YAML rule set.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("invalid rule set yaml: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	rs.index()
	return &rs, nil
}

// Load reads a rule set file from disk.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rule set %s: %w", path, err)
	}
	return rs, nil
}

// Validate reports every structural problem as criterio field errors.
func (rs *RuleSet) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if len(rs.Items) == 0 {
		errs = errs.Append("items", fmt.Errorf("at least one item is required"))
	}
	keys := make(map[string]bool, len(rs.Items))
	for i, it := range rs.Items {
		field := fmt.Sprintf("items[%d]", i)
		key := strings.TrimSpace(it.Key)
		switch {
		case key == "":
			errs = errs.Append(field+".key", fmt.Errorf("key is required"))
		case keys[key]:
			errs = errs.Append(field+".key", fmt.Errorf("duplicate key %q", key))
		}
		keys[key] = true
		if strings.TrimSpace(it.Category) == "" {
			errs = errs.Append(field+".category", fmt.Errorf("category is required"))
		}
		if err := checkText(it.Title); err != nil {
			errs = errs.Append(field+".title", err)
		}
		if err := checkText(it.Description); err != nil {
			errs = errs.Append(field+".description", err)
		}
		if !it.Priority.Valid() {
			errs = errs.Append(field+".priority", fmt.Errorf("invalid priority %q", it.Priority))
		}
	}
	for i, r := range rs.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if !keys[r.Item] {
			errs = errs.Append(field+".item", fmt.Errorf("unknown item %q", r.Item))
		}
		switch r.MatchField {
		case FieldCompanyType, FieldJurisdiction, FieldIndustry:
		default:
			errs = errs.Append(field+".match_field", fmt.Errorf("unknown field %q", r.MatchField))
		}
		if strings.TrimSpace(r.MatchValue) == "" {
			errs = errs.Append(field+".match_value", fmt.Errorf("match_value is required"))
		}
		if !r.Priority.Valid() {
			errs = errs.Append(field+".priority", fmt.Errorf("invalid priority %q", r.Priority))
		}
	}
	return errs.ToError()
}

// checkText rejects unknown placeholders and text that is blank once placeholders are removed.
func checkText(text string) error {
	for _, ph := range placeholderPattern.FindAllString(text, -1) {
		if !knownPlaceholders[ph] {
			return fmt.Errorf("unknown placeholder %s", ph)
		}
	}
	if strings.TrimSpace(placeholderPattern.ReplaceAllString(text, "")) == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

func (rs *RuleSet) index() {
	rs.byItem = make(map[string][]Rule, len(rs.Rules))
	for _, r := range rs.Rules {
		rs.byItem[r.Item] = append(rs.byItem[r.Item], r)
	}
}

func (rs *RuleSet) priorityFor(tpl ItemTemplate, sel domain.Selection) domain.Priority {
	for _, r := range rs.byItem[tpl.Key] {
		if r.matches(sel) {
			return r.Priority
		}
	}
	return tpl.Priority
}
