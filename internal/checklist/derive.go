package checklist

import (
	"context"
	"strconv"
	"strings"

	"compliancekit/internal/domain"
)

// Derive maps a selection to the ordered checklist described by the rule set.
// Unknown selection values are substituted verbatim; Derive never fails.
func (rs *RuleSet) Derive(sel domain.Selection) []domain.ChecklistItem {
	r := strings.NewReplacer(
		"{"+FieldCompanyType+"}", sel.CompanyType,
		"{"+FieldJurisdiction+"}", sel.Jurisdiction,
		"{"+FieldIndustry+"}", sel.Industry,
	)
	items := make([]domain.ChecklistItem, 0, len(rs.Items))
	for _, tpl := range rs.Items {
		items = append(items, domain.ChecklistItem{
			Category:    tpl.Category,
			Title:       r.Replace(tpl.Title),
			Description: r.Replace(tpl.Description),
			Priority:    rs.priorityFor(tpl, sel),
		})
	}
	return items
}

// DeriveChecklist derives a checklist with the embedded rule set.
func DeriveChecklist(sel domain.Selection) []domain.ChecklistItem {
	return Default().Derive(sel)
}

// Source produces checklist items for a selection. Implementations other than
// RuleSource may call remote services and fail with domain.UpstreamError.
type Source interface {
	Name() string
	Generate(ctx context.Context, sel domain.Selection) ([]domain.ChecklistItem, error)
}

// RuleSource serves checklists from a rule set.
type RuleSource struct {
	Rules *RuleSet
}

// NewRuleSource returns a source backed by rs, or by the embedded rule set when rs is nil.
func NewRuleSource(rs *RuleSet) RuleSource {
	if rs == nil {
		rs = Default()
	}
	return RuleSource{Rules: rs}
}

func (s RuleSource) Name() string { return "rules" }

func (s RuleSource) Generate(_ context.Context, sel domain.Selection) ([]domain.ChecklistItem, error) {
	rs := s.Rules
	if rs == nil {
		rs = Default()
	}
	return rs.Derive(sel), nil
}

// ValidateItems checks items produced by an untrusted source and normalizes priority spelling.
func ValidateItems(items []domain.ChecklistItem) ([]domain.ChecklistItem, error) {
	var verr domain.ValidationError
	if len(items) == 0 {
		return nil, verr.Add("checklist", "empty")
	}
	out := make([]domain.ChecklistItem, 0, len(items))
	for i, it := range items {
		it.Category = strings.TrimSpace(it.Category)
		it.Title = strings.TrimSpace(it.Title)
		it.Description = strings.TrimSpace(it.Description)
		if it.Category == "" {
			verr = verr.Add(fieldName(i, "category"), "required")
		}
		if it.Title == "" {
			verr = verr.Add(fieldName(i, "title"), "required")
		}
		if it.Description == "" {
			verr = verr.Add(fieldName(i, "description"), "required")
		}
		p, err := domain.ParsePriority(string(it.Priority))
		if err != nil {
			verr = verr.Add(fieldName(i, "priority"), err.Error())
		}
		it.Priority = p
		out = append(out, it)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func fieldName(i int, name string) string {
	return "checklist[" + strconv.Itoa(i) + "]." + name
}
