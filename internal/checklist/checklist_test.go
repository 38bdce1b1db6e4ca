package checklist

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliancekit/internal/domain"
)

func sel(companyType, jurisdiction, industry string) domain.Selection {
	return domain.Selection{CompanyType: companyType, Jurisdiction: jurisdiction, Industry: industry}
}

func findItem(t *testing.T, items []domain.ChecklistItem, title string) domain.ChecklistItem {
	t.Helper()
	for _, it := range items {
		if it.Title == title {
			return it
		}
	}
	t.Fatalf("item %q not found", title)
	return domain.ChecklistItem{}
}

func TestDeriveProducesCompleteItems(t *testing.T) {
	catalog := DefaultCatalog()
	for _, ct := range catalog.CompanyTypes {
		for _, j := range catalog.Jurisdictions {
			for _, ind := range catalog.Industries {
				items := DeriveChecklist(sel(ct, j, ind))
				require.Len(t, items, 16)
				for _, it := range items {
					assert.NotEmpty(t, it.Category)
					assert.NotEmpty(t, it.Title)
					assert.NotEmpty(t, it.Description)
					assert.True(t, it.Priority.Valid(), "priority %q", it.Priority)
				}
			}
		}
	}
}

func TestDeriveAcceptsUnknownValues(t *testing.T) {
	items := DeriveChecklist(sel("Cooperative", "Atlantis", "Space Mining"))
	require.NotEmpty(t, items)

	reg := findItem(t, items, "Company Registration")
	assert.Contains(t, reg.Description, "Cooperative")
	assert.Equal(t, domain.PriorityLow, findItem(t, items, "Environmental Clearances").Priority)
	assert.Equal(t, domain.PriorityMedium, findItem(t, items, "Privacy Policy").Priority)
}

func TestDeriveIsDeterministic(t *testing.T) {
	s := sel("Private Limited Company", "Karnataka", "Healthcare")
	first := DeriveChecklist(s)

	var wg sync.WaitGroup
	results := make([][]domain.ChecklistItem, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = DeriveChecklist(s)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, first, r)
	}
}

func TestDeriveConditionalPriorities(t *testing.T) {
	cases := []struct {
		industry      string
		environmental domain.Priority
		privacy       domain.Priority
	}{
		{"Manufacturing", domain.PriorityHigh, domain.PriorityMedium},
		{"Technology / IT Services", domain.PriorityLow, domain.PriorityHigh},
		{"E-commerce / Retail", domain.PriorityLow, domain.PriorityHigh},
		{"Healthcare", domain.PriorityLow, domain.PriorityMedium},
		{"manufacturing", domain.PriorityLow, domain.PriorityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.industry, func(t *testing.T) {
			items := DeriveChecklist(sel("Sole Proprietorship", "Delhi", tc.industry))
			assert.Equal(t, tc.environmental, findItem(t, items, "Environmental Clearances").Priority)
			assert.Equal(t, tc.privacy, findItem(t, items, "Privacy Policy").Priority)
		})
	}
}

func TestDeriveInterpolation(t *testing.T) {
	items := DeriveChecklist(sel("Partnership Firm", "Kerala", "Education"))

	assert.Contains(t, findItem(t, items, "Company Registration").Description, "Partnership Firm")
	assert.Contains(t, findItem(t, items, "Professional Tax Registration").Description, "Kerala")
	assert.Contains(t, findItem(t, items, "Shops and Establishments Act").Description, "Kerala")

	lic := findItem(t, items, "Education Licenses")
	assert.Equal(t, "Industry-Specific Compliance", lic.Category)
	assert.Contains(t, lic.Description, "Education")
	assert.Contains(t, lic.Description, "Kerala")

	for _, it := range items {
		assert.NotContains(t, it.Title, "{")
		assert.NotContains(t, it.Description, "{")
	}
}

func TestDeriveInputIndependentDescriptions(t *testing.T) {
	a := DeriveChecklist(sel("Partnership Firm", "Kerala", "Education"))
	b := DeriveChecklist(sel("One Person Company (OPC)", "Gujarat", "Consulting"))
	require.Len(t, b, len(a))

	interpolated := map[int]bool{0: true, 2: true, 8: true, 9: true}
	for i := range a {
		if interpolated[i] {
			continue
		}
		assert.Equal(t, a[i].Description, b[i].Description, "item %d", i)
	}
}

func TestDeriveCategoriesContiguous(t *testing.T) {
	items := DeriveChecklist(sel("Private Limited Company", "Delhi", "Consulting"))
	seen := map[string]bool{}
	prev := ""
	for _, it := range items {
		if it.Category != prev {
			assert.False(t, seen[it.Category], "category %q split", it.Category)
			seen[it.Category] = true
			prev = it.Category
		}
	}
	assert.Len(t, seen, 7)
}

func TestGroupByCategory(t *testing.T) {
	items := []domain.ChecklistItem{
		{Category: "B", Title: "1"},
		{Category: "A", Title: "2"},
		{Category: "B", Title: "3"},
		{Category: "C", Title: "4"},
		{Category: "A", Title: "5"},
	}
	groups := GroupByCategory(items)
	require.Len(t, groups, 3)
	assert.Equal(t, "B", groups[0].Category)
	assert.Equal(t, []string{"1", "3"}, titles(groups[0].Items))
	assert.Equal(t, "A", groups[1].Category)
	assert.Equal(t, []string{"2", "5"}, titles(groups[1].Items))
	assert.Equal(t, "C", groups[2].Category)

	again := GroupByCategory(Flatten(groups))
	assert.Equal(t, groups, again)
}

func TestGroupByCategoryEmpty(t *testing.T) {
	assert.Empty(t, GroupByCategory(nil))
}

func TestGroupByCategoryDerived(t *testing.T) {
	items := DeriveChecklist(sel("Private Limited Company", "Delhi", "Consulting"))
	groups := GroupByCategory(items)
	require.Len(t, groups, 7)
	assert.Equal(t, "Business Registrations", groups[0].Category)
	assert.Equal(t, "Contracts & Agreements", groups[6].Category)
	assert.Equal(t, items, Flatten(groups))
}

func titles(items []domain.ChecklistItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

func TestCatalogValidate(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate(sel("Partnership Firm", "Kerala", "Education")))

	err := c.Validate(sel("Partnership Firm", "Atlantis", ""))
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, domain.FieldError{Field: "jurisdiction", Reason: "unknown value"}, verr.Fields[0])
	assert.Equal(t, domain.FieldError{Field: "industry", Reason: "required"}, verr.Fields[1])
}

func TestRuleSourceGenerate(t *testing.T) {
	src := NewRuleSource(nil)
	assert.Equal(t, "rules", src.Name())
	items, err := src.Generate(context.Background(), sel("Partnership Firm", "Kerala", "Education"))
	require.NoError(t, err)
	assert.Equal(t, DeriveChecklist(sel("Partnership Firm", "Kerala", "Education")), items)
}

func TestValidateItems(t *testing.T) {
	out, err := ValidateItems([]domain.ChecklistItem{
		{Category: " Tax ", Title: "GST", Description: "File returns", Priority: "high"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, out[0].Priority)
	assert.Equal(t, "Tax", out[0].Category)

	_, err = ValidateItems(nil)
	require.Error(t, err)

	_, err = ValidateItems([]domain.ChecklistItem{{Category: "Tax", Title: "", Description: "x", Priority: "Urgent"}})
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
	assert.Equal(t, "checklist[0].title", verr.Fields[0].Field)
}

const minimalRuleSet = `
items:
  - key: registration
    category: Business Registrations
    title: Registration
    description: "Register in {jurisdiction}."
    priority: Medium
  - key: returns
    category: Tax Compliance
    title: Returns
    description: File returns.
    priority: Low
rules:
  - item: registration
    match_field: jurisdiction
    match_value: Kerala
    priority: High
`

func TestParseJurisdictionRule(t *testing.T) {
	rs, err := Parse([]byte(minimalRuleSet))
	require.NoError(t, err)

	kerala := rs.Derive(sel("Partnership Firm", "Kerala", "Education"))
	delhi := rs.Derive(sel("Partnership Firm", "Delhi", "Education"))
	assert.Equal(t, domain.PriorityHigh, kerala[0].Priority)
	assert.Equal(t, domain.PriorityMedium, delhi[0].Priority)
	assert.Equal(t, kerala[1], delhi[1])
	assert.Equal(t, "Register in Kerala.", kerala[0].Description)
}

func TestParseRejectsInvalidRuleSets(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name: "duplicate key",
			yaml: `
items:
  - {key: a, category: C, title: T, description: D, priority: High}
  - {key: a, category: C, title: T, description: D, priority: High}
`,
			field: "items[1].key",
		},
		{
			name: "bad priority",
			yaml: `
items:
  - {key: a, category: C, title: T, description: D, priority: Urgent}
`,
			field: "items[0].priority",
		},
		{
			name: "unknown placeholder",
			yaml: `
items:
  - {key: a, category: C, title: T, description: "In {country}", priority: Low}
`,
			field: "items[0].description",
		},
		{
			name: "rule for unknown item",
			yaml: `
items:
  - {key: a, category: C, title: T, description: D, priority: Low}
rules:
  - {item: b, match_field: industry, match_value: X, priority: High}
`,
			field: "rules[0].item",
		},
		{
			name: "rule on unknown field",
			yaml: `
items:
  - {key: a, category: C, title: T, description: D, priority: Low}
rules:
  - {item: a, match_field: size, match_value: X, priority: High}
`,
			field: "rules[0].match_field",
		},
		{
			name:  "no items",
			yaml:  `items: []`,
			field: "items",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			found := false
			for _, fe := range fieldErrs {
				if fe.Field == tc.field {
					found = true
				}
			}
			assert.True(t, found, "expected error on %s, got %v", tc.field, err)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("items: [unterminated"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid rule set yaml"))
}

func TestEmbeddedRuleSetValid(t *testing.T) {
	rs := Default()
	require.NoError(t, rs.Validate())
	assert.Len(t, rs.Items, 16)
	assert.Len(t, rs.Rules, 3)
}
