package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"compliancekit/internal/checklist"
	"compliancekit/internal/domain"
	"compliancekit/internal/llm"
)

const systemPrompt = `You are a regulatory compliance assistant for businesses in India.
Respond with a single JSON object of the form {"checklist":[{"category":"...","title":"...","description":"...","priority":"High|Medium|Low"}]} and nothing else.`

// LLM asks a completion provider for a checklist.
type LLM struct {
	Provider llm.Provider
	Model    string
	// Categories are suggested to the model so its output groups like the rule table.
	Categories []string
}

// NewLLM returns an LLM source whose category hints come from the embedded rule set.
func NewLLM(p llm.Provider, model string) *LLM {
	var cats []string
	for _, g := range checklist.GroupByCategory(checklist.Default().Derive(domain.Selection{})) {
		cats = append(cats, g.Category)
	}
	return &LLM{Provider: p, Model: model, Categories: cats}
}

func (g *LLM) Name() string { return "llm" }

func (g *LLM) Generate(ctx context.Context, sel domain.Selection) ([]domain.ChecklistItem, error) {
	resp, err := g.Provider.Complete(ctx, &llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   g.prompt(sel),
		Temperature:  0.2,
		Model:        g.Model,
	})
	if err != nil {
		return nil, domain.UpstreamError{Source: g.Name(), Err: err}
	}
	var out FunctionResponse
	if err := decodeObject(resp.Content, &out); err != nil {
		return nil, domain.UpstreamError{Source: g.Name(), Err: err}
	}
	items, err := checklist.ValidateItems(out.Checklist)
	if err != nil {
		return nil, domain.UpstreamError{Source: g.Name(), Err: err}
	}
	return items, nil
}

func (g *LLM) prompt(sel domain.Selection) string {
	var b strings.Builder
	b.WriteString("Generate a compliance checklist for this business.\n\n")
	fmt.Fprintf(&b, "Company type: %s\n", sel.CompanyType)
	fmt.Fprintf(&b, "State: %s\n", sel.Jurisdiction)
	fmt.Fprintf(&b, "Industry: %s\n", sel.Industry)
	if len(g.Categories) > 0 {
		b.WriteString("\nUse these categories where they apply, in this order:\n")
		for _, c := range g.Categories {
			b.WriteString("- " + c + "\n")
		}
	}
	return b.String()
}

// decodeObject extracts the outermost JSON object from text that may be wrapped in prose or a
// code fence.
func decodeObject(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in completion")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	return nil
}
