package checklist

import "compliancekit/internal/domain"

// Group is one category and its items in original order.
type Group struct {
	Category string                 `json:"category"`
	Items    []domain.ChecklistItem `json:"items"`
}

// GroupByCategory partitions items by category. Categories keep first-seen order and items keep
// their relative order within a category; nothing is sorted.
func GroupByCategory(items []domain.ChecklistItem) []Group {
	groups := make([]Group, 0)
	pos := make(map[string]int)
	for _, it := range items {
		i, ok := pos[it.Category]
		if !ok {
			i = len(groups)
			pos[it.Category] = i
			groups = append(groups, Group{Category: it.Category})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// Flatten concatenates groups back into a single item list.
func Flatten(groups []Group) []domain.ChecklistItem {
	var out []domain.ChecklistItem
	for _, g := range groups {
		out = append(out, g.Items...)
	}
	return out
}
