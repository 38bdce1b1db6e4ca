// Package export turns checklist records into downloadable documents.
package export

import (
	"fmt"
	"strings"

	"compliancekit/internal/checklist"
	"compliancekit/internal/domain"
)

const ContentTypeText = "text/plain; charset=utf-8"

// Document is a rendered export ready to be served or stored.
type Document struct {
	Name        string
	ContentType string
	Body        []byte
}

// FileName returns the download name for a checklist.
func FileName(id string) string {
	return "compliance-checklist-" + id + ".txt"
}

// RenderText writes the plain-text form of rec: a header naming the three inputs, then each item
// grouped by category, separated by blank lines.
func RenderText(rec domain.ChecklistRecord) string {
	var b strings.Builder
	b.WriteString("Compliance Checklist\n\n")
	fmt.Fprintf(&b, "Company Type: %s\n", rec.CompanyType)
	fmt.Fprintf(&b, "State: %s\n", rec.Jurisdiction)
	fmt.Fprintf(&b, "Industry: %s\n\n", rec.Industry)

	items := checklist.Flatten(checklist.GroupByCategory(rec.Items))
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s\n%s\n%s\nPriority: %s\n", it.Category, it.Title, it.Description, it.Priority))
	}
	b.WriteString(strings.Join(parts, "\n"))
	return b.String()
}

// Text renders rec as a named text document.
func Text(rec domain.ChecklistRecord) Document {
	return Document{Name: FileName(rec.ID), ContentType: ContentTypeText, Body: []byte(RenderText(rec))}
}
