package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for reminder due dates.
const DateLayout = "2006-01-02"

// Priority is the urgency tag attached to a checklist item.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists the valid priorities from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority accepts the canonical spelling in any letter case.
func ParsePriority(s string) (Priority, error) {
	for _, p := range Priorities {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", s)
}

// Selection is the input triple a checklist is derived from.
type Selection struct {
	CompanyType  string `json:"company_type" yaml:"company_type"`
	Jurisdiction string `json:"jurisdiction" yaml:"jurisdiction"`
	Industry     string `json:"industry" yaml:"industry"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (s Selection) Trimmed() Selection {
	return Selection{
		CompanyType:  strings.TrimSpace(s.CompanyType),
		Jurisdiction: strings.TrimSpace(s.Jurisdiction),
		Industry:     strings.TrimSpace(s.Industry),
	}
}

// Validate requires all three inputs to be non-blank.
func (s Selection) Validate() error {
	var verr ValidationError
	if strings.TrimSpace(s.CompanyType) == "" {
		verr = verr.Add("company_type", "required")
	}
	if strings.TrimSpace(s.Jurisdiction) == "" {
		verr = verr.Add("jurisdiction", "required")
	}
	if strings.TrimSpace(s.Industry) == "" {
		verr = verr.Add("industry", "required")
	}
	return verr.OrNil()
}

type ChecklistItem struct {
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority" enum:"High,Medium,Low"`
}

type ChecklistRecord struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	CompanyType  string          `json:"company_type"`
	Jurisdiction string          `json:"jurisdiction"`
	Industry     string          `json:"industry"`
	Items        []ChecklistItem `json:"items"`
	Source       string          `json:"source"`
	CreatedAt    string          `json:"created_at" format:"date-time"`
}

// Selection returns the inputs the record was derived from.
func (r ChecklistRecord) Selection() Selection {
	return Selection{CompanyType: r.CompanyType, Jurisdiction: r.Jurisdiction, Industry: r.Industry}
}

type Reminder struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	DueDate     string  `json:"due_date" format:"date"`
	Completed   bool    `json:"completed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Overdue reports whether the reminder is still open and its due date lies before the day of now.
func (r Reminder) Overdue(now time.Time) bool {
	if r.Completed {
		return false
	}
	due, err := time.Parse(DateLayout, r.DueDate)
	if err != nil {
		return false
	}
	return due.Format(DateLayout) < now.Format(DateLayout)
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	OwnerID    string `json:"owner_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Page is one slice of an owner-scoped listing plus the cursor for the next slice.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}
