package server

import (
	"compliancekit/internal/checklist"
	"compliancekit/internal/domain"
)

// Request payloads

type CreateChecklistRequest struct {
	CompanyType  string `json:"company_type" example:"Private Limited Company"`
	Jurisdiction string `json:"jurisdiction" example:"Karnataka"`
	Industry     string `json:"industry" example:"Technology / IT Services"`
}

func (r CreateChecklistRequest) Selection() domain.Selection {
	return domain.Selection{CompanyType: r.CompanyType, Jurisdiction: r.Jurisdiction, Industry: r.Industry}
}

type CreateReminderRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	DueDate     string  `json:"due_date" example:"2026-03-31"`
}

type SetCompletedRequest struct {
	Completed bool `json:"completed"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Responses

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Source string `json:"source" enum:"jwt,api_key,legacy_header"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type OptionsResponse struct {
	CompanyTypes    []string          `json:"company_types"`
	Jurisdictions   []string          `json:"jurisdictions"`
	Industries      []string          `json:"industries"`
	Priorities      []domain.Priority `json:"priorities"`
	Source          string            `json:"source"`
	StrictSelection bool              `json:"strict_selection"`
}

type GroupedChecklistResponse struct {
	Checklist domain.ChecklistRecord `json:"checklist"`
	Groups    []checklist.Group      `json:"groups"`
}

type ArchiveResponse struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type ReminderResponse struct {
	domain.Reminder
	Overdue bool `json:"overdue"`
}

type ReminderPage struct {
	Items      []ReminderResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	OwnerID    string         `json:"owner_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type EventPage struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type CreatedAPIKeyResponse struct {
	domain.APIKey
	Key string `json:"key"`
}
