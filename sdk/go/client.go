package compliancekitsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal ComplianceKit HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Selection struct {
	CompanyType  string `json:"company_type"`
	Jurisdiction string `json:"jurisdiction"`
	Industry     string `json:"industry"`
}

type ChecklistItem struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type Checklist struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	CompanyType  string          `json:"company_type"`
	Jurisdiction string          `json:"jurisdiction"`
	Industry     string          `json:"industry"`
	Items        []ChecklistItem `json:"items"`
	Source       string          `json:"source"`
	CreatedAt    string          `json:"created_at"`
}

type Group struct {
	Category string          `json:"category"`
	Items    []ChecklistItem `json:"items"`
}

type Reminder struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	DueDate     string  `json:"due_date"`
	Completed   bool    `json:"completed"`
	Overdue     bool    `json:"overdue"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	OwnerID    string         `json:"owner_id"`
	Payload    map[string]any `json:"payload"`
}

type Options struct {
	CompanyTypes  []string `json:"company_types"`
	Jurisdictions []string `json:"jurisdictions"`
	Industries    []string `json:"industries"`
	Priorities    []string `json:"priorities"`
	Source        string   `json:"source"`
}

type Archive struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

type APIKey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	Key       string `json:"key,omitempty"`
}

// Page is one slice of a listing; pass NextCursor back to get the following slice.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Me returns the user id the server resolved from the credentials.
func (c *Client) Me(ctx context.Context) (string, error) {
	var resp struct {
		UserID string `json:"user_id"`
	}
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp.UserID, err
}

// Options returns the selectable values.
func (c *Client) Options(ctx context.Context) (Options, error) {
	var resp Options
	err := c.do(ctx, http.MethodGet, "options", nil, &resp)
	return resp, err
}

// CreateChecklist generates and stores a checklist.
func (c *Client) CreateChecklist(ctx context.Context, sel Selection) (Checklist, error) {
	var resp Checklist
	err := c.do(ctx, http.MethodPost, "checklists", sel, &resp)
	return resp, err
}

// Checklists lists the caller's checklists, newest first.
func (c *Client) Checklists(ctx context.Context, limit int, cursor string) (Page[Checklist], error) {
	var resp Page[Checklist]
	err := c.do(ctx, http.MethodGet, pageQuery("checklists", limit, cursor), nil, &resp)
	return resp, err
}

func (c *Client) GetChecklist(ctx context.Context, id string) (Checklist, error) {
	var resp Checklist
	err := c.do(ctx, http.MethodGet, "checklists/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Groups returns the checklist's items partitioned by category.
func (c *Client) Groups(ctx context.Context, id string) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	err := c.do(ctx, http.MethodGet, "checklists/"+url.PathEscape(id)+"/groups", nil, &resp)
	return resp.Groups, err
}

// Download fetches the text export and the file name suggested by the server.
func (c *Client) Download(ctx context.Context, id string) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, "checklists/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return data, name, nil
}

// Archive stores the export in object storage and returns a presigned link.
func (c *Client) Archive(ctx context.Context, id string) (Archive, error) {
	var resp Archive
	err := c.do(ctx, http.MethodPost, "checklists/"+url.PathEscape(id)+"/archive", nil, &resp)
	return resp, err
}

// CreateReminder adds a reminder due on dueDate (YYYY-MM-DD).
func (c *Client) CreateReminder(ctx context.Context, title, description, dueDate string) (Reminder, error) {
	body := map[string]any{
		"title":    title,
		"due_date": dueDate,
	}
	if description != "" {
		body["description"] = description
	}
	var resp Reminder
	err := c.do(ctx, http.MethodPost, "reminders", body, &resp)
	return resp, err
}

// Reminders lists the caller's reminders by due date.
func (c *Client) Reminders(ctx context.Context, limit int, cursor string) (Page[Reminder], error) {
	var resp Page[Reminder]
	err := c.do(ctx, http.MethodGet, pageQuery("reminders", limit, cursor), nil, &resp)
	return resp, err
}

func (c *Client) GetReminder(ctx context.Context, id string) (Reminder, error) {
	var resp Reminder
	err := c.do(ctx, http.MethodGet, "reminders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ToggleReminder flips the completed flag.
func (c *Client) ToggleReminder(ctx context.Context, id string) (Reminder, error) {
	var resp Reminder
	err := c.do(ctx, http.MethodPost, "reminders/"+url.PathEscape(id)+"/toggle", nil, &resp)
	return resp, err
}

// SetReminderCompleted marks a reminder complete or incomplete.
func (c *Client) SetReminderCompleted(ctx context.Context, id string, completed bool) (Reminder, error) {
	var resp Reminder
	err := c.do(ctx, http.MethodPut, "reminders/"+url.PathEscape(id)+"/completed", map[string]any{"completed": completed}, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (Page[Event], error) {
	var resp Page[Event]
	err := c.do(ctx, http.MethodGet, pageQuery("events", limit, cursor), nil, &resp)
	return resp, err
}

// CreateAPIKey issues a key; APIKey.Key holds the plaintext and is only returned here.
func (c *Client) CreateAPIKey(ctx context.Context, name string) (APIKey, error) {
	var resp APIKey
	err := c.do(ctx, http.MethodPost, "api-keys", map[string]any{"name": name}, &resp)
	return resp, err
}

func pageQuery(endpoint string, limit int, cursor string) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	prefix := strings.Trim(c.BasePath, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
