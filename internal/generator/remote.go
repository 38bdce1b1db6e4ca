// Package generator holds checklist sources that call out to other services.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"compliancekit/internal/checklist"
	"compliancekit/internal/domain"
)

// DefaultFunctionName is the remote function invoked when none is configured.
const DefaultFunctionName = "generate-checklist"

const maxResponseBytes = 1 << 20

// FunctionRequest is the payload of a generate-checklist invocation. State duplicates
// Jurisdiction for callers that still send the older key.
type FunctionRequest struct {
	CompanyType  string `json:"companyType"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	State        string `json:"state,omitempty"`
	Industry     string `json:"industry"`
}

// Selection resolves the jurisdiction from either key.
func (r FunctionRequest) Selection() domain.Selection {
	j := r.Jurisdiction
	if strings.TrimSpace(j) == "" {
		j = r.State
	}
	return domain.Selection{CompanyType: r.CompanyType, Jurisdiction: j, Industry: r.Industry}
}

// FunctionResponse carries either a checklist or an error message.
type FunctionResponse struct {
	Checklist []domain.ChecklistItem `json:"checklist,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Remote invokes a named function over HTTP: POST <BaseURL>/<Function>.
type Remote struct {
	BaseURL  string
	Function string
	Token    string
	Client   *http.Client
}

// NewRemote returns a Remote with a bounded HTTP client.
func NewRemote(baseURL, function, token string, timeout time.Duration) *Remote {
	if function == "" {
		function = DefaultFunctionName
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Function: function,
		Token:    token,
		Client:   &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Name() string { return "remote" }

// Invoke posts payload to the named function and decodes the JSON reply into out.
func (r *Remote) Invoke(ctx context.Context, name string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/"+name, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, failure.Error)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *Remote) Generate(ctx context.Context, sel domain.Selection) ([]domain.ChecklistItem, error) {
	payload := FunctionRequest{
		CompanyType:  sel.CompanyType,
		Jurisdiction: sel.Jurisdiction,
		State:        sel.Jurisdiction,
		Industry:     sel.Industry,
	}
	var out FunctionResponse
	if err := r.Invoke(ctx, r.Function, payload, &out); err != nil {
		return nil, domain.UpstreamError{Source: r.Name(), Err: err}
	}
	if out.Error != "" {
		return nil, domain.UpstreamError{Source: r.Name(), Err: errors.New(out.Error)}
	}
	items, err := checklist.ValidateItems(out.Checklist)
	if err != nil {
		return nil, domain.UpstreamError{Source: r.Name(), Err: err}
	}
	return items, nil
}
