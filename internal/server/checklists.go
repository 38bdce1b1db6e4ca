package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"compliancekit/internal/domain"
	"compliancekit/internal/engine"
	"compliancekit/internal/export"
	"compliancekit/internal/generator"
)

type checklistIDInput struct {
	ID string `path:"id"`
}

type pageInput struct {
	Limit  int    `query:"limit" minimum:"0" doc:"Page size; 0 selects the server default"`
	Cursor string `query:"cursor" doc:"Opaque cursor from a previous page"`
}

type downloadOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// checkSelection applies the catalog when strict selection is on, else only requires non-blank inputs.
func (h *handlers) checkSelection(sel domain.Selection) error {
	if h.cfg.StrictSelection {
		return h.catalog.Validate(sel)
	}
	return sel.Validate()
}

func registerChecklists(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-checklist",
		Method:        http.MethodPost,
		Path:          "/checklists",
		Summary:       "Generate and store a checklist",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body CreateChecklistRequest
	}) (*output[domain.ChecklistRecord], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sel := input.Body.Selection().Trimmed()
		if err := h.checkSelection(sel); err != nil {
			return nil, h.fail(err)
		}
		rec, err := h.engine.CreateChecklist(ctx, owner, sel)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(rec), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checklists",
		Method:      http.MethodGet,
		Path:        "/checklists",
		Summary:     "List your checklists, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *pageInput) (*output[domain.Page[domain.ChecklistRecord]], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := h.engine.ListChecklists(ctx, owner, engine.PageRequest{Limit: input.Limit, Cursor: input.Cursor})
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(page), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{id}",
		Summary:     "Get a checklist",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *checklistIDInput) (*output[domain.ChecklistRecord], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := h.engine.GetOwnedChecklist(ctx, owner, input.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(rec), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "group-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{id}/groups",
		Summary:     "Get a checklist grouped by category",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *checklistIDInput) (*output[GroupedChecklistResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, groups, err := h.engine.GroupChecklist(ctx, owner, input.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(GroupedChecklistResponse{Checklist: rec, Groups: groups}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "download-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{id}/download",
		Summary:     "Download a checklist as plain text",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Plain-text checklist",
				Content:     map[string]*huma.MediaType{export.ContentTypeText: {}},
			},
		},
	}, func(ctx context.Context, input *checklistIDInput) (*downloadOutput, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		doc, err := h.engine.ExportChecklist(ctx, owner, input.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &downloadOutput{
			ContentType:        doc.ContentType,
			ContentDisposition: `attachment; filename="` + doc.Name + `"`,
			Body:               doc.Body,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-checklist",
		Method:      http.MethodPost,
		Path:        "/checklists/{id}/archive",
		Summary:     "Store the text export in object storage and return a presigned link",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *checklistIDInput) (*output[ArchiveResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.engine.ArchiveChecklist(ctx, owner, input.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(ArchiveResponse{Key: res.Key, URL: res.URL, ExpiresAt: res.ExpiresAt.UTC().Format(time.RFC3339)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-documents",
		Method:      http.MethodPost,
		Path:        "/checklists/{id}/documents",
		Summary:     "Generate compliance documents (not implemented)",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusNotImplemented},
	}, func(ctx context.Context, input *checklistIDInput) (*struct{}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := h.engine.GetOwnedChecklist(ctx, owner, input.ID); err != nil {
			return nil, h.fail(err)
		}
		return nil, newAPIError(http.StatusNotImplemented, "not_implemented", "document generation is not available", nil)
	})
}

type functionOutput struct {
	Status int
	Body   generator.FunctionResponse
}

// registerFunctions serves the rule engine with the remote function contract, so one instance can
// act as another's remote checklist source.
func registerFunctions(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "function-generate-checklist",
		Method:      http.MethodPost,
		Path:        "/functions/" + generator.DefaultFunctionName,
		Summary:     "Derive a checklist without storing it",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body generator.FunctionRequest
	}) (*functionOutput, error) {
		sel := input.Body.Selection().Trimmed()
		if err := sel.Validate(); err != nil {
			return &functionOutput{
				Status: http.StatusBadRequest,
				Body:   generator.FunctionResponse{Error: strings.TrimPrefix(err.Error(), "invalid input: ")},
			}, nil
		}
		items, err := h.rules.Generate(ctx, sel)
		if err != nil {
			h.log.Error().Err(err).Msg("rule source failed")
			return &functionOutput{
				Status: http.StatusInternalServerError,
				Body:   generator.FunctionResponse{Error: err.Error()},
			}, nil
		}
		return &functionOutput{Status: http.StatusOK, Body: generator.FunctionResponse{Checklist: items}}, nil
	})
}
