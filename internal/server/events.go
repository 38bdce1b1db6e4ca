package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"compliancekit/internal/domain"
	"compliancekit/internal/engine"
	"compliancekit/internal/events"
)

func eventResponse(evt domain.Event) EventResponse {
	resp := EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		OwnerID:    evt.OwnerID,
	}
	if evt.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err == nil {
			resp.Payload = payload
		}
	}
	return resp
}

func registerEvents(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List your recent audit events",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		Limit  int    `query:"limit" minimum:"0"`
		Cursor string `query:"cursor" doc:"Return events older than this event id"`
	}) (*output[EventPage], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Type != "" && !events.Known(input.Type) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown event type", map[string]any{"type": input.Type})
		}
		page, err := h.engine.ListEvents(ctx, owner, engine.PageRequest{Limit: input.Limit, Cursor: input.Cursor}, input.Type)
		if err != nil {
			return nil, h.fail(err)
		}
		resp := EventPage{Items: make([]EventResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for _, evt := range page.Items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return respond(resp), nil
	})
}

func registerAPIKeys(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key; the plaintext is shown once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest
	}) (*output[CreatedAPIKeyResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, plain, err := h.engine.CreateAPIKey(ctx, owner, input.Body.Name)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(CreatedAPIKeyResponse{APIKey: key, Key: plain}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List your API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.APIKey], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := h.engine.ListAPIKeys(ctx, owner)
		if err != nil {
			return nil, h.fail(err)
		}
		if keys == nil {
			keys = []domain.APIKey{}
		}
		return respond(keys), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.RevokeAPIKey(ctx, owner, input.ID); err != nil {
			return nil, h.fail(err)
		}
		return nil, nil
	})
}
