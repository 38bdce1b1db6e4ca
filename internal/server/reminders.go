package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"compliancekit/internal/domain"
	"compliancekit/internal/engine"
)

type reminderIDInput struct {
	ID string `path:"id"`
}

// NewReminderResponse adds the overdue flag as of now.
func NewReminderResponse(r domain.Reminder, now time.Time) ReminderResponse {
	return ReminderResponse{Reminder: r, Overdue: r.Overdue(now)}
}

func (h *handlers) reminderResponse(r domain.Reminder) ReminderResponse {
	return NewReminderResponse(r, h.engine.Clock())
}

func registerReminders(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reminder",
		Method:        http.MethodPost,
		Path:          "/reminders",
		Summary:       "Create a reminder",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateReminderRequest
	}) (*output[ReminderResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rem, err := h.engine.CreateReminder(ctx, owner, input.Body.Title, input.Body.Description, input.Body.DueDate)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(h.reminderResponse(rem)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reminders",
		Method:      http.MethodGet,
		Path:        "/reminders",
		Summary:     "List your reminders by due date",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *pageInput) (*output[ReminderPage], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := h.engine.ListReminders(ctx, owner, engine.PageRequest{Limit: input.Limit, Cursor: input.Cursor})
		if err != nil {
			return nil, h.fail(err)
		}
		resp := ReminderPage{Items: make([]ReminderResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for _, r := range page.Items {
			resp.Items = append(resp.Items, h.reminderResponse(r))
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-reminder",
		Method:      http.MethodGet,
		Path:        "/reminders/{id}",
		Summary:     "Get a reminder",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *reminderIDInput) (*output[ReminderResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rem, err := h.engine.GetOwnedReminder(ctx, owner, input.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(h.reminderResponse(rem)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-reminder",
		Method:      http.MethodPost,
		Path:        "/reminders/{id}/toggle",
		Summary:     "Flip a reminder between open and completed",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *reminderIDInput) (*output[ReminderResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rem, err := h.engine.ToggleReminder(ctx, owner, input.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(h.reminderResponse(rem)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-reminder-completed",
		Method:      http.MethodPut,
		Path:        "/reminders/{id}/completed",
		Summary:     "Mark a reminder complete or incomplete",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body SetCompletedRequest
	}) (*output[ReminderResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rem, err := h.engine.SetReminderCompleted(ctx, owner, input.ID, input.Body.Completed)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(h.reminderResponse(rem)), nil
	})
}
