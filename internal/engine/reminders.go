package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"compliancekit/internal/domain"
	"compliancekit/internal/events"
)

// CreateReminder stores a new open reminder. dueDate must be a calendar date (YYYY-MM-DD).
func (e *Engine) CreateReminder(ctx context.Context, owner, title string, description *string, dueDate string) (domain.Reminder, error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.Reminder{}, err
	}
	title = strings.TrimSpace(title)
	dueDate = strings.TrimSpace(dueDate)
	var verr ValidationError
	if title == "" {
		verr = verr.Add("title", "required")
	}
	switch {
	case dueDate == "":
		verr = verr.Add("due_date", "required")
	default:
		if _, err := time.Parse(domain.DateLayout, dueDate); err != nil {
			verr = verr.Add("due_date", "must be a date in YYYY-MM-DD form")
		}
	}
	if err := verr.OrNil(); err != nil {
		return domain.Reminder{}, err
	}
	if description != nil {
		d := strings.TrimSpace(*description)
		if d == "" {
			description = nil
		} else {
			description = &d
		}
	}
	now := e.timestamp()
	rem := domain.Reminder{
		ID:          e.newID(),
		OwnerID:     owner,
		Title:       title,
		Description: description,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertReminder(ctx, tx, rem); err != nil {
			return PersistenceError{Op: "insert reminder", Err: err}
		}
		if err := e.Events.Append(ctx, tx, events.ReminderCreated, "reminder", rem.ID, owner, events.EventPayload{"title": rem.Title, "due_date": rem.DueDate}); err != nil {
			return PersistenceError{Op: "append event", Err: err}
		}
		return nil
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	e.Log.Info().Str("reminder_id", rem.ID).Str("owner", owner).Str("due_date", rem.DueDate).Msg("reminder created")
	return rem, nil
}

// GetReminder returns the reminder with id regardless of owner.
func (e *Engine) GetReminder(ctx context.Context, id string) (domain.Reminder, error) {
	rem, err := e.Repo.GetReminder(ctx, id)
	if err != nil {
		return domain.Reminder{}, storeErr("get reminder", "reminder", id, err)
	}
	return rem, nil
}

// GetOwnedReminder is GetReminder scoped to owner.
func (e *Engine) GetOwnedReminder(ctx context.Context, owner, id string) (domain.Reminder, error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.Reminder{}, err
	}
	rem, err := e.GetReminder(ctx, id)
	if err != nil {
		return domain.Reminder{}, err
	}
	if rem.OwnerID != owner {
		return domain.Reminder{}, NotFoundError{Kind: "reminder", ID: id}
	}
	return rem, nil
}

// ListReminders returns the owner's reminders by due date, earliest first.
func (e *Engine) ListReminders(ctx context.Context, owner string, page PageRequest) (domain.Page[domain.Reminder], error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.Page[domain.Reminder]{}, err
	}
	due, id, err := parseCursor(page.Cursor)
	if err != nil {
		return domain.Page[domain.Reminder]{}, err
	}
	limit := e.normalizeLimit(page.Limit)
	rems, err := e.Repo.ListReminders(ctx, owner, limit+1, due, id)
	if err != nil {
		return domain.Page[domain.Reminder]{}, PersistenceError{Op: "list reminders", Err: err}
	}
	out := domain.Page[domain.Reminder]{Items: rems}
	if len(rems) > limit {
		out.Items = rems[:limit]
		last := out.Items[limit-1]
		out.NextCursor = composeCursor(last.DueDate, last.ID)
	}
	if out.Items == nil {
		out.Items = []domain.Reminder{}
	}
	return out, nil
}

// ToggleReminder flips the completed flag in a single store update and returns the new state.
func (e *Engine) ToggleReminder(ctx context.Context, owner, id string) (domain.Reminder, error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.Reminder{}, err
	}
	var rem domain.Reminder
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.ToggleReminder(ctx, tx, owner, id, e.timestamp()); err != nil {
			return storeErr("toggle reminder", "reminder", id, err)
		}
		var err error
		rem, err = e.Repo.GetReminderTx(ctx, tx, id)
		if err != nil {
			return storeErr("get reminder", "reminder", id, err)
		}
		return e.appendCompletion(ctx, tx, rem)
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	return rem, nil
}

// SetReminderCompleted sets the completed flag. Setting the current value is a no-op.
func (e *Engine) SetReminderCompleted(ctx context.Context, owner, id string, completed bool) (domain.Reminder, error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.Reminder{}, err
	}
	var rem domain.Reminder
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		rem, err = e.Repo.GetReminderTx(ctx, tx, id)
		if err != nil {
			return storeErr("get reminder", "reminder", id, err)
		}
		if rem.OwnerID != owner {
			return NotFoundError{Kind: "reminder", ID: id}
		}
		if rem.Completed == completed {
			return nil
		}
		now := e.timestamp()
		if err := e.Repo.SetReminderCompleted(ctx, tx, owner, id, completed, now); err != nil {
			return storeErr("update reminder", "reminder", id, err)
		}
		rem.Completed = completed
		rem.UpdatedAt = now
		return e.appendCompletion(ctx, tx, rem)
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	return rem, nil
}

func (e *Engine) appendCompletion(ctx context.Context, tx *sql.Tx, rem domain.Reminder) error {
	evt := events.ReminderReopened
	if rem.Completed {
		evt = events.ReminderCompleted
	}
	if err := e.Events.Append(ctx, tx, evt, "reminder", rem.ID, rem.OwnerID, events.EventPayload{"completed": rem.Completed}); err != nil {
		return PersistenceError{Op: "append event", Err: err}
	}
	return nil
}
