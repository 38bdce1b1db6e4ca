package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"compliancekit/internal/db"
)

// Event types written by the engine.
const (
	ChecklistCreated  = "checklist.created"
	ReminderCreated   = "reminder.created"
	ReminderCompleted = "reminder.completed"
	ReminderReopened  = "reminder.reopened"
)

// Types lists every event type, in the order they are documented.
var Types = []string{ChecklistCreated, ReminderCreated, ReminderCompleted, ReminderReopened}

// Known reports whether t is one of Types.
func Known(t string) bool {
	return slices.Contains(Types, t)
}

type Writer struct {
	Driver string
	Now    func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, ownerID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, db.Rebind(w.Driver, `INSERT INTO events(ts,type,entity_kind,entity_id,owner_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, entityKind, nullable(entityID), ownerID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
