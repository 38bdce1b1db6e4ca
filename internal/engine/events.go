package engine

import (
	"context"
	"strconv"

	"compliancekit/internal/domain"
)

// ListEvents returns the owner's audit events newest first. A cursor is the id of the last event of
// the previous page; evtType filters when non-empty.
func (e *Engine) ListEvents(ctx context.Context, owner string, page PageRequest, evtType string) (domain.Page[domain.Event], error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.Page[domain.Event]{}, err
	}
	var cursor int64
	if page.Cursor != "" {
		cursor, err = strconv.ParseInt(page.Cursor, 10, 64)
		if err != nil || cursor <= 0 {
			return domain.Page[domain.Event]{}, ValidationError{}.Add("cursor", "invalid cursor")
		}
	}
	limit := e.normalizeLimit(page.Limit)
	evts, err := e.Repo.LatestEvents(ctx, owner, limit+1, cursor, evtType)
	if err != nil {
		return domain.Page[domain.Event]{}, PersistenceError{Op: "list events", Err: err}
	}
	out := domain.Page[domain.Event]{Items: evts}
	if len(evts) > limit {
		out.Items = evts[:limit]
		out.NextCursor = strconv.FormatInt(out.Items[limit-1].ID, 10)
	}
	if out.Items == nil {
		out.Items = []domain.Event{}
	}
	return out, nil
}
