package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"compliancekit/internal/checklist"
	"compliancekit/internal/domain"
	"compliancekit/internal/events"
	"compliancekit/internal/export"
)

// CreateChecklist derives a checklist for sel and persists it as a new record owned by owner.
// Input is validated before the source is consulted; the record and its event are written in one
// transaction.
func (e *Engine) CreateChecklist(ctx context.Context, owner string, sel domain.Selection) (domain.ChecklistRecord, error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.ChecklistRecord{}, err
	}
	sel = sel.Trimmed()
	if err := sel.Validate(); err != nil {
		return domain.ChecklistRecord{}, err
	}
	items, err := e.generate(ctx, sel)
	if err != nil {
		return domain.ChecklistRecord{}, err
	}
	rec := domain.ChecklistRecord{
		ID:           e.newID(),
		OwnerID:      owner,
		CompanyType:  sel.CompanyType,
		Jurisdiction: sel.Jurisdiction,
		Industry:     sel.Industry,
		Items:        items,
		Source:       e.SourceName(),
		CreatedAt:    e.timestamp(),
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertChecklist(ctx, tx, rec); err != nil {
			return PersistenceError{Op: "insert checklist", Err: err}
		}
		payload := events.EventPayload{
			"company_type": rec.CompanyType,
			"jurisdiction": rec.Jurisdiction,
			"industry":     rec.Industry,
			"items":        len(rec.Items),
			"source":       rec.Source,
		}
		if err := e.Events.Append(ctx, tx, events.ChecklistCreated, "checklist", rec.ID, owner, payload); err != nil {
			return PersistenceError{Op: "append event", Err: err}
		}
		return nil
	})
	if err != nil {
		return domain.ChecklistRecord{}, err
	}
	e.Log.Info().Str("checklist_id", rec.ID).Str("owner", owner).Str("source", rec.Source).Int("items", len(rec.Items)).Msg("checklist created")
	if e.Cache != nil {
		if err := e.Cache.SetChecklist(ctx, rec); err != nil {
			e.Log.Warn().Err(err).Str("checklist_id", rec.ID).Msg("cache write failed")
		}
	}
	return rec, nil
}

// GetChecklist returns the record with id regardless of owner. Concurrent misses for one id share
// a single store read.
func (e *Engine) GetChecklist(ctx context.Context, id string) (domain.ChecklistRecord, error) {
	if id == "" {
		return domain.ChecklistRecord{}, NotFoundError{Kind: "checklist", ID: id}
	}
	if e.Cache == nil || e.flight == nil {
		return e.loadChecklist(ctx, id)
	}
	// The shared read outlives any one caller; each caller still stops waiting on its own ctx.
	fctx := context.WithoutCancel(ctx)
	ch := e.flight.DoChan("checklist:"+id, func() (any, error) {
		cached, err := e.Cache.GetChecklist(fctx, id)
		if err != nil {
			e.Log.Warn().Err(err).Str("checklist_id", id).Msg("cache read failed")
		} else if cached != nil {
			return *cached, nil
		}
		rec, err := e.loadChecklist(fctx, id)
		if err != nil {
			return nil, err
		}
		if err := e.Cache.SetChecklist(fctx, rec); err != nil {
			e.Log.Warn().Err(err).Str("checklist_id", id).Msg("cache write failed")
		}
		return rec, nil
	})
	select {
	case <-ctx.Done():
		return domain.ChecklistRecord{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.ChecklistRecord{}, res.Err
		}
		return res.Val.(domain.ChecklistRecord), nil
	}
}

func (e *Engine) loadChecklist(ctx context.Context, id string) (domain.ChecklistRecord, error) {
	rec, err := e.Repo.GetChecklist(ctx, id)
	if err != nil {
		return domain.ChecklistRecord{}, storeErr("get checklist", "checklist", id, err)
	}
	return rec, nil
}

// GetOwnedChecklist is GetChecklist scoped to owner. Another owner's record reads as not found.
func (e *Engine) GetOwnedChecklist(ctx context.Context, owner, id string) (domain.ChecklistRecord, error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.ChecklistRecord{}, err
	}
	rec, err := e.GetChecklist(ctx, id)
	if err != nil {
		return domain.ChecklistRecord{}, err
	}
	if rec.OwnerID != owner {
		return domain.ChecklistRecord{}, NotFoundError{Kind: "checklist", ID: id}
	}
	return rec, nil
}

// ListChecklists returns the owner's records newest first.
func (e *Engine) ListChecklists(ctx context.Context, owner string, page PageRequest) (domain.Page[domain.ChecklistRecord], error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.Page[domain.ChecklistRecord]{}, err
	}
	createdAt, id, err := parseCursor(page.Cursor)
	if err != nil {
		return domain.Page[domain.ChecklistRecord]{}, err
	}
	limit := e.normalizeLimit(page.Limit)
	recs, err := e.Repo.ListChecklists(ctx, owner, limit+1, createdAt, id)
	if err != nil {
		return domain.Page[domain.ChecklistRecord]{}, PersistenceError{Op: "list checklists", Err: err}
	}
	out := domain.Page[domain.ChecklistRecord]{Items: recs}
	if len(recs) > limit {
		out.Items = recs[:limit]
		last := out.Items[limit-1]
		out.NextCursor = composeCursor(last.CreatedAt, last.ID)
	}
	if out.Items == nil {
		out.Items = []domain.ChecklistRecord{}
	}
	return out, nil
}

// GroupChecklist returns the owner's record with its items partitioned by category.
func (e *Engine) GroupChecklist(ctx context.Context, owner, id string) (domain.ChecklistRecord, []checklist.Group, error) {
	rec, err := e.GetOwnedChecklist(ctx, owner, id)
	if err != nil {
		return domain.ChecklistRecord{}, nil, err
	}
	return rec, checklist.GroupByCategory(rec.Items), nil
}

// ExportChecklist renders the owner's record as a text document.
func (e *Engine) ExportChecklist(ctx context.Context, owner, id string) (export.Document, error) {
	rec, err := e.GetOwnedChecklist(ctx, owner, id)
	if err != nil {
		return export.Document{}, err
	}
	return export.Text(rec), nil
}

// ArchiveChecklist stores the text export in object storage and returns a presigned link.
func (e *Engine) ArchiveChecklist(ctx context.Context, owner, id string) (export.Archived, error) {
	if e.Archiver == nil {
		return export.Archived{}, export.ErrArchiveDisabled
	}
	rec, err := e.GetOwnedChecklist(ctx, owner, id)
	if err != nil {
		return export.Archived{}, err
	}
	res, err := e.Archiver.Archive(ctx, export.ArchiveKey(rec.OwnerID, rec.ID), export.Text(rec))
	if err != nil {
		if errors.Is(err, export.ErrArchiveDisabled) {
			return export.Archived{}, err
		}
		return export.Archived{}, UpstreamError{Source: "archive", Err: fmt.Errorf("checklist %s: %w", id, err)}
	}
	e.Log.Info().Str("checklist_id", id).Str("key", res.Key).Msg("checklist archived")
	return res, nil
}
