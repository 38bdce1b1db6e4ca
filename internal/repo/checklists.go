package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"compliancekit/internal/domain"
)

const checklistColumns = `id,owner_id,company_type,jurisdiction,industry,items_json,source,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChecklist(row rowScanner) (domain.ChecklistRecord, error) {
	var rec domain.ChecklistRecord
	var items string
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.CompanyType, &rec.Jurisdiction, &rec.Industry, &items, &rec.Source, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(items), &rec.Items); err != nil {
		return rec, fmt.Errorf("decode items of checklist %s: %w", rec.ID, err)
	}
	return rec, nil
}

// InsertChecklist stores a record. Items are serialized as a JSON array in their original order.
func (r Repo) InsertChecklist(ctx context.Context, tx *sql.Tx, rec domain.ChecklistRecord) error {
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	_, err = r.on(tx).ExecContext(ctx, r.rebind(`INSERT INTO checklists(`+checklistColumns+`) VALUES (?,?,?,?,?,?,?,?)`),
		rec.ID, rec.OwnerID, rec.CompanyType, rec.Jurisdiction, rec.Industry, string(items), rec.Source, rec.CreatedAt)
	return err
}

func (r Repo) GetChecklist(ctx context.Context, id string) (domain.ChecklistRecord, error) {
	return scanChecklist(r.DB.QueryRowContext(ctx, r.rebind(`SELECT `+checklistColumns+` FROM checklists WHERE id=?`), id))
}

// ListChecklists returns an owner's records newest first. A non-empty cursor resumes after the
// record identified by (cursorCreatedAt, cursorID).
func (r Repo) ListChecklists(ctx context.Context, ownerID string, limit int, cursorCreatedAt, cursorID string) ([]domain.ChecklistRecord, error) {
	clauses := []string{"owner_id=?"}
	args := []any{ownerID}
	if cursorCreatedAt != "" && cursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorID)
	}
	query := `SELECT ` + checklistColumns + ` FROM checklists WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistRecord
	for rows.Next() {
		rec, err := scanChecklist(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
