package repo

import (
	"context"
	"database/sql"
	"strings"

	"compliancekit/internal/domain"
)

const reminderColumns = `id,owner_id,title,description,due_date,completed,created_at,updated_at`

func scanReminder(row rowScanner) (domain.Reminder, error) {
	var rem domain.Reminder
	var desc sql.NullString
	err := row.Scan(&rem.ID, &rem.OwnerID, &rem.Title, &desc, &rem.DueDate, &rem.Completed, &rem.CreatedAt, &rem.UpdatedAt)
	if err == sql.ErrNoRows {
		return rem, ErrNotFound
	}
	if err != nil {
		return rem, err
	}
	if desc.Valid {
		d := desc.String
		rem.Description = &d
	}
	return rem, nil
}

func (r Repo) InsertReminder(ctx context.Context, tx *sql.Tx, rem domain.Reminder) error {
	_, err := r.on(tx).ExecContext(ctx, r.rebind(`INSERT INTO reminders(`+reminderColumns+`) VALUES (?,?,?,?,?,?,?,?)`),
		rem.ID, rem.OwnerID, rem.Title, nullableStringPtr(rem.Description), rem.DueDate, rem.Completed, rem.CreatedAt, rem.UpdatedAt)
	return err
}

func (r Repo) GetReminder(ctx context.Context, id string) (domain.Reminder, error) {
	return r.GetReminderTx(ctx, nil, id)
}

func (r Repo) GetReminderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Reminder, error) {
	return scanReminder(r.on(tx).QueryRowContext(ctx, r.rebind(`SELECT `+reminderColumns+` FROM reminders WHERE id=?`), id))
}

// ListReminders returns an owner's reminders by due date, earliest first, ties broken by id.
func (r Repo) ListReminders(ctx context.Context, ownerID string, limit int, cursorDueDate, cursorID string) ([]domain.Reminder, error) {
	clauses := []string{"owner_id=?"}
	args := []any{ownerID}
	if cursorDueDate != "" && cursorID != "" {
		clauses = append(clauses, "(due_date > ? OR (due_date = ? AND id > ?))")
		args = append(args, cursorDueDate, cursorDueDate, cursorID)
	}
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY due_date ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rem)
	}
	return res, rows.Err()
}

// ToggleReminder flips completed in a single statement. Only the owner's row matches.
func (r Repo) ToggleReminder(ctx context.Context, tx *sql.Tx, ownerID, id, updatedAt string) error {
	res, err := r.on(tx).ExecContext(ctx, r.rebind(`UPDATE reminders SET completed = NOT completed, updated_at=? WHERE id=? AND owner_id=?`),
		updatedAt, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReminderCompleted writes completed for the owner's reminder.
func (r Repo) SetReminderCompleted(ctx context.Context, tx *sql.Tx, ownerID, id string, completed bool, updatedAt string) error {
	res, err := r.on(tx).ExecContext(ctx, r.rebind(`UPDATE reminders SET completed=?, updated_at=? WHERE id=? AND owner_id=?`),
		completed, updatedAt, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
