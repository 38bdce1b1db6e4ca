package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"compliancekit/internal/domain"
)

const apiKeyColumns = `id,owner_id,COALESCE(name,''),key_hash,created_at`

// HashAPIKey is the digest stored in place of a plaintext key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func scanAPIKey(row rowScanner) (domain.APIKey, error) {
	var key domain.APIKey
	err := row.Scan(&key.ID, &key.OwnerID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if err == sql.ErrNoRows {
		return key, ErrNotFound
	}
	return key, err
}

// InsertAPIKey stores key. KeyHash must already hold HashAPIKey of the plaintext.
func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	_, err := r.on(tx).ExecContext(ctx, r.rebind(`INSERT INTO api_keys(id,owner_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`),
		key.ID, key.OwnerID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	return scanAPIKey(r.DB.QueryRowContext(ctx, r.rebind(`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=?`), hash))
}

// ListAPIKeys returns an owner's keys newest first.
func (r Repo) ListAPIKeys(ctx context.Context, ownerID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(`SELECT `+apiKeyColumns+` FROM api_keys WHERE owner_id=? ORDER BY created_at DESC, id DESC`), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []domain.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey removes the owner's key with id. Another owner's key reads as ErrNotFound.
func (r Repo) DeleteAPIKey(ctx context.Context, ownerID, id string) error {
	res, err := r.DB.ExecContext(ctx, r.rebind(`DELETE FROM api_keys WHERE id=? AND owner_id=?`), id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
