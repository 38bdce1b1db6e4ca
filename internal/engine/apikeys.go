package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"compliancekit/internal/domain"
	"compliancekit/internal/repo"
)

const apiKeyPrefix = "ck_"

// CreateAPIKey issues a new key for owner. The plaintext is returned once; only its hash is stored.
func (e *Engine) CreateAPIKey(ctx context.Context, owner, name string) (domain.APIKey, string, error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate key: %w", err)
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        e.newID(),
		OwnerID:   owner,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", PersistenceError{Op: "insert api key", Err: err}
	}
	return key, plain, nil
}

// ResolveAPIKey returns the owner a plaintext key belongs to.
func (e *Engine) ResolveAPIKey(ctx context.Context, plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", AuthError{Reason: "api key required"}
	}
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", AuthError{Reason: "unknown api key"}
		}
		return "", PersistenceError{Op: "get api key", Err: err}
	}
	return key.OwnerID, nil
}

// ListAPIKeys returns the owner's keys without plaintext.
func (e *Engine) ListAPIKeys(ctx context.Context, owner string) ([]domain.APIKey, error) {
	owner, err := requireOwner(owner)
	if err != nil {
		return nil, err
	}
	keys, err := e.Repo.ListAPIKeys(ctx, owner)
	if err != nil {
		return nil, PersistenceError{Op: "list api keys", Err: err}
	}
	return keys, nil
}

// RevokeAPIKey deletes one of the owner's keys. Another owner's key reads as not found.
func (e *Engine) RevokeAPIKey(ctx context.Context, owner, id string) error {
	owner, err := requireOwner(owner)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteAPIKey(ctx, owner, id); err != nil {
		return storeErr("delete api key", "api key", id, err)
	}
	return nil
}
