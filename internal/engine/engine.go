package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"compliancekit/internal/checklist"
	"compliancekit/internal/domain"
	"compliancekit/internal/events"
	"compliancekit/internal/export"
	"compliancekit/internal/repo"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// RecordCache is an optional read-through cache for checklist records.
type RecordCache interface {
	GetChecklist(ctx context.Context, id string) (*domain.ChecklistRecord, error)
	SetChecklist(ctx context.Context, rec domain.ChecklistRecord) error
}

// Engine owns the checklist and reminder lifecycles. The owner of every write is passed in
// explicitly; the engine holds no per-request state.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Source   checklist.Source
	Cache    RecordCache
	Archiver export.Archiver
	Log      zerolog.Logger
	Now      func() time.Time
	NewID    func() string

	DefaultLimit int
	MaxLimit     int

	flight *singleflight.Group
}

// New returns an engine over conn that derives checklists from the embedded rule set.
func New(conn *sql.DB, driver string) *Engine {
	r := repo.New(conn, driver)
	return &Engine{
		DB:           conn,
		Repo:         r,
		Events:       events.Writer{Driver: r.Driver},
		Source:       checklist.NewRuleSource(nil),
		Log:          zerolog.Nop(),
		Now:          time.Now,
		NewID:        func() string { return uuid.NewString() },
		DefaultLimit: DefaultPageLimit,
		MaxLimit:     MaxPageLimit,
		flight:       &singleflight.Group{},
	}
}

// Clock returns the engine's current time.
func (e *Engine) Clock() time.Time {
	return e.now()
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func requireOwner(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", AuthError{Reason: "no current user"}
	}
	return owner, nil
}

// withTx runs fn in a transaction and commits when it returns nil.
func (e *Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return PersistenceError{Op: "begin", Err: err}
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// SourceName reports which checklist source new records are generated by.
func (e *Engine) SourceName() string {
	if e.Source == nil {
		return "rules"
	}
	return e.Source.Name()
}

func (e *Engine) generate(ctx context.Context, sel domain.Selection) ([]domain.ChecklistItem, error) {
	src := e.Source
	if src == nil {
		src = checklist.NewRuleSource(nil)
	}
	items, err := src.Generate(ctx, sel)
	if err != nil {
		var uerr UpstreamError
		if errors.As(err, &uerr) {
			return nil, err
		}
		return nil, UpstreamError{Source: src.Name(), Err: err}
	}
	if len(items) == 0 {
		return nil, UpstreamError{Source: src.Name(), Err: fmt.Errorf("empty checklist")}
	}
	return items, nil
}
