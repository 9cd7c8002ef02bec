package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs queries against the database or, inside InTx, against the
// ambient transaction.
type Store struct {
	db *sql.DB
	q  dbtx
	tx *sql.Tx
}

func newStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// NewStore wraps an open database. The schema must already exist.
func NewStore(db *sql.DB) *Store {
	return newStore(db)
}

// inTx runs fn in a transaction. A store already bound to a transaction
// joins it instead of nesting.
func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Versions returns the store as a types.Repository.
func (s *Store) Versions() types.Repository {
	return versionRepo{s}
}

// Workflows returns the store as a types.WorkflowRepository.
func (s *Store) Workflows() types.WorkflowRepository {
	return workflowRepo{s}
}

type versionRepo struct {
	*Store
}

var _ types.Repository = versionRepo{}

// InTx implements types.Repository.
func (r versionRepo) InTx(ctx context.Context, fn func(types.Repository) error) error {
	return r.inTx(ctx, func(s *Store) error {
		return fn(versionRepo{s})
	})
}

type workflowRepo struct {
	*Store
}

var _ types.WorkflowRepository = workflowRepo{}

// InTx implements types.WorkflowRepository.
func (r workflowRepo) InTx(ctx context.Context, fn func(types.WorkflowRepository) error) error {
	return r.inTx(ctx, func(s *Store) error {
		return fn(workflowRepo{s})
	})
}

var _ types.SecurityStore = (*Store)(nil)

// formatTime stores timestamps as RFC3339Nano in UTC; the zero time is "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// notFound maps sql.ErrNoRows to types.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, types.ErrNotFound)
	}
	return fmt.Errorf("getting %s: %w", what, err)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// requireAffected returns ErrNotFound when res touched no rows.
func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, types.ErrNotFound)
	}
	return nil
}

// uniqueViolation maps a UNIQUE constraint failure to ErrDuplicateName.
func uniqueViolation(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", types.ErrDuplicateName, err)
	}
	return err
}

// guidKey is the stored form of a source point GUID; uuid.Nil is "".
func guidKey(g uuid.UUID) string {
	if g == uuid.Nil {
		return ""
	}
	return g.String()
}

func parseGUIDKey(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	g, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing source point GUID %q: %w", s, err)
	}
	return g, nil
}
