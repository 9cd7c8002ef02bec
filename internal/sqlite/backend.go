package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// DatabaseFile is the SQLite file created inside Config.DataDir.
const DatabaseFile = "folio.db"

var _ types.Backend = (*Backend)(nil)

// Backend owns the SQLite connection and hands out stores bound to it.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	store    *Store
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach opens (or creates) the database in DataDir and applies the schema.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		filepath.Join(dataDir, DatabaseFile))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return err
	}
	if err := seedBuiltIns(db); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.config.DataDir = dataDir
	b.store = newStore(db)
	b.attached = true
	return nil
}

// Detach closes the database. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.store = nil
	b.attached = false
	return nil
}

// DataDir returns the directory the backend is attached to.
func (b *Backend) DataDir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config.DataDir
}

// Store returns the root store, or ErrBackendDetached.
func (b *Backend) Store() (*Store, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	return b.store, nil
}

// Repository returns the versioning repository.
func (b *Backend) Repository() (types.Repository, error) {
	s, err := b.Store()
	if err != nil {
		return nil, err
	}
	return s.Versions(), nil
}

// Workflows returns the workflow repository.
func (b *Backend) Workflows() (types.WorkflowRepository, error) {
	s, err := b.Store()
	if err != nil {
		return nil, err
	}
	return s.Workflows(), nil
}

// Security returns the user, role and step assignment store.
func (b *Backend) Security() (types.SecurityStore, error) {
	s, err := b.Store()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func applySchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, ddl := range schemaDDL {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	for _, ddl := range indexDDL {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("applying indexes: %w", err)
		}
	}
	return nil
}
