// Package sqlite provides the public API for the SQLite Folio backend.
// This package exposes the factory function for creating SQLite backends
// while keeping implementation details internal.
package sqlite

import (
	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// DatabaseFile is the file created inside Config.DataDir.
const DatabaseFile = sqlite.DatabaseFile

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	backend := sqlite.NewBackend()
//	err := backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".folio",
//	})
//	defer backend.Detach()
//	repo, err := backend.Repository()
func NewBackend() types.Backend {
	return sqlite.NewBackend()
}
