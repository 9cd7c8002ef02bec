package types

// Backend is a storage engine for the versioning and workflow engine.
// Callers attach it to a data directory, take the repositories they need,
// and detach when done.
type Backend interface {
	// Attach opens the backend described by config, creating DataDir when
	// missing. Returns ErrAlreadyAttached while attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent.
	Detach() error

	// The accessors return ErrBackendDetached before Attach or after Detach.
	Repository() (Repository, error)
	Workflows() (WorkflowRepository, error)
	Security() (SecurityStore, error)
}
