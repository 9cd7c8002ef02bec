package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/pkg/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

func TestNewBackend_Lifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	backend := sqlite.NewBackend()

	_, err := backend.Repository()
	assert.ErrorIs(t, err, types.ErrBackendDetached)

	require.NoError(t, backend.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	t.Cleanup(func() { backend.Detach() })

	_, err = os.Stat(filepath.Join(dir, sqlite.DatabaseFile))
	require.NoError(t, err)

	sec, err := backend.Security()
	require.NoError(t, err)
	admin, err := sec.GetUserByName(context.Background(), "administrator")
	require.NoError(t, err)
	assert.Equal(t, types.PrivilegeGlobalAdmin, admin.Privilege)

	wf, err := backend.Workflows()
	require.NoError(t, err)
	assert.NotNil(t, wf)

	assert.ErrorIs(t, backend.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}), types.ErrAlreadyAttached)
}
