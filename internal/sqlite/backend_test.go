package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// newTestStore attaches a backend in a temp dir and returns its root store.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	s, err := b.Store()
	require.NoError(t, err)
	return s
}

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()

	b := NewBackend()
	config := types.Config{
		Backend: types.BackendSQLite,
		DataDir: tmpDir,
	}

	err := b.Attach(config)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer b.Detach()

	if _, err := os.Stat(filepath.Join(tmpDir, DatabaseFile)); os.IsNotExist(err) {
		t.Errorf("%s not created", DatabaseFile)
	}

	err = b.Attach(config)
	if err != types.ErrAlreadyAttached {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}
}

func TestBackend_AttachRejectsBadConfig(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Attach(types.Config{DataDir: t.TempDir()}), types.ErrBackendEmpty)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: "postgres", DataDir: t.TempDir()}), types.ErrBackendUnknown)
}

func TestBackend_Detach(t *testing.T) {
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))

	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := b.Detach(); err != nil {
		t.Errorf("second Detach should not error, got %v", err)
	}

	_, err := b.Repository()
	assert.ErrorIs(t, err, types.ErrBackendDetached)
	_, err = b.Workflows()
	assert.ErrorIs(t, err, types.ErrBackendDetached)
	sec, err := b.Security()
	assert.ErrorIs(t, err, types.ErrBackendDetached)
	assert.Nil(t, sec)
}

func TestBackend_SeedsAdministratorOnce(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b := NewBackend()
		require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
		s, err := b.Store()
		require.NoError(t, err)

		admin, err := s.GetUserByName(ctx, AdminUserName)
		require.NoError(t, err)
		assert.True(t, admin.IsGlobalAdmin())
		assert.True(t, admin.HasPermission(types.ResourceWorkflow, types.PermissionManage))

		_, err = s.GetRoleByName(ctx, EditorRoleName, 0)
		require.NoError(t, err)
		require.NoError(t, b.Detach())
	}
}

func TestStore_InTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Versions()

	boom := assert.AnError
	err := repo.InTx(ctx, func(r types.Repository) error {
		obj := &types.VersionedObject{ObjectType: types.ObjectTypePage, Name: "home"}
		require.NoError(t, r.SaveObject(ctx, obj))
		return boom
	})
	require.ErrorIs(t, err, boom)

	objs, err := s.ListObjects(ctx, types.ObjectTypePage, -1)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestStore_NestedInTxJoinsOuter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Versions()

	err := repo.InTx(ctx, func(outer types.Repository) error {
		require.NoError(t, outer.SaveObject(ctx, &types.VersionedObject{ObjectType: types.ObjectTypePage, Name: "a"}))
		return outer.InTx(ctx, func(inner types.Repository) error {
			return inner.SaveObject(ctx, &types.VersionedObject{ObjectType: types.ObjectTypePage, Name: "b"})
		})
	})
	require.NoError(t, err)

	objs, err := s.ListObjects(ctx, types.ObjectTypePage, -1)
	require.NoError(t, err)
	assert.Len(t, objs, 2)
}
