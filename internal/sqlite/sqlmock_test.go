package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Driver failures that a real SQLite file cannot produce on demand.

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStore_CommitFailureIsReported(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM version_history").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err := s.Versions().InTx(context.Background(), func(r types.Repository) error {
		return r.DeleteVersion(context.Background(), 3)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BeginFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := s.Versions().InTx(context.Background(), func(types.Repository) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersions_QueryErrorIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT version_id FROM version_history").WillReturnError(errors.New("no such table"))

	_, err := s.ListVersionIDs(context.Background(), types.ObjectTypePage, 1, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing version IDs")
	assert.NotErrorIs(t, err, types.ErrNotFound)
}

func TestVersions_GetVersionDriverError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT version_id").WillReturnError(errors.New("connection reset"))

	_, err := s.GetVersion(context.Background(), 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrNotFound)
	assert.Contains(t, err.Error(), "getting version 5")
}

func TestObjects_ClearCheckoutReferencesCount(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE objects SET checked_out_version_id = NULL").
		WithArgs(int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.ClearCheckoutReferences(context.Background(), 12)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
