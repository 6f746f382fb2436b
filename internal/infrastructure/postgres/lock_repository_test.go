package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"florin/internal/domain/sync"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFromDB(db), mock
}

func testLock() sync.Lock {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return sync.Lock{
		ID:         "lock-1",
		UserID:     7,
		Kind:       "transaction_sync",
		AcquiredAt: now,
		ExpiresAt:  now.Add(5 * time.Minute),
	}
}

func TestLockRepositoryInsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLockRepository(db)
	lock := testLock()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sync_locks`)).
		WithArgs(lock.ID, lock.UserID, lock.Kind, lock.AcquiredAt, lock.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), lock)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryInsertUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sync_locks`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "sync_locks_user_id_lock_kind_key"})

	err := repo.Insert(context.Background(), testLock())

	assert.ErrorIs(t, err, sync.ErrLockHeld)
}

func TestLockRepositoryDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sync_locks WHERE id = $1`)).
		WithArgs("lock-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.Delete(context.Background(), "lock-1")

	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestLockRepositoryDeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sync_locks WHERE id = $1`)).
		WithArgs("lock-gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "lock-gone")

	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestLockRepositoryPurgeExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLockRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT purge_expired_sync_locks()`)).
		WillReturnRows(sqlmock.NewRows([]string{"purge_expired_sync_locks"}).AddRow(3))

	purged, err := repo.PurgeExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
}

func TestLockRepositoryExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLockRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(int64(7), "transaction_sync").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	held, err := repo.Exists(context.Background(), 7, "transaction_sync")

	require.NoError(t, err)
	assert.True(t, held)
}

func TestLockRepositoryDeleteByUserID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sync_locks WHERE user_id = $1`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteByUserID(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
