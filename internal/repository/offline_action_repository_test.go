package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-collect-sync/internal/models"
)

type releaserStub struct {
	released [][2]int64
}

func (r *releaserStub) ReleaseRecord(collectionID int32, recordID int64) error {
	r.released = append(r.released, [2]int64{int64(collectionID), recordID})
	return nil
}

func newActionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestOfflineActionRepositorySaveAllocatesPlaceholder(t *testing.T) {
	db, mock, cleanup := newActionRepoMock(t)
	defer cleanup()

	repo := NewOfflineActionRepository(db, nil)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO offline_actions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	action, collapsed, err := repo.Save(context.Background(), SaveParams{
		CollectionID: 7,
		Kind:         models.ActionAdd,
		QueuedAt:     1000,
		Fields:       []models.FieldMutation{{FieldID: 1, Value: "hello"}},
	})
	require.NoError(t, err)
	require.False(t, collapsed)
	require.Equal(t, int64(-1000), action.RecordID)
	require.JSONEq(t, `[{"fieldId":1,"value":"hello"}]`, action.FieldsJSON)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfflineActionRepositorySaveRejectsUnknownKind(t *testing.T) {
	db, _, cleanup := newActionRepoMock(t)
	defer cleanup()

	repo := NewOfflineActionRepository(db, nil)
	_, _, err := repo.Save(context.Background(), SaveParams{CollectionID: 7, Kind: "rename"})
	require.Error(t, err)
}

func TestOfflineActionRepositoryDeleteOverUnsyncedAddCollapses(t *testing.T) {
	db, mock, cleanup := newActionRepoMock(t)
	defer cleanup()

	releaser := &releaserStub{}
	repo := NewOfflineActionRepository(db, releaser)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM offline_actions")).
		WithArgs(int32(7), int64(-1000), string(models.ActionAdd)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM offline_actions WHERE collection_id = ? AND record_id = ?")).
		WithArgs(int32(7), int64(-1000)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	action, collapsed, err := repo.Save(context.Background(), SaveParams{
		CollectionID: 7,
		RecordID:     -1000,
		Kind:         models.ActionDelete,
	})
	require.NoError(t, err)
	require.True(t, collapsed)
	require.Nil(t, action)
	require.Len(t, releaser.released, 1)
	require.Equal(t, int64(-1000), releaser.released[0][1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfflineActionRepositoryListByRecord(t *testing.T) {
	db, mock, cleanup := newActionRepoMock(t)
	defer cleanup()

	repo := NewOfflineActionRepository(db, nil)
	rows := sqlmock.NewRows([]string{"collection_id", "record_id", "kind", "course_id", "group_id", "fields", "queued_at"}).
		AddRow(7, 42, "edit", 1, 0, `[]`, 1000).
		AddRow(7, 42, "approve", 1, 0, `[]`, 2000)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT collection_id, record_id, kind")).
		WithArgs(int32(7), int64(42)).
		WillReturnRows(rows)

	actions, err := repo.ListByRecord(context.Background(), 7, 42)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, models.ActionEdit, actions[0].Kind)
	require.Equal(t, models.ActionApprove, actions[1].Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfflineActionRepositoryDeleteReleasesStagedForWrites(t *testing.T) {
	db, mock, cleanup := newActionRepoMock(t)
	defer cleanup()

	releaser := &releaserStub{}
	repo := NewOfflineActionRepository(db, releaser)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM offline_actions")).
		WithArgs(int32(7), int64(42), string(models.ActionEdit)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), 7, 42, models.ActionEdit))
	require.Len(t, releaser.released, 1)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM offline_actions")).
		WithArgs(int32(7), int64(42), string(models.ActionApprove)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), 7, 42, models.ActionApprove))
	require.Len(t, releaser.released, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOfflineActionRepositoryHasAny(t *testing.T) {
	db, mock, cleanup := newActionRepoMock(t)
	defer cleanup()

	repo := NewOfflineActionRepository(db, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM offline_actions WHERE collection_id = ? LIMIT 1")).
		WithArgs(int32(7)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	has, err := repo.HasAny(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, has)
	require.NoError(t, mock.ExpectationsWereMet())
}
