package statestore

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradeexecutor/src/model"
)

func setupDBMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return gormDB, mock
}

func TestFlushUpdatesExistingSnapshot(t *testing.T) {
	db, mock := setupDBMock(t)
	store := WithDB(db, 100)

	store.MarkDirty(KeyStrategies, map[string]string{"s1": "alpha"})

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "snapshots"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Flush())
	require.NoError(t, mock.ExpectationsWereMet())

	// the dirty set is drained, a second flush writes nothing
	require.NoError(t, store.Flush())
}

func TestFlushInsertsMissingSnapshot(t *testing.T) {
	db, mock := setupDBMock(t)
	store := WithDB(db, 100)

	store.MarkDirty(KeyVersion, 2)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "snapshots"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "snapshots"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Flush())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadDecodesSnapshot(t *testing.T) {
	db, mock := setupDBMock(t)
	store := WithDB(db, 100)

	rows := sqlmock.NewRows([]string{"key", "data", "updated_at"}).
		AddRow(KeyVersion, []byte(`2`), time.Now())
	mock.ExpectQuery(`SELECT \* FROM "snapshots"`).WillReturnRows(rows)

	var version int
	found, err := store.Load(KeyVersion, &version)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, version)
}

func TestLoadMissingSnapshot(t *testing.T) {
	db, mock := setupDBMock(t)
	store := WithDB(db, 100)

	mock.ExpectQuery(`SELECT \* FROM "snapshots"`).WillReturnError(gorm.ErrRecordNotFound)

	var version int
	found, err := store.Load(KeyVersion, &version)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAppendTransactionTrimsTheLog(t *testing.T) {
	db, mock := setupDBMock(t)
	store := WithDB(db, 50)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
	mock.ExpectExec(`DELETE FROM transactions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.AppendTransaction(&model.Transaction{
		Action:  model.TransactionOrder,
		Symbol:  "ETHBTC",
		Level:   "info",
		Message: "test row",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDirtyAfterCloseIsIgnored(t *testing.T) {
	db, mock := setupDBMock(t)
	store := WithDB(db, 100)

	require.NoError(t, store.Close())
	store.MarkDirty(KeyStrategies, "late")
	require.NoError(t, store.Flush())
	require.NoError(t, mock.ExpectationsWereMet())
}
