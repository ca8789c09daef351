package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newSqliteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ExecutionRecord{}))

	s := NewGormStoreFromDB(db, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStoreSaveGet(t *testing.T) {
	t.Parallel()

	s := newSqliteStore(t)
	ctx := context.Background()

	rec := record("e1", "running", "pipeline")
	rec.ConfigJSON = `{"name":"team"}`
	require.NoError(t, s.SaveExecution(ctx, rec))

	got, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "pipeline", got.Mode)
	assert.Equal(t, `{"name":"team"}`, got.ConfigJSON)

	_, err = s.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreUpsert(t *testing.T) {
	t.Parallel()

	s := newSqliteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "running", "pipeline")))
	require.NoError(t, s.SaveExecution(ctx, record("e1", "completed", "pipeline")))

	got, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRecords)
	assert.Equal(t, int64(1), stats.RecordsByState["completed"])
}

func TestGormStoreListAndFilter(t *testing.T) {
	t.Parallel()

	s := newSqliteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "completed", "parallel")))
	require.NoError(t, s.SaveExecution(ctx, record("e2", "running", "parallel")))
	require.NoError(t, s.SaveExecution(ctx, record("e3", "completed", "debate")))

	all, err := s.ListExecutions(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	completed, err := s.ListExecutions(ctx, ListFilter{Status: "completed"})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	limited, err := s.ListExecutions(ctx, ListFilter{Mode: "parallel", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGormStoreDeleteAndCleanup(t *testing.T) {
	t.Parallel()

	s := newSqliteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "completed", "parallel")))
	require.NoError(t, s.SaveExecution(ctx, record("e2", "completed", "parallel")))

	require.NoError(t, s.DeleteExecution(ctx, "e1"))
	assert.ErrorIs(t, s.DeleteExecution(ctx, "e1"), ErrNotFound)

	removed, err := s.Cleanup(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestNewGormStoreSqlite(t *testing.T) {
	t.Parallel()

	config := GormStoreConfig{
		Driver:      "sqlite",
		DSN:         ":memory:",
		AutoMigrate: true,
	}
	s, err := NewGormStore(config, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.SaveExecution(context.Background(), record("e1", "running", "parallel")))
}

func TestNewGormStoreUnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := NewGormStore(GormStoreConfig{Driver: "oracle"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

// error paths exercised through sqlmock behind the postgres dialector
func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *GormStore) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{Conn: mockDB})
	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	s := NewGormStoreFromDB(gormDB, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = mockDB.Close() })
	return mock, s
}

func TestGormStoreSaveError(t *testing.T) {
	t.Parallel()

	mock, s := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "executions"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.SaveExecution(context.Background(), record("e1", "running", "parallel"))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreGetError(t *testing.T) {
	t.Parallel()

	mock, s := setupMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "executions"`).WillReturnError(assert.AnError)

	_, err := s.GetExecution(context.Background(), "e1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
