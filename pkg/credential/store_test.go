package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, NewStore(db).AutoMigrate())
	return db
}

func TestSaveAndGet(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", "tok-1"))

	token, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestSaveOverwrites(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", "tok-1"))
	require.NoError(t, store.Save(ctx, "u1", "tok-2"))

	token, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)

	var count int64
	require.NoError(t, db.Model(&Credential{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSaveValidation(t *testing.T) {
	store := NewStore(setupTestDB(t))

	assert.ErrorIs(t, store.Save(context.Background(), "", "tok"), apperr.ErrValidation)
	assert.ErrorIs(t, store.Save(context.Background(), "u1", ""), apperr.ErrValidation)
}

func TestGetNotFound(t *testing.T) {
	store := NewStore(setupTestDB(t))

	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListAllOrdered(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u2", "tok-2"))
	require.NoError(t, store.Save(ctx, "u1", "tok-1"))

	creds, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "u1", creds[0].OwnerID)
	assert.Equal(t, "u2", creds[1].OwnerID)
}

func TestListAllStorageFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery(".*").WillReturnError(errors.New("too many connections"))

	_, err = NewStore(db).ListAll(context.Background())
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
