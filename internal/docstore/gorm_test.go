package docstore

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSQLite(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return NewGormStore(db)
}

func TestGormStore_SetGetOverwrite(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "profiles", "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "profiles", "u1", Document{"username": "alice01"}))
	require.NoError(t, s.Set(ctx, "profiles", "u1", Document{"username": "alice_dev"}))

	got, err := s.Get(ctx, "profiles", "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice_dev", got["username"])
}

func TestGormStore_CreateConflict(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "usernames", "alice01", Document{"user_id": "u1"}))
	err := s.Create(ctx, "usernames", "alice01", Document{"user_id": "u2"})
	assert.ErrorIs(t, err, ErrExists)

	got, err := s.Get(ctx, "usernames", "alice01")
	require.NoError(t, err)
	assert.Equal(t, "u1", got["user_id"])
}

func TestGormStore_ApplyFieldOps(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts", "p1", Document{
		"likes":    float64(0),
		"liked_by": []any{},
	}))

	require.NoError(t, s.Apply(ctx, "posts", "p1", Update{
		"liked_by": ArrayUnion("u1"),
		"likes":    ArrayLen("liked_by"),
	}))
	require.NoError(t, s.Apply(ctx, "posts", "p1", Update{
		"liked_by": ArrayRemove("u1"),
		"likes":    ArrayLen("liked_by"),
	}))

	got, err := s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, float64(0), got["likes"])
	assert.Empty(t, got["liked_by"])

	err = s.Apply(ctx, "posts", "missing", Update{"likes": Increment(1)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_QueryCollectionIsolation(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts", "x", Document{"user_id": "u1"}))
	require.NoError(t, s.Set(ctx, "chats", "x", Document{"user_id": "u1"}))

	docs, err := s.List(ctx, "posts")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = s.Query(ctx, "posts", Where("user_id", "==", "u1"))
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = s.Query(ctx, "posts", Where("user_id", "==", "u2"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestGormStore_Delete(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts", "p1", Document{"caption": "hello"}))
	require.NoError(t, s.Delete(ctx, "posts", "p1"))
	_, err := s.Get(ctx, "posts", "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting a missing document is not an error
	assert.NoError(t, s.Delete(ctx, "posts", "p1"))
}

// The postgres path is covered with sqlmock since the suite runs on SQLite.
func TestGormStore_GetPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents" WHERE collection = $1 AND id = $2`)).
		WithArgs("profiles", "u1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"collection", "id", "data"}).
			AddRow("profiles", "u1", `{"username":"alice01"}`))

	doc, err := s.Get(context.Background(), "profiles", "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice01", doc["username"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
