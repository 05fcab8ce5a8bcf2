package conversations

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

var (
	conversationCols = []string{"id", "account_id", "tool", "title", "created_at", "updated_at"}
	messageCols      = []string{"id", "conversation_id", "sender", "content", "created_at"}
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+conversations\b.*RETURNING\s+created_at,\s*updated_at\s*$`).
		WithArgs("c1", "a1", "hashtag", "summer").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	got, err := repo.Create(context.Background(), &models.Conversation{ID: "c1", AccountID: "a1", Tool: "hashtag", Title: "summer"})
	require.NoError(t, err)
	assert.Equal(t, now, got.CreatedAt)
	assert.Equal(t, now, got.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+conversations`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Conversation{ID: "c1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestGet_ScopedToOwnerAndTool(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	const q = `FROM\s+conversations\s+WHERE\s+id\s*=\s*\$1\s+AND\s+account_id\s*=\s*\$2\s+AND\s+tool\s*=\s*\$3$`
	now := time.Now().UTC()
	mock.ExpectQuery(q).WithArgs("c1", "a1", "hashtag").
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow("c1", "a1", "hashtag", "summer", now, now))
	mock.ExpectQuery(q).WithArgs("c1", "intruder", "hashtag").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("abc", "a1", "hashtag").
		WillReturnError(&pgconn.PgError{Code: "22P02"})
	mock.ExpectQuery(q).WithArgs("c2", "a1", "hashtag").WillReturnError(errors.New("db down"))

	got, err := repo.Get(context.Background(), "a1", "hashtag", "c1")
	require.NoError(t, err)
	assert.Equal(t, "summer", got.Title)
	assert.Equal(t, "a1", got.AccountID)

	_, err = repo.Get(context.Background(), "intruder", "hashtag", "c1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.Get(context.Background(), "a1", "hashtag", "abc")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.Get(context.Background(), "a1", "hashtag", "c2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByAccount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	newer := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)FROM\s+conversations\s+WHERE\s+account_id\s*=\s*\$1\s+AND\s+tool\s*=\s*\$2\s+ORDER\s+BY\s+updated_at\s+DESC$`).
		WithArgs("a1", "hashtag").
		WillReturnRows(sqlmock.NewRows(conversationCols).
			AddRow("c2", "a1", "hashtag", "second", newer, newer).
			AddRow("c1", "a1", "hashtag", "first", older, older))
	mock.ExpectQuery(`FROM\s+conversations`).WithArgs("a2", "hashtag").
		WillReturnRows(sqlmock.NewRows(conversationCols))

	got, err := repo.ListByAccount(context.Background(), "a1", "hashtag")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].ID)

	got, err = repo.ListByAccount(context.Background(), "a2", "hashtag")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAddMessage_TouchesConversation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)WITH\s+touched\s+AS\s*\(\s*UPDATE\s+conversations\s+SET\s+updated_at\s*=\s*now\(\).*INSERT\s+INTO\s+messages`).
		WithArgs("c1", "user", "hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	m, err := repo.AddMessage(context.Background(), &models.Message{ConversationID: "c1", Sender: models.SenderUser, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.ID)
	assert.Equal(t, now, m.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessages_Limit(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows(messageCols).
			AddRow(int64(1), "c1", "user", "hi", now).
			AddRow(int64(2), "c1", "bot", "hello", now)
	}
	mock.ExpectQuery(`(?s)FROM\s+messages\s+WHERE\s+conversation_id\s*=\s*\$1.*LIMIT\s+\$2`).
		WithArgs("c1", 20).WillReturnRows(rows())
	mock.ExpectQuery(`FROM\s+messages`).WithArgs("c1", nil).WillReturnRows(rows())

	got, err := repo.Messages(context.Background(), "c1", 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SenderUser, got[0].Sender)
	assert.Equal(t, models.SenderBot, got[1].Sender)

	got, err = repo.Messages(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessages_RowError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(messageCols).
		AddRow(int64(1), "c1", "user", "hi", time.Now()).
		RowError(0, errors.New("broken row"))
	mock.ExpectQuery(`FROM\s+messages`).WillReturnRows(rows)

	_, err := repo.Messages(context.Background(), "c1", 0)
	require.Error(t, err)
}
