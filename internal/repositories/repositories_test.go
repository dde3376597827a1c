package repositories

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

var conversationCols = []string{"id", "is_group", "group_name", "last_message_id", "last_message_at", "created_at"}

var messageCols = []string{"id", "conversation_id", "sender_id", "content", "type", "attachment_url", "attachment_name", "attachment_size", "created_at"}
