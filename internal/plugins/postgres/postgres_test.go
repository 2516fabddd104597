package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"chatterbox/internal/core/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestProfileRepo_GetProfile(t *testing.T) {
	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		want      *domain.Profile
		wantErr   error
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, display_name, avatar_url, last_seen FROM users").
					WithArgs("alice").
					WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "avatar_url", "last_seen"}).
						AddRow("alice", "Alice", nil, seen))
			},
			want: &domain.Profile{ID: "alice", DisplayName: "Alice", LastSeen: &seen},
		},
		{
			name: "missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, display_name").
					WithArgs("alice").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrIdentityNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tt.setupMock(mock)
			got, err := NewProfileRepository(db).GetProfile(context.Background(), "alice")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfileRepo_UpdateLastSeen(t *testing.T) {
	at := time.Now()
	db, mock := setupMockDB(t)
	mock.ExpectExec("UPDATE users SET last_seen").
		WithArgs("alice", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET last_seen").
		WithArgs("ghost", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewProfileRepository(db)
	require.NoError(t, repo.UpdateLastSeen(context.Background(), "alice", at))
	assert.ErrorIs(t, repo.UpdateLastSeen(context.Background(), "ghost", at), domain.ErrIdentityNotFound)
	assert.ErrorIs(t, repo.UpdateLastSeen(context.Background(), "", at), domain.ErrInvalidIdentityID)
}

func TestChannelRepo_GetChannel(t *testing.T) {
	created := time.Now()
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SELECT id, name, is_direct, created_at FROM channels").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "is_direct", "created_at"}).
			AddRow("c1", "general", false, created))
	mock.ExpectQuery("SELECT id, name, is_direct, created_at FROM channels").
		WithArgs("c2").
		WillReturnError(sql.ErrNoRows)

	repo := NewChannelRepository(db)
	ch, err := repo.GetChannel(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, &domain.Channel{ID: "c1", Name: "general", CreatedAt: created}, ch)

	_, err = repo.GetChannel(context.Background(), "c2")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestChannelRepo_Membership(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("c1", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO channel_members").
		WithArgs("c1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT user_id FROM channel_members").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("alice").AddRow("bob"))

	repo := NewChannelRepository(db)
	ctx := context.Background()
	ok, err := repo.IsMember(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, repo.EnsureMember(ctx, "c1", "bob"))
	members, err := repo.ListMembers(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)
}

func TestMessageRepo_LatestMessage(t *testing.T) {
	id := uuid.New()
	created := time.Now()
	db, mock := setupMockDB(t)
	mock.ExpectQuery("FROM messages").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel_id", "author_id", "content", "created_at", "deleted_at", "welcome_for"}).
			AddRow(id.String(), "c1", "bob", "hi", created, nil, nil))
	mock.ExpectQuery("FROM messages").
		WithArgs("c2").
		WillReturnError(sql.ErrNoRows)

	repo := NewMessageRepo(db)
	m, err := repo.LatestMessage(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, "hi", *m.Content)
	assert.Nil(t, m.WelcomeFor)

	m, err = repo.LatestMessage(context.Background(), "c2")
	require.NoError(t, err)
	assert.Nil(t, m, "an empty channel is not an error")
}

func TestMessageRepo_CountUnread(t *testing.T) {
	after := time.Now()
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("c1", "alice", after).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := NewMessageRepo(db).CountUnread(context.Background(), "c1", "alice", after)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMessageRepo_CreateWelcome(t *testing.T) {
	content := "welcome"
	target := "alice"
	msg := &domain.Message{ID: uuid.New(), ChannelID: "c1", AuthorID: "ai-bot", Content: &content, CreatedAt: time.Now(), WelcomeFor: &target}

	db, mock := setupMockDB(t)
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "c1", "ai-bot", "welcome", sqlmock.AnyArg(), "alice").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(msg.ID.String()))
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "c1", "ai-bot", "welcome", sqlmock.AnyArg(), "alice").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnError(errors.New("boom"))

	repo := NewMessageRepo(db)
	created, err := repo.CreateWelcome(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateWelcome(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, created, "a conflicting insert means someone else welcomed first")

	_, err = repo.CreateWelcome(context.Background(), msg)
	assert.Error(t, err)
}

func TestReadRepo(t *testing.T) {
	at := time.Now()
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SELECT last_read FROM channel_reads").
		WithArgs("alice", "c1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO channel_reads").
		WithArgs("alice", "c1", at).
		WillReturnRows(sqlmock.NewRows([]string{"last_read"}).AddRow(at.Add(-time.Hour)))
	mock.ExpectExec("GREATEST").
		WithArgs("alice", "c1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewReadRepository(db)
	ctx := context.Background()
	w, err := repo.GetWatermark(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Nil(t, w)

	stored, err := repo.InitWatermark(ctx, domain.Watermark{IdentityID: "alice", ChannelID: "c1", LastRead: at})
	require.NoError(t, err)
	assert.Equal(t, at.Add(-time.Hour), stored.LastRead, "an existing watermark wins")

	require.NoError(t, repo.AdvanceWatermark(ctx, domain.Watermark{IdentityID: "alice", ChannelID: "c1", LastRead: at}))
}

func TestTxManager(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO channel_members").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	tm := NewTxManager(db)
	repo := NewChannelRepository(db)
	ctx := context.Background()

	err := tm.WithTx(ctx, func(txCtx context.Context) error {
		// Nested calls share the outer transaction.
		return tm.WithTx(txCtx, func(inner context.Context) error {
			return repo.EnsureMember(inner, "c1", "alice")
		})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tm.WithTx(ctx, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
