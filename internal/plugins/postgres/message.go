package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chatterbox/internal/core/domain"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{
		db: db,
	}
}

const messageColumns = `id, channel_id, author_id, content, created_at, deleted_at, welcome_for`

func (r *MessageRepo) LatestMessage(ctx context.Context, channelID string) (*domain.Message, error) {
	return r.latest(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE channel_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, channelID)
}

func (r *MessageRepo) LatestMessageFrom(ctx context.Context, channelID, authorID string) (*domain.Message, error) {
	return r.latest(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE channel_id = $1 AND author_id = $2 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, channelID, authorID)
}

func (r *MessageRepo) latest(ctx context.Context, query string, args ...any) (*domain.Message, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, domain.ErrInvalidChannelID
	}
	var (
		m          domain.Message
		content    sql.NullString
		deletedAt  sql.NullTime
		welcomeFor sql.NullString
	)
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, args...).Scan(
		&m.ID,
		&m.ChannelID,
		&m.AuthorID,
		&content,
		&m.CreatedAt,
		&deletedAt,
		&welcomeFor,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if content.Valid {
		m.Content = &content.String
	}
	if deletedAt.Valid {
		m.DeletedAt = &deletedAt.Time
	}
	if welcomeFor.Valid {
		m.WelcomeFor = &welcomeFor.String
	}
	return &m, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, channelID, identityID string, after time.Time) (int, error) {
	var n int
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE channel_id = $1
		AND author_id <> $2
		AND deleted_at IS NULL
		AND created_at > $3`, channelID, identityID, after).Scan(&n)
	return n, err
}

func (r *MessageRepo) HasWelcome(ctx context.Context, channelID, identityID string) (bool, error) {
	var ok bool
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages WHERE channel_id = $1 AND welcome_for = $2
		)`, channelID, identityID).Scan(&ok)
	return ok, err
}

// CreateWelcome relies on the partial unique index on (channel_id, welcome_for)
// so that racing inserts from several nodes leave exactly one row.
func (r *MessageRepo) CreateWelcome(ctx context.Context, msg *domain.Message) (bool, error) {
	if msg.ChannelID == "" {
		return false, domain.ErrInvalidChannelID
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	exec := GetExecutor(ctx, r.db)
	var id uuid.UUID
	err := exec.QueryRowContext(ctx, `
		INSERT INTO messages (id, channel_id, author_id, content, created_at, welcome_for)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id, welcome_for) WHERE welcome_for IS NOT NULL DO NOTHING
		RETURNING id`,
		msg.ID,
		msg.ChannelID,
		msg.AuthorID,
		msg.Content,
		msg.CreatedAt,
		msg.WelcomeFor,
	).Scan(&id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		// Already welcomed
		return false, nil
	default:
		return false, err
	}
}
