package postgres

import (
	"context"
	"database/sql"
	"errors"

	"chatterbox/internal/core/domain"
)

type ChannelRepo struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

func (r *ChannelRepo) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	if id == "" {
		return nil, domain.ErrInvalidChannelID
	}
	return r.getOne(ctx, `SELECT id, name, is_direct, created_at FROM channels WHERE id = $1`, id)
}

// GetChannelByName only considers non-direct channels.
func (r *ChannelRepo) GetChannelByName(ctx context.Context, name string) (*domain.Channel, error) {
	return r.getOne(ctx, `
		SELECT id, name, is_direct, created_at
		FROM channels
		WHERE name = $1 AND is_direct = false
		ORDER BY created_at ASC
		LIMIT 1`, name)
}

func (r *ChannelRepo) getOne(ctx context.Context, query string, arg string) (*domain.Channel, error) {
	var ch domain.Channel
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, arg).Scan(&ch.ID, &ch.Name, &ch.IsDirect, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepo) IsMember(ctx context.Context, channelID, identityID string) (bool, error) {
	var ok bool
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2
		)`, channelID, identityID).Scan(&ok)
	return ok, err
}

func (r *ChannelRepo) EnsureMember(ctx context.Context, channelID, identityID string) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id, user_id) DO NOTHING`, channelID, identityID)
	return err
}

func (r *ChannelRepo) ListMemberChannels(ctx context.Context, identityID string) ([]domain.Channel, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT c.id, c.name, c.is_direct, c.created_at
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at ASC`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.IsDirect, &ch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (r *ChannelRepo) ListMembers(ctx context.Context, channelID string) ([]string, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `SELECT user_id FROM channel_members WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
