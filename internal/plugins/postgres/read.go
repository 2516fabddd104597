package postgres

import (
	"context"
	"database/sql"
	"errors"

	"chatterbox/internal/core/domain"
)

// ReadRepo stores one watermark per (user, channel) in channel_reads.
type ReadRepo struct {
	db *sql.DB
}

func NewReadRepository(db *sql.DB) *ReadRepo {
	return &ReadRepo{db: db}
}

func (r *ReadRepo) GetWatermark(ctx context.Context, identityID, channelID string) (*domain.Watermark, error) {
	w := domain.Watermark{IdentityID: identityID, ChannelID: channelID}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT last_read FROM channel_reads WHERE user_id = $1 AND channel_id = $2`,
		identityID, channelID).Scan(&w.LastRead)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// InitWatermark inserts w if no row exists and returns whatever is stored.
func (r *ReadRepo) InitWatermark(ctx context.Context, w domain.Watermark) (domain.Watermark, error) {
	exec := GetExecutor(ctx, r.db)
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := exec.QueryRowContext(ctx, `
		INSERT INTO channel_reads (user_id, channel_id, last_read)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, channel_id) DO UPDATE SET last_read = channel_reads.last_read
		RETURNING last_read`,
		w.IdentityID, w.ChannelID, w.LastRead).Scan(&w.LastRead)
	return w, err
}

func (r *ReadRepo) SetWatermark(ctx context.Context, w domain.Watermark) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO channel_reads (user_id, channel_id, last_read)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, channel_id) DO UPDATE SET last_read = EXCLUDED.last_read`,
		w.IdentityID, w.ChannelID, w.LastRead)
	return err
}

func (r *ReadRepo) AdvanceWatermark(ctx context.Context, w domain.Watermark) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO channel_reads (user_id, channel_id, last_read)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, channel_id)
		DO UPDATE SET last_read = GREATEST(channel_reads.last_read, EXCLUDED.last_read)`,
		w.IdentityID, w.ChannelID, w.LastRead)
	return err
}
