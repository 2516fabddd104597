package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chatterbox/internal/core/domain"
)

// ProfileRepo reads identity profiles from the users table and records
// last-seen times.
type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if id == "" {
		return nil, domain.ErrInvalidIdentityID
	}
	query := `SELECT id, display_name, avatar_url, last_seen FROM users WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	p, err := scanProfile(exec.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepo) GetProfiles(ctx context.Context, ids []string) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, display_name, avatar_url, last_seen FROM users WHERE id = ANY($1)`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// RecentlyOffline lists identities that have a last-seen time, newest first.
func (r *ProfileRepo) RecentlyOffline(ctx context.Context, exclude []string, limit int) ([]domain.Profile, error) {
	if exclude == nil {
		exclude = []string{}
	}
	query := `
		SELECT id, display_name, avatar_url, last_seen
		FROM users
		WHERE last_seen IS NOT NULL
		AND NOT (id = ANY($1))
		ORDER BY last_seen DESC
		LIMIT $2`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, exclude, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func (r *ProfileRepo) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	if id == "" {
		return domain.ErrInvalidIdentityID
	}
	query := `UPDATE users SET last_seen = $2 WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var (
		p        domain.Profile
		avatar   sql.NullString
		lastSeen sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.DisplayName, &avatar, &lastSeen); err != nil {
		return nil, err
	}
	if avatar.Valid {
		p.AvatarURL = &avatar.String
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		p.LastSeen = &t
	}
	return &p, nil
}

func scanProfiles(rows *sql.Rows) ([]domain.Profile, error) {
	var out []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
