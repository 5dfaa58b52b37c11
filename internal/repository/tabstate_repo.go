package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

type TabStateRepo struct {
	pool *pgxpool.Pool
}

func NewTabStateRepo(pool *pgxpool.Pool) *TabStateRepo {
	return &TabStateRepo{pool: pool}
}

func (r *TabStateRepo) Get(ctx context.Context, bookID uuid.UUID, sessionKey string) (*models.ChapterTabState, error) {
	s := &models.ChapterTabState{}
	err := r.pool.QueryRow(ctx, `
		SELECT book_id, session_key, open_tabs, active_tab, last_synced_version, updated_at
		FROM tab_states WHERE book_id = $1 AND session_key = $2`,
		bookID, sessionKey,
	).Scan(&s.BookID, &s.SessionKey, &s.OpenTabs, &s.ActiveTab, &s.LastSyncedVersion, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Message: "No tab state for this session"}
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *TabStateRepo) Save(ctx context.Context, s *models.ChapterTabState) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tab_states (book_id, session_key, open_tabs, active_tab, last_synced_version, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (book_id, session_key) DO UPDATE SET
			open_tabs = EXCLUDED.open_tabs,
			active_tab = EXCLUDED.active_tab,
			last_synced_version = EXCLUDED.last_synced_version,
			updated_at = NOW()
		RETURNING updated_at`,
		s.BookID, s.SessionKey, s.OpenTabs, s.ActiveTab, s.LastSyncedVersion,
	).Scan(&s.UpdatedAt)
}

func (r *TabStateRepo) Delete(ctx context.Context, bookID uuid.UUID, sessionKey string) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM tab_states WHERE book_id = $1 AND session_key = $2",
		bookID, sessionKey,
	)
	return err
}
