package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

// AccessLogRepo is append-only. Entries feed analytics and ordering hints;
// nothing here is authoritative for chapter or tab state.
type AccessLogRepo struct {
	pool *pgxpool.Pool
}

func NewAccessLogRepo(pool *pgxpool.Pool) *AccessLogRepo {
	return &AccessLogRepo{pool: pool}
}

func (r *AccessLogRepo) Append(ctx context.Context, e *models.AccessLogEntry) error {
	e.ID = uuid.New()
	return r.pool.QueryRow(ctx,
		`INSERT INTO chapter_access_log (id, book_id, chapter_id, user_id, action)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		e.ID, e.BookID, e.ChapterID, e.UserID, e.Action,
	).Scan(&e.CreatedAt)
}

func (r *AccessLogRepo) ListRecent(ctx context.Context, bookID uuid.UUID, limit int) ([]*models.AccessLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, book_id, chapter_id, user_id, action, created_at
		FROM chapter_access_log WHERE book_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		bookID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AccessLogEntry
	for rows.Next() {
		e := &models.AccessLogEntry{}
		if err := rows.Scan(&e.ID, &e.BookID, &e.ChapterID, &e.UserID, &e.Action, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
