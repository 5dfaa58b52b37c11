package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

type SummaryRepo struct {
	pool *pgxpool.Pool
}

func NewSummaryRepo(pool *pgxpool.Pool) *SummaryRepo {
	return &SummaryRepo{pool: pool}
}

func (r *SummaryRepo) GetByBook(ctx context.Context, bookID uuid.UUID) (*models.Summary, error) {
	s := &models.Summary{}
	query := `SELECT id, book_id, text, word_count, char_count, updated_at
		FROM summaries WHERE book_id = $1`

	err := r.pool.QueryRow(ctx, query, bookID).Scan(
		&s.ID, &s.BookID, &s.Text, &s.WordCount, &s.CharCount, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Message: "Summary not found"}
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateText snapshots the previous text as a revision and stores the new
// one. Rapid repeated saves with identical text are no-ops so the debounced
// client auto-save does not pile up empty revisions.
func (r *SummaryRepo) UpdateText(ctx context.Context, bookID uuid.UUID, text string) (*models.Summary, error) {
	current, err := r.GetByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if current.Text == text {
		return current, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if current.Text != "" {
		_, err = tx.Exec(ctx,
			"INSERT INTO summary_revisions (id, summary_id, text) VALUES ($1, $2, $3)",
			uuid.New(), current.ID, current.Text,
		)
		if err != nil {
			return nil, err
		}
	}

	words := len(strings.Fields(text))
	err = tx.QueryRow(ctx,
		`UPDATE summaries SET text = $1, word_count = $2, char_count = $3, updated_at = NOW()
		 WHERE id = $4 RETURNING updated_at`,
		text, words, len(text), current.ID,
	).Scan(&current.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	current.Text = text
	current.WordCount = words
	current.CharCount = len(text)
	return current, nil
}

func (r *SummaryRepo) ListRevisions(ctx context.Context, summaryID uuid.UUID, limit int) ([]*models.SummaryRevision, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, summary_id, text, created_at FROM summary_revisions
		 WHERE summary_id = $1 ORDER BY created_at DESC LIMIT $2`,
		summaryID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []*models.SummaryRevision
	for rows.Next() {
		rev := &models.SummaryRevision{}
		if err := rows.Scan(&rev.ID, &rev.SummaryID, &rev.Text, &rev.CreatedAt); err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}
