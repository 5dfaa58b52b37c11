package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

type BookRepo struct {
	pool *pgxpool.Pool
}

func NewBookRepo(pool *pgxpool.Pool) *BookRepo {
	return &BookRepo{pool: pool}
}

func (r *BookRepo) Create(ctx context.Context, b *models.Book) error {
	b.ID = uuid.New()
	query := `INSERT INTO books (id, user_id, title, genre, audience)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		b.ID, b.UserID, b.Title, b.Genre, b.Audience,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return err
	}

	// Every book owns exactly one summary record from the start.
	_, err = r.pool.Exec(ctx,
		"INSERT INTO summaries (id, book_id) VALUES ($1, $2)",
		uuid.New(), b.ID,
	)
	return err
}

func (r *BookRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	b := &models.Book{}
	query := `SELECT id, user_id, title, genre, audience, created_at, updated_at
		FROM books WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.UserID, &b.Title, &b.Genre, &b.Audience, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Message: "Book not found"}
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BookRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Book, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, title, genre, audience, created_at, updated_at
		FROM books WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		b := &models.Book{}
		err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.Genre, &b.Audience, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// Delete cascades to the summary, wizard run, TOC, tab states, and access
// log through foreign keys.
func (r *BookRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM books WHERE id = $1", id)
	return err
}
