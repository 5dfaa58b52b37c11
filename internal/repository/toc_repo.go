package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

// TocRepo is the single mutation point for outline documents. Every write is
// version-checked: the caller reads a version, computes the new state, and
// writes with that version as expectedVersion. A stale write fails with
// ConflictError carrying the current version; nothing partially applies.
type TocRepo struct {
	pool *pgxpool.Pool
}

func NewTocRepo(pool *pgxpool.Pool) *TocRepo {
	return &TocRepo{pool: pool}
}

func (r *TocRepo) Get(ctx context.Context, bookID uuid.UUID) (*models.TocDocument, error) {
	doc := &models.TocDocument{BookID: bookID}
	err := r.pool.QueryRow(ctx,
		"SELECT version, generated_at, updated_at FROM toc_documents WHERE book_id = $1",
		bookID,
	).Scan(&doc.Version, &doc.GeneratedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Message: "No table of contents exists for this book"}
	}
	if err != nil {
		return nil, err
	}

	items, err := loadItems(ctx, r.pool, bookID)
	if err != nil {
		return nil, err
	}
	doc.Items = items
	return doc, nil
}

// Version returns the current persisted version, or 0 when no document
// exists yet. This backs the cheap polling fallback.
func (r *TocRepo) Version(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var version int64
	err := r.pool.QueryRow(ctx,
		"SELECT version FROM toc_documents WHERE book_id = $1", bookID,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

// Write validates the document, checks expectedVersion against the persisted
// version under a row lock, and replaces the item set in one transaction.
// On success the returned document carries version expectedVersion+1 and the
// StructuralChange classifies the diff against what was stored before.
func (r *TocRepo) Write(ctx context.Context, bookID uuid.UUID, doc *models.TocDocument, expectedVersion int64) (*models.TocDocument, models.StructuralChange, error) {
	if violations := doc.Validate(); len(violations) > 0 {
		return nil, models.StructuralChange{}, &models.ValidationError{Violations: violations}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, models.StructuralChange{}, err
	}
	defer tx.Rollback(ctx)

	var current int64
	var generatedAt time.Time
	err = tx.QueryRow(ctx,
		"SELECT version, generated_at FROM toc_documents WHERE book_id = $1 FOR UPDATE",
		bookID,
	).Scan(&current, &generatedAt)

	exists := true
	if errors.Is(err, pgx.ErrNoRows) {
		exists = false
		current = 0
	} else if err != nil {
		return nil, models.StructuralChange{}, err
	}

	if current != expectedVersion {
		return nil, models.StructuralChange{}, &models.ConflictError{
			CurrentVersion:  current,
			ExpectedVersion: expectedVersion,
		}
	}

	var oldItems []models.TocItem
	if exists {
		oldItems, err = loadItems(ctx, tx, bookID)
		if err != nil {
			return nil, models.StructuralChange{}, err
		}
	}

	newVersion := current + 1
	now := time.Now()

	if exists {
		_, err = tx.Exec(ctx,
			"UPDATE toc_documents SET version = $1, updated_at = $2 WHERE book_id = $3",
			newVersion, now, bookID,
		)
	} else {
		generatedAt = now
		_, err = tx.Exec(ctx,
			"INSERT INTO toc_documents (book_id, version, generated_at, updated_at) VALUES ($1, $2, $3, $3)",
			bookID, newVersion, now,
		)
	}
	if err != nil {
		return nil, models.StructuralChange{}, err
	}

	keep := make(map[uuid.UUID]bool, len(doc.Items))
	for i := range doc.Items {
		keep[doc.Items[i].ID] = true
	}
	for _, old := range oldItems {
		if !keep[old.ID] {
			if _, err := tx.Exec(ctx, "DELETE FROM toc_items WHERE id = $1", old.ID); err != nil {
				return nil, models.StructuralChange{}, err
			}
		}
	}

	for i := range doc.Items {
		it := &doc.Items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.UpdatedAt = now
		_, err := tx.Exec(ctx, `
			INSERT INTO toc_items (id, book_id, parent_id, title, description, level, ord, status, word_count, draft_content, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				parent_id = EXCLUDED.parent_id,
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				level = EXCLUDED.level,
				ord = EXCLUDED.ord,
				status = EXCLUDED.status,
				word_count = EXCLUDED.word_count,
				draft_content = EXCLUDED.draft_content,
				updated_at = EXCLUDED.updated_at`,
			it.ID, bookID, it.ParentID, it.Title, it.Description, it.Level, it.Order,
			it.Status, it.WordCount, it.DraftContent, now,
		)
		if err != nil {
			return nil, models.StructuralChange{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, models.StructuralChange{}, err
	}

	change := models.ClassifyChanges(oldItems, doc.Items)
	change.BookID = bookID
	change.Version = newVersion

	result := &models.TocDocument{
		BookID:      bookID,
		Version:     newVersion,
		Items:       doc.Items,
		GeneratedAt: generatedAt,
		UpdatedAt:   now,
	}
	return result, change, nil
}

// Delete removes the document and its items. Used when a book is deleted;
// the FK cascade covers the normal path, this covers explicit resets.
func (r *TocRepo) Delete(ctx context.Context, bookID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM toc_documents WHERE book_id = $1", bookID)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q queryer, bookID uuid.UUID) ([]models.TocItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, parent_id, title, description, level, ord, status, word_count, draft_content, updated_at
		FROM toc_items WHERE book_id = $1 ORDER BY level, ord`,
		bookID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.TocItem
	for rows.Next() {
		var it models.TocItem
		err := rows.Scan(
			&it.ID, &it.ParentID, &it.Title, &it.Description, &it.Level, &it.Order,
			&it.Status, &it.WordCount, &it.DraftContent, &it.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
