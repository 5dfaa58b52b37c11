package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

type WizardRepo struct {
	pool *pgxpool.Pool
}

func NewWizardRepo(pool *pgxpool.Pool) *WizardRepo {
	return &WizardRepo{pool: pool}
}

const wizardRunColumns = `id, book_id, state, readiness_score, readiness_reasons,
	failure_code, retryable, candidate_json, request_seq, created_at, updated_at`

func scanRun(row pgx.Row) (*models.WizardRun, error) {
	run := &models.WizardRun{}
	err := row.Scan(
		&run.ID, &run.BookID, &run.State, &run.ReadinessScore, &run.ReadinessReasons,
		&run.FailureCode, &run.Retryable, &run.CandidateJSON, &run.RequestSeq,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *WizardRepo) GetByBook(ctx context.Context, bookID uuid.UUID) (*models.WizardRun, error) {
	run, err := scanRun(r.pool.QueryRow(ctx,
		"SELECT "+wizardRunColumns+" FROM wizard_runs WHERE book_id = $1", bookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Message: "No wizard run exists for this book"}
	}
	return run, err
}

// GetOrCreate returns the book's wizard run, creating an idle one on first
// access.
func (r *WizardRepo) GetOrCreate(ctx context.Context, bookID uuid.UUID) (*models.WizardRun, error) {
	run, err := r.GetByBook(ctx, bookID)
	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		return scanRun(r.pool.QueryRow(ctx, `
			INSERT INTO wizard_runs (id, book_id, state)
			VALUES ($1, $2, $3)
			ON CONFLICT (book_id) DO UPDATE SET updated_at = NOW()
			RETURNING `+wizardRunColumns,
			uuid.New(), bookID, models.WizardIdle))
	}
	return run, err
}

func (r *WizardRepo) UpdateState(ctx context.Context, runID uuid.UUID, state models.WizardState) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE wizard_runs SET state = $1, updated_at = NOW() WHERE id = $2",
		state, runID,
	)
	return err
}

func (r *WizardRepo) UpdateReadiness(ctx context.Context, runID uuid.UUID, state models.WizardState, score float64, reasons []string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wizard_runs SET state = $1, readiness_score = $2, readiness_reasons = $3,
			failure_code = NULL, retryable = FALSE, updated_at = NOW()
		WHERE id = $4`,
		state, score, reasons, runID,
	)
	return err
}

func (r *WizardRepo) SetFailure(ctx context.Context, runID uuid.UUID, code string, retryable bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wizard_runs SET state = $1, failure_code = $2, retryable = $3, updated_at = NOW()
		WHERE id = $4`,
		models.WizardFailed, code, retryable, runID,
	)
	return err
}

func (r *WizardRepo) SetCandidate(ctx context.Context, runID uuid.UUID, candidate json.RawMessage, state models.WizardState) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wizard_runs SET state = $1, candidate_json = $2, failure_code = NULL,
			retryable = FALSE, updated_at = NOW()
		WHERE id = $3`,
		state, candidate, runID,
	)
	return err
}

func (r *WizardRepo) ClearCandidate(ctx context.Context, runID uuid.UUID, state models.WizardState) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wizard_runs SET state = $1, candidate_json = NULL, updated_at = NOW()
		WHERE id = $2`,
		state, runID,
	)
	return err
}

// BumpRequestSeq advances the stale-response guard and returns the new value.
// Any in-flight generation keyed to an older sequence is discarded when it
// resolves.
func (r *WizardRepo) BumpRequestSeq(ctx context.Context, runID uuid.UUID) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx,
		"UPDATE wizard_runs SET request_seq = request_seq + 1, updated_at = NOW() WHERE id = $1 RETURNING request_seq",
		runID,
	).Scan(&seq)
	return seq, err
}

// ReplaceQuestions discards any prior question set (and its responses, via
// cascade) and installs the new one. Questions are immutable once created.
func (r *WizardRepo) ReplaceQuestions(ctx context.Context, runID uuid.UUID, questions []models.ClarifyingQuestion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM clarifying_questions WHERE run_id = $1", runID); err != nil {
		return err
	}

	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.RunID = runID
		_, err := tx.Exec(ctx,
			"INSERT INTO clarifying_questions (id, run_id, text, ord, category) VALUES ($1, $2, $3, $4, $5)",
			q.ID, runID, q.Text, q.Order, q.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *WizardRepo) ListQuestions(ctx context.Context, runID uuid.UUID) ([]*models.ClarifyingQuestion, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, run_id, text, ord, category FROM clarifying_questions WHERE run_id = $1 ORDER BY ord",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*models.ClarifyingQuestion
	for rows.Next() {
		q := &models.ClarifyingQuestion{}
		if err := rows.Scan(&q.ID, &q.RunID, &q.Text, &q.Order, &q.Category); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// UpsertResponse is idempotent: resubmitting the same answer is a no-op
// apart from the timestamp, which keeps next/previous navigation free to
// re-save without side effects.
func (r *WizardRepo) UpsertResponse(ctx context.Context, resp *models.QuestionResponse) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO question_responses (question_id, run_id, answer, rating, skipped)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (question_id) DO UPDATE SET
			answer = EXCLUDED.answer,
			rating = EXCLUDED.rating,
			skipped = EXCLUDED.skipped,
			updated_at = NOW()
		RETURNING updated_at`,
		resp.QuestionID, resp.RunID, resp.Answer, resp.Rating, resp.Skipped,
	).Scan(&resp.UpdatedAt)
}

func (r *WizardRepo) ListResponses(ctx context.Context, runID uuid.UUID) ([]*models.QuestionResponse, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT question_id, run_id, answer, rating, skipped, updated_at
		FROM question_responses WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*models.QuestionResponse
	for rows.Next() {
		resp := &models.QuestionResponse{}
		if err := rows.Scan(&resp.QuestionID, &resp.RunID, &resp.Answer, &resp.Rating, &resp.Skipped, &resp.UpdatedAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}
