package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

// Narrow views of the stores the wizard drives. The pgx-backed repositories
// satisfy these; tests substitute in-memory fakes.

type wizardStore interface {
	GetOrCreate(ctx context.Context, bookID uuid.UUID) (*models.WizardRun, error)
	GetByBook(ctx context.Context, bookID uuid.UUID) (*models.WizardRun, error)
	UpdateState(ctx context.Context, runID uuid.UUID, state models.WizardState) error
	UpdateReadiness(ctx context.Context, runID uuid.UUID, state models.WizardState, score float64, reasons []string) error
	SetFailure(ctx context.Context, runID uuid.UUID, code string, retryable bool) error
	SetCandidate(ctx context.Context, runID uuid.UUID, candidate json.RawMessage, state models.WizardState) error
	ClearCandidate(ctx context.Context, runID uuid.UUID, state models.WizardState) error
	BumpRequestSeq(ctx context.Context, runID uuid.UUID) (int64, error)
	ReplaceQuestions(ctx context.Context, runID uuid.UUID, questions []models.ClarifyingQuestion) error
	ListQuestions(ctx context.Context, runID uuid.UUID) ([]*models.ClarifyingQuestion, error)
	UpsertResponse(ctx context.Context, resp *models.QuestionResponse) error
	ListResponses(ctx context.Context, runID uuid.UUID) ([]*models.QuestionResponse, error)
}

type wizardBooks interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
}

type wizardSummaries interface {
	GetByBook(ctx context.Context, bookID uuid.UUID) (*models.Summary, error)
}

type wizardTocs interface {
	Version(ctx context.Context, bookID uuid.UUID) (int64, error)
	Write(ctx context.Context, bookID uuid.UUID, doc *models.TocDocument, expectedVersion int64) (*models.TocDocument, models.StructuralChange, error)
}

// WizardAI is the request/response contract with the generation collaborator.
type WizardAI interface {
	GenerateQuestions(ctx context.Context, book *models.Book, summary string) ([]models.ClarifyingQuestion, error)
	GenerateToc(ctx context.Context, book *models.Book, summary string, questions []*models.ClarifyingQuestion, responses []*models.QuestionResponse) ([]models.TocItem, error)
}

// JobEnqueuer hands a persisted job to the async worker pool.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type changePublisher interface {
	Publish(ctx context.Context, change models.StructuralChange)
}

// Actions a run can take from each state. The table is the whole policy:
// everything else is rejected with InvalidStateError, so "Generate" being
// unavailable is enforced here and not just greyed out in a client.
var allowedFrom = map[string][]models.WizardState{
	"check_readiness":   {models.WizardIdle, models.WizardNotReady, models.WizardCheckingReadiness, models.WizardRegenerating, models.WizardFailed, models.WizardAccepted},
	"request_questions": {models.WizardAwaitingQuestions, models.WizardFailed},
	"submit_answer":     {models.WizardCollectingAnswers},
	"generate":          {models.WizardCollectingAnswers, models.WizardFailed},
	"regenerate":        {models.WizardReviewing, models.WizardAccepted},
	"accept":            {models.WizardReviewing},
}

func actionAllowed(action string, state models.WizardState) bool {
	for _, s := range allowedFrom[action] {
		if s == state {
			return true
		}
	}
	return false
}

// WizardService drives a book's outline-generation run through its states.
// All state transitions for a book funnel through here; the per-book
// in-flight set keeps a double-clicked "Generate" from enqueueing two jobs.
type WizardService struct {
	runs      wizardStore
	books     wizardBooks
	summaries wizardSummaries
	tocs      wizardTocs
	ai        WizardAI
	queue     JobEnqueuer
	readiness *ReadinessEvaluator
	sync      changePublisher

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

func NewWizardService(
	runs wizardStore,
	books wizardBooks,
	summaries wizardSummaries,
	tocs wizardTocs,
	ai WizardAI,
	queue JobEnqueuer,
	readiness *ReadinessEvaluator,
	syncBus changePublisher,
) *WizardService {
	return &WizardService{
		runs:      runs,
		books:     books,
		summaries: summaries,
		tocs:      tocs,
		ai:        ai,
		queue:     queue,
		readiness: readiness,
		sync:      syncBus,
		inFlight:  make(map[uuid.UUID]bool),
	}
}

// WizardStatus is the full view of a run: state plus whatever questions and
// responses exist, so a reloaded client can resume mid-flow.
type WizardStatus struct {
	Run       *models.WizardRun            `json:"run"`
	Questions []*models.ClarifyingQuestion `json:"questions"`
	Responses []*models.QuestionResponse   `json:"responses"`
}

func (s *WizardService) Status(ctx context.Context, bookID uuid.UUID) (*WizardStatus, error) {
	run, err := s.runs.GetOrCreate(ctx, bookID)
	if err != nil {
		return nil, err
	}
	questions, err := s.runs.ListQuestions(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	responses, err := s.runs.ListResponses(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &WizardStatus{Run: run, Questions: questions, Responses: responses}, nil
}

// CheckReadiness scores the book's summary and moves the run to NotReady or
// AwaitingQuestions. Scoring is deterministic, so re-checking an unchanged
// summary always lands in the same state.
func (s *WizardService) CheckReadiness(ctx context.Context, bookID uuid.UUID) (*models.ReadinessReport, error) {
	run, err := s.runs.GetOrCreate(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !actionAllowed("check_readiness", run.State) {
		return nil, &models.InvalidStateError{Action: "check_readiness", State: string(run.State)}
	}

	summary, err := s.summaries.GetByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	report := s.readiness.Evaluate(summary.Text)

	next := models.WizardNotReady
	if report.Ready {
		next = models.WizardAwaitingQuestions
	}
	if err := s.runs.UpdateReadiness(ctx, run.ID, next, report.Score, report.Reasons); err != nil {
		return nil, err
	}
	return &report, nil
}

// RequestQuestions enqueues asynchronous clarifying-question generation. The
// run stays in AwaitingQuestions until the worker reports back.
func (s *WizardService) RequestQuestions(ctx context.Context, userID, bookID uuid.UUID) (*models.Job, error) {
	run, err := s.runs.GetOrCreate(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !actionAllowed("request_questions", run.State) {
		return nil, &models.InvalidStateError{Action: "request_questions", State: string(run.State)}
	}
	if run.State == models.WizardFailed && !run.Retryable {
		return nil, &models.InvalidStateError{Action: "request_questions", State: string(run.State)}
	}

	// Held until the worker finishes; a double-clicked button enqueues once.
	if !s.beginGeneration(bookID) {
		return nil, &models.InvalidStateError{Action: "request_questions", State: "generation already in flight"}
	}

	seq, err := s.runs.BumpRequestSeq(ctx, run.ID)
	if err != nil {
		s.endGeneration(bookID)
		return nil, err
	}
	if run.State == models.WizardFailed {
		if err := s.runs.UpdateState(ctx, run.ID, models.WizardAwaitingQuestions); err != nil {
			s.endGeneration(bookID)
			return nil, err
		}
	}

	job, err := s.enqueue(ctx, userID, bookID, models.JobQuestionGeneration, seq)
	if err != nil {
		s.endGeneration(bookID)
		return nil, err
	}
	return job, nil
}

// SubmitAnswer upserts one response. Saving the same answer twice, or moving
// back and forth between questions, has no side effects beyond the timestamp.
func (s *WizardService) SubmitAnswer(ctx context.Context, bookID, questionID uuid.UUID, req models.SubmitResponseRequest) (*models.QuestionResponse, error) {
	run, err := s.runs.GetByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !actionAllowed("submit_answer", run.State) {
		return nil, &models.InvalidStateError{Action: "submit_answer", State: string(run.State)}
	}

	questions, err := s.runs.ListQuestions(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	known := false
	for _, q := range questions {
		if q.ID == questionID {
			known = true
			break
		}
	}
	if !known {
		return nil, &models.NotFoundError{Message: "Question does not belong to this wizard run"}
	}

	resp := &models.QuestionResponse{
		QuestionID: questionID,
		RunID:      run.ID,
		Answer:     req.Answer,
		Rating:     req.Rating,
		Skipped:    req.Skipped,
	}
	if err := s.runs.UpsertResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Generate enqueues asynchronous outline generation and moves the run to
// Generating. Answers are optional; skipped questions simply contribute
// nothing to the prompt.
func (s *WizardService) Generate(ctx context.Context, userID, bookID uuid.UUID) (*models.Job, error) {
	run, err := s.runs.GetByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !actionAllowed("generate", run.State) {
		return nil, &models.InvalidStateError{Action: "generate", State: string(run.State)}
	}
	if run.State == models.WizardFailed && !run.Retryable {
		return nil, &models.InvalidStateError{Action: "generate", State: string(run.State)}
	}

	if !s.beginGeneration(bookID) {
		return nil, &models.InvalidStateError{Action: "generate", State: "generation already in flight"}
	}

	seq, err := s.runs.BumpRequestSeq(ctx, run.ID)
	if err != nil {
		s.endGeneration(bookID)
		return nil, err
	}
	if err := s.runs.UpdateState(ctx, run.ID, models.WizardGenerating); err != nil {
		s.endGeneration(bookID)
		return nil, err
	}

	job, err := s.enqueue(ctx, userID, bookID, models.JobTocGeneration, seq)
	if err != nil {
		s.endGeneration(bookID)
		return nil, err
	}
	return job, nil
}

// Candidate returns the generated outline awaiting review.
func (s *WizardService) Candidate(ctx context.Context, bookID uuid.UUID) ([]models.TocItem, error) {
	run, err := s.runs.GetByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if len(run.CandidateJSON) == 0 {
		return nil, &models.NotFoundError{Message: "No candidate outline awaiting review"}
	}
	var items []models.TocItem
	if err := json.Unmarshal(run.CandidateJSON, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Accept persists the reviewed candidate as the book's outline. A first
// accept writes version 1; later accepts replace the document wholesale and
// increment the version. The structural change fans out to every open view.
func (s *WizardService) Accept(ctx context.Context, bookID uuid.UUID) (*models.TocDocument, error) {
	run, err := s.runs.GetByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !actionAllowed("accept", run.State) {
		return nil, &models.InvalidStateError{Action: "accept", State: string(run.State)}
	}

	items, err := s.Candidate(ctx, bookID)
	if err != nil {
		return nil, err
	}

	current, err := s.tocs.Version(ctx, bookID)
	if err != nil {
		return nil, err
	}

	doc := &models.TocDocument{BookID: bookID, Items: items}
	saved, change, err := s.tocs.Write(ctx, bookID, doc, current)
	if err != nil {
		return nil, err
	}

	// The outline is committed at this point. Fan out before touching run
	// state so a failed state update cannot leave open views on a stale
	// version.
	s.sync.Publish(ctx, change)

	if err := s.runs.ClearCandidate(ctx, run.ID, models.WizardAccepted); err != nil {
		return nil, err
	}
	return saved, nil
}

// Regenerate discards the candidate and parks the run in the regenerating
// state until the next readiness check, typically after the user edited the
// summary. Bumping the request sequence invalidates any generation still in
// flight.
func (s *WizardService) Regenerate(ctx context.Context, bookID uuid.UUID) (*models.WizardRun, error) {
	run, err := s.runs.GetByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !actionAllowed("regenerate", run.State) {
		return nil, &models.InvalidStateError{Action: "regenerate", State: string(run.State)}
	}

	if _, err := s.runs.BumpRequestSeq(ctx, run.ID); err != nil {
		return nil, err
	}
	if err := s.runs.ClearCandidate(ctx, run.ID, models.WizardRegenerating); err != nil {
		return nil, err
	}
	return s.runs.GetByBook(ctx, bookID)
}

// ProcessQuestionJob runs clarifying-question generation for the worker pool.
// The sequence captured at enqueue time guards against applying a response
// the user has since moved past.
func (s *WizardService) ProcessQuestionJob(ctx context.Context, bookID uuid.UUID, seq int64) error {
	defer s.endGeneration(bookID)

	run, err := s.runs.GetByBook(ctx, bookID)
	if err != nil {
		return err
	}

	book, summary, err := s.loadBookAndSummary(ctx, bookID)
	if err != nil {
		return err
	}

	questions, err := s.ai.GenerateQuestions(ctx, book, summary.Text)
	if err != nil {
		return s.recordFailure(ctx, run.ID, bookID, seq, err)
	}

	if s.stale(ctx, bookID, seq) {
		log.Printf("wizard: discarding stale question set for book %s (seq %d)", bookID, seq)
		return nil
	}

	if err := s.runs.ReplaceQuestions(ctx, run.ID, questions); err != nil {
		return err
	}
	return s.runs.UpdateState(ctx, run.ID, models.WizardCollectingAnswers)
}

// ProcessTocJob runs outline generation for the worker pool and stores the
// result as an unpersisted candidate for review.
func (s *WizardService) ProcessTocJob(ctx context.Context, bookID uuid.UUID, seq int64) error {
	defer s.endGeneration(bookID)

	run, err := s.runs.GetByBook(ctx, bookID)
	if err != nil {
		return err
	}

	book, summary, err := s.loadBookAndSummary(ctx, bookID)
	if err != nil {
		return err
	}
	questions, err := s.runs.ListQuestions(ctx, run.ID)
	if err != nil {
		return err
	}
	responses, err := s.runs.ListResponses(ctx, run.ID)
	if err != nil {
		return err
	}

	items, err := s.ai.GenerateToc(ctx, book, summary.Text, questions, responses)
	if err != nil {
		return s.recordFailure(ctx, run.ID, bookID, seq, err)
	}

	if s.stale(ctx, bookID, seq) {
		log.Printf("wizard: discarding stale outline for book %s (seq %d)", bookID, seq)
		return nil
	}

	candidate, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.runs.SetCandidate(ctx, run.ID, candidate, models.WizardReviewing)
}

func (s *WizardService) loadBookAndSummary(ctx context.Context, bookID uuid.UUID) (*models.Book, *models.Summary, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	summary, err := s.summaries.GetByBook(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	return book, summary, nil
}

// stale reports whether the run has moved past the sequence a job was
// enqueued under.
func (s *WizardService) stale(ctx context.Context, bookID uuid.UUID, seq int64) bool {
	run, err := s.runs.GetByBook(ctx, bookID)
	if err != nil {
		return true
	}
	return run.RequestSeq != seq
}

func (s *WizardService) recordFailure(ctx context.Context, runID, bookID uuid.UUID, seq int64, genErr error) error {
	if s.stale(ctx, bookID, seq) {
		log.Printf("wizard: ignoring failure of stale generation for book %s (seq %d): %v", bookID, seq, genErr)
		return nil
	}

	code := "generation_failed"
	retryable := true
	var aiErr *models.AiCollaboratorError
	if errors.As(genErr, &aiErr) {
		retryable = aiErr.Retryable
	}
	if err := s.runs.SetFailure(ctx, runID, code, retryable); err != nil {
		return err
	}
	return genErr
}

func (s *WizardService) enqueue(ctx context.Context, userID, bookID uuid.UUID, jobType string, seq int64) (*models.Job, error) {
	config, _ := json.Marshal(map[string]int64{"request_seq": seq})
	job := &models.Job{
		UserID:      userID,
		Type:        jobType,
		ReferenceID: bookID,
		ConfigJSON:  config,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *WizardService) beginGeneration(bookID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[bookID] {
		return false
	}
	s.inFlight[bookID] = true
	return true
}

func (s *WizardService) endGeneration(bookID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, bookID)
}
