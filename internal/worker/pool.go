package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/frankbria/auto-author-sub003/internal/models"
	"github.com/frankbria/auto-author-sub003/internal/repository"
	"github.com/frankbria/auto-author-sub003/internal/services"
)

// Queue persists a job and hands it to the pool over Redis. It is the
// services.JobEnqueuer used by the wizard and chapter handlers.
type Queue struct {
	redis   *redis.Client
	jobRepo *repository.JobRepo
}

func NewQueue(redisClient *redis.Client, jobRepo *repository.JobRepo) *Queue {
	return &Queue{redis: redisClient, jobRepo: jobRepo}
}

func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	if err := q.jobRepo.Create(ctx, job); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.LPush(ctx, queueName(job.Type), string(payload)).Err()
}

func queueName(jobType string) string {
	return "queue:" + jobType
}

// Pool runs the asynchronous generation jobs: clarifying questions, outline
// candidates, and chapter drafts. Workers race on BLPOP across the queues
// and a SetNX lock keeps a job from running twice when several processes
// share the Redis instance.
type Pool struct {
	redis       *redis.Client
	wizard      *services.WizardService
	gemini      *services.GeminiService
	bus         *services.SyncBus
	jobRepo     *repository.JobRepo
	bookRepo    *repository.BookRepo
	summaryRepo *repository.SummaryRepo
	tocRepo     *repository.TocRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	wizard *services.WizardService,
	gemini *services.GeminiService,
	bus *services.SyncBus,
	jobRepo *repository.JobRepo,
	bookRepo *repository.BookRepo,
	summaryRepo *repository.SummaryRepo,
	tocRepo *repository.TocRepo,
	workerCount int,
) *Pool {
	return &Pool{
		redis:       redisClient,
		wizard:      wizard,
		gemini:      gemini,
		bus:         bus,
		jobRepo:     jobRepo,
		bookRepo:    bookRepo,
		summaryRepo: summaryRepo,
		tocRepo:     tocRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	queues := []string{
		queueName(models.JobQuestionGeneration),
		queueName(models.JobTocGeneration),
		queueName(models.JobChapterDraft),
	}

	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, queues)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int, queues []string) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 30*time.Second, queues...).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		log.Printf("Worker %d: processing job %s (type: %s)", id, job.ID, job.Type)

		p.jobRepo.UpdateStatus(ctx, job.ID, "processing")
		p.bus.PublishMessage(ctx, job.ReferenceID, models.WSMessage{
			Type: "status_update",
			Payload: models.StatusUpdate{
				JobID:    job.ID,
				Step:     1,
				StepName: stepName(job.Type),
			},
		})

		var processErr error
		switch job.Type {
		case models.JobQuestionGeneration:
			processErr = p.wizard.ProcessQuestionJob(ctx, job.ReferenceID, requestSeq(&job))
		case models.JobTocGeneration:
			processErr = p.wizard.ProcessTocJob(ctx, job.ReferenceID, requestSeq(&job))
		case models.JobChapterDraft:
			processErr = p.processChapterDraft(ctx, &job)
		default:
			processErr = fmt.Errorf("unknown job type: %s", job.Type)
		}

		if processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job)
		}

		p.redis.Del(ctx, lockKey)
	}
}

func requestSeq(job *models.Job) int64 {
	var config struct {
		RequestSeq int64 `json:"request_seq"`
	}
	json.Unmarshal(job.ConfigJSON, &config)
	return config.RequestSeq
}

func stepName(jobType string) string {
	switch jobType {
	case models.JobQuestionGeneration:
		return "Preparing clarifying questions"
	case models.JobTocGeneration:
		return "Drafting the chapter outline"
	case models.JobChapterDraft:
		return "Drafting chapter prose"
	default:
		return "Working"
	}
}

// processChapterDraft generates prose for one chapter and stores it on the
// item through a version-checked write, so a draft landing after the outline
// moved cannot clobber a newer structure.
func (p *Pool) processChapterDraft(ctx context.Context, job *models.Job) error {
	var config struct {
		ChapterID uuid.UUID `json:"chapter_id"`
	}
	if err := json.Unmarshal(job.ConfigJSON, &config); err != nil {
		return fmt.Errorf("invalid chapter draft config: %w", err)
	}
	bookID := job.ReferenceID

	book, err := p.bookRepo.GetByID(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to get book: %w", err)
	}
	summary, err := p.summaryRepo.GetByBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to get summary: %w", err)
	}
	doc, err := p.tocRepo.Get(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to get outline: %w", err)
	}
	item := doc.Find(config.ChapterID)
	if item == nil {
		return fmt.Errorf("chapter %s is not in the current outline", config.ChapterID)
	}

	draft, err := p.gemini.GenerateChapterDraft(ctx, book, summary.Text, doc, item)
	if err != nil {
		return err
	}

	// Re-read and re-find: the outline may have changed while the model ran.
	doc, err = p.tocRepo.Get(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to re-read outline: %w", err)
	}
	item = doc.Find(config.ChapterID)
	if item == nil {
		log.Printf("Worker: chapter %s deleted while drafting, discarding draft", config.ChapterID)
		return nil
	}

	item.DraftContent = &draft
	item.WordCount = len(strings.Fields(draft))
	if item.Status == models.StatusDraft {
		item.Status = models.StatusInProgress
	}

	saved, change, err := p.tocRepo.Write(ctx, bookID, doc, doc.Version)
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			log.Printf("Worker: outline moved to version %d while saving draft for chapter %s, discarding", conflict.CurrentVersion, config.ChapterID)
			return nil
		}
		return err
	}

	change.BookID = saved.BookID
	p.bus.Publish(ctx, change)
	return nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobRepo.UpdateStatus(ctx, job.ID, "completed")

	p.bus.PublishMessage(ctx, job.ReferenceID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   job.ReferenceID,
			ResultType: resultType(job.Type),
		},
	})

	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount <= job.MaxRetries {
		log.Printf("Job %s failed (attempt %d): %s - retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "pending")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			p.redis.LPush(context.Background(), queueName(job.Type), string(jobBytes))
		})
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
	p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

	retryable := true
	var aiErr *models.AiCollaboratorError
	if errors.As(err, &aiErr) {
		retryable = aiErr.Retryable
	}

	p.bus.PublishMessage(ctx, job.ReferenceID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    "JOB_FAILED",
			ErrorMessage: errMsg,
			Retryable:    retryable,
		},
	})
}

func resultType(jobType string) string {
	switch jobType {
	case models.JobQuestionGeneration:
		return "questions"
	case models.JobTocGeneration:
		return "toc_candidate"
	case models.JobChapterDraft:
		return "chapter_draft"
	default:
		return "job"
	}
}
