package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"

	"google.golang.org/api/option"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

// GeminiService is the narrow boundary to the AI collaborator. Every call
// returns either a usable, validated result or an AiCollaboratorError after
// one bounded retry; an empty response is never presented as success.
type GeminiService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiService(apiKey string, concurrentReqs int) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.4)
	model.SetTopP(0.95)

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:   client,
		model:    model,
		rateChan: rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// generateWithRetry makes the model call, retrying exactly once with backoff
// before giving up. Context cancellation aborts immediately without retry.
func (s *GeminiService) generateWithRetry(ctx context.Context, op string, prompt string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", &models.AiCollaboratorError{Op: op, Retryable: true, Err: err}
	}
	defer s.releaseRate()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &models.AiCollaboratorError{Op: op, Retryable: true, Err: ctx.Err()}
			case <-time.After(2 * time.Second):
			}
		}

		resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			if ctx.Err() != nil {
				return "", &models.AiCollaboratorError{Op: op, Retryable: true, Err: ctx.Err()}
			}
			lastErr = err
			continue
		}

		text := strings.TrimSpace(extractText(resp))
		if text == "" {
			lastErr = fmt.Errorf("model returned empty output")
			continue
		}
		return text, nil
	}

	return "", &models.AiCollaboratorError{Op: op, Retryable: true, Err: lastErr}
}

// GenerateQuestions asks the model for 3-5 clarifying questions about a
// book summary.
func (s *GeminiService) GenerateQuestions(ctx context.Context, book *models.Book, summary string) ([]models.ClarifyingQuestion, error) {
	prompt := buildQuestionPrompt(book, summary)

	raw, err := s.generateWithRetry(ctx, "question generation", prompt)
	if err != nil {
		return nil, err
	}

	questions, parseErr := parseQuestions(raw)
	if parseErr != nil {
		return nil, &models.AiCollaboratorError{Op: "question generation", Retryable: true, Err: parseErr}
	}
	return questions, nil
}

// GenerateToc asks the model for a candidate two-level outline built from
// the summary and the user's clarifying answers.
func (s *GeminiService) GenerateToc(ctx context.Context, book *models.Book, summary string, questions []*models.ClarifyingQuestion, responses []*models.QuestionResponse) ([]models.TocItem, error) {
	prompt := buildTocPrompt(book, summary, questions, responses)

	raw, err := s.generateWithRetry(ctx, "toc generation", prompt)
	if err != nil {
		return nil, err
	}

	items, parseErr := parseTocItems(raw)
	if parseErr != nil {
		return nil, &models.AiCollaboratorError{Op: "toc generation", Retryable: true, Err: parseErr}
	}
	return items, nil
}

// GenerateChapterDraft produces prose for one chapter, guided by the
// surrounding outline.
func (s *GeminiService) GenerateChapterDraft(ctx context.Context, book *models.Book, summary string, doc *models.TocDocument, item *models.TocItem) (string, error) {
	prompt := buildChapterDraftPrompt(book, summary, doc, item)
	return s.generateWithRetry(ctx, "chapter draft", prompt)
}

// Helper functions

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

// extractJSONArray pulls the outermost JSON array out of model output that
// may carry a preamble despite instructions.
func extractJSONArray(raw string) string {
	raw = stripCodeFence(raw)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func parseQuestions(raw string) ([]models.ClarifyingQuestion, error) {
	var parsed []struct {
		Text     string `json:"text"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("unparseable question list: %w", err)
	}

	var questions []models.ClarifyingQuestion
	for _, q := range parsed {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		question := models.ClarifyingQuestion{
			ID:    uuid.New(),
			Text:  text,
			Order: len(questions),
		}
		if cat := strings.TrimSpace(q.Category); cat != "" {
			question.Category = &cat
		}
		questions = append(questions, question)
		if len(questions) == 5 {
			break
		}
	}

	if len(questions) < 3 {
		return nil, fmt.Errorf("model returned %d usable questions, need at least 3", len(questions))
	}
	return questions, nil
}

type tocItemJSON struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Subchapters []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"subchapters"`
}

// parseTocItems converts the model's nested outline JSON into the flat
// parent-id/order representation, assigning ids, levels, and contiguous
// sibling orders.
func parseTocItems(raw string) ([]models.TocItem, error) {
	var parsed []tocItemJSON
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("unparseable outline: %w", err)
	}

	var items []models.TocItem
	chapterOrder := 0
	for _, ch := range parsed {
		title := strings.TrimSpace(ch.Title)
		if title == "" {
			continue
		}
		chapterID := uuid.New()
		items = append(items, models.TocItem{
			ID:          chapterID,
			Title:       title,
			Description: strings.TrimSpace(ch.Description),
			Level:       0,
			Order:       chapterOrder,
			Status:      models.StatusDraft,
		})
		chapterOrder++

		subOrder := 0
		for _, sub := range ch.Subchapters {
			subTitle := strings.TrimSpace(sub.Title)
			if subTitle == "" {
				continue
			}
			parent := chapterID
			items = append(items, models.TocItem{
				ID:          uuid.New(),
				ParentID:    &parent,
				Title:       subTitle,
				Description: strings.TrimSpace(sub.Description),
				Level:       1,
				Order:       subOrder,
				Status:      models.StatusDraft,
			})
			subOrder++
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("model returned an outline with no usable chapters")
	}
	return items, nil
}

func buildQuestionPrompt(book *models.Book, summary string) string {
	var b strings.Builder

	b.WriteString("You are an experienced developmental editor helping an author turn a book summary into a chapter outline.\n")
	b.WriteString("Ask the 3 to 5 clarifying questions whose answers would most improve the outline.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(`JSON schema per question:
{"text": "string", "category": "audience"|"structure"|"content"|"tone"}
`)

	writeBookContext(&b, book)

	b.WriteString("\n---SUMMARY START---\n")
	b.WriteString(summary)
	b.WriteString("\n---SUMMARY END---\n")

	return b.String()
}

func buildTocPrompt(book *models.Book, summary string, questions []*models.ClarifyingQuestion, responses []*models.QuestionResponse) string {
	var b strings.Builder

	b.WriteString("You are an experienced developmental editor. Create a complete chapter outline for the book described below.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(`JSON schema per chapter:
{"title": "string", "description": "1-2 sentence summary", "subchapters": [{"title": "string", "description": "string"}]}

Rules:
- 8 to 15 chapters for a full-length book, fewer for a short one
- At most one level of subchapters; use them only where a chapter genuinely splits
- Titles must be specific to this book, never generic like "Introduction" unless it truly fits
`)

	writeBookContext(&b, book)

	answered := answersByQuestion(responses)
	if len(questions) > 0 {
		b.WriteString("\nThe author answered these clarifying questions:\n")
		for _, q := range questions {
			resp, ok := answered[q.ID]
			if !ok || resp.Skipped || strings.TrimSpace(resp.Answer) == "" {
				continue
			}
			b.WriteString(fmt.Sprintf("Q: %s\nA: %s\n", q.Text, resp.Answer))
		}
	}

	b.WriteString("\n---SUMMARY START---\n")
	b.WriteString(summary)
	b.WriteString("\n---SUMMARY END---\n")

	return b.String()
}

func buildChapterDraftPrompt(book *models.Book, summary string, doc *models.TocDocument, item *models.TocItem) string {
	var b strings.Builder

	b.WriteString("You are a professional ghostwriter. Draft the chapter described below in flowing prose.\n")
	b.WriteString("Return plain text only: no markdown headers, no meta commentary.\n")

	writeBookContext(&b, book)

	b.WriteString("\nFull outline for context:\n")
	for _, ch := range doc.Chapters() {
		b.WriteString(fmt.Sprintf("- %s\n", ch.Title))
		for _, sub := range doc.Children(&ch.ID) {
			b.WriteString(fmt.Sprintf("  - %s\n", sub.Title))
		}
	}

	b.WriteString(fmt.Sprintf("\nChapter to draft: %s\n", item.Title))
	if item.Description != "" {
		b.WriteString(fmt.Sprintf("Chapter description: %s\n", item.Description))
	}

	b.WriteString("\n---BOOK SUMMARY---\n")
	b.WriteString(summary)
	b.WriteString("\n---END---\n")

	return b.String()
}

func writeBookContext(b *strings.Builder, book *models.Book) {
	b.WriteString(fmt.Sprintf("\nBook title: %s\n", book.Title))
	if book.Genre != "" {
		b.WriteString(fmt.Sprintf("Genre: %s\n", book.Genre))
	}
	if book.Audience != "" {
		b.WriteString(fmt.Sprintf("Target audience: %s\n", book.Audience))
	}
}

func answersByQuestion(responses []*models.QuestionResponse) map[uuid.UUID]*models.QuestionResponse {
	out := make(map[uuid.UUID]*models.QuestionResponse, len(responses))
	for _, r := range responses {
		out[r.QuestionID] = r
	}
	return out
}
