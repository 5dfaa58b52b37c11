package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/frankbria/auto-author-sub003/internal/handlers"
	"github.com/frankbria/auto-author-sub003/internal/middleware"
	"github.com/frankbria/auto-author-sub003/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	bookHandler *handlers.BookHandler,
	summaryHandler *handlers.SummaryHandler,
	wizardHandler *handlers.WizardHandler,
	tocHandler *handlers.TocHandler,
	chapterHandler *handlers.ChapterHandler,
	tabHandler *handlers.TabStateHandler,
	activityHandler *handlers.ActivityHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Generation endpoints are rate limited per IP; the AI collaborator is
	// the expensive resource behind them.
	genLimiter := middleware.NewRateLimiter(20, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Book Routes ────
		r.Route("/books", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", bookHandler.Create)
			r.Get("/", bookHandler.List)
			r.Get("/{id}", bookHandler.Get)
			r.Delete("/{id}", bookHandler.Delete)

			// ──── Summary ────
			r.Get("/{id}/summary", summaryHandler.Get)
			r.Put("/{id}/summary", summaryHandler.Update)
			r.Get("/{id}/summary/revisions", summaryHandler.ListRevisions)

			// ──── Wizard ────
			r.Route("/{id}/wizard", func(r chi.Router) {
				r.Get("/", wizardHandler.Status)
				r.Post("/readiness", wizardHandler.CheckReadiness)
				r.Get("/questions", wizardHandler.ListQuestions)
				r.Put("/questions/{questionID}/response", wizardHandler.SubmitResponse)
				r.Get("/candidate", wizardHandler.Candidate)
				r.Post("/accept", wizardHandler.Accept)
				r.Post("/regenerate", wizardHandler.Regenerate)

				r.Group(func(r chi.Router) {
					r.Use(genLimiter.Middleware)
					r.Post("/questions", wizardHandler.RequestQuestions)
					r.Post("/generate", wizardHandler.Generate)
				})
			})

			// ──── TOC ────
			r.Route("/{id}/toc", func(r chi.Router) {
				r.Get("/", tocHandler.Get)
				r.Put("/", tocHandler.Put)
				r.Get("/version", tocHandler.GetVersion)
				r.Post("/reorder", tocHandler.Reorder)
				r.Put("/items/{itemID}", tocHandler.UpdateItem)
				r.Put("/items/{itemID}/status", tocHandler.UpdateItemStatus)
			})

			// ──── Chapters ────
			r.With(genLimiter.Middleware).Post("/{id}/chapters/{itemID}/draft", chapterHandler.RequestDraft)
			r.Post("/{id}/chapters/{itemID}/access", chapterHandler.RecordAccess)

			// ──── Tabs ────
			r.Get("/{id}/tabs", tabHandler.Get)
			r.Put("/{id}/tabs", tabHandler.Put)
			r.Post("/{id}/tabs/sync", tabHandler.Sync)

			// ──── Activity ────
			r.Get("/{id}/activity", activityHandler.Get)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.Get)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
