package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

type tabStore interface {
	Get(ctx context.Context, bookID uuid.UUID, sessionKey string) (*models.ChapterTabState, error)
	Save(ctx context.Context, s *models.ChapterTabState) error
	Delete(ctx context.Context, bookID uuid.UUID, sessionKey string) error
}

type tabTocs interface {
	Get(ctx context.Context, bookID uuid.UUID) (*models.TocDocument, error)
}

type accessLogger interface {
	Append(ctx context.Context, e *models.AccessLogEntry) error
}

// TabStateService serves per-session tab arrangements, reconciling them
// against the current outline whenever the persisted state lags the
// document version. The document is always authoritative for which chapters
// exist; the session is authoritative for arrangement and active view.
type TabStateService struct {
	tabs   tabStore
	tocs   tabTocs
	access accessLogger
}

func NewTabStateService(tabs tabStore, tocs tabTocs, access accessLogger) *TabStateService {
	return &TabStateService{tabs: tabs, tocs: tocs, access: access}
}

// Load returns the session's reconciled tab state. A session seen for the
// first time starts with every chapter open in document order. When the
// outline moved underneath the stored state, the reconciled result is
// persisted back so the next load is cheap.
func (s *TabStateService) Load(ctx context.Context, bookID uuid.UUID, sessionKey string) (*models.ChapterTabState, error) {
	doc, err := s.tocs.Get(ctx, bookID)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			// No outline yet: an empty state, nothing to persist.
			return &models.ChapterTabState{BookID: bookID, SessionKey: sessionKey}, nil
		}
		return nil, err
	}

	state, err := s.tabs.Get(ctx, bookID, sessionKey)
	var notFound *models.NotFoundError
	switch {
	case errors.As(err, &notFound):
		state = &models.ChapterTabState{BookID: bookID, SessionKey: sessionKey}
	case err != nil:
		return nil, err
	}

	if state.LastSyncedVersion == doc.Version {
		return state, nil
	}

	reconciled := ReconcileTabs(*state, doc)
	if err := s.tabs.Save(ctx, &reconciled); err != nil {
		return nil, err
	}
	return &reconciled, nil
}

// Save stores a client-sent arrangement after reconciling it against the
// current outline, so a save racing a structural change can never resurrect
// a deleted chapter's tab.
func (s *TabStateService) Save(ctx context.Context, bookID uuid.UUID, req models.SaveTabStateRequest) (*models.ChapterTabState, error) {
	doc, err := s.tocs.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}

	state := models.ChapterTabState{
		BookID:     bookID,
		SessionKey: req.SessionKey,
		OpenTabs:   req.OpenTabs,
		ActiveTab:  req.ActiveTab,
	}
	reconciled := reconcileArrangement(state, doc)
	if err := s.tabs.Save(ctx, &reconciled); err != nil {
		return nil, err
	}
	return &reconciled, nil
}

// reconcileArrangement prunes dangling tabs from a client-sent arrangement
// without re-opening chapters the user deliberately closed. Full
// reconciliation (which appends new chapters) runs on load, not save.
func reconcileArrangement(state models.ChapterTabState, doc *models.TocDocument) models.ChapterTabState {
	next := state.Clone()

	exists := make(map[uuid.UUID]bool)
	for _, ch := range doc.Chapters() {
		exists[ch.ID] = true
	}

	kept := next.OpenTabs[:0]
	for _, id := range next.OpenTabs {
		if exists[id] {
			kept = append(kept, id)
		}
	}
	next.OpenTabs = kept

	if next.ActiveTab != nil && !containsID(next.OpenTabs, *next.ActiveTab) {
		next.ActiveTab = nil
	}
	if next.ActiveTab == nil && len(next.OpenTabs) > 0 {
		id := next.OpenTabs[0]
		next.ActiveTab = &id
	}

	next.LastSyncedVersion = doc.Version
	return next
}

// RecordAccess appends to the chapter access log. The chapter must exist in
// the current outline; a log write for a deleted chapter is rejected rather
// than silently recorded.
func (s *TabStateService) RecordAccess(ctx context.Context, userID, bookID, chapterID uuid.UUID, action string) (*models.AccessLogEntry, error) {
	switch action {
	case models.AccessOpened, models.AccessEdited, models.AccessClosed:
	default:
		return nil, &models.ValidationError{Violations: []models.RuleViolation{{
			Field:   "action",
			Rule:    "valid_action",
			Message: "action must be one of opened, edited, closed",
		}}}
	}

	doc, err := s.tocs.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if doc.Find(chapterID) == nil {
		return nil, &models.NotFoundError{Message: "Chapter not found in this book's outline"}
	}

	entry := &models.AccessLogEntry{
		BookID:    bookID,
		ChapterID: chapterID,
		UserID:    userID,
		Action:    action,
	}
	if err := s.access.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Forget drops a session's stored arrangement. Used when a book is deleted
// so orphaned tab rows do not linger.
func (s *TabStateService) Forget(ctx context.Context, bookID uuid.UUID, sessionKey string) error {
	return s.tabs.Delete(ctx, bookID, sessionKey)
}
