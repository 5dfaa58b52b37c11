package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

type fakeTabStore struct {
	states map[string]*models.ChapterTabState
	saves  int
}

func newFakeTabStore() *fakeTabStore {
	return &fakeTabStore{states: make(map[string]*models.ChapterTabState)}
}

func tabKey(bookID uuid.UUID, sessionKey string) string {
	return bookID.String() + "/" + sessionKey
}

func (f *fakeTabStore) Get(_ context.Context, bookID uuid.UUID, sessionKey string) (*models.ChapterTabState, error) {
	s, ok := f.states[tabKey(bookID, sessionKey)]
	if !ok {
		return nil, &models.NotFoundError{Message: "No tab state for this session"}
	}
	copied := s.Clone()
	return &copied, nil
}

func (f *fakeTabStore) Save(_ context.Context, s *models.ChapterTabState) error {
	f.saves++
	copied := s.Clone()
	f.states[tabKey(s.BookID, s.SessionKey)] = &copied
	return nil
}

func (f *fakeTabStore) Delete(_ context.Context, bookID uuid.UUID, sessionKey string) error {
	delete(f.states, tabKey(bookID, sessionKey))
	return nil
}

type fakeTocGetter struct {
	doc *models.TocDocument
}

func (f *fakeTocGetter) Get(_ context.Context, _ uuid.UUID) (*models.TocDocument, error) {
	if f.doc == nil {
		return nil, &models.NotFoundError{Message: "No table of contents exists for this book"}
	}
	return f.doc, nil
}

type fakeAccessLog struct {
	entries []*models.AccessLogEntry
}

func (f *fakeAccessLog) Append(_ context.Context, e *models.AccessLogEntry) error {
	e.ID = uuid.New()
	f.entries = append(f.entries, e)
	return nil
}

func TestTabStateLoad_FirstVisitOpensAllAndPersists(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	store := newFakeTabStore()
	svc := NewTabStateService(store, &fakeTocGetter{doc: docWithChapters(3, a, b)}, &fakeAccessLog{})
	bookID := uuid.New()

	state, err := svc.Load(context.Background(), bookID, "session-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(state.OpenTabs) != 2 || state.OpenTabs[0] != a || state.OpenTabs[1] != b {
		t.Errorf("Expected all chapters open in document order, got %v", state.OpenTabs)
	}
	if state.ActiveTab == nil || *state.ActiveTab != a {
		t.Errorf("Expected first chapter active, got %v", state.ActiveTab)
	}
	if state.LastSyncedVersion != 3 {
		t.Errorf("Expected synced version 3, got %d", state.LastSyncedVersion)
	}
	if store.saves != 1 {
		t.Errorf("Expected reconciled state persisted once, got %d saves", store.saves)
	}
}

func TestTabStateLoad_UpToDateStateNotRewritten(t *testing.T) {
	a := uuid.New()
	store := newFakeTabStore()
	bookID := uuid.New()
	active := a
	store.states[tabKey(bookID, "session-1")] = &models.ChapterTabState{
		BookID: bookID, SessionKey: "session-1",
		OpenTabs: []uuid.UUID{a}, ActiveTab: &active, LastSyncedVersion: 5,
	}
	svc := NewTabStateService(store, &fakeTocGetter{doc: docWithChapters(5, a)}, &fakeAccessLog{})

	if _, err := svc.Load(context.Background(), bookID, "session-1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.saves != 0 {
		t.Errorf("Expected no rewrite for an up-to-date state, got %d saves", store.saves)
	}
}

func TestTabStateLoad_StaleStateReconciled(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	store := newFakeTabStore()
	bookID := uuid.New()
	active := b
	store.states[tabKey(bookID, "session-1")] = &models.ChapterTabState{
		BookID: bookID, SessionKey: "session-1",
		OpenTabs: []uuid.UUID{c, a, b}, ActiveTab: &active, LastSyncedVersion: 6,
	}

	// Chapter B was deleted at version 7.
	svc := NewTabStateService(store, &fakeTocGetter{doc: docWithChapters(7, a, c)}, &fakeAccessLog{})

	state, err := svc.Load(context.Background(), bookID, "session-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(state.OpenTabs) != 2 || state.OpenTabs[0] != c || state.OpenTabs[1] != a {
		t.Errorf("Expected tabs [C, A], got %v", state.OpenTabs)
	}
	if state.ActiveTab == nil || *state.ActiveTab != c {
		t.Errorf("Expected active tab reassigned to C, got %v", state.ActiveTab)
	}
	if state.LastSyncedVersion != 7 {
		t.Errorf("Expected synced version 7, got %d", state.LastSyncedVersion)
	}
	if store.saves != 1 {
		t.Errorf("Expected reconciled state persisted, got %d saves", store.saves)
	}
}

func TestTabStateLoad_NoOutlineYieldsEmptyState(t *testing.T) {
	svc := NewTabStateService(newFakeTabStore(), &fakeTocGetter{}, &fakeAccessLog{})

	state, err := svc.Load(context.Background(), uuid.New(), "session-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(state.OpenTabs) != 0 || state.ActiveTab != nil {
		t.Errorf("Expected empty state, got %+v", state)
	}
}

func TestTabStateSave_PrunesDanglingWithoutReopeningClosed(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	store := newFakeTabStore()
	svc := NewTabStateService(store, &fakeTocGetter{doc: docWithChapters(4, a, b, c)}, &fakeAccessLog{})
	bookID := uuid.New()

	deleted := uuid.New()
	active := deleted
	state, err := svc.Save(context.Background(), bookID, models.SaveTabStateRequest{
		SessionKey: "session-1",
		OpenTabs:   []uuid.UUID{b, deleted, a},
		ActiveTab:  &active,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The dangling id is pruned, but chapter C (closed by the user) is not
	// re-opened by a save.
	if len(state.OpenTabs) != 2 || state.OpenTabs[0] != b || state.OpenTabs[1] != a {
		t.Errorf("Expected tabs [B, A], got %v", state.OpenTabs)
	}
	if state.ActiveTab == nil || *state.ActiveTab != b {
		t.Errorf("Expected active tab to fall back to first open tab, got %v", state.ActiveTab)
	}
	if state.LastSyncedVersion != 4 {
		t.Errorf("Expected synced version 4, got %d", state.LastSyncedVersion)
	}
}

func TestRecordAccess_AppendsForExistingChapter(t *testing.T) {
	a := uuid.New()
	logStore := &fakeAccessLog{}
	svc := NewTabStateService(newFakeTabStore(), &fakeTocGetter{doc: docWithChapters(1, a)}, logStore)

	entry, err := svc.RecordAccess(context.Background(), uuid.New(), uuid.New(), a, models.AccessOpened)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if entry.Action != models.AccessOpened {
		t.Errorf("Expected action opened, got %s", entry.Action)
	}
	if len(logStore.entries) != 1 {
		t.Errorf("Expected 1 log entry, got %d", len(logStore.entries))
	}
}

func TestRecordAccess_RejectsDeletedChapterAndBadAction(t *testing.T) {
	a := uuid.New()
	svc := NewTabStateService(newFakeTabStore(), &fakeTocGetter{doc: docWithChapters(1, a)}, &fakeAccessLog{})

	if _, err := svc.RecordAccess(context.Background(), uuid.New(), uuid.New(), uuid.New(), models.AccessOpened); err == nil {
		t.Error("Expected error for a chapter missing from the outline")
	}
	if _, err := svc.RecordAccess(context.Background(), uuid.New(), uuid.New(), a, "glanced"); err == nil {
		t.Error("Expected error for an unknown action")
	}
}
