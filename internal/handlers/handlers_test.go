package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/middleware"
	"github.com/frankbria/auto-author-sub003/internal/models"
)

// In-memory fakes shared by the handler tests.

type fakeBookRepo struct {
	books map[uuid.UUID]*models.Book
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: make(map[uuid.UUID]*models.Book)}
}

func (f *fakeBookRepo) Create(_ context.Context, b *models.Book) error {
	b.ID = uuid.New()
	f.books[b.ID] = b
	return nil
}

func (f *fakeBookRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, &models.NotFoundError{Message: "Book not found"}
	}
	return b, nil
}

func (f *fakeBookRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Book, error) {
	var out []*models.Book
	for _, b := range f.books {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.books, id)
	return nil
}

type fakeTocRepo struct {
	docs map[uuid.UUID]*models.TocDocument
}

func newFakeTocRepo() *fakeTocRepo {
	return &fakeTocRepo{docs: make(map[uuid.UUID]*models.TocDocument)}
}

func (f *fakeTocRepo) Get(_ context.Context, bookID uuid.UUID) (*models.TocDocument, error) {
	doc, ok := f.docs[bookID]
	if !ok {
		return nil, &models.NotFoundError{Message: "No table of contents exists for this book"}
	}
	copied := *doc
	copied.Items = append([]models.TocItem(nil), doc.Items...)
	return &copied, nil
}

func (f *fakeTocRepo) Version(_ context.Context, bookID uuid.UUID) (int64, error) {
	if doc, ok := f.docs[bookID]; ok {
		return doc.Version, nil
	}
	return 0, nil
}

func (f *fakeTocRepo) Write(_ context.Context, bookID uuid.UUID, doc *models.TocDocument, expectedVersion int64) (*models.TocDocument, models.StructuralChange, error) {
	if violations := doc.Validate(); len(violations) > 0 {
		return nil, models.StructuralChange{}, &models.ValidationError{Violations: violations}
	}

	var current int64
	var oldItems []models.TocItem
	if existing, ok := f.docs[bookID]; ok {
		current = existing.Version
		oldItems = existing.Items
	}
	if current != expectedVersion {
		return nil, models.StructuralChange{}, &models.ConflictError{CurrentVersion: current, ExpectedVersion: expectedVersion}
	}

	saved := &models.TocDocument{BookID: bookID, Version: current + 1, Items: doc.Items}
	f.docs[bookID] = saved

	change := models.ClassifyChanges(oldItems, doc.Items)
	change.BookID = bookID
	change.Version = saved.Version
	return saved, change, nil
}

type fakeBus struct {
	published []models.StructuralChange
	version   int64
}

func (f *fakeBus) Publish(_ context.Context, change models.StructuralChange) {
	f.published = append(f.published, change)
	f.version = change.Version
}

func (f *fakeBus) CachedVersion(_ context.Context, _ uuid.UUID) (int64, error) {
	return f.version, nil
}

// newTestRouter mounts handlers behind a stub auth middleware that injects
// the given user id.
func newTestRouter(userID uuid.UUID, mount func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Group(mount)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func seedBook(repo *fakeBookRepo, userID uuid.UUID) *models.Book {
	book := &models.Book{UserID: userID, Title: "Harbor Lights"}
	repo.Create(context.Background(), book)
	return book
}

func chapterItems(ids ...uuid.UUID) []models.TocItem {
	items := make([]models.TocItem, len(ids))
	for i, id := range ids {
		items[i] = models.TocItem{
			ID: id, Title: fmt.Sprintf("Chapter %d", i+1), Level: 0, Order: i,
			Status: models.StatusDraft,
		}
	}
	return items
}

// ─── Book Handler Tests ───

func TestBookCreate_RequiresTitle(t *testing.T) {
	userID := uuid.New()
	repo := newFakeBookRepo()
	h := NewBookHandler(repo)
	router := newTestRouter(userID, func(r chi.Router) {
		r.Post("/api/v1/books", h.Create)
	})

	rr := doJSON(t, router, http.MethodPost, "/api/v1/books", map[string]string{"title": "  "})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/books", map[string]string{"title": "Harbor Lights", "genre": "mystery"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var book models.Book
	json.Unmarshal(rr.Body.Bytes(), &book)
	if book.UserID != userID {
		t.Errorf("Expected owner %s, got %s", userID, book.UserID)
	}
}

func TestBookGet_ForeignBookReadsAsNotFound(t *testing.T) {
	owner, stranger := uuid.New(), uuid.New()
	repo := newFakeBookRepo()
	book := seedBook(repo, owner)

	h := NewBookHandler(repo)
	router := newTestRouter(stranger, func(r chi.Router) {
		r.Get("/api/v1/books/{id}", h.Get)
	})

	rr := doJSON(t, router, http.MethodGet, "/api/v1/books/"+book.ID.String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a foreign book, got %d", rr.Code)
	}
}

// ─── TOC Handler Tests ───

func tocTestSetup(t *testing.T) (uuid.UUID, *models.Book, *fakeBookRepo, *fakeTocRepo, *fakeBus, http.Handler) {
	t.Helper()
	userID := uuid.New()
	bookRepo := newFakeBookRepo()
	book := seedBook(bookRepo, userID)
	tocRepo := newFakeTocRepo()
	bus := &fakeBus{}

	h := NewTocHandler(tocRepo, bookRepo, bus, 5)
	router := newTestRouter(userID, func(r chi.Router) {
		r.Get("/api/v1/books/{id}/toc", h.Get)
		r.Put("/api/v1/books/{id}/toc", h.Put)
		r.Get("/api/v1/books/{id}/toc/version", h.GetVersion)
		r.Post("/api/v1/books/{id}/toc/reorder", h.Reorder)
		r.Put("/api/v1/books/{id}/toc/items/{itemID}/status", h.UpdateItemStatus)
		r.Put("/api/v1/books/{id}/toc/items/{itemID}", h.UpdateItem)
	})
	return userID, book, bookRepo, tocRepo, bus, router
}

func TestTocPut_FirstWriteIsVersionOne(t *testing.T) {
	_, book, _, _, bus, router := tocTestSetup(t)

	body := map[string]interface{}{
		"items":            chapterItems(uuid.New(), uuid.New()),
		"expected_version": 0,
	}
	rr := doJSON(t, router, http.MethodPut, "/api/v1/books/"+book.ID.String()+"/toc", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var doc models.TocDocument
	json.Unmarshal(rr.Body.Bytes(), &doc)
	if doc.Version != 1 {
		t.Errorf("Expected version 1, got %d", doc.Version)
	}
	if len(bus.published) != 1 {
		t.Errorf("Expected 1 published change, got %d", len(bus.published))
	}
}

func TestTocPut_StaleVersionReturns409WithCurrent(t *testing.T) {
	_, book, _, tocRepo, _, router := tocTestSetup(t)

	items := chapterItems(uuid.New())
	tocRepo.Write(context.Background(), book.ID, &models.TocDocument{Items: items}, 0)
	tocRepo.Write(context.Background(), book.ID, &models.TocDocument{Items: items}, 1)

	body := map[string]interface{}{
		"items":            items,
		"expected_version": 1, // current is 2
	}
	rr := doJSON(t, router, http.MethodPut, "/api/v1/books/"+book.ID.String()+"/toc", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.ErrorResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Error.Code != "VERSION_CONFLICT" {
		t.Errorf("Expected VERSION_CONFLICT, got %s", resp.Error.Code)
	}
	if resp.Error.CurrentVersion == nil || *resp.Error.CurrentVersion != 2 {
		t.Errorf("Expected current_version 2 in the envelope, got %v", resp.Error.CurrentVersion)
	}
}

func TestTocPut_InvalidDocReportsEveryViolation(t *testing.T) {
	_, book, _, _, _, router := tocTestSetup(t)

	// Two violations at once: empty title and bad status.
	items := []models.TocItem{
		{ID: uuid.New(), Title: "", Level: 0, Order: 0, Status: "unknown"},
	}
	body := map[string]interface{}{"items": items, "expected_version": 0}
	rr := doJSON(t, router, http.MethodPut, "/api/v1/books/"+book.ID.String()+"/toc", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Error.Violations) < 2 {
		t.Errorf("Expected at least 2 violations reported, got %+v", resp.Error.Violations)
	}
}

func TestTocReorder_MovesChapterAndPublishes(t *testing.T) {
	_, book, _, tocRepo, bus, router := tocTestSetup(t)

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	tocRepo.Write(context.Background(), book.ID, &models.TocDocument{Items: chapterItems(a, b, c)}, 0)

	body := map[string]interface{}{
		"item_id":          c,
		"target_index":     0,
		"expected_version": 1,
	}
	rr := doJSON(t, router, http.MethodPost, "/api/v1/books/"+book.ID.String()+"/toc/reorder", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var doc models.TocDocument
	json.Unmarshal(rr.Body.Bytes(), &doc)
	chapters := doc.Chapters()
	if chapters[0].ID != c || chapters[1].ID != a || chapters[2].ID != b {
		t.Errorf("Expected order [C, A, B], got %v", []uuid.UUID{chapters[0].ID, chapters[1].ID, chapters[2].ID})
	}

	if len(bus.published) != 1 {
		t.Fatalf("Expected 1 published change, got %d", len(bus.published))
	}
	if len(bus.published[0].Reordered) == 0 {
		t.Errorf("Expected a reorder classification, got %+v", bus.published[0])
	}
}

func TestTocUpdateItemStatus_PublishesStatusChange(t *testing.T) {
	_, book, _, tocRepo, bus, router := tocTestSetup(t)

	a := uuid.New()
	tocRepo.Write(context.Background(), book.ID, &models.TocDocument{Items: chapterItems(a)}, 0)

	body := map[string]interface{}{"status": models.StatusCompleted, "expected_version": 1}
	rr := doJSON(t, router, http.MethodPut,
		"/api/v1/books/"+book.ID.String()+"/toc/items/"+a.String()+"/status", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(bus.published) != 1 || len(bus.published[0].StatusChanged) != 1 {
		t.Errorf("Expected a status-changed classification, got %+v", bus.published)
	}
}

func TestTocUpdateItem_TitleEditBumpsVersionWithoutStructuralChange(t *testing.T) {
	_, book, _, tocRepo, bus, router := tocTestSetup(t)

	a := uuid.New()
	tocRepo.Write(context.Background(), book.ID, &models.TocDocument{Items: chapterItems(a)}, 0)

	title := "A Better Title"
	body := map[string]interface{}{"title": title, "expected_version": 1}
	rr := doJSON(t, router, http.MethodPut,
		"/api/v1/books/"+book.ID.String()+"/toc/items/"+a.String(), body)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var doc models.TocDocument
	json.Unmarshal(rr.Body.Bytes(), &doc)
	if doc.Version != 2 {
		t.Errorf("Expected version 2, got %d", doc.Version)
	}
	if doc.Items[0].Title != title {
		t.Errorf("Expected title updated, got %q", doc.Items[0].Title)
	}
	if len(bus.published) != 1 || !bus.published[0].Empty() {
		t.Errorf("Expected an empty classification for a title edit, got %+v", bus.published)
	}
}

func TestTocGetVersion_FallsBackToStore(t *testing.T) {
	_, book, _, tocRepo, _, router := tocTestSetup(t)

	tocRepo.Write(context.Background(), book.ID, &models.TocDocument{Items: chapterItems(uuid.New())}, 0)

	rr := doJSON(t, router, http.MethodGet, "/api/v1/books/"+book.ID.String()+"/toc/version", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp map[string]int64
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["version"] != 1 {
		t.Errorf("Expected version 1, got %d", resp["version"])
	}
	if resp["poll_seconds"] != 5 {
		t.Errorf("Expected the configured poll interval 5, got %d", resp["poll_seconds"])
	}
}

func TestTocReorder_DepthLimitMapsTo400(t *testing.T) {
	_, book, _, tocRepo, _, router := tocTestSetup(t)

	a, b := uuid.New(), uuid.New()
	sub := uuid.New()
	items := chapterItems(a, b)
	items = append(items, models.TocItem{
		ID: sub, ParentID: &a, Title: "Sub", Level: 1, Order: 0, Status: models.StatusDraft,
	})
	tocRepo.Write(context.Background(), book.ID, &models.TocDocument{Items: items}, 0)

	// Nesting a subchapter under another subchapter exceeds the hierarchy.
	body := map[string]interface{}{
		"item_id":          b,
		"new_parent_id":    sub,
		"target_index":     0,
		"expected_version": 1,
	}
	rr := doJSON(t, router, http.MethodPost, "/api/v1/books/"+book.ID.String()+"/toc/reorder", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.ErrorResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Error.Code != "DEPTH_LIMIT" {
		t.Errorf("Expected DEPTH_LIMIT, got %s", resp.Error.Code)
	}
}
