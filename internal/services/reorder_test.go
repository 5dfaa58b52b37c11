package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

func testChapter(id uuid.UUID, order int, title string) models.TocItem {
	return models.TocItem{ID: id, Title: title, Level: 0, Order: order, Status: models.StatusDraft}
}

func testSubchapter(id, parent uuid.UUID, order int, title string) models.TocItem {
	return models.TocItem{ID: id, ParentID: &parent, Title: title, Level: 1, Order: order, Status: models.StatusDraft}
}

func TestReorderToc_PromoteSubchapterBetweenChapters(t *testing.T) {
	a, b, c, a1 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	doc := &models.TocDocument{Version: 3, Items: []models.TocItem{
		testChapter(a, 0, "A"),
		testChapter(b, 1, "B"),
		testChapter(c, 2, "C"),
		testSubchapter(a1, a, 0, "A.1"),
	}}

	result, err := ReorderToc(doc, a1, nil, 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	chapters := result.Chapters()
	wantOrder := []uuid.UUID{a, b, a1, c}
	if len(chapters) != 4 {
		t.Fatalf("Expected 4 top-level chapters, got %d", len(chapters))
	}
	for i, want := range wantOrder {
		if chapters[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, chapters[i].ID)
		}
		if chapters[i].Order != i {
			t.Errorf("Position %d: expected order %d, got %d", i, i, chapters[i].Order)
		}
		if chapters[i].Level != 0 {
			t.Errorf("Position %d: expected level 0, got %d", i, chapters[i].Level)
		}
	}

	moved := result.Find(a1)
	if moved.ParentID != nil {
		t.Errorf("Expected promoted item to have no parent, got %v", moved.ParentID)
	}

	if violations := result.Validate(); len(violations) != 0 {
		t.Errorf("Expected valid document after move, got %v", violations)
	}
}

func TestReorderToc_MoveChapterWithSubtree(t *testing.T) {
	a, b, a1, a2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	doc := &models.TocDocument{Items: []models.TocItem{
		testChapter(a, 0, "A"),
		testChapter(b, 1, "B"),
		testSubchapter(a1, a, 0, "A.1"),
		testSubchapter(a2, a, 1, "A.2"),
	}}

	result, err := ReorderToc(doc, a, nil, 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	chapters := result.Chapters()
	if chapters[0].ID != b || chapters[1].ID != a {
		t.Errorf("Expected [B, A], got [%s, %s]", chapters[0].Title, chapters[1].Title)
	}

	// Subchapters move with their chapter.
	for _, sub := range []uuid.UUID{a1, a2} {
		item := result.Find(sub)
		if item.ParentID == nil || *item.ParentID != a {
			t.Errorf("Expected %s to stay under A", sub)
		}
		if item.Level != 1 {
			t.Errorf("Expected subchapter level 1, got %d", item.Level)
		}
	}
}

func TestReorderToc_RejectsNestingBeyondSubchapter(t *testing.T) {
	a, a1, b := uuid.New(), uuid.New(), uuid.New()
	doc := &models.TocDocument{Items: []models.TocItem{
		testChapter(a, 0, "A"),
		testSubchapter(a1, a, 0, "A.1"),
		testChapter(b, 1, "B"),
	}}

	// A.1 is level 1; parenting anything under it exceeds the limit.
	_, err := ReorderToc(doc, b, &a1, 0)

	var depthErr *models.DepthLimitError
	if !errors.As(err, &depthErr) {
		t.Fatalf("Expected DepthLimitError, got %v", err)
	}
	if depthErr.ItemID != b {
		t.Errorf("Expected error to name %s, got %s", b, depthErr.ItemID)
	}
}

func TestReorderToc_RejectsDemotingChapterWithChildren(t *testing.T) {
	a, a1, b := uuid.New(), uuid.New(), uuid.New()
	doc := &models.TocDocument{Items: []models.TocItem{
		testChapter(a, 0, "A"),
		testSubchapter(a1, a, 0, "A.1"),
		testChapter(b, 1, "B"),
	}}

	// Nesting A (which owns A.1) under B would push A.1 past level 1.
	_, err := ReorderToc(doc, a, &b, 0)

	var depthErr *models.DepthLimitError
	if !errors.As(err, &depthErr) {
		t.Fatalf("Expected DepthLimitError, got %v", err)
	}
}

func TestReorderToc_RejectsMoveUnderOwnSubchapter(t *testing.T) {
	a, a1 := uuid.New(), uuid.New()
	doc := &models.TocDocument{Items: []models.TocItem{
		testChapter(a, 0, "A"),
		testSubchapter(a1, a, 0, "A.1"),
	}}

	_, err := ReorderToc(doc, a, &a1, 0)

	// Rejected before cycle creation; either rule is acceptable but it
	// must be a structured error, not silence.
	var valErr *models.ValidationError
	var depthErr *models.DepthLimitError
	if !errors.As(err, &valErr) && !errors.As(err, &depthErr) {
		t.Fatalf("Expected structured rejection, got %v", err)
	}
}

func TestReorderToc_SameGroupMove(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	doc := &models.TocDocument{Items: []models.TocItem{
		testChapter(a, 0, "A"),
		testChapter(b, 1, "B"),
		testChapter(c, 2, "C"),
	}}

	result, err := ReorderToc(doc, c, nil, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	chapters := result.Chapters()
	want := []uuid.UUID{c, a, b}
	for i, id := range want {
		if chapters[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, chapters[i].ID)
		}
		if chapters[i].Order != i {
			t.Errorf("Position %d: expected contiguous order %d, got %d", i, i, chapters[i].Order)
		}
	}
}

func TestReorderToc_DemoteChildlessChapter(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	doc := &models.TocDocument{Items: []models.TocItem{
		testChapter(a, 0, "A"),
		testChapter(b, 1, "B"),
	}}

	result, err := ReorderToc(doc, b, &a, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	moved := result.Find(b)
	if moved.Level != 1 || moved.ParentID == nil || *moved.ParentID != a {
		t.Errorf("Expected B to become a subchapter of A, got level %d parent %v", moved.Level, moved.ParentID)
	}
	if violations := result.Validate(); len(violations) != 0 {
		t.Errorf("Expected valid document, got %v", violations)
	}
}

func TestReorderToc_DoesNotMutateInput(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	doc := &models.TocDocument{Items: []models.TocItem{
		testChapter(a, 0, "A"),
		testChapter(b, 1, "B"),
	}}

	if _, err := ReorderToc(doc, b, nil, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if doc.Find(a).Order != 0 || doc.Find(b).Order != 1 {
		t.Error("Expected input document to be untouched")
	}
}
