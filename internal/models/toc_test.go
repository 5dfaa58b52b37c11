package models

import (
	"testing"

	"github.com/google/uuid"
)

func chapter(id uuid.UUID, order int, title string) TocItem {
	return TocItem{ID: id, Title: title, Level: 0, Order: order, Status: StatusDraft}
}

func subchapter(id, parent uuid.UUID, order int, title string) TocItem {
	return TocItem{ID: id, ParentID: &parent, Title: title, Level: 1, Order: order, Status: StatusDraft}
}

func TestValidate_WellFormedDocument(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	doc := &TocDocument{Items: []TocItem{
		chapter(a, 0, "Chapter A"),
		chapter(b, 1, "Chapter B"),
		subchapter(uuid.New(), a, 0, "A.1"),
		subchapter(uuid.New(), a, 1, "A.2"),
	}}

	if violations := doc.Validate(); len(violations) != 0 {
		t.Errorf("Expected no violations, got %d: %v", len(violations), violations)
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	missing := uuid.New()
	doc := &TocDocument{Items: []TocItem{
		// Empty title; gap in order plus bad status; missing parent.
		{ID: a, Title: "", Level: 0, Order: 0, Status: StatusDraft},
		{ID: b, Title: "B", Level: 0, Order: 5, Status: "unknown"},
		{ID: uuid.New(), ParentID: &missing, Title: "orphan", Level: 1, Order: 0, Status: StatusDraft},
	}}

	violations := doc.Validate()

	rules := make(map[string]int)
	for _, v := range violations {
		rules[v.Rule]++
	}

	for _, rule := range []string{"non_empty_title", "contiguous_order", "valid_status", "parent_exists"} {
		if rules[rule] == 0 {
			t.Errorf("Expected a %q violation, got %v", rule, violations)
		}
	}
}

func TestValidate_DepthAndLevelMismatch(t *testing.T) {
	a := uuid.New()
	sub := uuid.New()
	deep := uuid.New()
	doc := &TocDocument{Items: []TocItem{
		chapter(a, 0, "A"),
		subchapter(sub, a, 0, "A.1"),
		{ID: deep, ParentID: &sub, Title: "A.1.1", Level: 2, Order: 0, Status: StatusDraft},
	}}

	violations := doc.Validate()

	var sawDepth bool
	for _, v := range violations {
		if v.Rule == "max_depth" && v.ItemID == deep {
			sawDepth = true
		}
	}
	if !sawDepth {
		t.Errorf("Expected max_depth violation for level-2 item, got %v", violations)
	}
}

func TestValidate_DetectsCycle(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	doc := &TocDocument{Items: []TocItem{
		{ID: a, ParentID: &b, Title: "A", Level: 1, Order: 0, Status: StatusDraft},
		{ID: b, ParentID: &a, Title: "B", Level: 1, Order: 0, Status: StatusDraft},
	}}

	violations := doc.Validate()

	var sawCycle bool
	for _, v := range violations {
		if v.Rule == "acyclic" {
			sawCycle = true
		}
	}
	if !sawCycle {
		t.Errorf("Expected acyclic violation, got %v", violations)
	}
}

func TestClassifyChanges(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	old := []TocItem{
		chapter(a, 0, "A"),
		chapter(b, 1, "B"),
		chapter(c, 2, "C"),
	}
	updated := []TocItem{
		chapter(a, 0, "A"),
		chapter(c, 1, "C"), // moved up after B removed
		chapter(d, 2, "D"), // new
	}
	updated[1].Status = StatusCompleted

	change := ClassifyChanges(old, updated)

	if len(change.Added) != 1 || change.Added[0] != d {
		t.Errorf("Expected added [%s], got %v", d, change.Added)
	}
	if len(change.Removed) != 1 || change.Removed[0] != b {
		t.Errorf("Expected removed [%s], got %v", b, change.Removed)
	}
	if len(change.Reordered) != 1 || change.Reordered[0] != c {
		t.Errorf("Expected reordered [%s], got %v", c, change.Reordered)
	}
	if len(change.StatusChanged) != 1 || change.StatusChanged[0] != c {
		t.Errorf("Expected status_changed [%s], got %v", c, change.StatusChanged)
	}
}

func TestClassifyChanges_NoChange(t *testing.T) {
	a := uuid.New()
	items := []TocItem{chapter(a, 0, "A")}

	change := ClassifyChanges(items, items)
	if !change.Empty() {
		t.Errorf("Expected empty change, got %+v", change)
	}
}

func TestClassifyChanges_TitleEditProducesNoClassification(t *testing.T) {
	a := uuid.New()
	old := []TocItem{chapter(a, 0, "Old Title")}
	updated := []TocItem{chapter(a, 0, "New Title")}

	change := ClassifyChanges(old, updated)
	if !change.Empty() {
		t.Errorf("Expected title-only edit to classify as empty, got %+v", change)
	}
}
