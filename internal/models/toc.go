package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Chapter status values. Status only ever moves through the editing UI; the
// engine treats it as an opaque enum apart from validation.
const (
	StatusDraft      = "draft"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPublished  = "published"
)

// MaxTocLevel is the deepest supported nesting: 0 = chapter, 1 = subchapter.
const MaxTocLevel = 1

// TocItem is one node of the outline. Hierarchy is expressed as parent id +
// order, not nested structs, so reparenting is a field rewrite rather than a
// subtree copy.
type TocItem struct {
	ID           uuid.UUID  `json:"id"`
	ParentID     *uuid.UUID `json:"parent_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Level        int        `json:"level"`
	Order        int        `json:"order"`
	Status       string     `json:"status"`
	WordCount    int        `json:"word_count"`
	DraftContent *string    `json:"draft_content,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TocDocument is the ordered forest of TocItems for one book, stamped with a
// monotonically increasing version. Version increments by exactly 1 on every
// successful persisted mutation.
type TocDocument struct {
	BookID      uuid.UUID `json:"book_id"`
	Version     int64     `json:"version"`
	Items       []TocItem `json:"items"`
	GeneratedAt time.Time `json:"generated_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StructuralChange is the diff classification emitted after every successful
// write. It deliberately carries ids only, not the document, so downstream
// reconciliation stays cheap.
type StructuralChange struct {
	BookID        uuid.UUID   `json:"book_id"`
	Version       int64       `json:"version"`
	Added         []uuid.UUID `json:"added,omitempty"`
	Removed       []uuid.UUID `json:"removed,omitempty"`
	Reordered     []uuid.UUID `json:"reordered,omitempty"`
	StatusChanged []uuid.UUID `json:"status_changed,omitempty"`
}

func (c StructuralChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Reordered) == 0 && len(c.StatusChanged) == 0
}

// Chapters returns the level-0 items in document order.
func (d *TocDocument) Chapters() []TocItem {
	var out []TocItem
	for _, it := range d.Items {
		if it.ParentID == nil {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Children returns the items whose parent is parentID (nil for roots), in
// sibling order.
func (d *TocDocument) Children(parentID *uuid.UUID) []TocItem {
	var out []TocItem
	for _, it := range d.Items {
		if sameParent(it.ParentID, parentID) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Find returns a pointer into d.Items for the given id, or nil.
func (d *TocDocument) Find(id uuid.UUID) *TocItem {
	for i := range d.Items {
		if d.Items[i].ID == id {
			return &d.Items[i]
		}
	}
	return nil
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

var validStatuses = map[string]bool{
	StatusDraft:      true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusPublished:  true,
}

// Validate checks every structural invariant and returns the full list of
// violations. An empty slice means the document is well-formed.
func (d *TocDocument) Validate() []RuleViolation {
	var violations []RuleViolation

	byID := make(map[uuid.UUID]*TocItem, len(d.Items))
	for i := range d.Items {
		it := &d.Items[i]
		if _, dup := byID[it.ID]; dup {
			violations = append(violations, RuleViolation{
				ItemID: it.ID, Field: "id", Rule: "unique_id",
				Message: fmt.Sprintf("duplicate item id %s", it.ID),
			})
			continue
		}
		byID[it.ID] = it
	}

	for i := range d.Items {
		it := &d.Items[i]

		if it.Title == "" {
			violations = append(violations, RuleViolation{
				ItemID: it.ID, Field: "title", Rule: "non_empty_title",
				Message: fmt.Sprintf("item %s has an empty title", it.ID),
			})
		}

		if !validStatuses[it.Status] {
			violations = append(violations, RuleViolation{
				ItemID: it.ID, Field: "status", Rule: "valid_status",
				Message: fmt.Sprintf("item %s has unknown status %q", it.ID, it.Status),
			})
		}

		if it.Level < 0 || it.Level > MaxTocLevel {
			violations = append(violations, RuleViolation{
				ItemID: it.ID, Field: "level", Rule: "max_depth",
				Message: fmt.Sprintf("item %s has level %d, supported range is 0..%d", it.ID, it.Level, MaxTocLevel),
			})
		}

		if it.ParentID == nil {
			if it.Level != 0 {
				violations = append(violations, RuleViolation{
					ItemID: it.ID, Field: "level", Rule: "level_matches_parent",
					Message: fmt.Sprintf("root item %s must have level 0, got %d", it.ID, it.Level),
				})
			}
			continue
		}

		parent, ok := byID[*it.ParentID]
		if !ok {
			violations = append(violations, RuleViolation{
				ItemID: it.ID, Field: "parent_id", Rule: "parent_exists",
				Message: fmt.Sprintf("item %s references missing parent %s", it.ID, *it.ParentID),
			})
			continue
		}

		if it.Level != parent.Level+1 {
			violations = append(violations, RuleViolation{
				ItemID: it.ID, Field: "level", Rule: "level_matches_parent",
				Message: fmt.Sprintf("item %s has level %d, parent %s has level %d", it.ID, it.Level, parent.ID, parent.Level),
			})
		}
	}

	// Cycle detection: walk each parent chain; it must terminate at a root.
	for i := range d.Items {
		it := &d.Items[i]
		seen := map[uuid.UUID]bool{it.ID: true}
		cur := it
		for cur.ParentID != nil {
			next, ok := byID[*cur.ParentID]
			if !ok {
				break // already reported as parent_exists
			}
			if seen[next.ID] {
				violations = append(violations, RuleViolation{
					ItemID: it.ID, Field: "parent_id", Rule: "acyclic",
					Message: fmt.Sprintf("item %s is part of a parent cycle", it.ID),
				})
				break
			}
			seen[next.ID] = true
			cur = next
		}
	}

	// Sibling order must be exactly 0..n-1 within each group.
	groups := make(map[uuid.UUID][]*TocItem)
	var roots []*TocItem
	for i := range d.Items {
		it := &d.Items[i]
		if it.ParentID == nil {
			roots = append(roots, it)
		} else {
			groups[*it.ParentID] = append(groups[*it.ParentID], it)
		}
	}
	checkGroup := func(items []*TocItem, label string) {
		seen := make(map[int]bool, len(items))
		for _, it := range items {
			if it.Order < 0 || it.Order >= len(items) || seen[it.Order] {
				violations = append(violations, RuleViolation{
					ItemID: it.ID, Field: "order", Rule: "contiguous_order",
					Message: fmt.Sprintf("item %s has order %d, %s orders must be a contiguous 0..%d sequence", it.ID, it.Order, label, len(items)-1),
				})
				continue
			}
			seen[it.Order] = true
		}
	}
	checkGroup(roots, "root")
	for parentID, items := range groups {
		checkGroup(items, fmt.Sprintf("children of %s", parentID))
	}

	return violations
}

// ClassifyChanges compares two item sets and buckets every difference into
// the categories the sync bus publishes. Title/description/draft edits bump
// the version but produce no classification; consumers that care about text
// refetch the document.
func ClassifyChanges(old, updated []TocItem) StructuralChange {
	oldByID := make(map[uuid.UUID]TocItem, len(old))
	for _, it := range old {
		oldByID[it.ID] = it
	}
	newByID := make(map[uuid.UUID]TocItem, len(updated))
	for _, it := range updated {
		newByID[it.ID] = it
	}

	var change StructuralChange
	for _, it := range updated {
		prev, existed := oldByID[it.ID]
		if !existed {
			change.Added = append(change.Added, it.ID)
			continue
		}
		if !sameParent(prev.ParentID, it.ParentID) || prev.Order != it.Order {
			change.Reordered = append(change.Reordered, it.ID)
		}
		if prev.Status != it.Status {
			change.StatusChanged = append(change.StatusChanged, it.ID)
		}
	}
	for _, it := range old {
		if _, kept := newByID[it.ID]; !kept {
			change.Removed = append(change.Removed, it.ID)
		}
	}
	return change
}
