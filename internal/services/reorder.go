package services

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

// ReorderToc computes the document that results from dragging movedID so it
// becomes the child of newParentID (nil for top level) at targetIndex among
// its new siblings. Only the moved item and the order values of the source
// and destination sibling groups are touched; everything else carries over
// unchanged. The caller persists the result with the pre-move version as
// expectedVersion.
func ReorderToc(doc *models.TocDocument, movedID uuid.UUID, newParentID *uuid.UUID, targetIndex int) (*models.TocDocument, error) {
	result := &models.TocDocument{
		BookID:      doc.BookID,
		Version:     doc.Version,
		GeneratedAt: doc.GeneratedAt,
		UpdatedAt:   doc.UpdatedAt,
		Items:       append([]models.TocItem(nil), doc.Items...),
	}

	moved := result.Find(movedID)
	if moved == nil {
		return nil, &models.NotFoundError{Message: fmt.Sprintf("item %s does not exist in this outline", movedID)}
	}

	newLevel := 0
	if newParentID != nil {
		if *newParentID == movedID {
			return nil, &models.ValidationError{Violations: []models.RuleViolation{{
				ItemID: movedID, Field: "parent_id", Rule: "acyclic",
				Message: "an item cannot become its own parent",
			}}}
		}
		parent := result.Find(*newParentID)
		if parent == nil {
			return nil, &models.NotFoundError{Message: fmt.Sprintf("target parent %s does not exist in this outline", *newParentID)}
		}
		if isDescendantOf(result, parent.ID, movedID) {
			return nil, &models.ValidationError{Violations: []models.RuleViolation{{
				ItemID: movedID, Field: "parent_id", Rule: "acyclic",
				Message: "an item cannot be moved under its own subchapter",
			}}}
		}
		newLevel = parent.Level + 1
		if newLevel > models.MaxTocLevel {
			return nil, &models.DepthLimitError{ItemID: movedID}
		}
		// A chapter that owns subchapters moves as a subtree; nesting it
		// under another chapter would push its children past the limit.
		if hasChildren(result, movedID) {
			return nil, &models.DepthLimitError{ItemID: movedID}
		}
	}

	oldParent := moved.ParentID

	// Renumber the source group without the moved item.
	renumberSiblings(result, oldParent, &movedID)

	// Splice into the destination group. When the move stays within the
	// same group the source renumbering above already removed it.
	dest := siblingsOf(result, newParentID, &movedID)
	if targetIndex < 0 {
		targetIndex = 0
	}
	if targetIndex > len(dest) {
		targetIndex = len(dest)
	}
	for _, sib := range dest {
		item := result.Find(sib.ID)
		if item.Order >= targetIndex {
			item.Order++
		}
	}

	moved.ParentID = cloneUUIDPtr(newParentID)
	moved.Level = newLevel
	moved.Order = targetIndex

	return result, nil
}

func cloneUUIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func hasChildren(doc *models.TocDocument, id uuid.UUID) bool {
	for i := range doc.Items {
		if doc.Items[i].ParentID != nil && *doc.Items[i].ParentID == id {
			return true
		}
	}
	return false
}

// isDescendantOf reports whether candidate sits somewhere below ancestor.
func isDescendantOf(doc *models.TocDocument, candidate, ancestor uuid.UUID) bool {
	cur := doc.Find(candidate)
	for cur != nil && cur.ParentID != nil {
		if *cur.ParentID == ancestor {
			return true
		}
		cur = doc.Find(*cur.ParentID)
	}
	return false
}

// siblingsOf returns the items under parentID in order, excluding exclude.
func siblingsOf(doc *models.TocDocument, parentID *uuid.UUID, exclude *uuid.UUID) []models.TocItem {
	var out []models.TocItem
	for i := range doc.Items {
		it := doc.Items[i]
		if exclude != nil && it.ID == *exclude {
			continue
		}
		if sameParentID(it.ParentID, parentID) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// renumberSiblings rewrites the orders of parentID's children (minus
// exclude) to a contiguous 0..n-1 sequence so they never drift.
func renumberSiblings(doc *models.TocDocument, parentID *uuid.UUID, exclude *uuid.UUID) {
	sibs := siblingsOf(doc, parentID, exclude)
	for idx, sib := range sibs {
		doc.Find(sib.ID).Order = idx
	}
}

func sameParentID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
