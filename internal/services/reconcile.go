package services

import (
	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

// ReconcileTabs brings a session's tab list back in line with the chapter
// structure of doc. It is pure and idempotent: reconciling twice against the
// same document yields the same state, which makes it safe to run from both
// the push path and the polling fallback concurrently.
//
// Rules:
//   - Tabs whose chapter no longer exists are pruned. If the active tab was
//     pruned, the tab now occupying its old index takes over, falling back
//     to the first tab, or to no active tab when the list is empty.
//   - Chapters absent from the tab list are appended at the end in document
//     order. Existing tabs are never reordered: manual arrangement sticks,
//     even when a chapter was reparented rather than deleted.
//   - LastSyncedVersion advances to the document's version.
func ReconcileTabs(state models.ChapterTabState, doc *models.TocDocument) models.ChapterTabState {
	next := state.Clone()

	chapters := doc.Chapters()
	exists := make(map[uuid.UUID]bool, len(chapters))
	for _, ch := range chapters {
		exists[ch.ID] = true
	}

	activeIdx := -1
	if next.ActiveTab != nil {
		for i, id := range next.OpenTabs {
			if id == *next.ActiveTab {
				activeIdx = i
				break
			}
		}
	}

	kept := next.OpenTabs[:0]
	activeRemoved := false
	for _, id := range next.OpenTabs {
		if exists[id] {
			kept = append(kept, id)
		} else if next.ActiveTab != nil && id == *next.ActiveTab {
			activeRemoved = true
		}
	}
	next.OpenTabs = kept

	if activeRemoved {
		switch {
		case len(next.OpenTabs) == 0:
			next.ActiveTab = nil // empty state until a chapter reappears
		case activeIdx >= 0 && activeIdx < len(next.OpenTabs):
			id := next.OpenTabs[activeIdx]
			next.ActiveTab = &id
		default:
			id := next.OpenTabs[0]
			next.ActiveTab = &id
		}
	}

	open := make(map[uuid.UUID]bool, len(next.OpenTabs))
	for _, id := range next.OpenTabs {
		open[id] = true
	}
	for _, ch := range chapters {
		if !open[ch.ID] {
			next.OpenTabs = append(next.OpenTabs, ch.ID)
		}
	}

	// A dangling active reference (not present in the final tab list) is
	// treated the same as a pruned one.
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

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
