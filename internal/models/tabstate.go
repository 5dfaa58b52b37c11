package models

import (
	"time"

	"github.com/google/uuid"
)

// ChapterTabState is the per-session record of which chapters are open as
// editing tabs, in the user's own arrangement, plus which one is active.
// Tab ids reference TocItems weakly: the state is never authoritative for
// chapter existence and dangling ids are pruned during reconciliation.
type ChapterTabState struct {
	BookID            uuid.UUID   `json:"book_id"`
	SessionKey        string      `json:"session_key"`
	OpenTabs          []uuid.UUID `json:"open_tabs"`
	ActiveTab         *uuid.UUID  `json:"active_tab"`
	LastSyncedVersion int64       `json:"last_synced_version"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Clone returns a deep copy so reconciliation can work on a scratch value.
func (s ChapterTabState) Clone() ChapterTabState {
	out := s
	out.OpenTabs = append([]uuid.UUID(nil), s.OpenTabs...)
	if s.ActiveTab != nil {
		active := *s.ActiveTab
		out.ActiveTab = &active
	}
	return out
}

func (s ChapterTabState) Equal(other ChapterTabState) bool {
	if s.BookID != other.BookID || s.SessionKey != other.SessionKey ||
		s.LastSyncedVersion != other.LastSyncedVersion {
		return false
	}
	if (s.ActiveTab == nil) != (other.ActiveTab == nil) {
		return false
	}
	if s.ActiveTab != nil && *s.ActiveTab != *other.ActiveTab {
		return false
	}
	if len(s.OpenTabs) != len(other.OpenTabs) {
		return false
	}
	for i := range s.OpenTabs {
		if s.OpenTabs[i] != other.OpenTabs[i] {
			return false
		}
	}
	return true
}

type SaveTabStateRequest struct {
	SessionKey string      `json:"session_key"`
	OpenTabs   []uuid.UUID `json:"open_tabs"`
	ActiveTab  *uuid.UUID  `json:"active_tab"`
}

// Access log actions.
const (
	AccessOpened = "opened"
	AccessEdited = "edited"
	AccessClosed = "closed"
)

// AccessLogEntry is append-only and used for analytics and ordering hints
// only; it is never authoritative for state.
type AccessLogEntry struct {
	ID        uuid.UUID `json:"id"`
	BookID    uuid.UUID `json:"book_id"`
	ChapterID uuid.UUID `json:"chapter_id"`
	UserID    uuid.UUID `json:"user_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
