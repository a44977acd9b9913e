package models

import (
	"fmt"

	"github.com/mailvault/mailvault/internal/enum"
)

// ListQuery is the full set of parameters that affect a folder page result.
// Its Key is the composite request key used for in-flight deduplication and
// staleness checks.
type ListQuery struct {
	Folder        string
	Page          int
	Limit         int
	Sort          enum.SortOrder
	Search        string
	UnreadOnly    bool
	HasAttachment bool
}

// Key builds the composite request key for the given account.
func (q ListQuery) Key(accountID string) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s:%s:%t:%t",
		accountID, q.Folder, q.Page, q.Limit, q.Sort, q.Search, q.UnreadOnly, q.HasAttachment)
}

// PageKey identifies the in-memory page-cache slot for this query.
func (q ListQuery) PageKey(accountID string) string {
	return fmt.Sprintf("%s:%s:%d", accountID, q.Folder, q.Page)
}

// DefaultFilters reports whether no search/unread/attachment filter is active.
// Total-count pagination and page-1 pruning only run in this mode.
func (q ListQuery) DefaultFilters() bool {
	return q.Search == "" && !q.UnreadOnly && !q.HasAttachment
}

// Offset returns the store offset for the requested page.
func (q ListQuery) Offset() int {
	page := q.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * q.Limit
}
