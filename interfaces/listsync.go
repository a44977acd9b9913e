package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/observable"
)

// ListState is the observable context the list sync engine reads its
// parameters from and publishes its results to.
type ListState struct {
	Query       *observable.Store[models.ListQuery]
	Messages    *observable.Store[[]models.Message]
	HasNextPage *observable.Store[bool]
	Loading     *observable.Store[bool]
}

func NewListState() *ListState {
	return &ListState{
		Query:       observable.NewStore(models.ListQuery{Folder: models.InboxPath, Page: 1, Limit: 50}),
		Messages:    observable.NewStore([]models.Message(nil)),
		HasNextPage: observable.NewStore(false),
		Loading:     observable.NewStore(false),
	}
}

// ListSyncService reconciles the visible folder page with the persistent
// cache and the remote service.
type ListSyncService interface {
	LoadMessages(ctx context.Context) error
	State() *ListState
}
