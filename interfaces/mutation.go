package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/models"
)

// Mutation is a typed user action queued for offline replay.
type Mutation struct {
	Type       enum.MutationType
	AccountID  string
	MessageIDs []string
	Payload    models.JSONMap
}

// MutationQueue accepts user actions (move/delete/flag) for write-back.
// This core only enqueues; replay and retry policy live with the queue.
type MutationQueue interface {
	Enqueue(ctx context.Context, mutation Mutation) error
}
