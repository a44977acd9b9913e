package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

// WorkerDetailResult is the background worker's answer to a message detail
// request. When the worker detects encrypted content it returns the raw
// source and sets Encrypted, letting the caller skip the network fetch and
// go straight to decryption.
type WorkerDetailResult struct {
	Encrypted   bool
	RawSource   string
	Body        string
	TextContent string
	Attachments models.AttachmentList
}

// SyncWorker is the message-passing contract with the background sync
// process. Every method may fail with errors.ErrWorkerUnavailable, in which
// case the caller falls back to the direct network path.
type SyncWorker interface {
	MessageDetail(ctx context.Context, accountID, messageID string) (*WorkerDetailResult, error)
	MessagePage(ctx context.Context, accountID string, query models.ListQuery) ([]models.Message, error)
	Folders(ctx context.Context, accountID string) ([]models.Folder, error)
	ParseMime(ctx context.Context, raw string) (*models.ParsedMessage, error)
	Decrypt(ctx context.Context, request DecryptRequest) (*DecryptResult, error)
	UnlockKey(ctx context.Context, request UnlockRequest) (*UnlockResult, error)
}
