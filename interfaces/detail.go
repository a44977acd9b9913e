package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/models"
)

// BodyMeta accompanies a body render.
type BodyMeta struct {
	FromCache   bool
	Decrypted   bool
	TextContent string
}

// DetailCallbacks are the sinks a detail load reports through. Nil members
// are skipped. Callbacks are invoked sequentially on the loading goroutine.
type DetailCallbacks struct {
	OnBody        func(body string, meta BodyMeta)
	OnAttachments func(attachments models.AttachmentList)
	OnImageStatus func(blockedImages, trackingPixels int)
	OnPgpStatus   func(status enum.DecryptStatus)
	OnLoading     func(loading bool)
	OnError       func(err error)
}

// DetailRequest is one detail load. AllowPrompt is false for passive
// prefetch so the decrypt pipeline stays silent.
type DetailRequest struct {
	Message     *models.Message
	AllowPrompt bool
	Callbacks   DetailCallbacks
}

// DetailService is the per-message cache/fetch/decrypt coordinator.
// LoadDetail returns no value; all results are delivered through callbacks.
// The returned status is for callers that schedule loads (prefetch, tests).
type DetailService interface {
	LoadDetail(ctx context.Context, request DetailRequest) enum.LoadStatus
}
