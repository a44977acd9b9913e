package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/models"
)

type DecryptRequest struct {
	Armored     string
	AllowPrompt bool
	MessageID   string
	AccountID   string
}

type DecryptResult struct {
	Success     bool
	Body        string
	TextContent string
	Attachments models.AttachmentList

	// Failure detail, meaningful only when Success is false.
	Reason   enum.DecryptFailReason
	Message  string
	KeyCount int
}

// Decryptor is the external decryption capability.
type Decryptor interface {
	Decrypt(ctx context.Context, request DecryptRequest) (*DecryptResult, error)
	// RefreshKeys tells the capability to re-read the account's key set,
	// called after a key was unlocked or the key store changed.
	RefreshKeys(ctx context.Context, accountID string) error
}

type UnlockRequest struct {
	KeyName    string
	Passphrase string
	KeyValue   string
	// CheckOnly probes whether the key needs a passphrase without unlocking.
	CheckOnly bool
}

type UnlockResult struct {
	Success         bool
	NeedsPassphrase bool
	AlreadyUnlocked bool
}

// KeyUnlocker is the external key unlock capability.
type KeyUnlocker interface {
	Unlock(ctx context.Context, request UnlockRequest) (*UnlockResult, error)
	// Forget drops all unlocked key material, called when the key store
	// changes or the account signs out.
	Forget()
}

type PromptResult struct {
	Passphrase string
	Remember   bool
}

// PassphrasePrompt asks the user for a key passphrase. Open returns an
// error when the user dismisses the prompt; the pipeline treats that as a
// cancellation, never as a failure.
type PassphrasePrompt interface {
	Open(ctx context.Context, keyName string) (*PromptResult, error)
}

// Notifier is the UI notification sink used for the one-per-account
// missing-key notice. Implementations must never block.
type Notifier interface {
	NotifyMissingKeys(accountID string)
}
