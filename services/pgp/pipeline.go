package pgp

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/session"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

// PromptTimeout bounds each passphrase prompt; expiry abandons the attempt
// for that key as a cancellation, not a failure.
const PromptTimeout = 2 * time.Minute

// PipelineInput is one decrypt request against armored input.
type PipelineInput struct {
	Armored     string
	AccountID   string
	MessageID   string
	AllowPrompt bool
}

// PipelineResult is the pipeline's terminal state.
type PipelineResult struct {
	Status         enum.DecryptStatus
	Body           string
	TextContent    string
	Attachments    models.AttachmentList
	FailureMessage string
}

// Service runs the decrypt pipeline:
// Detect -> ExtractArmor -> RecheckCache -> candidate-key loop
// (passphrase cache -> needs-passphrase probe -> prompt -> unlock)
// -> RequestDecryption -> terminal status.
type Service struct {
	session   *session.Session
	keyRepo   interfaces.PgpKeyRepository
	bodyRepo  interfaces.MessageBodyRepository
	decryptor interfaces.Decryptor
	unlocker  interfaces.KeyUnlocker
	prompt    interfaces.PassphrasePrompt
	notifier  interfaces.Notifier
	passStore *PassphraseStore
	log       logger.Logger

	// Passphrase prompts are serialized, one key at a time.
	promptMu sync.Mutex
}

func NewService(
	sess *session.Session,
	keyRepo interfaces.PgpKeyRepository,
	bodyRepo interfaces.MessageBodyRepository,
	decryptor interfaces.Decryptor,
	unlocker interfaces.KeyUnlocker,
	prompt interfaces.PassphrasePrompt,
	notifier interfaces.Notifier,
	passStore *PassphraseStore,
	log logger.Logger,
) *Service {
	return &Service{
		session:   sess,
		keyRepo:   keyRepo,
		bodyRepo:  bodyRepo,
		decryptor: decryptor,
		unlocker:  unlocker,
		prompt:    prompt,
		notifier:  notifier,
		passStore: passStore,
		log:       log,
	}
}

func (s *Service) Run(ctx context.Context, in PipelineInput) *PipelineResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pgp.Service.Run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message.id", in.MessageID)
	span.SetTag("allow_prompt", in.AllowPrompt)

	if ctx.Err() != nil {
		return &PipelineResult{Status: enum.DecryptAborted}
	}

	// Detect
	if !utils.IsEncryptedContent(in.Armored) {
		return &PipelineResult{
			Status:         enum.DecryptFailed,
			FailureMessage: "content is not an armored PGP message",
		}
	}

	// ExtractArmor
	armored := utils.ExtractArmoredBlock(in.Armored)
	if armored == "" {
		return &PipelineResult{
			Status:         enum.DecryptFailed,
			FailureMessage: "armored block is truncated",
		}
	}

	// RecheckCache: a concurrent background task may have decrypted this
	// message already; render its result instead of decrypting again.
	if cached, err := s.bodyRepo.Get(ctx, in.AccountID, in.MessageID); err == nil && cached.Complete() {
		span.SetTag("cache_hit", true)
		return &PipelineResult{
			Status:      enum.DecryptSuccess,
			Body:        cached.Body,
			TextContent: cached.TextContent,
			Attachments: cached.Attachments,
		}
	}

	keys, err := s.keyRepo.GetByAccount(ctx, in.AccountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return &PipelineResult{Status: enum.DecryptFailed, FailureMessage: err.Error()}
	}

	if len(keys) == 0 {
		if in.AllowPrompt && !s.session.MissingKeyNotified(in.AccountID) {
			s.session.MarkMissingKeyNotified(in.AccountID)
			s.notifier.NotifyMissingKeys(in.AccountID)
		}
		return &PipelineResult{Status: enum.DecryptNoKeysConfigured}
	}

	unlockedCount, prompted, refreshed := s.unlockCandidates(ctx, in, keys)
	if ctx.Err() != nil {
		return &PipelineResult{Status: enum.DecryptAborted}
	}

	if refreshed {
		if err := s.decryptor.RefreshKeys(ctx, in.AccountID); err != nil {
			s.log.Warnf("refreshing key set for account %s: %v", in.AccountID, err)
		}
	}

	if unlockedCount == 0 {
		if prompted {
			return &PipelineResult{Status: enum.DecryptLockedPrompted}
		}
		return &PipelineResult{Status: enum.DecryptLockedNoPrompt}
	}

	// RequestDecryption
	result, err := s.decryptor.Decrypt(ctx, interfaces.DecryptRequest{
		Armored:     armored,
		AllowPrompt: in.AllowPrompt,
		MessageID:   in.MessageID,
		AccountID:   in.AccountID,
	})
	if err != nil {
		if ctx.Err() != nil {
			return &PipelineResult{Status: enum.DecryptAborted}
		}
		tracing.TraceErr(span, err)
		return &PipelineResult{Status: enum.DecryptFailed, FailureMessage: err.Error()}
	}

	if !result.Success {
		span.SetTag("decrypt.reason", result.Reason.String())
		return &PipelineResult{
			Status:         enum.DecryptFailed,
			FailureMessage: result.Message,
		}
	}

	return &PipelineResult{
		Status:      enum.DecryptSuccess,
		Body:        result.Body,
		TextContent: result.TextContent,
		Attachments: result.Attachments,
	}
}

// unlockCandidates walks the account's keys and tries to make at least one
// usable: cached passphrase first, then a single needs-passphrase probe per
// key per session, then a serialized prompt when allowed.
func (s *Service) unlockCandidates(ctx context.Context, in PipelineInput, keys []models.PgpKey) (unlockedCount int, prompted bool, refreshed bool) {
	for i := range keys {
		key := &keys[i]
		if ctx.Err() != nil {
			return unlockedCount, prompted, refreshed
		}

		// CheckPassphraseCache: session first, then the persisted store.
		passphrase, havePass := s.session.Passphrase(key.Name)
		if !havePass && s.passStore != nil {
			if stored, err := s.passStore.Get(in.AccountID, key.Name); err == nil && stored != "" {
				passphrase, havePass = stored, true
				s.session.SetPassphrase(key.Name, stored)
			}
		}

		// ProbeNeedsPassphrase: once per key per session.
		needs, known := s.session.NeedsPassphrase(key.Name)
		if !known {
			probe, err := s.unlocker.Unlock(ctx, interfaces.UnlockRequest{
				KeyName:   key.Name,
				KeyValue:  key.PrivateKey,
				CheckOnly: true,
			})
			if err != nil {
				s.log.Warnf("probing key %s: %v", key.Name, err)
				continue
			}
			needs = probe.NeedsPassphrase
			s.session.SetNeedsPassphrase(key.Name, needs)
			if probe.AlreadyUnlocked {
				unlockedCount++
				continue
			}
		}

		if !needs {
			// Unprotected key: register it without prompting.
			res, err := s.unlocker.Unlock(ctx, interfaces.UnlockRequest{
				KeyName:  key.Name,
				KeyValue: key.PrivateKey,
			})
			if err == nil && (res.Success || res.AlreadyUnlocked) {
				unlockedCount++
				refreshed = true
			}
			continue
		}

		if !havePass {
			if !in.AllowPrompt {
				continue
			}
			result, ok := s.promptForPassphrase(ctx, key.Name)
			if !ok {
				// Dismissal or timeout is a cancellation for this key only.
				prompted = true
				continue
			}
			prompted = true
			passphrase = result.Passphrase
			if result.Remember && s.passStore != nil {
				if err := s.passStore.Set(in.AccountID, key.Name, passphrase); err != nil {
					s.log.Warnf("persisting passphrase for key %s: %v", key.Name, err)
				}
			}
		}

		// UnlockKey
		res, err := s.unlocker.Unlock(ctx, interfaces.UnlockRequest{
			KeyName:    key.Name,
			KeyValue:   key.PrivateKey,
			Passphrase: passphrase,
		})
		if err != nil {
			s.log.Warnf("unlocking key %s: %v", key.Name, err)
			continue
		}
		if res.Success || res.AlreadyUnlocked {
			s.session.SetPassphrase(key.Name, passphrase)
			unlockedCount++
			refreshed = true
		}
	}
	return unlockedCount, prompted, refreshed
}

// promptForPassphrase opens the serialized passphrase prompt, bounded by
// PromptTimeout.
func (s *Service) promptForPassphrase(ctx context.Context, keyName string) (*interfaces.PromptResult, bool) {
	s.promptMu.Lock()
	defer s.promptMu.Unlock()

	promptCtx, cancel := context.WithTimeout(ctx, PromptTimeout)
	defer cancel()

	result, err := s.prompt.Open(promptCtx, keyName)
	if err != nil || result == nil || result.Passphrase == "" {
		return nil, false
	}
	return result, true
}
