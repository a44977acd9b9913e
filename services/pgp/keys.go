package pgp

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
)

// StoreKey persists an imported or replaced key and invalidates everything
// derived from the previous key set: cached bodies for the account, unlocked
// key material, session passphrase caches and the decryptor's key rings. A
// body decrypted with an old key must never survive a key change.
func (s *Service) StoreKey(ctx context.Context, key *models.PgpKey) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pgp.Service.StoreKey")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key.name", key.Name)

	if key.AccountID == "" || key.Name == "" {
		return errors.New("key account and name are required")
	}

	if err := s.keyRepo.Save(ctx, key); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "saving pgp key")
	}

	return s.invalidateAfterKeyChange(ctx, span, key.AccountID, key.Name)
}

// RemoveKey deletes a key and runs the same invalidation as StoreKey, plus
// dropping the remembered passphrase from the keyring.
func (s *Service) RemoveKey(ctx context.Context, key *models.PgpKey) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pgp.Service.RemoveKey")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key.name", key.Name)

	if err := s.keyRepo.Delete(ctx, key.AccountID, key.ID); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "deleting pgp key")
	}

	if s.passStore != nil {
		if err := s.passStore.Delete(key.AccountID, key.Name); err != nil {
			s.log.Warnf("removing remembered passphrase for %s: %v", key.Name, err)
		}
	}

	return s.invalidateAfterKeyChange(ctx, span, key.AccountID, key.Name)
}

// invalidateAfterKeyChange tears down state derived from the old key set.
// Only the body-cache invalidation is load-bearing enough to fail the call;
// the rest degrades to warnings.
func (s *Service) invalidateAfterKeyChange(ctx context.Context, span opentracing.Span, accountID, keyName string) error {
	s.session.ForgetKey(keyName)
	s.unlocker.Forget()

	if err := s.decryptor.RefreshKeys(ctx, accountID); err != nil {
		s.log.Warnf("refreshing decrypt keys for account %s: %v", accountID, err)
	}

	if err := s.bodyRepo.InvalidateAccount(ctx, accountID); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "invalidating cached bodies after key change")
	}

	s.log.Infof("key set changed for account %s, cached bodies invalidated", accountID)
	return nil
}
