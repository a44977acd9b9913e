package pgp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/session"
)

const armoredSample = "-----BEGIN PGP MESSAGE-----\n\nhQEMA2x5cGhlcgEIAMeow\n-----END PGP MESSAGE-----"

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type mockKeyRepo struct{ mock.Mock }

func (m *mockKeyRepo) GetByAccount(ctx context.Context, accountID string) ([]models.PgpKey, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]models.PgpKey), args.Error(1)
}

func (m *mockKeyRepo) GetByName(ctx context.Context, accountID, name string) (*models.PgpKey, error) {
	args := m.Called(ctx, accountID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PgpKey), args.Error(1)
}

func (m *mockKeyRepo) Save(ctx context.Context, key *models.PgpKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockKeyRepo) Delete(ctx context.Context, accountID, id string) error {
	return m.Called(ctx, accountID, id).Error(0)
}

type mockBodyRepo struct{ mock.Mock }

func (m *mockBodyRepo) Get(ctx context.Context, accountID, messageID string) (*models.MessageBody, error) {
	args := m.Called(ctx, accountID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageBody), args.Error(1)
}

func (m *mockBodyRepo) CompleteSet(ctx context.Context, accountID string, messageIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, accountID, messageIDs)
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *mockBodyRepo) Save(ctx context.Context, body *models.MessageBody) error {
	return m.Called(ctx, body).Error(0)
}

func (m *mockBodyRepo) Delete(ctx context.Context, accountID, messageID string) error {
	return m.Called(ctx, accountID, messageID).Error(0)
}

func (m *mockBodyRepo) BulkDelete(ctx context.Context, accountID string, messageIDs []string) error {
	return m.Called(ctx, accountID, messageIDs).Error(0)
}

func (m *mockBodyRepo) DeleteOldest(ctx context.Context, accountID string, n int) (int64, error) {
	args := m.Called(ctx, accountID, n)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBodyRepo) InvalidateAccount(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}

type mockDecryptor struct{ mock.Mock }

func (m *mockDecryptor) Decrypt(ctx context.Context, request interfaces.DecryptRequest) (*interfaces.DecryptResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.DecryptResult), args.Error(1)
}

func (m *mockDecryptor) RefreshKeys(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}

type mockUnlocker struct{ mock.Mock }

func (m *mockUnlocker) Unlock(ctx context.Context, request interfaces.UnlockRequest) (*interfaces.UnlockResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.UnlockResult), args.Error(1)
}

func (m *mockUnlocker) Forget() {
	m.Called()
}

type mockPrompt struct{ mock.Mock }

func (m *mockPrompt) Open(ctx context.Context, keyName string) (*interfaces.PromptResult, error) {
	args := m.Called(ctx, keyName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.PromptResult), args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyMissingKeys(accountID string) {
	m.Called(accountID)
}

type pipelineFixture struct {
	service   *Service
	session   *session.Session
	keyRepo   *mockKeyRepo
	bodyRepo  *mockBodyRepo
	decryptor *mockDecryptor
	unlocker  *mockUnlocker
	prompt    *mockPrompt
	notifier  *mockNotifier
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		session:   session.New(getLogger()),
		keyRepo:   &mockKeyRepo{},
		bodyRepo:  &mockBodyRepo{},
		decryptor: &mockDecryptor{},
		unlocker:  &mockUnlocker{},
		prompt:    &mockPrompt{},
		notifier:  &mockNotifier{},
	}
	f.service = NewService(
		f.session,
		f.keyRepo,
		f.bodyRepo,
		f.decryptor,
		f.unlocker,
		f.prompt,
		f.notifier,
		nil,
		getLogger(),
	)
	return f
}

func TestRun_NonArmoredInputFails(t *testing.T) {
	f := newPipelineFixture()

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:   "<p>plain html</p>",
		AccountID: "acct-1",
		MessageID: "m1",
	})

	assert.Equal(t, enum.DecryptFailed, result.Status)
}

func TestRun_TruncatedArmorFails(t *testing.T) {
	f := newPipelineFixture()

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:   "-----BEGIN PGP MESSAGE-----\ntruncated without footer",
		AccountID: "acct-1",
		MessageID: "m1",
	})

	assert.Equal(t, enum.DecryptFailed, result.Status)
}

func TestRun_CachedPlaintextShortCircuits(t *testing.T) {
	f := newPipelineFixture()
	f.bodyRepo.On("Get", mock.Anything, "acct-1", "m1").Return(&models.MessageBody{
		AccountID: "acct-1",
		MessageID: "m1",
		Body:      "<p>already decrypted</p>",
		Decrypted: true,
	}, nil)

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:   armoredSample,
		AccountID: "acct-1",
		MessageID: "m1",
	})

	require.Equal(t, enum.DecryptSuccess, result.Status)
	assert.Equal(t, "<p>already decrypted</p>", result.Body)
	f.decryptor.AssertNotCalled(t, "Decrypt", mock.Anything, mock.Anything)
}

func TestRun_NoKeysStaysSilentWithoutPrompt(t *testing.T) {
	f := newPipelineFixture()
	f.bodyRepo.On("Get", mock.Anything, "acct-1", "m1").Return(nil, nil)
	f.keyRepo.On("GetByAccount", mock.Anything, "acct-1").Return([]models.PgpKey{}, nil)

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:     armoredSample,
		AccountID:   "acct-1",
		MessageID:   "m1",
		AllowPrompt: false,
	})

	assert.Equal(t, enum.DecryptNoKeysConfigured, result.Status)
	f.notifier.AssertNotCalled(t, "NotifyMissingKeys", mock.Anything)
}

func TestRun_NoKeysNotifiesOncePerAccount(t *testing.T) {
	f := newPipelineFixture()
	f.bodyRepo.On("Get", mock.Anything, "acct-1", mock.Anything).Return(nil, nil)
	f.keyRepo.On("GetByAccount", mock.Anything, "acct-1").Return([]models.PgpKey{}, nil)
	f.notifier.On("NotifyMissingKeys", "acct-1").Return()

	for _, id := range []string{"m1", "m2"} {
		result := f.service.Run(context.Background(), PipelineInput{
			Armored:     armoredSample,
			AccountID:   "acct-1",
			MessageID:   id,
			AllowPrompt: true,
		})
		assert.Equal(t, enum.DecryptNoKeysConfigured, result.Status)
	}

	f.notifier.AssertNumberOfCalls(t, "NotifyMissingKeys", 1)
}

func TestRun_UnprotectedKeyDecrypts(t *testing.T) {
	f := newPipelineFixture()
	f.bodyRepo.On("Get", mock.Anything, "acct-1", "m1").Return(nil, nil)
	f.keyRepo.On("GetByAccount", mock.Anything, "acct-1").Return([]models.PgpKey{
		{Name: "work", PrivateKey: "armored-key"},
	}, nil)

	// Probe reports no passphrase needed; the register unlock succeeds.
	f.unlocker.On("Unlock", mock.Anything, mock.MatchedBy(func(r interfaces.UnlockRequest) bool {
		return r.CheckOnly
	})).Return(&interfaces.UnlockResult{NeedsPassphrase: false}, nil).Once()
	f.unlocker.On("Unlock", mock.Anything, mock.MatchedBy(func(r interfaces.UnlockRequest) bool {
		return !r.CheckOnly
	})).Return(&interfaces.UnlockResult{Success: true}, nil).Once()

	f.decryptor.On("RefreshKeys", mock.Anything, "acct-1").Return(nil)
	f.decryptor.On("Decrypt", mock.Anything, mock.Anything).Return(&interfaces.DecryptResult{
		Success: true,
		Body:    "<p>secret</p>",
	}, nil)

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:   armoredSample,
		AccountID: "acct-1",
		MessageID: "m1",
	})

	require.Equal(t, enum.DecryptSuccess, result.Status)
	assert.Equal(t, "<p>secret</p>", result.Body)
	f.prompt.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
}

func TestRun_LockedKeyWithoutPromptStaysLocked(t *testing.T) {
	f := newPipelineFixture()
	f.bodyRepo.On("Get", mock.Anything, "acct-1", "m1").Return(nil, nil)
	f.keyRepo.On("GetByAccount", mock.Anything, "acct-1").Return([]models.PgpKey{
		{Name: "work", PrivateKey: "armored-key"},
	}, nil)
	f.unlocker.On("Unlock", mock.Anything, mock.MatchedBy(func(r interfaces.UnlockRequest) bool {
		return r.CheckOnly
	})).Return(&interfaces.UnlockResult{NeedsPassphrase: true}, nil)

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:     armoredSample,
		AccountID:   "acct-1",
		MessageID:   "m1",
		AllowPrompt: false,
	})

	assert.Equal(t, enum.DecryptLockedNoPrompt, result.Status)
	f.prompt.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
	f.decryptor.AssertNotCalled(t, "Decrypt", mock.Anything, mock.Anything)
}

func TestRun_SessionPassphraseSkipsPrompt(t *testing.T) {
	f := newPipelineFixture()
	f.session.SetPassphrase("work", "hunter2")
	f.session.SetNeedsPassphrase("work", true)

	f.bodyRepo.On("Get", mock.Anything, "acct-1", "m1").Return(nil, nil)
	f.keyRepo.On("GetByAccount", mock.Anything, "acct-1").Return([]models.PgpKey{
		{Name: "work", PrivateKey: "armored-key"},
	}, nil)
	f.unlocker.On("Unlock", mock.Anything, mock.MatchedBy(func(r interfaces.UnlockRequest) bool {
		return r.Passphrase == "hunter2" && !r.CheckOnly
	})).Return(&interfaces.UnlockResult{Success: true}, nil)

	f.decryptor.On("RefreshKeys", mock.Anything, "acct-1").Return(nil)
	f.decryptor.On("Decrypt", mock.Anything, mock.Anything).Return(&interfaces.DecryptResult{
		Success: true,
		Body:    "<p>secret</p>",
	}, nil)

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:     armoredSample,
		AccountID:   "acct-1",
		MessageID:   "m1",
		AllowPrompt: true,
	})

	assert.Equal(t, enum.DecryptSuccess, result.Status)
	f.prompt.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
}

func TestRun_PromptDismissalIsCancellation(t *testing.T) {
	f := newPipelineFixture()
	f.bodyRepo.On("Get", mock.Anything, "acct-1", "m1").Return(nil, nil)
	f.keyRepo.On("GetByAccount", mock.Anything, "acct-1").Return([]models.PgpKey{
		{Name: "work", PrivateKey: "armored-key"},
	}, nil)
	f.unlocker.On("Unlock", mock.Anything, mock.MatchedBy(func(r interfaces.UnlockRequest) bool {
		return r.CheckOnly
	})).Return(&interfaces.UnlockResult{NeedsPassphrase: true}, nil)
	f.prompt.On("Open", mock.Anything, "work").Return(nil, assert.AnError)

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:     armoredSample,
		AccountID:   "acct-1",
		MessageID:   "m1",
		AllowPrompt: true,
	})

	assert.Equal(t, enum.DecryptLockedPrompted, result.Status)
	f.decryptor.AssertNotCalled(t, "Decrypt", mock.Anything, mock.Anything)
}

func TestRun_DecryptFailureNeverCached(t *testing.T) {
	f := newPipelineFixture()
	f.bodyRepo.On("Get", mock.Anything, "acct-1", "m1").Return(nil, nil)
	f.keyRepo.On("GetByAccount", mock.Anything, "acct-1").Return([]models.PgpKey{
		{Name: "work", PrivateKey: "armored-key"},
	}, nil)
	f.unlocker.On("Unlock", mock.Anything, mock.MatchedBy(func(r interfaces.UnlockRequest) bool {
		return r.CheckOnly
	})).Return(&interfaces.UnlockResult{NeedsPassphrase: false}, nil).Once()
	f.unlocker.On("Unlock", mock.Anything, mock.Anything).Return(&interfaces.UnlockResult{Success: true}, nil)
	f.decryptor.On("RefreshKeys", mock.Anything, "acct-1").Return(nil)
	f.decryptor.On("Decrypt", mock.Anything, mock.Anything).Return(&interfaces.DecryptResult{
		Success: false,
		Reason:  enum.DecryptReasonNoMatchingKey,
		Message: "no matching key",
	}, nil)

	result := f.service.Run(context.Background(), PipelineInput{
		Armored:   armoredSample,
		AccountID: "acct-1",
		MessageID: "m1",
	})

	assert.Equal(t, enum.DecryptFailed, result.Status)
	f.bodyRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestStoreKey_InvalidatesDerivedState(t *testing.T) {
	f := newPipelineFixture()
	f.session.SetPassphrase("work", "hunter2")
	f.session.SetNeedsPassphrase("work", true)

	key := &models.PgpKey{AccountID: "acct-1", Name: "work", PrivateKey: "armored-key"}
	f.keyRepo.On("Save", mock.Anything, key).Return(nil)
	f.unlocker.On("Forget").Return()
	f.decryptor.On("RefreshKeys", mock.Anything, "acct-1").Return(nil)
	f.bodyRepo.On("InvalidateAccount", mock.Anything, "acct-1").Return(nil)

	require.NoError(t, f.service.StoreKey(context.Background(), key))

	// Everything derived from the old key set is gone: cached passphrase,
	// probe result, unlocked material and cached bodies.
	_, havePass := f.session.Passphrase("work")
	assert.False(t, havePass)
	_, known := f.session.NeedsPassphrase("work")
	assert.False(t, known)
	f.unlocker.AssertCalled(t, "Forget")
	f.bodyRepo.AssertCalled(t, "InvalidateAccount", mock.Anything, "acct-1")
}

func TestStoreKey_RequiresAccountAndName(t *testing.T) {
	f := newPipelineFixture()

	err := f.service.StoreKey(context.Background(), &models.PgpKey{Name: "work"})
	require.Error(t, err)
	f.keyRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.bodyRepo.AssertNotCalled(t, "InvalidateAccount", mock.Anything, mock.Anything)
}

func TestRemoveKey_DeletesAndInvalidates(t *testing.T) {
	f := newPipelineFixture()
	f.session.SetPassphrase("work", "hunter2")

	key := &models.PgpKey{ID: "key_1", AccountID: "acct-1", Name: "work"}
	f.keyRepo.On("Delete", mock.Anything, "acct-1", "key_1").Return(nil)
	f.unlocker.On("Forget").Return()
	f.decryptor.On("RefreshKeys", mock.Anything, "acct-1").Return(nil)
	f.bodyRepo.On("InvalidateAccount", mock.Anything, "acct-1").Return(nil)

	require.NoError(t, f.service.RemoveKey(context.Background(), key))

	_, havePass := f.session.Passphrase("work")
	assert.False(t, havePass)
	f.keyRepo.AssertCalled(t, "Delete", mock.Anything, "acct-1", "key_1")
	f.bodyRepo.AssertCalled(t, "InvalidateAccount", mock.Anything, "acct-1")
}

func TestStoreKey_InvalidationFailureSurfaces(t *testing.T) {
	f := newPipelineFixture()

	key := &models.PgpKey{AccountID: "acct-1", Name: "work", PrivateKey: "armored-key"}
	f.keyRepo.On("Save", mock.Anything, key).Return(nil)
	f.unlocker.On("Forget").Return()
	f.decryptor.On("RefreshKeys", mock.Anything, "acct-1").Return(nil)
	f.bodyRepo.On("InvalidateAccount", mock.Anything, "acct-1").Return(assert.AnError)

	err := f.service.StoreKey(context.Background(), key)
	assert.Error(t, err)
}

func TestRun_CancelledContextAborts(t *testing.T) {
	f := newPipelineFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.service.Run(ctx, PipelineInput{
		Armored:   armoredSample,
		AccountID: "acct-1",
		MessageID: "m1",
	})

	assert.Equal(t, enum.DecryptAborted, result.Status)
}
