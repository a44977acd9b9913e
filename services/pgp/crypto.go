package pgp

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	pgperrors "golang.org/x/crypto/openpgp/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/services/mimeparse"
)

// KeyVault holds unlocked private key entities, keyed by key name. It backs
// both the unlock capability and the decryption engine.
type KeyVault struct {
	log logger.Logger

	mu       sync.Mutex
	unlocked map[string]*openpgp.Entity
}

func NewKeyVault(log logger.Logger) *KeyVault {
	return &KeyVault{
		log:      log,
		unlocked: make(map[string]*openpgp.Entity),
	}
}

func (v *KeyVault) Unlock(ctx context.Context, request interfaces.UnlockRequest) (*interfaces.UnlockResult, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "pgp.KeyVault.Unlock")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key.name", request.KeyName)
	span.SetTag("check_only", request.CheckOnly)

	v.mu.Lock()
	_, have := v.unlocked[request.KeyName]
	v.mu.Unlock()
	if have {
		return &interfaces.UnlockResult{Success: true, AlreadyUnlocked: true}, nil
	}

	ring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(request.KeyValue))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "reading armored key ring")
	}
	if len(ring) == 0 || ring[0].PrivateKey == nil {
		return nil, errors.Errorf("key %s carries no private key", request.KeyName)
	}
	entity := ring[0]

	if request.CheckOnly {
		return &interfaces.UnlockResult{
			NeedsPassphrase: entity.PrivateKey.Encrypted,
		}, nil
	}

	if entity.PrivateKey.Encrypted {
		if request.Passphrase == "" {
			return &interfaces.UnlockResult{NeedsPassphrase: true}, nil
		}
		if err := decryptEntity(entity, []byte(request.Passphrase)); err != nil {
			// A wrong passphrase is a normal outcome, not a transport error.
			v.log.Debugf("passphrase rejected for key %s: %v", request.KeyName, err)
			return &interfaces.UnlockResult{NeedsPassphrase: true}, nil
		}
	}

	v.mu.Lock()
	v.unlocked[request.KeyName] = entity
	v.mu.Unlock()

	return &interfaces.UnlockResult{Success: true}, nil
}

// Entities returns the unlocked entities among the given key names.
func (v *KeyVault) Entities(names []string) openpgp.EntityList {
	v.mu.Lock()
	defer v.mu.Unlock()
	var list openpgp.EntityList
	for _, name := range names {
		if entity, ok := v.unlocked[name]; ok {
			list = append(list, entity)
		}
	}
	return list
}

// Forget drops all unlocked entities, used when the key store is replaced.
func (v *KeyVault) Forget() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unlocked = make(map[string]*openpgp.Entity)
}

func decryptEntity(entity *openpgp.Entity, passphrase []byte) error {
	if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
		return err
	}
	for _, subkey := range entity.Subkeys {
		if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
			if err := subkey.PrivateKey.Decrypt(passphrase); err != nil {
				return err
			}
		}
	}
	return nil
}

// Engine decrypts armored messages against the account's unlocked keys and
// hands the recovered plaintext to the MIME parser when it is structured.
type Engine struct {
	vault   *KeyVault
	keyRepo interfaces.PgpKeyRepository
	parser  *mimeparse.Service
	log     logger.Logger

	mu    sync.Mutex
	rings map[string]openpgp.EntityList
}

func NewEngine(vault *KeyVault, keyRepo interfaces.PgpKeyRepository, parser *mimeparse.Service, log logger.Logger) *Engine {
	return &Engine{
		vault:   vault,
		keyRepo: keyRepo,
		parser:  parser,
		log:     log,
		rings:   make(map[string]openpgp.EntityList),
	}
}

func (e *Engine) RefreshKeys(ctx context.Context, accountID string) error {
	e.mu.Lock()
	delete(e.rings, accountID)
	e.mu.Unlock()
	return nil
}

func (e *Engine) Decrypt(ctx context.Context, request interfaces.DecryptRequest) (*interfaces.DecryptResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pgp.Engine.Decrypt")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message.id", request.MessageID)

	ring, err := e.ringFor(ctx, request.AccountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(ring) == 0 {
		return &interfaces.DecryptResult{
			Reason:  enum.DecryptReasonNoKeys,
			Message: "no unlocked keys for account",
		}, nil
	}

	block, err := armor.Decode(strings.NewReader(request.Armored))
	if err != nil {
		return &interfaces.DecryptResult{
			Reason:   enum.DecryptReasonMalformedArmor,
			Message:  err.Error(),
			KeyCount: len(ring),
		}, nil
	}

	md, err := openpgp.ReadMessage(block.Body, ring, nil, nil)
	if err != nil {
		result := &interfaces.DecryptResult{KeyCount: len(ring), Message: err.Error()}
		switch {
		case errors.Is(err, pgperrors.ErrKeyIncorrect):
			result.Reason = enum.DecryptReasonNoMatchingKey
		case isStructuralError(err):
			result.Reason = enum.DecryptReasonMalformedArmor
		default:
			result.Reason = enum.DecryptReasonInternal
		}
		return result, nil
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &interfaces.DecryptResult{
			Reason:   enum.DecryptReasonInternal,
			Message:  err.Error(),
			KeyCount: len(ring),
		}, nil
	}

	result := &interfaces.DecryptResult{Success: true, KeyCount: len(ring)}

	// Encrypted mail usually carries a full MIME part as plaintext; fall back
	// to treating it as plain text when it does not parse.
	if looksLikeMIME(plaintext) {
		if parsed, err := e.parser.Parse(ctx, string(plaintext)); err == nil {
			result.Body = parsed.BestBody()
			result.TextContent = parsed.Text
			result.Attachments = parsed.Attachments
			return result, nil
		}
	}
	result.Body = string(plaintext)
	result.TextContent = string(plaintext)
	return result, nil
}

func (e *Engine) ringFor(ctx context.Context, accountID string) (openpgp.EntityList, error) {
	e.mu.Lock()
	if ring, ok := e.rings[accountID]; ok {
		e.mu.Unlock()
		return ring, nil
	}
	e.mu.Unlock()

	keys, err := e.keyRepo.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, key.Name)
	}
	ring := e.vault.Entities(names)

	e.mu.Lock()
	e.rings[accountID] = ring
	e.mu.Unlock()
	return ring, nil
}

func looksLikeMIME(plaintext []byte) bool {
	head := plaintext
	if idx := bytes.Index(head, []byte("\r\n\r\n")); idx > 0 {
		head = head[:idx]
	} else if idx := bytes.Index(head, []byte("\n\n")); idx > 0 {
		head = head[:idx]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("content-type:"))
}

func isStructuralError(err error) bool {
	var structural pgperrors.StructuralError
	return errors.As(err, &structural)
}

var _ interfaces.Decryptor = (*Engine)(nil)
var _ interfaces.KeyUnlocker = (*KeyVault)(nil)
