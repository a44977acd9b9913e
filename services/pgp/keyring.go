package pgp

import (
	"github.com/99designs/keyring"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/internal/logger"
)

const keyringServiceName = "mailvault"

// PassphraseStore persists remembered key passphrases in the OS keyring.
// Lookups that miss return empty, never an error.
type PassphraseStore struct {
	ring keyring.Keyring
	log  logger.Logger
}

func NewPassphraseStore(log logger.Logger) (*PassphraseStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringServiceName,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening keyring")
	}
	return &PassphraseStore{ring: ring, log: log}, nil
}

func (s *PassphraseStore) Get(accountID, keyName string) (string, error) {
	item, err := s.ring.Get(passphraseKey(accountID, keyName))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "reading passphrase from keyring")
	}
	return string(item.Data), nil
}

func (s *PassphraseStore) Set(accountID, keyName, passphrase string) error {
	err := s.ring.Set(keyring.Item{
		Key:   passphraseKey(accountID, keyName),
		Data:  []byte(passphrase),
		Label: "PGP key passphrase for " + keyName,
	})
	if err != nil {
		return errors.Wrap(err, "storing passphrase in keyring")
	}
	return nil
}

func (s *PassphraseStore) Delete(accountID, keyName string) error {
	err := s.ring.Remove(passphraseKey(accountID, keyName))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return errors.Wrap(err, "removing passphrase from keyring")
	}
	return nil
}

func passphraseKey(accountID, keyName string) string {
	return accountID + "/" + keyName
}
