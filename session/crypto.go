package session

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/saiset-co/servicehub-client/types"
)

const (
	sealedPrefix = "sealed:"
	nonceSize    = 24
)

// sealer encrypts the token at rest with a key derived from the configured
// passphrase. A nil sealer stores tokens as they are.
type sealer struct {
	key [32]byte
}

func newSealer(passphrase string) *sealer {
	if passphrase == "" {
		return nil
	}
	return &sealer{key: blake2b.Sum256([]byte(passphrase))}
}

func (s *sealer) seal(plain string) (string, error) {
	if s == nil || plain == "" {
		return plain, nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", types.WrapError(err, "failed to read nonce")
	}

	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(box), nil
}

func (s *sealer) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s == nil {
		return "", types.Errorf(types.ErrSessionCorrupted, "token is encrypted but no encryption_key is set")
	}

	box, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", types.Errorf(types.ErrSessionCorrupted, "malformed sealed token")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", types.Errorf(types.ErrSessionCorrupted, "sealed token does not match encryption_key")
	}

	return string(plain), nil
}
