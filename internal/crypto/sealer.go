package crypto

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyLen is the required sealing key length.
const KeyLen = chacha20poly1305.KeySize

// ErrBadKeyLen indicates the sealing key is not KeyLen bytes.
var ErrBadKeyLen = errors.New("sealing key must be 32 bytes")

// Sealer encrypts opaque credential blobs at rest with XChaCha20-Poly1305.
// A nil Sealer is valid and passes blobs through unchanged.
type Sealer struct {
	key []byte
}

// NewSealer constructs a Sealer. key must be KeyLen bytes; nil disables sealing.
func NewSealer(key []byte) (*Sealer, error) {
	if key == nil {
		return nil, nil
	}
	if len(key) != KeyLen {
		return nil, ErrBadKeyLen
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts plain with a random nonce prefix.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	if s == nil {
		return plain, nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plain)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plain, nil)...)
	return out, nil
}

// Open decrypts a sealed blob.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if s == nil {
		return sealed, nil
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed blob too short")
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ct := sealed[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, nil)
}
