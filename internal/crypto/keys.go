package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// HKDF info strings for subkeys derived from the master key.
const (
	InfoSettings = "makerdash-settings"
	InfoSecrets  = "makerdash-maker-secrets"
	InfoJWT      = "makerdash-jwt"
)

// Argon2id parameters for password-derived wallet keys.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	SaltSize     = 16
)

// ErrInvalidKeyLength is returned when the provided key length is invalid.
var ErrInvalidKeyLength = errors.New("invalid key length")

// DeriveKey derives a 32-byte subkey from the master key using HKDF-SHA256.
func DeriveKey(master []byte, info string) ([]byte, error) {
	if len(master) != 32 {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PasswordKey stretches a wallet password into a 32-byte key with argon2id.
func PasswordKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, 32)
}

// MustRandom returns n random bytes or panics.
func MustRandom(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return b
}
