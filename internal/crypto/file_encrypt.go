package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// EncryptAESGCM seals plaintext with a 32-byte key. The random nonce is
// prepended to the ciphertext.
func EncryptAESGCM(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

// DecryptAESGCM opens a blob produced by EncryptAESGCM.
func DecryptAESGCM(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(blob) < ns {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, blob[:ns], blob[ns:], nil)
}

// EncryptWithPassword derives a key from password and a fresh salt, and
// returns salt||nonce||ciphertext.
func EncryptWithPassword(password string, plaintext []byte) ([]byte, error) {
	salt := MustRandom(SaltSize)
	enc, err := EncryptAESGCM(PasswordKey(password, salt), plaintext)
	if err != nil {
		return nil, err
	}
	return append(salt, enc...), nil
}

// DecryptWithPassword reverses EncryptWithPassword.
func DecryptWithPassword(password string, blob []byte) ([]byte, error) {
	if len(blob) < SaltSize {
		return nil, errors.New("ciphertext too short")
	}
	return DecryptAESGCM(PasswordKey(password, blob[:SaltSize]), blob[SaltSize:])
}

// SealedPrefix marks a value produced by SealString.
const SealedPrefix = "enc:"

// ErrSealedNoKey is returned when a sealed value is opened without a key.
var ErrSealedNoKey = errors.New("value is sealed but no key is configured")

// IsSealed reports whether s was produced by SealString with a key.
func IsSealed(s string) bool { return strings.HasPrefix(s, SealedPrefix) }

// SealString encrypts s and hex-encodes the result behind SealedPrefix.
// Empty strings stay empty and a nil key leaves s as it is.
func SealString(key []byte, s string) (string, error) {
	if s == "" || key == nil {
		return s, nil
	}
	enc, err := EncryptAESGCM(key, []byte(s))
	if err != nil {
		return "", err
	}
	return SealedPrefix + hex.EncodeToString(enc), nil
}

// OpenString reverses SealString. Values without SealedPrefix are returned
// unchanged as plaintext stored before a key was configured.
func OpenString(key []byte, s string) (string, error) {
	if !IsSealed(s) {
		return s, nil
	}
	if key == nil {
		return "", ErrSealedNoKey
	}
	blob, err := hex.DecodeString(strings.TrimPrefix(s, SealedPrefix))
	if err != nil {
		return "", err
	}
	plain, err := DecryptAESGCM(key, blob)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
