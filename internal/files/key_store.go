package files

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrylevesque/makerdash/internal/crypto"
)

// MasterKeyEnv overrides the master key file when set (hex, 64 chars).
const MasterKeyEnv = "MAKERDASH_MASTER_KEY"

var (
	ErrNoMasterKey  = errors.New("master key not configured")
	ErrKeyFileExist = errors.New("master key file already exists")
)

// ReadMasterKey returns the 32-byte master key from MAKERDASH_MASTER_KEY or,
// failing that, from the hex file at path.
func ReadMasterKey(path string) ([]byte, error) {
	if hexk := strings.TrimSpace(os.Getenv(MasterKeyEnv)); hexk != "" {
		return decodeMasterKey(hexk)
	}
	if path == "" || !FileExists(path) {
		return nil, ErrNoMasterKey
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read master key: %w", err)
	}
	return decodeMasterKey(strings.TrimSpace(string(raw)))
}

// WriteMasterKey generates a new master key and writes it to path. It refuses
// to replace an existing file unless force is set.
func WriteMasterKey(path string, force bool) ([]byte, error) {
	if FileExists(path) && !force {
		return nil, fmt.Errorf("%w: %s", ErrKeyFileExist, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	key := crypto.MustRandom(32)
	if err := writeFileAtomic(path, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

func decodeMasterKey(hexk string) ([]byte, error) {
	b, err := hex.DecodeString(hexk)
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("master key length must be 32 bytes (hex 64 chars)")
	}
	return b, nil
}

// FileExists checks if the given file exists.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
