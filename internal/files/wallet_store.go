package files

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrylevesque/makerdash/internal/crypto"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

// WalletStore keeps wallet snapshots under a maker's data directory. With a
// password the file is encrypted with an argon2id-derived key.
type WalletStore struct {
	dir      string
	password string
}

func NewWalletStore(dir, password string) *WalletStore {
	return &WalletStore{dir: dir, password: password}
}

func (s *WalletStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid wallet name %q", name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// LoadWallet reads the named snapshot. ok is false when no file exists.
func (s *WalletStore) LoadWallet(name string) (snap wallet.Snapshot, ok bool, err error) {
	path, err := s.path(name)
	if err != nil {
		return snap, false, err
	}
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if s.password != "" {
		blob, err = crypto.DecryptWithPassword(s.password, blob)
		if err != nil {
			return snap, false, fmt.Errorf("decrypt wallet %s: wrong password or corrupt file", name)
		}
	}
	if err := json.Unmarshal(blob, &snap); err != nil {
		return snap, false, fmt.Errorf("decode wallet %s: %w", name, err)
	}
	return snap, true, nil
}

// SaveWallet writes the snapshot, encrypting it when a password is set.
func (s *WalletStore) SaveWallet(snap wallet.Snapshot) error {
	path, err := s.path(snap.Name)
	if err != nil {
		return err
	}
	plain, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if s.password != "" {
		plain, err = crypto.EncryptWithPassword(s.password, plain)
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return writeFileAtomic(path, plain, 0600)
}
