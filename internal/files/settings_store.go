package files

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/harrylevesque/makerdash/internal/crypto"
	"github.com/harrylevesque/makerdash/internal/models"
)

const (
	settingsFile          = "settings.json"
	encryptedSettingsFile = "settings.json.enc"
)

// SettingsStore persists the dashboard settings. When a master key is given
// the file is sealed with AES-GCM under the settings subkey.
type SettingsStore struct {
	dir string
	key []byte
	mu  sync.RWMutex
}

func NewSettingsStore(dir string, masterKey []byte) (*SettingsStore, error) {
	s := &SettingsStore{dir: dir}
	if masterKey != nil {
		key, err := crypto.DeriveKey(masterKey, crypto.InfoSettings)
		if err != nil {
			return nil, fmt.Errorf("derive settings key: %w", err)
		}
		s.key = key
	}
	return s, nil
}

func (s *SettingsStore) path() string {
	if s.key != nil {
		return filepath.Join(s.dir, encryptedSettingsFile)
	}
	return filepath.Join(s.dir, settingsFile)
}

// Encrypted reports whether settings are stored sealed.
func (s *SettingsStore) Encrypted() bool { return s.key != nil }

// Load returns the stored settings, or the defaults when nothing is stored.
// With a key and no sealed file yet, a plaintext settings.json is read
// instead; the next Save seals it.
func (s *SettingsStore) Load() (models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sealed := s.key != nil
	blob, err := os.ReadFile(s.path())
	if sealed && os.IsNotExist(err) {
		sealed = false
		blob, err = os.ReadFile(filepath.Join(s.dir, settingsFile))
	}
	if os.IsNotExist(err) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, err
	}
	if sealed {
		blob, err = crypto.DecryptAESGCM(s.key, blob)
		if err != nil {
			return models.Settings{}, fmt.Errorf("decrypt settings: %w", err)
		}
	}
	settings := models.DefaultSettings()
	if err := json.Unmarshal(blob, &settings); err != nil {
		return models.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsStore) Save(settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plain, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if s.key != nil {
		plain, err = crypto.EncryptAESGCM(s.key, plain)
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path(), plain, 0600); err != nil {
		return err
	}
	if s.key != nil {
		if err := os.Remove(filepath.Join(s.dir, settingsFile)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove plaintext settings: %w", err)
		}
	}
	return nil
}
