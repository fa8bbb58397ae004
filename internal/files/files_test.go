package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

func TestMasterKeyFileAndEnv(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")
	path := filepath.Join(t.TempDir(), "keys", "master.key")

	_, err := ReadMasterKey(path)
	assert.ErrorIs(t, err, ErrNoMasterKey)

	key, err := WriteMasterKey(path, false)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = WriteMasterKey(path, false)
	assert.ErrorIs(t, err, ErrKeyFileExist)

	got, err := ReadMasterKey(path)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	t.Setenv(MasterKeyEnv, strings.Repeat("ab", 32))
	got, err = ReadMasterKey(path)
	require.NoError(t, err)
	assert.NotEqual(t, key, got)

	t.Setenv(MasterKeyEnv, "abcd")
	_, err = ReadMasterKey(path)
	assert.Error(t, err)
}

func testSnapshot(t *testing.T) wallet.Snapshot {
	t.Helper()
	w, err := wallet.New("maker-wallet", wallet.MustParams("regtest"), []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, w.Receive(wallet.UTXO{TxID: "aa", Amount: 5_000, Kind: wallet.KindRegular}))
	return w.Snapshot()
}

func TestWalletStorePlainAndEncrypted(t *testing.T) {
	for _, password := range []string{"", "hunter2"} {
		dir := t.TempDir()
		store := NewWalletStore(dir, password)

		_, ok, err := store.LoadWallet("maker-wallet")
		require.NoError(t, err)
		assert.False(t, ok)

		snap := testSnapshot(t)
		require.NoError(t, store.SaveWallet(snap))

		raw, err := os.ReadFile(filepath.Join(dir, "maker-wallet.json"))
		require.NoError(t, err)
		assert.Equal(t, password == "", strings.Contains(string(raw), snap.Seed))

		got, ok, err := store.LoadWallet("maker-wallet")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, snap.Seed, got.Seed)
		assert.Equal(t, snap.UTXOs, got.UTXOs)
	}
}

func TestWalletStoreWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewWalletStore(dir, "right").SaveWallet(testSnapshot(t)))

	_, _, err := NewWalletStore(dir, "wrong").LoadWallet("maker-wallet")
	assert.Error(t, err)

	_, _, err = NewWalletStore(dir, "").LoadWallet("../escape")
	assert.Error(t, err)
}

func TestSettingsStore(t *testing.T) {
	dir := t.TempDir()
	plain, err := NewSettingsStore(dir, nil)
	require.NoError(t, err)

	got, err := plain.Load()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), got)

	s := models.DefaultSettings()
	s.RPCPassword = "s3cret"
	s.RPCPort = 18443
	require.NoError(t, plain.Save(s))
	got, err = plain.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)

	sealed, err := NewSettingsStore(dir, []byte(strings.Repeat("k", 32)))
	require.NoError(t, err)
	assert.True(t, sealed.Encrypted())
	require.NoError(t, sealed.Save(s))

	raw, err := os.ReadFile(filepath.Join(dir, "settings.json.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")

	got, err = sealed.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = NewSettingsStore(dir, []byte("short"))
	assert.Error(t, err)
}

func TestSettingsStoreReadsPlainFileAfterKeyAdded(t *testing.T) {
	dir := t.TempDir()
	plain, err := NewSettingsStore(dir, nil)
	require.NoError(t, err)
	s := models.DefaultSettings()
	s.RPCUser = "alice"
	s.RPCPassword = "s3cret"
	require.NoError(t, plain.Save(s))

	sealed, err := NewSettingsStore(dir, []byte(strings.Repeat("k", 32)))
	require.NoError(t, err)
	got, err := sealed.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)

	require.NoError(t, sealed.Save(got))
	_, err = os.Stat(filepath.Join(dir, "settings.json"))
	assert.True(t, os.IsNotExist(err), "plaintext settings should be removed once sealed")
	raw, err := os.ReadFile(filepath.Join(dir, "settings.json.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")

	got, err = sealed.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestMakerConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadMakerConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultMakerFileConfig(), cfg)

	cfg.RPCPort = 6110
	cfg.AmountRelativeFeePct = 0.25
	require.NoError(t, SaveMakerConfig(dir, cfg))

	raw, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "rpc_port = 6110")

	got, err := LoadMakerConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestMakerConfigPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("network_port = 7000\n"), 0600))

	cfg, err := LoadMakerConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.NetworkPort)
	assert.Equal(t, int64(13104), cfg.FidelityTimelock)
}

func TestMakerConfigValidate(t *testing.T) {
	cfg := DefaultMakerFileConfig()
	cfg.RPCPort = 70000
	assert.Error(t, SaveMakerConfig(t.TempDir(), cfg))

	cfg = DefaultMakerFileConfig()
	cfg.RPCPort = cfg.NetworkPort
	assert.Error(t, cfg.Validate())
}
