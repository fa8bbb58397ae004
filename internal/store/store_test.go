package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/makerdash/internal/crypto"
	"github.com/harrylevesque/makerdash/internal/models"
)

func openTestStore(t *testing.T, key []byte) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "makerdash.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMaker(id string, port int) models.Maker {
	return models.Maker{
		ID:              id,
		Name:            "Maker " + id,
		RPCPort:         port,
		DataDir:         "/tmp/" + id,
		BitcoinRPC:      "127.0.0.1:18443",
		BitcoinUser:     "user",
		BitcoinPassword: "rpc-secret",
		ZMQ:             "tcp://127.0.0.1:28332",
		Network:         "regtest",
		WalletName:      "maker-wallet",
		WalletPassword:  "wallet-secret",
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "makerdash.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(db))
	require.NoError(t, RunMigrations(db))
	require.NoError(t, db.Ping())
}

func TestMakerRepoSealsSecrets(t *testing.T) {
	key := []byte(strings.Repeat("s", 32))
	s := openTestStore(t, key)
	ctx := context.Background()

	require.NoError(t, s.Makers.Upsert(ctx, sampleMaker("m1", 6103)))

	var raw string
	require.NoError(t, s.DB.QueryRow(`SELECT bitcoin_password FROM makers WHERE id = 'm1'`).Scan(&raw))
	assert.NotEqual(t, "rpc-secret", raw)
	assert.True(t, strings.HasPrefix(raw, "enc:"), raw)

	got, err := s.Makers.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "rpc-secret", got.BitcoinPassword)
	assert.Equal(t, "wallet-secret", got.WalletPassword)
	assert.Equal(t, "", got.TorAuth)
	assert.False(t, got.CreatedAt.IsZero())

	wrongKey := NewMakerRepo(s.DB, []byte(strings.Repeat("x", 32)))
	_, err = wrongKey.Get(ctx, "m1")
	assert.Error(t, err)
}

func TestAddingKeySealsPlaintextMakers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "makerdash.db")
	ctx := context.Background()

	plain, err := OpenStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, plain.Makers.Upsert(ctx, sampleMaker("m1", 6103)))
	require.NoError(t, plain.Close())

	key := []byte(strings.Repeat("k", 32))
	s, err := OpenStore(path, key)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	list, err := s.Makers.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "rpc-secret", list[0].BitcoinPassword)
	assert.Equal(t, "wallet-secret", list[0].WalletPassword)

	var raw string
	require.NoError(t, s.DB.QueryRow(`SELECT bitcoin_password FROM makers WHERE id = 'm1'`).Scan(&raw))
	assert.True(t, strings.HasPrefix(raw, "enc:"), raw)

	n, err := s.Makers.SealPlaintext(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A legacy row written after opening still reads back.
	_, err = s.DB.Exec(`UPDATE makers SET tor_auth = 'tor-plain' WHERE id = 'm1'`)
	require.NoError(t, err)
	got, err := s.Makers.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "tor-plain", got.TorAuth)
	n, err = s.Makers.SealPlaintext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Dropping the key again must not hand out ciphertext as a password.
	_, err = NewMakerRepo(s.DB, nil).Get(ctx, "m1")
	assert.ErrorIs(t, err, crypto.ErrSealedNoKey)
}

func TestMakerRepoCRUD(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	first := sampleMaker("m1", 6103)
	first.CreatedAt = time.Now().Add(-time.Hour).UTC()
	require.NoError(t, s.Makers.Upsert(ctx, first))
	require.NoError(t, s.Makers.Upsert(ctx, sampleMaker("m2", 6104)))

	list, err := s.Makers.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID)

	inUse, err := s.Makers.PortInUse(ctx, 6104, "m1")
	require.NoError(t, err)
	assert.True(t, inUse)
	inUse, err = s.Makers.PortInUse(ctx, 6104, "m2")
	require.NoError(t, err)
	assert.False(t, inUse)

	updated := sampleMaker("m1", 6110)
	updated.Name = "Renamed"
	require.NoError(t, s.Makers.Upsert(ctx, updated))
	got, err := s.Makers.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 6110, got.RPCPort)

	// rpc_port is unique across makers.
	assert.Error(t, s.Makers.Upsert(ctx, sampleMaker("m3", 6104)))

	require.NoError(t, s.Makers.Delete(ctx, "m1"))
	_, err = s.Makers.Get(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Makers.Delete(ctx, "m1"), ErrNotFound)

	n, err := s.Makers.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestActivityNewestFirst(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, typ := range []string{models.ActivityMakerStarted, models.ActivityNewAddress, models.ActivitySwapCompleted} {
		_, err := s.Activity.Append(ctx, models.Activity{
			MakerID:   "m1",
			Maker:     "Maker 1",
			Type:      typ,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := s.Activity.Append(ctx, models.Activity{MakerID: "m2", Type: models.ActivityFundsReceived})
	require.NoError(t, err)

	recent, err := s.Activity.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.ActivityFundsReceived, recent[0].Type)
	assert.Equal(t, models.ActivitySwapCompleted, recent[1].Type)

	mine, err := s.Activity.ForMaker(ctx, "m1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, models.ActivityMakerStarted, mine[2].Type)
	assert.NotEmpty(t, mine[0].ID)
}

func TestSwapStatsAndCascade(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Makers.Upsert(ctx, sampleMaker("m1", 6103)))

	for _, sw := range []models.Swap{
		{MakerID: "m1", Amount: 50_000_000, Fee: 250_000, Status: models.SwapCompleted},
		{MakerID: "m1", Amount: 30_000_000, Fee: 150_000, Status: models.SwapCompleted},
		{MakerID: "m1", Amount: 10_000_000, Fee: 40_000, Status: models.SwapActive},
		{MakerID: "m1", Amount: 10_000_000, Fee: 40_000, Status: models.SwapFailed},
	} {
		_, err := s.Swaps.Record(ctx, sw)
		require.NoError(t, err)
	}

	active, earnings, err := s.Swaps.Stats(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, int64(400_000), earnings)

	active, earnings, err = s.Swaps.Stats(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, active)
	assert.Zero(t, earnings)

	swaps, err := s.Swaps.ForMaker(ctx, "m1", 0)
	require.NoError(t, err)
	assert.Len(t, swaps, 4)

	_, err = s.Swaps.Record(ctx, models.Swap{MakerID: "ghost", Amount: 1, Status: models.SwapActive})
	assert.Error(t, err, "foreign key should reject unknown makers")

	require.NoError(t, s.Makers.Delete(ctx, "m1"))
	swaps, err = s.Swaps.ForMaker(ctx, "m1", 0)
	require.NoError(t, err)
	assert.Empty(t, swaps)
}
