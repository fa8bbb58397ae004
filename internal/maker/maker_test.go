package maker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/harrylevesque/makerdash/internal/channel"
	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixedChain struct{ height int64 }

func (c fixedChain) GetBlockCount(context.Context) (int64, error) { return c.height, nil }

type failingChain struct{}

func (failingChain) GetBlockCount(context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

var testSeed = []byte("0123456789abcdef0123456789abcdef")

func newTestMaker(t *testing.T, taproot bool, chain wallet.ChainSource) *Maker {
	t.Helper()
	mk, err := Init(Config{
		DataDir: t.TempDir(),
		Network: "regtest",
		Taproot: taproot,
	}, WithChain(chain), WithSeed(testSeed))
	require.NoError(t, err)
	require.NoError(t, mk.WriteWallet(func(w *wallet.Wallet) error {
		if err := w.Receive(wallet.UTXO{TxID: "aa", Vout: 0, Amount: 100_000, Kind: wallet.KindRegular, Height: 1}); err != nil {
			return err
		}
		if err := w.Receive(wallet.UTXO{TxID: "bb", Vout: 1, Amount: 40_000, Kind: wallet.KindSwap, Height: 2}); err != nil {
			return err
		}
		return w.Receive(wallet.UTXO{TxID: "cc", Vout: 0, Amount: 50_000, Kind: wallet.KindFidelity, Height: 3, Locktime: 500})
	}))
	return mk
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil)
	t.Cleanup(m.Close)
	return m
}

func TestInitCreatesAndReloadsWallet(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{DataDir: dir, Network: "regtest", WalletName: "w1", Password: "pw"}

	first, err := Init(cfg, WithChain(nil))
	require.NoError(t, err)
	assert.Equal(t, wallet.P2WPKH, first.DefaultAddressType())
	assert.FileExists(t, filepath.Join(dir, "wallets", "w1.json"))

	var addr1 string
	require.NoError(t, first.ReadWallet(func(w *wallet.Wallet) error {
		addr1 = w.Snapshot().Seed
		return nil
	}))

	second, err := Init(cfg, WithChain(nil))
	require.NoError(t, err)
	var addr2 string
	require.NoError(t, second.ReadWallet(func(w *wallet.Wallet) error {
		addr2 = w.Snapshot().Seed
		return nil
	}))
	assert.Equal(t, addr1, addr2)

	cfg.Network = "signet"
	_, err = Init(cfg, WithChain(nil))
	assert.Error(t, err)

	cfg.Network = "regtest"
	cfg.Password = "wrong"
	_, err = Init(cfg, WithChain(nil))
	assert.Error(t, err)
}

func TestHandleRequestBasics(t *testing.T) {
	mk := newTestMaker(t, false, fixedChain{height: 10})
	ctx := context.Background()

	assert.Equal(t, RespPong, handleRequest(ctx, mk, Request{Kind: ReqPing}).Kind)

	resp := handleRequest(ctx, mk, Request{Kind: ReqUtxo})
	assert.Equal(t, RespUtxo, resp.Kind)
	assert.Len(t, resp.UTXOs, 3)

	resp = handleRequest(ctx, mk, Request{Kind: ReqSwapUtxo})
	assert.Equal(t, RespSwapUtxo, resp.Kind)
	assert.Len(t, resp.UTXOs, 1)

	resp = handleRequest(ctx, mk, Request{Kind: ReqContractUtxo})
	assert.Equal(t, RespContractUtxo, resp.Kind)
	assert.Empty(t, resp.UTXOs)
	assert.Equal(t, "[]", resp.String())

	resp = handleRequest(ctx, mk, Request{Kind: ReqFidelityUtxo})
	assert.Len(t, resp.UTXOs, 1)

	resp = handleRequest(ctx, mk, Request{Kind: ReqBalances})
	assert.Equal(t, RespTotalBalance, resp.Kind)
	assert.Equal(t, int64(140_000), resp.Balances.Spendable)
	var shown map[string]int64
	require.NoError(t, json.Unmarshal([]byte(resp.String()), &shown))
	assert.Equal(t, int64(50_000), shown["fidelity"])

	resp = handleRequest(ctx, mk, Request{Kind: ReqGetDataDir})
	assert.Equal(t, mk.DataDir(), resp.Text)

	resp = handleRequest(ctx, mk, Request{Kind: ReqStop})
	assert.Equal(t, RespShutdown, resp.Kind)
	assert.Equal(t, "Shutdown Initiated", resp.String())

	resp = handleRequest(ctx, mk, Request{Kind: ReqListFidelity})
	assert.Equal(t, RespListBonds, resp.Kind)
	assert.Contains(t, resp.Text, `"status": "active"`)

	resp = handleRequest(ctx, mk, Request{Kind: ReqSyncWallet})
	assert.Equal(t, RespPong, resp.Kind)

	resp = handleRequest(ctx, mk, Request{Kind: "Bogus"})
	assert.Equal(t, RespServerError, resp.Kind)
}

func TestNewAddressUsesMakerAddressType(t *testing.T) {
	ctx := context.Background()

	resp := handleRequest(ctx, newTestMaker(t, false, nil), Request{Kind: ReqNewAddress})
	require.Equal(t, RespNewAddress, resp.Kind)
	assert.True(t, strings.HasPrefix(resp.Text, "bcrt1q"))

	resp = handleRequest(ctx, newTestMaker(t, true, nil), Request{Kind: ReqNewAddress})
	require.Equal(t, RespNewAddress, resp.Kind)
	assert.True(t, strings.HasPrefix(resp.Text, "bcrt1p"))
}

func TestSendToAddressSteps(t *testing.T) {
	ctx := context.Background()
	mk := newTestMaker(t, false, fixedChain{height: 10})

	other, err := wallet.New("other", wallet.MustParams("regtest"), []byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	dest, err := other.NextExternalAddress(wallet.P2WPKH)
	require.NoError(t, err)

	resp := handleRequest(ctx, mk, SendToAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", 10_000, 2))
	assert.Equal(t, RespServerError, resp.Kind)
	assert.True(t, strings.HasPrefix(resp.Text, "Invalid address: "), resp.Text)

	resp = handleRequest(ctx, mk, SendToAddress(dest.EncodeAddress(), 10_000_000, 2))
	assert.True(t, strings.HasPrefix(resp.Text, "Coin selection failed: "), resp.Text)

	resp = handleRequest(ctx, mk, SendToAddress(dest.EncodeAddress(), 10_000, 0))
	assert.True(t, strings.HasPrefix(resp.Text, "Coin selection failed: "), resp.Text)

	resp = handleRequest(ctx, mk, SendToAddress(dest.EncodeAddress(), 60_000, 2))
	require.Equal(t, RespSendToAddress, resp.Kind, resp.Text)
	assert.Len(t, resp.Text, 64)

	bal := handleRequest(ctx, mk, Request{Kind: ReqBalances}).Balances
	assert.Less(t, bal.Spendable, int64(140_000-60_000))

	broken := newTestMaker(t, false, failingChain{})
	resp = handleRequest(ctx, broken, SendToAddress(dest.EncodeAddress(), 60_000, 2))
	assert.True(t, strings.HasPrefix(resp.Text, "Sync failed: "), resp.Text)
}

func TestTorAddress(t *testing.T) {
	mk := newTestMaker(t, false, nil)
	ctx := context.Background()

	resp := handleRequest(ctx, mk, Request{Kind: ReqGetTorAddress})
	assert.Equal(t, RespServerError, resp.Kind)
	assert.Equal(t, "tor address not available", resp.Text)

	torDir := filepath.Join(mk.DataDir(), "tor")
	require.NoError(t, os.MkdirAll(torDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(torDir, "hostname"), []byte("abcd1234xyz.onion\n"), 0600))

	resp = handleRequest(ctx, mk, Request{Kind: ReqGetTorAddress})
	assert.Equal(t, "abcd1234xyz.onion:6102", resp.Text)

	cfg := files.DefaultMakerFileConfig()
	cfg.NetworkPort = 7000
	require.NoError(t, files.SaveMakerConfig(mk.DataDir(), cfg))
	resp = handleRequest(ctx, mk, Request{Kind: ReqGetTorAddress})
	assert.Equal(t, "abcd1234xyz.onion:7000", resp.Text)
}

func TestPoolRejectsDuplicatesAndUnknownIDs(t *testing.T) {
	p := NewPool(nil)
	defer p.Close()
	mk := newTestMaker(t, false, nil)

	require.NoError(t, p.SpawnMaker("m1", mk))
	assert.ErrorIs(t, p.SpawnMaker("m1", mk), ErrMakerExists)
	assert.True(t, p.Contains("m1"))
	assert.Equal(t, 1, p.Len())
	assert.False(t, p.IsEmpty())

	_, err := p.Request(context.Background(), "nope", Request{Kind: ReqPing})
	assert.ErrorIs(t, err, ErrMakerNotFound)

	started, ok := p.StartedAt("m1")
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), started, time.Minute)
}

func TestPoolLogsMissingTorAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewPool(zap.New(core))
	defer p.Close()
	require.NoError(t, p.SpawnMaker("m1", newTestMaker(t, false, nil)))
	ctx := context.Background()

	resp, err := p.Request(ctx, "m1", Request{Kind: ReqGetTorAddress})
	require.NoError(t, err)
	assert.Equal(t, RespServerError, resp.Kind)
	resp, err = p.Request(ctx, "m1", Request{Kind: "Bogus"})
	require.NoError(t, err)
	assert.Equal(t, RespServerError, resp.Kind)

	failures := logs.FilterMessage("maker request failed").All()
	require.Len(t, failures, 2)
	assert.Equal(t, zapcore.DebugLevel, failures[0].Level)
	assert.Equal(t, zapcore.WarnLevel, failures[1].Level)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestPoolRemoveEndsGoroutine(t *testing.T) {
	p := NewPool(nil)
	defer p.Close()
	require.NoError(t, p.SpawnMaker("b", newTestMaker(t, false, nil)))
	require.NoError(t, p.SpawnMaker("a", newTestMaker(t, false, nil)))
	assert.Equal(t, []string{"a", "b"}, p.ListMakers())

	done, ok := p.RemoveMaker("a")
	require.True(t, ok)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("maker goroutine did not exit")
	}
	assert.False(t, p.Contains("a"))

	_, ok = p.RemoveMaker("a")
	assert.False(t, ok)
}

func TestManagerTypedCalls(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.SpawnExistingMaker("m1", newTestMaker(t, false, fixedChain{height: 20})))

	require.NoError(t, m.Ping(ctx, "m1"))

	utxos, err := m.GetUTXOs(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, utxos, 3)

	swaps, err := m.GetSwapUTXOs(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, swaps, 1)

	contracts, err := m.GetContractUTXOs(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, contracts)

	fidelity, err := m.GetFidelityUTXOs(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, fidelity, 1)

	bal, err := m.GetBalances(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, bal.Regular+bal.Swap, bal.Spendable)

	addr, err := m.GetNewAddress(ctx, "m1")
	require.NoError(t, err)
	assert.NotEmpty(t, addr)

	dir, err := m.GetDataDir(ctx, "m1")
	require.NoError(t, err)
	assert.NotEmpty(t, dir)

	_, err = m.GetTorAddress(ctx, "m1")
	assert.ErrorIs(t, err, ErrServerError)

	bonds, err := m.ListFidelity(ctx, "m1")
	require.NoError(t, err)
	assert.Contains(t, bonds, "cc:0")

	require.NoError(t, m.SyncWallet(ctx, "m1"))

	_, err = m.SendToAddress(ctx, "m1", "garbage", 1_000, 1)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "Invalid address")
}

func TestManagerCreateMakerRequiresAuth(t *testing.T) {
	m := newTestManager(t)
	err := m.CreateMaker("m1", Config{DataDir: t.TempDir(), Network: "regtest"})
	assert.ErrorContains(t, err, "RPC authentication credentials must be provided")

	err = m.CreateMaker("m1", Config{
		DataDir: t.TempDir(),
		Network: "regtest",
		Auth:    &Auth{User: "user", Password: "pass"},
	}, WithChain(fixedChain{height: 1}))
	require.NoError(t, err)
	assert.True(t, m.HasMaker("m1"))

	err = m.CreateMaker("m1", Config{DataDir: t.TempDir(), Auth: &Auth{User: "u"}})
	assert.ErrorIs(t, err, ErrMakerExists)
}

func TestManagerStopMaker(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.SpawnExistingMaker("m1", newTestMaker(t, false, nil)))

	require.NoError(t, m.StopMaker(ctx, "m1"))
	assert.False(t, m.HasMaker("m1"))
	assert.Equal(t, 0, m.MakerCount())

	err := m.Ping(ctx, "m1")
	assert.ErrorIs(t, err, ErrMakerNotFound)

	assert.ErrorIs(t, m.StopMaker(ctx, "m1"), ErrMakerNotFound)
}

func TestStopWithoutRemoveClosesChannel(t *testing.T) {
	p := NewPool(nil)
	defer p.Close()
	require.NoError(t, p.SpawnMaker("m1", newTestMaker(t, false, nil)))

	resp, err := p.Request(context.Background(), "m1", Request{Kind: ReqStop})
	require.NoError(t, err)
	assert.Equal(t, RespShutdown, resp.Kind)

	require.Eventually(t, func() bool { return !p.Running("m1") }, 5*time.Second, 10*time.Millisecond)
	_, err = p.Request(context.Background(), "m1", Request{Kind: ReqPing})
	assert.ErrorIs(t, err, channel.ErrRequestChannelClosed)
}

func TestConcurrentRequestsAcrossMakers(t *testing.T) {
	m := newTestManager(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.SpawnExistingMaker(id, newTestMaker(t, false, nil)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := []string{"a", "b", "c"}[i%3]
			bal, err := m.GetBalances(context.Background(), id)
			assert.NoError(t, err)
			assert.Equal(t, int64(140_000), bal.Spendable)
		}(i)
	}
	wg.Wait()

	results := m.PingAll(context.Background())
	assert.Len(t, results, 3)
	for id, err := range results {
		assert.NoError(t, err, id)
	}
}
