package dashboard

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/maker"
	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

type demoCoin struct {
	kind     wallet.Kind
	btc      float64
	locktime int64
}

type demoSwap struct {
	btc    float64
	feeBTC float64
	status models.SwapStatus
}

type demoMaker struct {
	name  string
	port  int
	coins []demoCoin
	swaps []demoSwap
}

var (
	demoCoinsA = []demoCoin{
		{kind: wallet.KindRegular, btc: 0.30},
		{kind: wallet.KindRegular, btc: 0.20},
		{kind: wallet.KindSwap, btc: 0.25},
		{kind: wallet.KindFidelity, btc: 0.10, locktime: 950000},
	}
	demoSwapsA = []demoSwap{
		{btc: 0.5, feeBTC: 0.0025, status: models.SwapCompleted},
		{btc: 0.3, feeBTC: 0.0015, status: models.SwapCompleted},
		{btc: 0.7, feeBTC: 0.0049, status: models.SwapCompleted},
		{btc: 0.2, feeBTC: 0.0010, status: models.SwapActive},
		{btc: 0.15, feeBTC: 0.0008, status: models.SwapActive},
	}

	demoMakers = []demoMaker{
		{name: "Maker 1", port: 6103, coins: demoCoinsA, swaps: demoSwapsA},
		{
			name: "Maker 2",
			port: 6104,
			coins: []demoCoin{
				{kind: wallet.KindRegular, btc: 0.60},
				{kind: wallet.KindRegular, btc: 0.30},
				{kind: wallet.KindSwap, btc: 0.32},
				{kind: wallet.KindFidelity, btc: 0.10, locktime: 950000},
			},
			swaps: []demoSwap{
				{btc: 0.5, feeBTC: 0.0025, status: models.SwapCompleted},
				{btc: 0.8, feeBTC: 0.0040, status: models.SwapCompleted},
				{btc: 1.6, feeBTC: 0.0080, status: models.SwapCompleted},
				{btc: 0.1, feeBTC: 0.0005, status: models.SwapActive},
				{btc: 0.25, feeBTC: 0.0012, status: models.SwapActive},
				{btc: 0.4, feeBTC: 0.0020, status: models.SwapActive},
			},
		},
		{
			name: "Maker 3",
			port: 6105,
			coins: []demoCoin{
				{kind: wallet.KindRegular, btc: 0.20},
				{kind: wallet.KindFidelity, btc: 0.10, locktime: 950000},
			},
		},
		{name: "Maker 4", port: 6106, coins: demoCoinsA, swaps: demoSwapsA},
	}

	demoActivity = []struct {
		typ, maker, details, status string
		ago                         time.Duration
	}{
		{models.ActivityMakerStarted, "Maker 3", "Port 6105", "", 3 * time.Hour},
		{models.ActivityFundsReceived, "Maker 3", "0.3 BTC", "", 2 * time.Hour},
		{models.ActivitySwapCompleted, "Maker 1", "0.3 BTC • Fee: 0.0015 BTC", "success", time.Hour},
		{models.ActivityNewAddress, "Maker 1", "bc1q...7x4m", "", 15 * time.Minute},
		{models.ActivitySwapCompleted, "Maker 2", "0.5 BTC • Fee: 0.0025 BTC", "success", 2 * time.Minute},
	}
)

// demoID derives a stable maker ID from the demo maker name.
func demoID(name string) string {
	return makerIDPrefix + uuid.NewSHA1(uuid.NameSpaceOID, []byte("maker:"+name)).String()
}

func sats(btc float64) int64 {
	amt, err := btcutil.NewAmount(btc)
	if err != nil {
		panic(err)
	}
	return int64(amt)
}

// SeedDemo loads the demo makers, wallets, swap history and activity when the
// registry is empty. It reports whether anything was seeded.
func (s *Service) SeedDemo(ctx context.Context) (bool, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	n, err := s.store.Makers.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	ids := make(map[string]string, len(demoMakers))
	for i, dm := range demoMakers {
		rec := models.Maker{
			ID:          demoID(dm.name),
			Name:        dm.name,
			RPCPort:     dm.port,
			DataDir:     filepath.Join(s.cfg.DataRoot, "demo", fmt.Sprintf("maker-%d", i+1)),
			BitcoinRPC:  maker.DefaultRPC,
			BitcoinUser: "demo",
			ZMQ:         maker.DefaultZMQ,
			Taproot:     i%2 == 1,
			Network:     maker.DefaultNetwork,
			WalletName:  maker.DefaultWalletName,
			Demo:        true,
			CreatedAt:   s.now().UTC().Add(time.Duration(i-len(demoMakers)) * 24 * time.Hour),
		}
		if err := s.seedDemoMaker(ctx, rec, dm); err != nil {
			return false, fmt.Errorf("seed %s: %w", dm.name, err)
		}
		ids[dm.name] = rec.ID
	}

	for _, a := range demoActivity {
		_, err := s.store.Activity.Append(ctx, models.Activity{
			Type:      a.typ,
			MakerID:   ids[a.maker],
			Maker:     a.maker,
			Details:   a.details,
			Status:    a.status,
			CreatedAt: s.now().UTC().Add(-a.ago),
		})
		if err != nil {
			return false, err
		}
	}
	s.logger.Info("demo data seeded", zap.Int("makers", len(demoMakers)))
	return true, nil
}

func (s *Service) seedDemoMaker(ctx context.Context, rec models.Maker, dm demoMaker) error {
	if err := os.MkdirAll(filepath.Join(rec.DataDir, "tor"), 0o700); err != nil {
		return err
	}
	fileCfg := files.DefaultMakerFileConfig()
	fileCfg.RPCPort = rec.RPCPort
	fileCfg.NetworkPort = rec.RPCPort - 1000
	if err := files.SaveMakerConfig(rec.DataDir, fileCfg); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(rec.DataDir, "tor", "hostname"), []byte(demoOnion(rec.Name)+"\n"), 0o600); err != nil {
		return err
	}

	seed := sha256.Sum256([]byte("demo:" + rec.Name))
	opts := append([]maker.Option{maker.WithLogger(s.logger)}, s.cfg.MakerOptions...)
	opts = append(opts, maker.WithChain(nil), maker.WithSeed(seed[:]))
	mk, err := maker.Init(makerConfig(rec), opts...)
	if err != nil {
		return err
	}
	err = mk.WriteWallet(func(w *wallet.Wallet) error {
		if len(w.ListAllUTXO()) > 0 {
			return nil
		}
		for i, c := range dm.coins {
			addr, err := w.NextExternalAddress(mk.DefaultAddressType())
			if err != nil {
				return err
			}
			txid := chainhash.HashH([]byte(fmt.Sprintf("%s:%s:%d", rec.Name, c.kind, i)))
			if err := w.Receive(wallet.UTXO{
				TxID:     txid.String(),
				Vout:     uint32(i),
				Amount:   sats(c.btc),
				Address:  addr.EncodeAddress(),
				Kind:     c.kind,
				Locktime: c.locktime,
			}); err != nil {
				return err
			}
		}
		return w.Save()
	})
	if err != nil {
		return err
	}

	if err := s.store.Makers.Upsert(ctx, rec); err != nil {
		return err
	}
	for i, sw := range dm.swaps {
		_, err := s.store.Swaps.Record(ctx, models.Swap{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("swap:%s:%d", rec.Name, i))).String(),
			MakerID:   rec.ID,
			Amount:    sats(sw.btc),
			Fee:       sats(sw.feeBTC),
			Status:    sw.status,
			CreatedAt: s.now().UTC().Add(-time.Duration(len(dm.swaps)-i) * time.Hour),
		})
		if err != nil {
			return err
		}
	}
	return s.manager.SpawnExistingMaker(rec.ID, mk)
}

// demoOnion returns a v3-length onion hostname derived from name.
func demoOnion(name string) string {
	sum := sha256.Sum256([]byte("onion:" + name))
	raw := append(sum[:], sum[:3]...)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	return strings.ToLower(enc) + ".onion"
}
