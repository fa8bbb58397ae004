package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/utils"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

// UTXO list selectors accepted by UTXOs.
const (
	UTXOAll      = "all"
	UTXOSwap     = "swap"
	UTXOContract = "contract"
	UTXOFidelity = "fidelity"
)

// Balances returns the maker's wallet balances.
func (s *Service) Balances(ctx context.Context, id string) (models.BalanceBreakdown, error) {
	if _, err := s.running(ctx, id); err != nil {
		return models.BalanceBreakdown{}, err
	}
	bal, err := s.manager.GetBalances(ctx, id)
	if err != nil {
		return models.BalanceBreakdown{}, err
	}
	return breakdown(bal), nil
}

// UTXOs lists unspent coins. kind is one of the UTXO* selectors; empty means
// all.
func (s *Service) UTXOs(ctx context.Context, id, kind string) ([]wallet.UTXO, error) {
	if _, err := s.running(ctx, id); err != nil {
		return nil, err
	}
	var (
		utxos []wallet.UTXO
		err   error
	)
	switch strings.ToLower(kind) {
	case "", UTXOAll:
		utxos, err = s.manager.GetUTXOs(ctx, id)
	case UTXOSwap:
		utxos, err = s.manager.GetSwapUTXOs(ctx, id)
	case UTXOContract:
		utxos, err = s.manager.GetContractUTXOs(ctx, id)
	case UTXOFidelity:
		utxos, err = s.manager.GetFidelityUTXOs(ctx, id)
	default:
		return nil, utils.BadRequest("unknown utxo kind %q", kind)
	}
	if utxos == nil && err == nil {
		utxos = []wallet.UTXO{}
	}
	return utxos, err
}

// NewAddress derives the next receive address.
func (s *Service) NewAddress(ctx context.Context, id string) (string, error) {
	rec, err := s.running(ctx, id)
	if err != nil {
		return "", err
	}
	addr, err := s.manager.GetNewAddress(ctx, id)
	if err != nil {
		return "", err
	}
	s.recordMaker(ctx, rec, models.ActivityNewAddress, shortAddress(addr), "")
	return addr, nil
}

// Send pays req.Amount sats to req.Address and returns the txid.
func (s *Service) Send(ctx context.Context, id string, req models.SendRequest) (string, error) {
	rec, err := s.running(ctx, id)
	if err != nil {
		return "", err
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" {
		return "", utils.BadRequest("address is required")
	}
	if req.Amount <= 0 {
		return "", utils.BadRequest("amount must be positive")
	}
	if req.FeeRate < 0 {
		return "", utils.BadRequest("feerate must not be negative")
	}
	if req.FeeRate > wallet.MaxFeeRate {
		return "", utils.BadRequest("feerate must not exceed %d sat/vB", wallet.MaxFeeRate)
	}
	if req.FeeRate == 0 {
		req.FeeRate = defaultFeeRate
	}
	txid, err := s.manager.SendToAddress(ctx, id, req.Address, req.Amount, req.FeeRate)
	if err != nil {
		return "", err
	}
	s.recordMaker(ctx, rec, models.ActivityFundsSent,
		fmt.Sprintf("%s BTC to %s", formatBTC(req.Amount, 8), shortAddress(req.Address)), "success")
	return txid, nil
}

// SyncWallet refreshes the maker wallet against its chain source.
func (s *Service) SyncWallet(ctx context.Context, id string) error {
	rec, err := s.running(ctx, id)
	if err != nil {
		return err
	}
	if err := s.manager.SyncWallet(ctx, id); err != nil {
		return err
	}
	s.recordMaker(ctx, rec, models.ActivityWalletSynced, "", "success")
	return nil
}

// Fidelity returns the maker's fidelity bonds.
func (s *Service) Fidelity(ctx context.Context, id string) ([]wallet.FidelityBond, error) {
	if _, err := s.running(ctx, id); err != nil {
		return nil, err
	}
	text, err := s.manager.ListFidelity(ctx, id)
	if err != nil {
		return nil, err
	}
	bonds := []wallet.FidelityBond{}
	if err := json.Unmarshal([]byte(text), &bonds); err != nil {
		return nil, fmt.Errorf("decode fidelity bonds: %w", err)
	}
	return bonds, nil
}

// TorAddress returns the maker's onion address.
func (s *Service) TorAddress(ctx context.Context, id string) (string, error) {
	if _, err := s.running(ctx, id); err != nil {
		return "", err
	}
	return s.manager.GetTorAddress(ctx, id)
}

// DataDir returns the maker's data directory as the maker reports it.
func (s *Service) DataDir(ctx context.Context, id string) (string, error) {
	if _, err := s.running(ctx, id); err != nil {
		return "", err
	}
	return s.manager.GetDataDir(ctx, id)
}

// Swaps returns the maker's swap history, newest first.
func (s *Service) Swaps(ctx context.Context, id string, limit int) ([]models.Swap, error) {
	if _, err := s.store.Makers.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Swaps.ForMaker(ctx, id, limit)
}

// Logs returns the maker's activity, newest first.
func (s *Service) Logs(ctx context.Context, id string, limit int) ([]models.Activity, error) {
	if _, err := s.store.Makers.Get(ctx, id); err != nil {
		return nil, err
	}
	as, err := s.store.Activity.ForMaker(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return s.withTimes(as), nil
}
