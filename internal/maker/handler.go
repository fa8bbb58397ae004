package maker

import (
	"context"
	"time"

	"github.com/harrylevesque/makerdash/internal/wallet"
)

// syncTimeout bounds the wallet sync done inside a request.
const syncTimeout = 30 * time.Second

// handleRequest answers one request. Every failure is reported as a
// ServerError response.
func handleRequest(ctx context.Context, m Backend, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = serverError("internal error handling %s: %v", req.Kind, r)
		}
	}()

	switch req.Kind {
	case ReqPing:
		return Response{Kind: RespPong}
	case ReqUtxo:
		return listUTXOs(m, RespUtxo, (*wallet.Wallet).ListAllUTXO)
	case ReqSwapUtxo:
		return listUTXOs(m, RespSwapUtxo, (*wallet.Wallet).ListSwapCoins)
	case ReqContractUtxo:
		return listUTXOs(m, RespContractUtxo, (*wallet.Wallet).ListContracts)
	case ReqFidelityUtxo:
		return listUTXOs(m, RespFidelityUtxo, (*wallet.Wallet).ListFidelity)
	case ReqBalances:
		var b wallet.Balances
		_ = m.ReadWallet(func(w *wallet.Wallet) error {
			b = w.Balances()
			return nil
		})
		return Response{Kind: RespTotalBalance, Balances: b}
	case ReqNewAddress:
		var addr string
		err := m.WriteWallet(func(w *wallet.Wallet) error {
			a, err := w.NextExternalAddress(m.DefaultAddressType())
			if err != nil {
				return err
			}
			addr = a.EncodeAddress()
			return w.Save()
		})
		if err != nil {
			return serverError("%v", err)
		}
		return Response{Kind: RespNewAddress, Text: addr}
	case ReqSendToAddress:
		return sendToAddress(ctx, m, req)
	case ReqGetTorAddress:
		addr, err := m.TorAddress()
		if err != nil {
			return serverError("%v", err)
		}
		return Response{Kind: RespGetTorAddress, Text: addr}
	case ReqGetDataDir:
		return Response{Kind: RespGetDataDir, Text: m.DataDir()}
	case ReqStop:
		return Response{Kind: RespShutdown}
	case ReqListFidelity:
		var bonds string
		err := m.ReadWallet(func(w *wallet.Wallet) error {
			var err error
			bonds, err = w.DisplayFidelityBonds()
			return err
		})
		if err != nil {
			return serverError("%v", err)
		}
		return Response{Kind: RespListBonds, Text: bonds}
	case ReqSyncWallet:
		if err := syncWallet(ctx, m); err != nil {
			return serverError("%v", err)
		}
		return Response{Kind: RespPong}
	default:
		return serverError("unknown request %q", req.Kind)
	}
}

func listUTXOs(m Backend, kind ResponseKind, list func(*wallet.Wallet) []wallet.UTXO) Response {
	var utxos []wallet.UTXO
	_ = m.ReadWallet(func(w *wallet.Wallet) error {
		utxos = list(w)
		return nil
	})
	return Response{Kind: kind, UTXOs: utxos}
}

func syncWallet(ctx context.Context, m Backend) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	return m.WriteWallet(func(w *wallet.Wallet) error {
		return w.SyncAndSave(ctx)
	})
}

// sendToAddress validates the destination, selects coins, builds and applies
// the spend, then syncs. Each step reports its own error prefix.
func sendToAddress(ctx context.Context, m Backend, req Request) Response {
	if req.Amount <= 0 {
		return serverError("Invalid amount: %d", req.Amount)
	}

	var dest wallet.Destination
	err := m.ReadWallet(func(w *wallet.Wallet) error {
		addr, err := w.DecodeAddress(req.Address)
		if err != nil {
			return err
		}
		dest = wallet.Destination{
			Outputs:    []wallet.Output{{Address: addr, Amount: req.Amount}},
			ChangeType: m.DefaultAddressType(),
		}
		return nil
	})
	if err != nil {
		return serverError("Invalid address: %v", err)
	}

	var coins []wallet.UTXO
	err = m.ReadWallet(func(w *wallet.Wallet) error {
		coins, err = w.CoinSelect(req.Amount, req.FeeRate)
		return err
	})
	if err != nil {
		return serverError("Coin selection failed: %v", err)
	}

	var tx *wallet.Transaction
	err = m.WriteWallet(func(w *wallet.Wallet) error {
		tx, err = w.SpendFromWallet(req.FeeRate, dest, coins)
		return err
	})
	if err != nil {
		return serverError("Transaction building failed: %v", err)
	}

	var txid string
	err = m.WriteWallet(func(w *wallet.Wallet) error {
		txid, err = w.SendTx(tx)
		return err
	})
	if err != nil {
		return serverError("Broadcast failed: %v", err)
	}

	if err := syncWallet(ctx, m); err != nil {
		return serverError("Sync failed: %v", err)
	}
	return Response{Kind: RespSendToAddress, Text: txid}
}
