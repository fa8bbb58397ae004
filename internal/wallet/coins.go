package wallet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Output pays Amount sats to Address.
type Output struct {
	Address btcutil.Address
	Amount  int64
}

// Destination describes where a spend sends its funds.
type Destination struct {
	Outputs    []Output
	ChangeType AddressType
}

// TxOut is a recorded transaction output.
type TxOut struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
	Change  bool   `json:"change,omitempty"`
}

// Transaction is a spend built (and later sent) by the wallet.
type Transaction struct {
	TxID      string    `json:"txid"`
	Inputs    []string  `json:"inputs"`
	Outputs   []TxOut   `json:"outputs"`
	Fee       int64     `json:"fee"`
	FeeRate   float64   `json:"fee_rate"`
	CreatedAt time.Time `json:"created_at"`
	Sent      bool      `json:"sent"`
}

// EstimateVSize approximates the virtual size of a segwit spend.
func EstimateVSize(inputs, outputs int) int64 {
	return 11 + 68*int64(inputs) + 31*int64(outputs)
}

// MaxFeeRate is the highest fee rate the wallet accepts, in sat/vB.
const MaxFeeRate = 10_000

// EstimateFee returns the fee for the given size at feeRate sat/vB. The
// result saturates at btcutil.MaxSatoshi so it never wraps.
func EstimateFee(feeRate float64, inputs, outputs int) int64 {
	fee := math.Ceil(feeRate * float64(EstimateVSize(inputs, outputs)))
	if math.IsNaN(fee) || fee >= btcutil.MaxSatoshi {
		return btcutil.MaxSatoshi
	}
	return int64(fee)
}

func validFeeRate(feeRate float64) bool {
	return feeRate > 0 && feeRate <= MaxFeeRate && !math.IsNaN(feeRate)
}

func validAmount(amount int64) bool {
	return amount > 0 && amount <= btcutil.MaxSatoshi
}

// CoinSelect picks spendable coins, largest first, until they cover amount
// plus the fee of a two-output spend.
func (w *Wallet) CoinSelect(amount int64, feeRate float64) ([]UTXO, error) {
	if amount < DustLimit {
		return nil, fmt.Errorf("%w: %d sats is below dust", ErrInvalidAmount, amount)
	}
	if !validAmount(amount) {
		return nil, fmt.Errorf("%w: %d sats exceeds the supply cap", ErrInvalidAmount, amount)
	}
	if !validFeeRate(feeRate) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeeRate, feeRate)
	}

	candidates := w.filter(func(u UTXO) bool {
		return u.Kind == KindRegular || u.Kind == KindSwap
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Amount > candidates[j].Amount
	})

	var (
		selected []UTXO
		total    int64
	)
	for _, c := range candidates {
		selected = append(selected, c)
		total += c.Amount
		if total >= amount+EstimateFee(feeRate, len(selected), 2) {
			return selected, nil
		}
	}
	need := amount + EstimateFee(feeRate, len(candidates), 2)
	return nil, fmt.Errorf("%w: have %d sats, need %d", ErrInsufficientFunds, total, need)
}

// SpendFromWallet builds a transaction spending coins to dest. The wallet is
// not changed until the transaction is passed to SendTx.
func (w *Wallet) SpendFromWallet(feeRate float64, dest Destination, coins []UTXO) (*Transaction, error) {
	if !validFeeRate(feeRate) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeeRate, feeRate)
	}
	if len(dest.Outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs", ErrInvalidAmount)
	}
	if len(coins) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrInsufficientFunds)
	}

	var inTotal int64
	inputs := make([]string, 0, len(coins))
	for _, c := range coins {
		owned, ok := w.find(c.OutPoint())
		if !ok || owned.Spent {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCoin, c.OutPoint())
		}
		if !validAmount(owned.Amount) || inTotal > btcutil.MaxSatoshi-owned.Amount {
			return nil, fmt.Errorf("%w: inputs exceed the supply cap", ErrInvalidAmount)
		}
		inTotal += owned.Amount
		inputs = append(inputs, owned.OutPoint())
	}

	var outTotal int64
	outputs := make([]TxOut, 0, len(dest.Outputs)+1)
	for _, o := range dest.Outputs {
		if o.Address == nil {
			return nil, fmt.Errorf("%w: missing output address", ErrInvalidAddress)
		}
		if o.Amount < DustLimit {
			return nil, fmt.Errorf("%w: output of %d sats is below dust", ErrInvalidAmount, o.Amount)
		}
		if !validAmount(o.Amount) || outTotal > btcutil.MaxSatoshi-o.Amount {
			return nil, fmt.Errorf("%w: outputs exceed the supply cap", ErrInvalidAmount)
		}
		outTotal += o.Amount
		outputs = append(outputs, TxOut{Address: o.Address.EncodeAddress(), Amount: o.Amount})
	}

	fee := EstimateFee(feeRate, len(coins), len(outputs)+1)
	change := inTotal - outTotal - fee
	if fee < 0 || change < 0 {
		return nil, fmt.Errorf("%w: inputs %d sats, outputs %d sats, fee %d sats",
			ErrInsufficientFunds, inTotal, outTotal, fee)
	}
	if change >= DustLimit {
		changeType := dest.ChangeType
		if changeType == "" {
			changeType = P2WPKH
		}
		// Peek at the next change address; SendTx advances the index.
		addr, err := w.deriveAddress(branchInternal, w.internalIndex, changeType)
		if err != nil {
			return nil, fmt.Errorf("derive change address: %w", err)
		}
		outputs = append(outputs, TxOut{Address: addr.EncodeAddress(), Amount: change, Change: true})
	} else {
		fee += change
	}

	tx := &Transaction{
		Inputs:    inputs,
		Outputs:   outputs,
		Fee:       fee,
		FeeRate:   feeRate,
		CreatedAt: time.Now().UTC(),
	}
	tx.TxID = computeTxID(tx)
	return tx, nil
}

// SendTx applies a built transaction: inputs are marked spent, change is
// added as an unconfirmed coin, and the transaction is recorded.
func (w *Wallet) SendTx(tx *Transaction) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("nil transaction")
	}
	for _, op := range tx.Inputs {
		u, ok := w.find(op)
		if !ok || u.Spent {
			return "", fmt.Errorf("%w: %s", ErrUnknownCoin, op)
		}
	}
	for _, op := range tx.Inputs {
		w.markSpent(op)
	}
	for vout, out := range tx.Outputs {
		if !out.Change {
			continue
		}
		w.internalIndex++
		w.utxos = append(w.utxos, UTXO{
			TxID:    tx.TxID,
			Vout:    uint32(vout),
			Amount:  out.Amount,
			Address: out.Address,
			Kind:    KindRegular,
		})
	}
	tx.Sent = true
	w.txs = append(w.txs, *tx)
	return tx.TxID, nil
}

func (w *Wallet) find(outPoint string) (UTXO, bool) {
	for _, u := range w.utxos {
		if u.OutPoint() == outPoint {
			return u, true
		}
	}
	return UTXO{}, false
}

func (w *Wallet) markSpent(outPoint string) {
	for i := range w.utxos {
		if w.utxos[i].OutPoint() == outPoint {
			w.utxos[i].Spent = true
			return
		}
	}
}

func computeTxID(tx *Transaction) string {
	var buf bytes.Buffer
	for _, in := range tx.Inputs {
		buf.WriteString(in)
	}
	for _, out := range tx.Outputs {
		buf.WriteString(out.Address)
		_ = binary.Write(&buf, binary.LittleEndian, out.Amount)
	}
	_ = binary.Write(&buf, binary.LittleEndian, tx.CreatedAt.UnixNano())
	return chainhash.DoubleHashH(buf.Bytes()).String()
}
