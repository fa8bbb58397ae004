// Package wallet implements the maker wallet ledger: categorised coins,
// balances, address derivation, coin selection and spending.
//
// A Wallet is not safe for concurrent use. Makers guard it with a
// sync.RWMutex the same way they guard every other piece of state.
package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

// Kind classifies a coin by how the wallet holds it.
type Kind string

const (
	KindRegular  Kind = "regular"  // single signature wallet coins
	KindSwap     Kind = "swap"     // 2of2 multisig coins from swaps
	KindContract Kind = "contract" // live contract transactions
	KindFidelity Kind = "fidelity" // locked in fidelity bonds
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRegular, KindSwap, KindContract, KindFidelity:
		return true
	}
	return false
}

// DustLimit is the smallest output the wallet will create, in sats.
const DustLimit = 546

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidFeeRate    = errors.New("invalid fee rate")
	ErrUnknownCoin       = errors.New("coin not found in wallet")
	ErrDuplicateCoin     = errors.New("coin already in wallet")
)

// UTXO is an unspent (or, once Spent is set, historical) wallet output.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        int64  `json:"amount"`
	Address       string `json:"address"`
	Kind          Kind   `json:"kind"`
	Height        int64  `json:"height"`
	Confirmations int64  `json:"confirmations"`
	Locktime      int64  `json:"locktime,omitempty"`
	Spent         bool   `json:"spent,omitempty"`
}

// OutPoint returns the "txid:vout" identifier of the coin.
func (u UTXO) OutPoint() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Vout)
}

// Balances summarises unspent coins by kind, in sats.
type Balances struct {
	Regular   int64 `json:"regular"`
	Swap      int64 `json:"swap"`
	Contract  int64 `json:"contract"`
	Fidelity  int64 `json:"fidelity"`
	Spendable int64 `json:"spendable"`
}

// Total is the sum of every category.
func (b Balances) Total() int64 {
	return b.Regular + b.Swap + b.Contract + b.Fidelity
}

// ChainSource reports the current chain tip height.
type ChainSource interface {
	GetBlockCount(ctx context.Context) (int64, error)
}

// Persister saves wallet snapshots.
type Persister interface {
	SaveWallet(s Snapshot) error
}

// Wallet is a seed-derived ledger of categorised coins.
type Wallet struct {
	name          string
	params        *chaincfg.Params
	seed          []byte
	externalIndex uint32
	internalIndex uint32
	utxos         []UTXO
	txs           []Transaction
	tipHeight     int64
	syncedAt      time.Time

	chain     ChainSource
	persister Persister
}

// Snapshot is the persisted form of a Wallet.
type Snapshot struct {
	Name          string        `json:"name"`
	Network       string        `json:"network"`
	Seed          string        `json:"seed"`
	ExternalIndex uint32        `json:"external_index"`
	InternalIndex uint32        `json:"internal_index"`
	UTXOs         []UTXO        `json:"utxos"`
	Transactions  []Transaction `json:"transactions"`
	TipHeight     int64         `json:"tip_height"`
	SyncedAt      time.Time     `json:"synced_at"`
}

// New creates an empty wallet for the given network.
func New(name string, params *chaincfg.Params, seed []byte) (*Wallet, error) {
	if name == "" {
		return nil, errors.New("wallet name required")
	}
	if params == nil {
		return nil, errors.New("network params required")
	}
	if len(seed) < 16 {
		return nil, errors.New("wallet seed must be at least 16 bytes")
	}
	return &Wallet{
		name:   name,
		params: params,
		seed:   append([]byte(nil), seed...),
	}, nil
}

// FromSnapshot restores a wallet from its persisted form.
func FromSnapshot(s Snapshot) (*Wallet, error) {
	params, err := ParamsForNetwork(s.Network)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(s.Seed)
	if err != nil {
		return nil, fmt.Errorf("decode wallet seed: %w", err)
	}
	w, err := New(s.Name, params, seed)
	if err != nil {
		return nil, err
	}
	w.externalIndex = s.ExternalIndex
	w.internalIndex = s.InternalIndex
	w.utxos = append([]UTXO(nil), s.UTXOs...)
	w.txs = append([]Transaction(nil), s.Transactions...)
	w.tipHeight = s.TipHeight
	w.syncedAt = s.SyncedAt
	return w, nil
}

// Snapshot captures the wallet state for persistence.
func (w *Wallet) Snapshot() Snapshot {
	return Snapshot{
		Name:          w.name,
		Network:       w.params.Name,
		Seed:          hex.EncodeToString(w.seed),
		ExternalIndex: w.externalIndex,
		InternalIndex: w.internalIndex,
		UTXOs:         append([]UTXO(nil), w.utxos...),
		Transactions:  append([]Transaction(nil), w.txs...),
		TipHeight:     w.tipHeight,
		SyncedAt:      w.syncedAt,
	}
}

func (w *Wallet) Name() string             { return w.name }
func (w *Wallet) Params() *chaincfg.Params { return w.params }
func (w *Wallet) TipHeight() int64         { return w.tipHeight }
func (w *Wallet) SetChain(c ChainSource)   { w.chain = c }
func (w *Wallet) SetPersister(p Persister) { w.persister = p }
func (w *Wallet) Transactions() []Transaction {
	return append([]Transaction(nil), w.txs...)
}

// Receive adds a coin to the wallet.
func (w *Wallet) Receive(u UTXO) error {
	if !validAmount(u.Amount) {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, u.Amount)
	}
	if !u.Kind.Valid() {
		return fmt.Errorf("unknown coin kind %q", u.Kind)
	}
	for _, existing := range w.utxos {
		if existing.OutPoint() == u.OutPoint() {
			return fmt.Errorf("%w: %s", ErrDuplicateCoin, u.OutPoint())
		}
	}
	u.Spent = false
	u.Confirmations = confirmations(u.Height, w.tipHeight)
	w.utxos = append(w.utxos, u)
	return nil
}

// ListAllUTXO returns every unspent coin.
func (w *Wallet) ListAllUTXO() []UTXO {
	return w.filter(func(u UTXO) bool { return true })
}

// ListSwapCoins returns unspent coins received from swaps.
func (w *Wallet) ListSwapCoins() []UTXO {
	return w.filter(func(u UTXO) bool { return u.Kind == KindSwap })
}

// ListContracts returns unspent live contract coins.
func (w *Wallet) ListContracts() []UTXO {
	return w.filter(func(u UTXO) bool { return u.Kind == KindContract })
}

// ListFidelity returns unspent fidelity bond coins.
func (w *Wallet) ListFidelity() []UTXO {
	return w.filter(func(u UTXO) bool { return u.Kind == KindFidelity })
}

func (w *Wallet) filter(keep func(UTXO) bool) []UTXO {
	out := make([]UTXO, 0, len(w.utxos))
	for _, u := range w.utxos {
		if !u.Spent && keep(u) {
			out = append(out, u)
		}
	}
	sortByOutPoint(out)
	return out
}

// Balances totals unspent coins by kind. Spendable is regular plus swap.
func (w *Wallet) Balances() Balances {
	var b Balances
	for _, u := range w.utxos {
		if u.Spent {
			continue
		}
		switch u.Kind {
		case KindRegular:
			b.Regular += u.Amount
		case KindSwap:
			b.Swap += u.Amount
		case KindContract:
			b.Contract += u.Amount
		case KindFidelity:
			b.Fidelity += u.Amount
		}
	}
	b.Spendable = b.Regular + b.Swap
	return b
}

// Sync refreshes the chain tip and recomputes confirmations. Without a chain
// source only the confirmations are recomputed.
func (w *Wallet) Sync(ctx context.Context) error {
	if w.chain != nil {
		height, err := w.chain.GetBlockCount(ctx)
		if err != nil {
			return fmt.Errorf("fetch block count: %w", err)
		}
		w.tipHeight = height
	}
	for i := range w.utxos {
		w.utxos[i].Confirmations = confirmations(w.utxos[i].Height, w.tipHeight)
	}
	w.syncedAt = time.Now().UTC()
	return nil
}

// Save persists the wallet through its persister, if one is set.
func (w *Wallet) Save() error {
	if w.persister == nil {
		return nil
	}
	return w.persister.SaveWallet(w.Snapshot())
}

// SyncAndSave syncs with the chain and then persists.
func (w *Wallet) SyncAndSave(ctx context.Context) error {
	if err := w.Sync(ctx); err != nil {
		return err
	}
	return w.Save()
}

func confirmations(height, tip int64) int64 {
	if height <= 0 || tip < height {
		return 0
	}
	return tip - height + 1
}

func sortByOutPoint(us []UTXO) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].TxID != us[j].TxID {
			return us[i].TxID < us[j].TxID
		}
		return us[i].Vout < us[j].Vout
	})
}
