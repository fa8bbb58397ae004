package wallet

import (
	"encoding/json"
	"fmt"
)

// Fidelity bond states.
const (
	BondActive  = "active"
	BondExpired = "expired"
	BondSpent   = "spent"
)

// FidelityBond is a timelocked deposit as reported to operators.
type FidelityBond struct {
	OutPoint string `json:"outpoint"`
	Amount   int64  `json:"amount"`
	Locktime int64  `json:"locktime"`
	Height   int64  `json:"confirmed_at"`
	Status   string `json:"status"`
}

// FidelityBonds lists every fidelity coin the wallet has held, spent ones
// included.
func (w *Wallet) FidelityBonds() []FidelityBond {
	var coins []UTXO
	for _, u := range w.utxos {
		if u.Kind == KindFidelity {
			coins = append(coins, u)
		}
	}
	sortByOutPoint(coins)

	bonds := make([]FidelityBond, 0, len(coins))
	for _, u := range coins {
		bonds = append(bonds, FidelityBond{
			OutPoint: u.OutPoint(),
			Amount:   u.Amount,
			Locktime: u.Locktime,
			Height:   u.Height,
			Status:   bondStatus(u, w.tipHeight),
		})
	}
	return bonds
}

// DisplayFidelityBonds renders FidelityBonds as indented JSON.
func (w *Wallet) DisplayFidelityBonds() (string, error) {
	out, err := json.MarshalIndent(w.FidelityBonds(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode fidelity bonds: %w", err)
	}
	return string(out), nil
}

func bondStatus(u UTXO, tip int64) string {
	switch {
	case u.Spent:
		return BondSpent
	case u.Locktime > 0 && tip >= u.Locktime:
		return BondExpired
	default:
		return BondActive
	}
}
