package models

import "time"

type MakerStatus string

const (
	StatusOnline  MakerStatus = "online"
	StatusOffline MakerStatus = "offline"
	StatusError   MakerStatus = "error"
)

// Maker is a registered maker as stored in the registry. Secrets never leave
// the server in this form; see MakerSummary and MakerConfigView.
type Maker struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	RPCPort         int       `json:"rpcPort"`
	DataDir         string    `json:"dataDir"`
	BitcoinRPC      string    `json:"bitcoinRpc"`
	BitcoinUser     string    `json:"bitcoinUser"`
	BitcoinPassword string    `json:"-"`
	ZMQ             string    `json:"zmq"`
	Taproot         bool      `json:"taproot"`
	Network         string    `json:"network"`
	WalletName      string    `json:"walletName"`
	WalletPassword  string    `json:"-"`
	TorAuth         string    `json:"-"`
	Demo            bool      `json:"demo"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// AddMakerRequest is the add-maker form.
type AddMakerRequest struct {
	Name            string `json:"name"`
	RPCPort         int    `json:"rpcPort"`
	BitcoinRPC      string `json:"bitcoinRpc"`
	BitcoinUser     string `json:"bitcoinUser"`
	BitcoinPassword string `json:"bitcoinPassword"`
	ZMQ             string `json:"zmq"`
	DataDir         string `json:"dataDir"`
	Taproot         bool   `json:"taproot"`
	Network         string `json:"network,omitempty"`
	WalletName      string `json:"walletName,omitempty"`
	WalletPassword  string `json:"walletPassword,omitempty"`
	TorAuth         string `json:"torAuth,omitempty"`
}

// MakerSummary is one row of the maker list and dashboard.
type MakerSummary struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Port         int         `json:"port"`
	Status       MakerStatus `json:"status"`
	Balance      string      `json:"balance"`
	BalanceSats  int64       `json:"balanceSats"`
	ActiveSwaps  int         `json:"activeSwaps"`
	Earnings     string      `json:"earnings"`
	EarningsSats int64       `json:"earningsSats"`
	Uptime       string      `json:"uptime"`
	DataDir      string      `json:"dataDir"`
	BitcoinRPC   string      `json:"bitcoinRpc"`
	TorAddress   string      `json:"torAddress"`
	Taproot      bool        `json:"taproot"`
	Network      string      `json:"network"`
	Error        string      `json:"error,omitempty"`
}

// BalanceBreakdown mirrors the wallet balances in BTC strings and sats.
type BalanceBreakdown struct {
	Regular   string `json:"regular"`
	Swap      string `json:"swap"`
	Contract  string `json:"contract"`
	Fidelity  string `json:"fidelity"`
	Spendable string `json:"spendable"`
	Sats      struct {
		Regular   int64 `json:"regular"`
		Swap      int64 `json:"swap"`
		Contract  int64 `json:"contract"`
		Fidelity  int64 `json:"fidelity"`
		Spendable int64 `json:"spendable"`
	} `json:"sats"`
}

// MakerConfigView is the registry record with secrets replaced by flags.
type MakerConfigView struct {
	BitcoinRPC         string `json:"bitcoinRpc"`
	BitcoinUser        string `json:"bitcoinUser"`
	BitcoinPassword    string `json:"bitcoinPassword"`
	BitcoinPasswordSet bool   `json:"bitcoinPassword_set"`
	ZMQ                string `json:"zmq"`
	Network            string `json:"network"`
	WalletName         string `json:"walletName"`
	WalletPasswordSet  bool   `json:"walletPassword_set"`
	TorAuthSet         bool   `json:"torAuth_set"`
	Taproot            bool   `json:"taproot"`
}

// MakerDetail backs the maker details page.
type MakerDetail struct {
	MakerSummary
	Balances BalanceBreakdown `json:"balances"`
	Config   MakerConfigView  `json:"config"`
	Swaps    []Swap           `json:"swaps"`
}

// SendRequest asks a maker to pay an address.
type SendRequest struct {
	Address string  `json:"address"`
	Amount  int64   `json:"amount"`
	FeeRate float64 `json:"feerate"`
}

type SwapStatus string

const (
	SwapActive    SwapStatus = "active"
	SwapCompleted SwapStatus = "completed"
	SwapFailed    SwapStatus = "failed"
)

// Swap is one entry of a maker's swap history. Amounts are sats.
type Swap struct {
	ID        string     `json:"id"`
	MakerID   string     `json:"makerId"`
	Amount    int64      `json:"amount"`
	Fee       int64      `json:"fee"`
	Status    SwapStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}
